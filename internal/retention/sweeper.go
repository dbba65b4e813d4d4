package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// NodeLister enumerates the nodes that have a version history.
type NodeLister interface {
	ListVersionedNodes(ctx context.Context) ([]string, error)
}

// NodeLocker runs fn while holding the same per-node lock the host takes
// around version creation.
type NodeLocker interface {
	WithNodeLock(nodeID string, fn func() error) error
}

// SweepResult summarizes one pass over every versioned node.
type SweepResult struct {
	Nodes   int
	Deleted int
	Failed  int
}

// Sweeper re-applies the policy to every node on a cron schedule. Nodes
// whose history predates the policy, or that never see a new version, are
// only brought under the cap this way.
type Sweeper struct {
	pruner   *Pruner
	lister   NodeLister
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewSweeper creates a sweeper. An empty schedule makes Start a no-op.
func NewSweeper(pruner *Pruner, lister NodeLister, schedule string) *Sweeper {
	return &Sweeper{
		pruner:   pruner,
		lister:   lister,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "retention.sweeper"),
	}
}

// Sweep prunes every versioned node once. A failing node does not stop the
// pass; all failures are joined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	nodes, err := s.lister.ListVersionedNodes(ctx)
	if err != nil {
		return res, fmt.Errorf("list versioned nodes: %w", err)
	}

	var errs []error
	for _, nodeID := range nodes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res.Nodes++
		s.pruner.metrics.recordSweepNode()

		deleted, err := s.prune(ctx, nodeID)
		res.Deleted += len(deleted)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("node %s: %w", nodeID, err))
		}
	}
	return res, errors.Join(errs...)
}

// prune holds the node lock when the lister offers one, so a sweep never
// races the post-commit prune of the same node.
func (s *Sweeper) prune(ctx context.Context, nodeID string) ([]Version, error) {
	locker, ok := s.lister.(NodeLocker)
	if !ok {
		return s.pruner.Prune(ctx, nodeID)
	}
	var deleted []Version
	err := locker.WithNodeLock(nodeID, func() error {
		var err error
		deleted, err = s.pruner.Prune(ctx, nodeID)
		return err
	})
	return deleted, err
}

// Start schedules Sweep on the configured cron expression and stops when
// ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	s.logger.Info("starting scheduled retention sweep")
	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep finished with errors",
			"nodes", res.Nodes, "deleted", res.Deleted, "failed", res.Failed, "error", err)
		return
	}
	s.logger.Info("scheduled sweep completed", "nodes", res.Nodes, "deleted", res.Deleted)
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention sweeper stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when none is scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
