package retention

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/lazypower/verkeep/internal/retention"

// Host is the version store the pruner reads from and deletes through.
type Host interface {
	// VersionHistory returns the node's history, or (nil, nil) when the node
	// has no versions yet.
	VersionHistory(ctx context.Context, nodeID string) (*History, error)

	// DeleteVersion removes one version. It either succeeds or returns an
	// error; the pruner never retries.
	DeleteVersion(ctx context.Context, nodeID string, v Version) error
}

// VersionCreatedFunc is invoked once per committed version, after commit,
// and never concurrently for the same node.
type VersionCreatedFunc func(ctx context.Context, nodeID string, v Version) error

// Notifier accepts "version created" subscriptions.
type Notifier interface {
	OnVersionCreated(fn VersionCreatedFunc)
}

// Pruner applies a Policy to node histories held by a Host.
type Pruner struct {
	host    Host
	policy  Policy
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger sets the pruner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pruner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records pruning runs on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pruner) {
		p.metrics = m
	}
}

// NewPruner creates a pruner for an already normalized policy.
func NewPruner(host Host, policy Policy, opts ...Option) *Pruner {
	p := &Pruner{
		host:   host,
		policy: policy,
		logger: slog.Default().With("component", "retention"),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the policy the pruner enforces.
func (p *Pruner) Policy() Policy {
	return p.policy
}

// Bind subscribes the pruner to n's "version created" notifications.
func (p *Pruner) Bind(n Notifier) {
	n.OnVersionCreated(p.OnVersionCreated)
	p.logger.Debug("retention bound to version events",
		"mode", p.policy.Mode().String(),
		"max_versions", p.policy.MaxVersions,
		"max_major", p.policy.Major.Max,
		"keep_major", p.policy.Major.KeepIntermediate,
		"max_minor", p.policy.Minor.Max,
		"keep_minor", p.policy.Minor.KeepIntermediate,
	)
}

// OnVersionCreated prunes nodeID's history after v was committed.
func (p *Pruner) OnVersionCreated(ctx context.Context, nodeID string, v Version) error {
	p.logger.Debug("version created", "node_id", nodeID, "label", v.Label, "kind", v.Kind)
	_, err := p.Prune(ctx, nodeID)
	return err
}

// Plan reports what Prune would delete right now without deleting anything.
func (p *Pruner) Plan(ctx context.Context, nodeID string) ([]Version, error) {
	h, err := p.host.VersionHistory(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("get version history: %w", err)
	}
	return ComputeDeletions(h, p.policy)
}

// Prune enforces the policy on nodeID and returns the deleted versions in
// the order they were deleted. On error the versions deleted so far are
// still returned.
func (p *Pruner) Prune(ctx context.Context, nodeID string) ([]Version, error) {
	mode := p.policy.Mode()
	ctx, span := p.tracer.Start(ctx, "retention.Prune", trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("retention.mode", mode.String()),
	))
	defer span.End()

	start := time.Now()
	var (
		deleted []Version
		err     error
	)
	switch mode {
	case ModeFlat:
		deleted, err = p.pruneFlat(ctx, nodeID)
	case ModeDual:
		deleted, err = p.pruneDual(ctx, nodeID)
	default:
		p.logger.Debug("retention disabled, nothing to prune", "node_id", nodeID)
		return nil, nil
	}
	p.metrics.recordRun(mode, deleted, err, time.Since(start))

	span.SetAttributes(attribute.Int("retention.deleted", len(deleted)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("retention failed", "node_id", nodeID, "deleted", len(deleted), "error", err)
		return deleted, err
	}
	if len(deleted) > 0 {
		p.logger.Info("pruned versions", "node_id", nodeID, "mode", mode.String(), "deleted", len(deleted))
	}
	return deleted, nil
}

// history reads and validates nodeID's history; nil means none exists.
func (p *Pruner) history(ctx context.Context, nodeID string) (*History, error) {
	h, err := p.host.VersionHistory(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("get version history: %w", err)
	}
	if h == nil {
		p.logger.Debug("version history does not exist", "node_id", nodeID)
		return nil, nil
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// pruneFlat removes the root until the history fits, re-reading after every
// delete since the host may relink the chain.
func (p *Pruner) pruneFlat(ctx context.Context, nodeID string) ([]Version, error) {
	h, err := p.history(ctx, nodeID)
	if err != nil || h == nil {
		return nil, err
	}
	p.logger.Debug("current number of versions", "node_id", nodeID, "count", h.Len(), "root", h.Root().Label)

	var deleted []Version
	for h.Len() > p.policy.MaxVersions {
		root := h.Root()
		before := h.Len()
		p.logger.Debug("removing version", "node_id", nodeID, "label", root.Label)
		if err := p.host.DeleteVersion(ctx, nodeID, root); err != nil {
			return deleted, fmt.Errorf("delete version %s: %w", root.Label, err)
		}
		deleted = append(deleted, root)

		h, err = p.history(ctx, nodeID)
		if err != nil {
			return deleted, err
		}
		if h == nil {
			break
		}
		if h.Len() >= before {
			return deleted, fmt.Errorf("%w: node %s still holds %d versions after deleting %s",
				ErrNoRemovableVersion, nodeID, h.Len(), root.Label)
		}
	}
	return deleted, nil
}

// pruneDual caps majors then minors. The history is re-read between the
// two tracks; within a track the working list is shrunk in memory.
func (p *Pruner) pruneDual(ctx context.Context, nodeID string) ([]Version, error) {
	h, err := p.history(ctx, nodeID)
	if err != nil || h == nil {
		return nil, err
	}
	majors, _, err := Classify(h.Versions)
	if err != nil {
		return nil, err
	}
	deleted, err := p.pruneTrack(ctx, nodeID, majors, p.policy.Major)
	if err != nil {
		return deleted, err
	}

	if len(deleted) > 0 {
		h, err = p.history(ctx, nodeID)
		if err != nil || h == nil {
			return deleted, err
		}
	}
	_, minors, err := Classify(h.Versions)
	if err != nil {
		return deleted, err
	}
	minorDeleted, err := p.pruneTrack(ctx, nodeID, minors, p.policy.Minor)
	return append(deleted, minorDeleted...), err
}

func (p *Pruner) pruneTrack(ctx context.Context, nodeID string, track []Version, limit Track) ([]Version, error) {
	if limit.Max <= 0 || len(track) <= limit.Max {
		return nil, nil
	}
	working := slices.Clone(track)
	var deleted []Version
	for len(working) > limit.Max {
		i, err := SelectVictim(working, limit.KeepIntermediate)
		if err != nil {
			return deleted, err
		}
		v := working[i]
		p.logger.Debug("removing version", "node_id", nodeID, "label", v.Label, "kind", v.Kind)
		if err := p.host.DeleteVersion(ctx, nodeID, v); err != nil {
			return deleted, fmt.Errorf("delete version %s: %w", v.Label, err)
		}
		deleted = append(deleted, v)
		working = slices.Delete(working, i, i+1)
	}
	return deleted, nil
}
