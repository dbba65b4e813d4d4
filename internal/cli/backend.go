package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lazypower/verkeep/internal/client"
	"github.com/lazypower/verkeep/internal/retention"
	"github.com/lazypower/verkeep/internal/store"
)

// backend is what the node commands need: a running server or the local
// database with retention bound to it.
type backend interface {
	CreateNode(ctx context.Context, name string) (*store.Node, error)
	ListNodes(ctx context.Context) ([]store.Node, error)
	Versions(ctx context.Context, ref string) ([]store.VersionRecord, error)
	Commit(ctx context.Context, ref string, kind retention.Kind, comment string) (*store.VersionRecord, error)
	Plan(ctx context.Context, ref string) ([]retention.Version, error)
	Prune(ctx context.Context, ref string) ([]retention.Version, error)
	Close() error
}

// openBackend prefers a healthy server so its retention and metrics see
// the change; otherwise it opens the database directly.
func openBackend(ctx context.Context) (backend, error) {
	if !forceLocal {
		c := client.NewClient()
		if c.Healthy(ctx) {
			return remote{c}, nil
		}
	}

	db, err := openDB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	p := retention.NewPruner(db, policy())
	p.Bind(db)
	return &local{db: db, pruner: p}, nil
}

func openDB() (*store.DB, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}

// policy returns the configured retention policy, logging every value
// that had to be clamped.
func policy() retention.Policy {
	p, warnings := cfg.RetentionPolicy()
	for _, w := range warnings {
		slog.Warn("retention policy adjusted", "warning", w)
	}
	return p
}

type remote struct {
	*client.Client
}

func (remote) Close() error { return nil }

type local struct {
	db     *store.DB
	pruner *retention.Pruner
}

func (l *local) Close() error { return l.db.Close() }

func (l *local) resolve(ctx context.Context, ref string) (*store.Node, error) {
	n, err := l.db.ResolveNode(ctx, ref)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrNodeNotFound, ref)
	}
	return n, nil
}

func (l *local) CreateNode(ctx context.Context, name string) (*store.Node, error) {
	return l.db.CreateNode(ctx, name)
}

func (l *local) ListNodes(ctx context.Context) ([]store.Node, error) {
	return l.db.ListNodes(ctx)
}

func (l *local) Versions(ctx context.Context, ref string) ([]store.VersionRecord, error) {
	n, err := l.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.db.ListVersions(ctx, n.ID)
}

func (l *local) Commit(ctx context.Context, ref string, kind retention.Kind, comment string) (*store.VersionRecord, error) {
	n, err := l.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.db.CreateVersion(ctx, n.ID, kind, comment)
}

func (l *local) Plan(ctx context.Context, ref string) ([]retention.Version, error) {
	n, err := l.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.pruner.Plan(ctx, n.ID)
}

func (l *local) Prune(ctx context.Context, ref string) ([]retention.Version, error) {
	n, err := l.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	var deleted []retention.Version
	err = l.db.WithNodeLock(n.ID, func() error {
		var err error
		deleted, err = l.pruner.Prune(ctx, n.ID)
		return err
	})
	return deleted, err
}
