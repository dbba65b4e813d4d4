package store

import (
	"context"

	"github.com/lazypower/verkeep/internal/retention"
)

// OnVersionCreated implements retention.Notifier. Subscribers run in
// registration order after the version's transaction has committed, one
// call per version, serialized per node.
func (db *DB) OnVersionCreated(fn retention.VersionCreatedFunc) {
	db.listenMu.Lock()
	defer db.listenMu.Unlock()
	db.listeners = append(db.listeners, fn)
}

// notifyVersionCreated stops at the first failing subscriber.
func (db *DB) notifyVersionCreated(ctx context.Context, nodeID string, v retention.Version) error {
	db.listenMu.RLock()
	listeners := append([]retention.VersionCreatedFunc(nil), db.listeners...)
	db.listenMu.RUnlock()

	for _, fn := range listeners {
		if err := fn(ctx, nodeID, v); err != nil {
			db.logger.Error("version created subscriber failed", "node_id", nodeID, "label", v.Label, "error", err)
			return err
		}
	}
	return nil
}

var (
	_ retention.Host       = (*DB)(nil)
	_ retention.Notifier   = (*DB)(nil)
	_ retention.NodeLister = (*DB)(nil)
	_ retention.NodeLocker = (*DB)(nil)
)
