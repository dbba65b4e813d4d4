// Package retention decides which versions of a node's history to delete
// when a new version is recorded, and executes those deletions against a host.
//
// # Modes
//
// A Policy runs in one of three modes:
//
//   - Disabled: nothing is ever deleted.
//   - Flat: the legacy "keep N" rule. While the history holds more than
//     MaxVersions entries, the root (least recent) version is deleted.
//   - Dual: majors and minors are capped independently. Each track may keep
//     every Kth version (KeepIntermediate*) as a periodic snapshot, so long
//     lived nodes retain a sparse skeleton of their past.
//
// # Usage
//
//	policy, warnings := retention.Policy{
//	    Minor: retention.Track{Max: 10, KeepIntermediate: 5},
//	}.Normalize()
//	pruner := retention.NewPruner(db, policy)
//	pruner.Bind(db) // post-commit "version created" callbacks
//
// ComputeDeletions is the pure decision function; Pruner wraps it with host
// reads and deletes, re-reading the history whenever a deletion may have
// changed it.
package retention
