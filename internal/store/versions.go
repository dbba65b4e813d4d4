package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/verkeep/internal/retention"
)

// ErrVersionNotFound is returned when deleting a label the node does not have.
var ErrVersionNotFound = errors.New("version not found")

// VersionRecord is a stored version with its metadata.
type VersionRecord struct {
	ID        int64          `json:"id"`
	NodeID    string         `json:"node_id"`
	Label     string         `json:"label"`
	Major     int            `json:"major"`
	Minor     int            `json:"minor"`
	Kind      retention.Kind `json:"kind"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// Version returns the retention view of the record.
func (r VersionRecord) Version() retention.Version {
	return retention.Version{Label: r.Label, Kind: r.Kind}
}

// nextLabel numbers a new version from the current head. A major bump
// resets the minor number; the first version is 1.0 or 0.1.
func nextLabel(head *VersionRecord, kind retention.Kind) (major, minor int) {
	if head == nil {
		if kind == retention.KindMajor {
			return 1, 0
		}
		return 0, 1
	}
	if kind == retention.KindMajor {
		return head.Major + 1, 0
	}
	return head.Major, head.Minor + 1
}

// CreateVersion records a new version on nodeID and, once committed,
// notifies every OnVersionCreated subscriber. The record is returned even
// when a subscriber fails, since the version itself is durable by then.
func (db *DB) CreateVersion(ctx context.Context, nodeID string, kind retention.Kind, comment string) (*VersionRecord, error) {
	if kind != retention.KindMajor && kind != retention.KindMinor {
		return nil, fmt.Errorf("create version: %w: kind %q", retention.ErrInvariantViolation, kind)
	}

	unlock := db.lockNode(nodeID)
	defer unlock()

	rec, err := db.insertVersion(ctx, nodeID, kind, comment)
	if err != nil {
		return nil, err
	}

	if err := db.notifyVersionCreated(ctx, nodeID, rec.Version()); err != nil {
		return rec, fmt.Errorf("after create version %s: %w", rec.Label, err)
	}
	return rec, nil
}

func (db *DB) insertVersion(ctx context.Context, nodeID string, kind retention.Kind, comment string) (*VersionRecord, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create version: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE id = ?", nodeID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check node: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("create version on %s: %w", nodeID, ErrNodeNotFound)
	}

	head, err := scanVersion(tx.QueryRowContext(ctx, versionSelect+`
		WHERE node_id = ? ORDER BY id DESC LIMIT 1`, nodeID))
	if err != nil {
		return nil, fmt.Errorf("get head version: %w", err)
	}

	major, minor := nextLabel(head, kind)
	rec := &VersionRecord{
		NodeID:    nodeID,
		Label:     retention.FormatLabel(major, minor),
		Major:     major,
		Minor:     minor,
		Kind:      kind,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: time.Now().UnixMilli(),
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO versions (node_id, label, major, minor, kind, comment, created_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)
	`, rec.NodeID, rec.Label, rec.Major, rec.Minor, string(rec.Kind), rec.Comment, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	rec.ID, _ = result.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}
	return rec, nil
}

// ListVersions returns nodeID's versions, most recent first.
func (db *DB) ListVersions(ctx context.Context, nodeID string) ([]VersionRecord, error) {
	rows, err := db.QueryContext(ctx, versionSelect+` WHERE node_id = ? ORDER BY id DESC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var r VersionRecord
		var kind string
		var comment sql.NullString
		if err := rows.Scan(&r.ID, &r.NodeID, &r.Label, &r.Major, &r.Minor, &kind, &comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		r.Kind = retention.Kind(kind)
		r.Comment = comment.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// VersionHistory implements retention.Host. It returns nil when the node
// has no versions.
func (db *DB) VersionHistory(ctx context.Context, nodeID string) (*retention.History, error) {
	records, err := db.ListVersions(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	h := &retention.History{
		NodeID:   nodeID,
		Versions: make([]retention.Version, len(records)),
	}
	for i, r := range records {
		h.Versions[i] = r.Version()
	}
	h.Head = h.Versions[0]
	return h, nil
}

// DeleteVersion implements retention.Host.
func (db *DB) DeleteVersion(ctx context.Context, nodeID string, v retention.Version) error {
	result, err := db.ExecContext(ctx, "DELETE FROM versions WHERE node_id = ? AND label = ?", nodeID, v.Label)
	if err != nil {
		return fmt.Errorf("delete version %s: %w", v.Label, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete version %s of %s: %w", v.Label, nodeID, ErrVersionNotFound)
	}
	return nil
}

// ListVersionedNodes implements retention.NodeLister.
func (db *DB) ListVersionedNodes(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT DISTINCT node_id FROM versions ORDER BY node_id")
	if err != nil {
		return nil, fmt.Errorf("list versioned nodes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const versionSelect = `
	SELECT id, node_id, label, major, minor, kind, comment, created_at
	FROM versions`

func scanVersion(row *sql.Row) (*VersionRecord, error) {
	var r VersionRecord
	var kind string
	var comment sql.NullString
	err := row.Scan(&r.ID, &r.NodeID, &r.Label, &r.Major, &r.Minor, &kind, &comment, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Kind = retention.Kind(kind)
	r.Comment = comment.String
	return &r, nil
}
