package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNodeNotFound is returned when an operation names an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists is returned when a node name is already taken.
	ErrNodeExists = errors.New("node already exists")
)

// Node is a versionable piece of content.
type Node struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedAt    int64  `json:"created_at"`
	VersionCount int    `json:"version_count"`
}

// CreateNode inserts a node with a fresh UUID.
func (db *DB) CreateNode(ctx context.Context, name string) (*Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create node: name required")
	}

	existing, err := db.GetNodeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("create node %q: %w", name, ErrNodeExists)
	}

	node := &Node{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO nodes (id, name, created_at) VALUES (?, ?, ?)
	`, node.ID, node.Name, node.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	return node, nil
}

// GetNode returns a node by ID, or nil if not found.
func (db *DB) GetNode(ctx context.Context, id string) (*Node, error) {
	n, err := scanNode(db.QueryRowContext(ctx, nodeSelect+` WHERE n.id = ? GROUP BY n.id`, id))
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// GetNodeByName returns a node by name, or nil if not found.
func (db *DB) GetNodeByName(ctx context.Context, name string) (*Node, error) {
	n, err := scanNode(db.QueryRowContext(ctx, nodeSelect+` WHERE n.name = ? GROUP BY n.id`, name))
	if err != nil {
		return nil, fmt.Errorf("get node by name: %w", err)
	}
	return n, nil
}

// ResolveNode accepts either a node ID or a node name.
func (db *DB) ResolveNode(ctx context.Context, ref string) (*Node, error) {
	if _, err := uuid.Parse(ref); err == nil {
		n, err := db.GetNode(ctx, ref)
		if err != nil || n != nil {
			return n, err
		}
	}
	return db.GetNodeByName(ctx, ref)
}

// ListNodes returns all nodes ordered by name.
func (db *DB) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := db.QueryContext(ctx, nodeSelect+` GROUP BY n.id ORDER BY n.name`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Name, &n.CreatedAt, &n.VersionCount); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// DeleteNode removes a node and, by cascade, its whole history.
func (db *DB) DeleteNode(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("delete node %s: %w", id, ErrNodeNotFound)
	}
	db.nodeLocks.Delete(id)
	return nil
}

const nodeSelect = `
	SELECT n.id, n.name, n.created_at, COUNT(v.id)
	FROM nodes n LEFT JOIN versions v ON v.node_id = n.id`

func scanNode(row *sql.Row) (*Node, error) {
	var n Node
	err := row.Scan(&n.ID, &n.Name, &n.CreatedAt, &n.VersionCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}
