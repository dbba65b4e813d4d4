package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lazypower/verkeep/internal/retention"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the verkeep SQLite database.
type DB struct {
	*sql.DB
	Path string

	logger    *slog.Logger
	nodeLocks sync.Map // node id -> *sync.Mutex

	listenMu  sync.RWMutex
	listeners []retention.VersionCreatedFunc
}

// DefaultDBPath returns the default database path: ~/.verkeep/verkeep.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".verkeep", "verkeep.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// every pooled connection to :memory: would be a separate database
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, ":memory:")
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{
		DB:     sqlDB,
		Path:   path,
		logger: slog.Default().With("component", "store"),
	}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// WithNodeLock runs fn under nodeID's lock, the one CreateVersion holds
// while it stores a version and notifies subscribers. Manual prunes and
// deletes go through it so they never interleave with a post-commit prune.
// It implements retention.NodeLocker. fn must not call CreateVersion for
// the same node.
func (db *DB) WithNodeLock(nodeID string, fn func() error) error {
	unlock := db.lockNode(nodeID)
	defer unlock()
	return fn()
}

// lockNode serializes version creation and its notifications per node.
func (db *DB) lockNode(nodeID string) func() {
	v, _ := db.nodeLocks.LoadOrStore(nodeID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
