// Package sqlite implements the storage interface using SQLite.
//
// The package is split into focused files:
//
//   - store.go: Store struct, New() constructor, read-side methods
//   - schema.go: database schema
//   - transaction.go: RunInTransaction (BEGIN IMMEDIATE + busy retry)
//   - documents.go: document row helpers shared by store and transaction
//   - edges.go: dependency edge helpers
//   - transitions.go: append-only audit trail helpers
//   - tasks.go: workflow task helpers
//   - util.go: time conversion and scan helpers
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// Verify Store implements storage.Storage at compile time
var _ storage.Storage = (*Store)(nil)

// Store implements the storage interface using SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// New creates a new SQLite storage backend at path. The special path
// ":memory:" opens a private in-memory database (single connection, since
// SQLite in-memory databases are per-connection).
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	if path == ":memory:" {
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are isolated per connection; without a single
	// shared connection, pool members cannot see each other's writes.
	if path == ":memory:" || strings.Contains(connStr, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; cap the pool so write-lock
		// contention does not pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// UnderlyingDB exposes the database handle for integrity checks and tests.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// CreateDocument inserts a new document row. The audit entry for creation
// is appended by the lifecycle engine within a transaction; use this only
// for non-audited setup paths.
func (s *Store) CreateDocument(ctx context.Context, doc *types.Document) error {
	return insertDocument(ctx, s.db, doc)
}

// GetDocument retrieves a document by its canonical ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return getDocument(ctx, s.db, id)
}

// GetFamily retrieves all versions in a family, oldest version first.
func (s *Store) GetFamily(ctx context.Context, familyID string) ([]*types.Document, error) {
	return getFamily(ctx, s.db, familyID)
}

// ListDocuments retrieves documents matching the filter.
func (s *Store) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	return listDocuments(ctx, s.db, filter)
}

// ListEdges retrieves dependency edges, optionally only active ones.
func (s *Store) ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error) {
	return listEdges(ctx, s.db, activeOnly)
}

// EdgesFrom retrieves the edges originating at a document.
func (s *Store) EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error) {
	return edgesFrom(ctx, s.db, docID)
}

// EdgesToFamily retrieves the active edges pointing at a family.
func (s *Store) EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error) {
	return edgesToFamily(ctx, s.db, familyID)
}

// GetTransitions returns the ordered audit trail for a document.
func (s *Store) GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	return getTransitions(ctx, s.db, docID)
}

// GetTask retrieves a workflow task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*types.WorkflowTask, error) {
	return getTask(ctx, s.db, id)
}

// ListTasks retrieves workflow tasks matching the filter.
func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	return listTasks(ctx, s.db, filter)
}

// GetMeta reads an internal metadata value.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	return getMeta(ctx, s.db, key)
}
