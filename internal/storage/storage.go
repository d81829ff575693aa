// Package storage provides shared types for document storage.
//
// The concrete storage implementation lives in the sqlite sub-package; the
// memory sub-package provides an in-process implementation for tests. This
// package holds the interface and sentinel errors referenced by both.
package storage

import (
	"context"
	"errors"

	"github.com/vellum-dms/vellum/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic status write finds the
// document no longer in the expected state. Callers should re-fetch and
// retry, or surface the conflict.
var ErrConflict = errors.New("concurrent modification")

// ErrDuplicate is returned when creating an entity that already exists.
var ErrDuplicate = errors.New("already exists")

// Storage is the interface satisfied by *sqlite.Store and *memory.Store.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations can be substituted.
type Storage interface {
	// Documents
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetFamily(ctx context.Context, familyID string) ([]*types.Document, error)
	ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error)

	// Dependency edges
	ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error)
	EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error)
	EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error)

	// Audit trail (read side; writes happen inside transactions)
	GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error)

	// Workflow tasks
	GetTask(ctx context.Context, id string) (*types.WorkflowTask, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error)

	// Metadata (internal state such as audit checksums)
	GetMeta(ctx context.Context, key string) (string, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error
}

// Transaction exposes the subset of storage operations that execute within
// a single database transaction. Every lifecycle transition runs its state
// check, dependency check, status write, audit append and task updates
// through one Transaction so the effects commit or roll back as a unit.
//
// If the callback passed to RunInTransaction returns an error or panics,
// the transaction is rolled back; on a nil return it is committed.
type Transaction interface {
	// Documents
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetFamily(ctx context.Context, familyID string) ([]*types.Document, error)
	// UpdateDocumentStatus performs an optimistic status write: the update
	// only applies while the document is still in the from status, and
	// ErrConflict is returned otherwise. updates carries additional column
	// changes (effective_date, reviewer, ...) applied in the same write.
	UpdateDocumentStatus(ctx context.Context, id string, from, to types.DocumentStatus, updates map[string]interface{}) error
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error

	// Dependency edges
	AddEdge(ctx context.Context, edge *types.DependencyEdge) error
	DeactivateEdge(ctx context.Context, fromID, toFamilyID string) error
	ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error)
	EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error)
	EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error)

	// Audit trail. AppendTransition assigns the per-document sequence
	// number and the commit-time timestamp; there is no update or delete.
	AppendTransition(ctx context.Context, rec *types.TransitionRecord) error
	GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error)

	// Workflow tasks
	CreateTask(ctx context.Context, task *types.WorkflowTask) error
	CloseTasks(ctx context.Context, docID string, taskType types.TaskType) error
	EscalateTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error)

	// Metadata
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}
