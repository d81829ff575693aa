package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// Verify txStore implements storage.Transaction at compile time
var _ storage.Transaction = (*txStore)(nil)

// txStore implements storage.Transaction over a dedicated connection with
// an active transaction.
type txStore struct {
	conn dbtx
}

// RunInTransaction executes fn within a database transaction.
//
// BEGIN IMMEDIATE acquires the write lock up front so competing writers
// queue instead of deadlocking mid-transaction. SQLITE_BUSY on BEGIN is
// retried with exponential backoff.
//
// On a nil return from fn the transaction commits; on error or panic it
// rolls back, and a panic is re-raised after the rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so the rollback completes even when ctx
			// is already cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&txStore{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// beginImmediate starts an IMMEDIATE transaction, retrying on SQLITE_BUSY.
func beginImmediate(ctx context.Context, conn dbtx) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(10*time.Millisecond),
			backoff.WithMaxInterval(250*time.Millisecond),
		), 5), ctx)

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, policy)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (t *txStore) CreateDocument(ctx context.Context, doc *types.Document) error {
	return insertDocument(ctx, t.conn, doc)
}

func (t *txStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return getDocument(ctx, t.conn, id)
}

func (t *txStore) GetFamily(ctx context.Context, familyID string) ([]*types.Document, error) {
	return getFamily(ctx, t.conn, familyID)
}

func (t *txStore) UpdateDocumentStatus(ctx context.Context, id string, from, to types.DocumentStatus, updates map[string]interface{}) error {
	return updateDocumentStatus(ctx, t.conn, id, from, to, updates)
}

func (t *txStore) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateDocument(ctx, t.conn, id, updates)
}

func (t *txStore) AddEdge(ctx context.Context, edge *types.DependencyEdge) error {
	return addEdge(ctx, t.conn, edge)
}

func (t *txStore) DeactivateEdge(ctx context.Context, fromID, toFamilyID string) error {
	return deactivateEdge(ctx, t.conn, fromID, toFamilyID)
}

func (t *txStore) ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error) {
	return listEdges(ctx, t.conn, activeOnly)
}

func (t *txStore) EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error) {
	return edgesFrom(ctx, t.conn, docID)
}

func (t *txStore) EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error) {
	return edgesToFamily(ctx, t.conn, familyID)
}

func (t *txStore) AppendTransition(ctx context.Context, rec *types.TransitionRecord) error {
	return appendTransition(ctx, t.conn, rec)
}

func (t *txStore) GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	return getTransitions(ctx, t.conn, docID)
}

func (t *txStore) CreateTask(ctx context.Context, task *types.WorkflowTask) error {
	return createTask(ctx, t.conn, task)
}

func (t *txStore) CloseTasks(ctx context.Context, docID string, taskType types.TaskType) error {
	return closeTasks(ctx, t.conn, docID, taskType)
}

func (t *txStore) EscalateTask(ctx context.Context, id string) error {
	return escalateTask(ctx, t.conn, id)
}

func (t *txStore) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	return listTasks(ctx, t.conn, filter)
}

func (t *txStore) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, t.conn, key, value)
}

func (t *txStore) GetMeta(ctx context.Context, key string) (string, error) {
	return getMeta(ctx, t.conn, key)
}
