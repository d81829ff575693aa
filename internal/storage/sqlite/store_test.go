package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocument(familyID string) *types.Document {
	return &types.Document{
		FamilyID: familyID,
		Version:  types.Version{Major: 1, Minor: 0},
		Title:    "Test procedure " + familyID,
		Status:   types.StatusDraft,
		Author:   "alice",
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID != "SOP-1@1.0" {
		t.Errorf("derived ID = %s, want SOP-1@1.0", doc.ID)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != doc.Title || got.Status != types.StatusDraft || got.Author != "alice" {
		t.Errorf("round-tripped document mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	store := setupTestDB(t)
	_, err := store.GetDocument(context.Background(), "SOP-404@1.0")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateDocument(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("SOP-1")); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	err := store.CreateDocument(ctx, testDocument("SOP-1"))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	store := setupTestDB(t)
	doc := testDocument("SOP-1")
	doc.Title = ""
	if err := store.CreateDocument(context.Background(), doc); err == nil {
		t.Error("expected validation error for missing title")
	}
}

func TestGetFamilyOrdersByVersion(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, v := range []types.Version{{Major: 2, Minor: 0}, {Major: 1, Minor: 0}, {Major: 1, Minor: 1}} {
		doc := testDocument("SOP-1")
		doc.Version = v
		doc.ID = ""
		if err := store.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("CreateDocument %s: %v", v, err)
		}
	}

	family, err := store.GetFamily(ctx, "SOP-1")
	if err != nil {
		t.Fatalf("GetFamily: %v", err)
	}
	if len(family) != 3 {
		t.Fatalf("got %d members, want 3", len(family))
	}
	want := []string{"1.0", "1.1", "2.0"}
	for i, m := range family {
		if m.Version.String() != want[i] {
			t.Errorf("member %d = %s, want %s", i, m.Version, want[i])
		}
	}
}

func TestUpdateDocumentStatusOptimistic(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocumentStatus(ctx, doc.ID, types.StatusDraft, types.StatusPendingReview,
			map[string]interface{}{"reviewer": "bob"})
	})
	if err != nil {
		t.Fatalf("status update: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusPendingReview || got.Reviewer != "bob" {
		t.Errorf("after update: status=%s reviewer=%s", got.Status, got.Reviewer)
	}

	// Stale expected status loses the race.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocumentStatus(ctx, doc.ID, types.StatusDraft, types.StatusUnderReview, nil)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for stale status, got %v", err)
	}
}

func TestSingleCurrentVersionIndex(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	v1 := testDocument("SOP-1")
	v1.Status = types.StatusEffective
	v1.EffectiveDate = &now
	if err := store.CreateDocument(ctx, v1); err != nil {
		t.Fatalf("CreateDocument v1: %v", err)
	}

	// An approved version waiting on its effective date coexists with the
	// current effective one.
	v2 := testDocument("SOP-1")
	v2.Version = types.Version{Major: 2, Minor: 0}
	v2.Status = types.StatusApprovedPendingEffective
	v2.EffectiveDate = &now
	if err := store.CreateDocument(ctx, v2); err != nil {
		t.Fatalf("CreateDocument v2 (approved_pending_effective): %v", err)
	}

	// Promoting it while v1 is still effective trips the index.
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocumentStatus(ctx, v2.ID,
			types.StatusApprovedPendingEffective, types.StatusEffective, nil)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict promoting a second effective member, got %v", err)
	}

	// Superseding v1 first clears the way.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.UpdateDocumentStatus(ctx, v1.ID,
			types.StatusEffective, types.StatusSuperseded, nil); err != nil {
			return err
		}
		return tx.UpdateDocumentStatus(ctx, v2.ID,
			types.StatusApprovedPendingEffective, types.StatusEffective, nil)
	})
	if err != nil {
		t.Fatalf("supersede-then-promote in one transaction: %v", err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.UpdateDocumentStatus(ctx, doc.ID, types.StatusDraft, types.StatusPendingReview, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusDraft {
		t.Errorf("status = %s after rollback, want draft", got.Status)
	}
}

func TestAppendTransitionAssignsSeqAndChain(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	statuses := []types.DocumentStatus{types.StatusDraft, types.StatusPendingReview, types.StatusUnderReview}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, st := range statuses {
			rec := &types.TransitionRecord{
				DocumentID: doc.ID,
				Version:    "1.0",
				To:         st,
				Actor:      "alice",
				ActorRole:  types.RoleAuthor,
				CreatedAt:  time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), // must be ignored
			}
			if err := tx.AppendTransition(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("appending transitions: %v", err)
	}

	recs, err := store.GetTransitions(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetTransitions: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	chain := ""
	for i, rec := range recs {
		if rec.Seq != i+1 {
			t.Errorf("record %d seq = %d, want %d", i, rec.Seq, i+1)
		}
		if rec.CreatedAt.Year() == 1999 {
			t.Error("caller-supplied timestamp was persisted; must be commit time")
		}
		chain = rec.ChainHash(chain)
	}

	stored, err := store.GetMeta(ctx, "audit_chain:"+doc.ID)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if stored != chain {
		t.Errorf("stored chain %s != recomputed %s", stored, chain)
	}
}

func TestEdgeLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	edge := &types.DependencyEdge{
		FromID:       doc.ID,
		FromFamilyID: "SOP-1",
		ToFamilyID:   "SOP-2",
		Type:         types.EdgeReferences,
		CreatedBy:    "alice",
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddEdge(ctx, edge)
	})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	// A live duplicate is rejected.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddEdge(ctx, &types.DependencyEdge{
			FromID: doc.ID, FromFamilyID: "SOP-1", ToFamilyID: "SOP-2",
			Type: types.EdgeImplements, CreatedBy: "alice",
		})
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// Deactivation hides the edge from active queries but keeps the row.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.DeactivateEdge(ctx, doc.ID, "SOP-2")
	})
	if err != nil {
		t.Fatalf("DeactivateEdge: %v", err)
	}
	active, err := store.ListEdges(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active edges, want 0", len(active))
	}
	all, err := store.ListEdges(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d total edges, want 1", len(all))
	}

	// Re-adding reactivates rather than duplicating.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddEdge(ctx, &types.DependencyEdge{
			FromID: doc.ID, FromFamilyID: "SOP-1", ToFamilyID: "SOP-2",
			Type: types.EdgeReferences, CreatedBy: "alice",
		})
	})
	if err != nil {
		t.Fatalf("re-add edge: %v", err)
	}
	active, err = store.EdgesFrom(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("got %d active edges after re-add, want 1", len(active))
	}
}

func TestTaskLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	due := time.Now().Add(-time.Hour)
	var taskID string
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task := &types.WorkflowTask{
			DocumentID: doc.ID,
			Type:       types.TaskReview,
			Assignee:   "bob",
			DueAt:      &due,
		}
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		taskID = task.ID
		return nil
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if taskID == "" {
		t.Fatal("task ID not assigned")
	}

	open := types.TaskOpen
	now := time.Now()
	overdue, err := store.ListTasks(ctx, types.TaskFilter{State: &open, DueBefore: &now})
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 1 {
		t.Fatalf("got %d overdue tasks, want 1", len(overdue))
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.EscalateTask(ctx, taskID)
	})
	if err != nil {
		t.Fatalf("EscalateTask: %v", err)
	}
	task, err := store.GetTask(ctx, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != types.TaskEscalated {
		t.Errorf("state = %s, want escalated", task.State)
	}

	// Escalating again conflicts; the task is no longer open.
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.EscalateTask(ctx, taskID)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestCloseTasksByType(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument("SOP-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		for _, tt := range []types.TaskType{types.TaskReview, types.TaskApproval} {
			if err := tx.CreateTask(ctx, &types.WorkflowTask{
				DocumentID: doc.ID, Type: tt, Assignee: "bob",
			}); err != nil {
				return err
			}
		}
		return tx.CloseTasks(ctx, doc.ID, types.TaskReview)
	})
	if err != nil {
		t.Fatalf("seeding tasks: %v", err)
	}

	open := types.TaskOpen
	tasks, err := store.ListTasks(ctx, types.TaskFilter{State: &open, DocumentID: doc.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Type != types.TaskApproval {
		t.Errorf("open tasks after close = %+v", tasks)
	}
}

func TestListDocumentsFilters(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	past := now.Add(-24 * time.Hour)
	pending := testDocument("SOP-1")
	pending.Status = types.StatusApprovedPendingEffective
	pending.EffectiveDate = &past
	if err := store.CreateDocument(ctx, pending); err != nil {
		t.Fatal(err)
	}
	draft := testDocument("SOP-2")
	if err := store.CreateDocument(ctx, draft); err != nil {
		t.Fatal(err)
	}

	status := types.StatusApprovedPendingEffective
	docs, err := store.ListDocuments(ctx, types.DocumentFilter{
		Status:          &status,
		EffectiveBefore: &now,
	})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != pending.ID {
		t.Errorf("filtered docs = %+v", docs)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if _, err := store.GetMeta(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing key, got %v", err)
	}

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.SetMeta(ctx, "k", "v1"); err != nil {
			return err
		}
		return tx.SetMeta(ctx, "k", "v2") // upsert
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := store.GetMeta(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if v != "v2" {
		t.Errorf("meta value = %s, want v2", v)
	}
}
