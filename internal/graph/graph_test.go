package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/storage/memory"
	"github.com/vellum-dms/vellum/internal/types"
)

func newDoc(t *testing.T, store *memory.Store, familyID string, status types.DocumentStatus) *types.Document {
	t.Helper()
	doc := &types.Document{
		FamilyID: familyID,
		Version:  types.Version{Major: 1, Minor: 0},
		Title:    "Test document " + familyID,
		Status:   types.StatusDraft,
		Author:   "alice",
	}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument(%s): %v", familyID, err)
	}
	if status != types.StatusDraft {
		err := store.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
			return tx.UpdateDocumentStatus(context.Background(), doc.ID, types.StatusDraft, status, nil)
		})
		if err != nil {
			t.Fatalf("set status of %s: %v", doc.ID, err)
		}
		doc.Status = status
	}
	return doc
}

func addEdge(t *testing.T, store *memory.Store, from *types.Document, toFamily string, et types.EdgeType) {
	t.Helper()
	err := AddEdge(context.Background(), store, &types.DependencyEdge{
		FromID:     from.ID,
		ToFamilyID: toFamily,
		Type:       et,
		CreatedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("AddEdge(%s -> %s): %v", from.ID, toFamily, err)
	}
}

func TestAddEdgeRejectsSelfDependency(t *testing.T) {
	store := memory.New()
	a := newDoc(t, store, "SOP-1", types.StatusDraft)

	err := AddEdge(context.Background(), store, &types.DependencyEdge{
		FromID:     a.ID,
		ToFamilyID: "SOP-1",
		Type:       types.EdgeReferences,
		CreatedBy:  "alice",
	})
	if err == nil {
		t.Fatal("expected self-dependency to be rejected")
	}
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	store := memory.New()
	a := newDoc(t, store, "SOP-A", types.StatusDraft)
	b := newDoc(t, store, "SOP-B", types.StatusDraft)
	c := newDoc(t, store, "SOP-C", types.StatusDraft)

	addEdge(t, store, a, "SOP-B", types.EdgeReferences)
	addEdge(t, store, b, "SOP-C", types.EdgeReferences)

	err := AddEdge(context.Background(), store, &types.DependencyEdge{
		FromID:     c.ID,
		ToFamilyID: "SOP-A",
		Type:       types.EdgeReferences,
		CreatedBy:  "alice",
	})
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	want := []string{"SOP-C", "SOP-A", "SOP-B", "SOP-C"}
	if len(cycleErr.Path) != len(want) {
		t.Fatalf("cycle path = %v, want %v", cycleErr.Path, want)
	}
	for i := range want {
		if cycleErr.Path[i] != want[i] {
			t.Fatalf("cycle path = %v, want %v", cycleErr.Path, want)
		}
	}
}

func TestAddEdgeAllowsDiamond(t *testing.T) {
	// A -> B, A -> C, B -> D, C -> D is a DAG, not a cycle.
	store := memory.New()
	a := newDoc(t, store, "SOP-A", types.StatusDraft)
	b := newDoc(t, store, "SOP-B", types.StatusDraft)
	c := newDoc(t, store, "SOP-C", types.StatusDraft)
	newDoc(t, store, "SOP-D", types.StatusDraft)

	addEdge(t, store, a, "SOP-B", types.EdgeReferences)
	addEdge(t, store, a, "SOP-C", types.EdgeReferences)
	addEdge(t, store, b, "SOP-D", types.EdgeReferences)
	addEdge(t, store, c, "SOP-D", types.EdgeImplements)
}

func TestAddEdgeRejectsTerminalSource(t *testing.T) {
	store := memory.New()
	a := newDoc(t, store, "SOP-A", types.StatusObsolete)
	newDoc(t, store, "SOP-B", types.StatusDraft)

	err := AddEdge(context.Background(), store, &types.DependencyEdge{
		FromID:     a.ID,
		ToFamilyID: "SOP-B",
		Type:       types.EdgeReferences,
		CreatedBy:  "alice",
	})
	if err == nil {
		t.Fatal("expected edge from obsolete document to be rejected")
	}
}

func TestActiveDependents(t *testing.T) {
	store := memory.New()
	target := newDoc(t, store, "SOP-TARGET", types.StatusEffective)
	_ = target

	active := newDoc(t, store, "SOP-ACTIVE", types.StatusDraft)
	obsolete := newDoc(t, store, "SOP-OLD", types.StatusDraft)
	lineage := newDoc(t, store, "SOP-LINEAGE", types.StatusDraft)

	addEdge(t, store, active, "SOP-TARGET", types.EdgeReferences)
	addEdge(t, store, obsolete, "SOP-TARGET", types.EdgeImplements)
	addEdge(t, store, lineage, "SOP-TARGET", types.EdgeDerivedFrom)

	// Obsolete the second dependent after its edge exists.
	err := store.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		return tx.UpdateDocumentStatus(context.Background(), obsolete.ID, types.StatusDraft, types.StatusObsolete, nil)
	})
	if err != nil {
		t.Fatalf("obsolete dependent: %v", err)
	}

	deps, err := ActiveDependents(context.Background(), store, "SOP-TARGET", true)
	if err != nil {
		t.Fatalf("ActiveDependents: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("got %d critical dependents, want 1: %+v", len(deps), deps)
	}
	if deps[0].DocumentID != active.ID {
		t.Errorf("dependent = %s, want %s", deps[0].DocumentID, active.ID)
	}

	// Without criticalOnly the derived-from edge counts too.
	all, err := ActiveDependents(context.Background(), store, "SOP-TARGET", false)
	if err != nil {
		t.Fatalf("ActiveDependents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d dependents, want 2: %+v", len(all), all)
	}
}
