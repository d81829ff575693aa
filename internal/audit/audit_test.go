package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/storage/memory"
	"github.com/vellum-dms/vellum/internal/types"
)

func seedDocument(t *testing.T, store *memory.Store, familyID string, transitions []types.DocumentStatus) *types.Document {
	t.Helper()
	ctx := context.Background()
	doc := &types.Document{
		FamilyID: familyID,
		Version:  types.Version{Major: 1, Minor: 0},
		Title:    "Audit test " + familyID,
		Status:   types.StatusDraft,
		Author:   "alice",
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.AppendTransition(ctx, &types.TransitionRecord{
			DocumentID: doc.ID,
			Version:    doc.Version.String(),
			To:         types.StatusDraft,
			Actor:      "alice",
			ActorRole:  types.RoleAuthor,
			Reason:     "created",
		}); err != nil {
			return err
		}
		from := types.StatusDraft
		for _, to := range transitions {
			if err := tx.UpdateDocumentStatus(ctx, doc.ID, from, to, nil); err != nil {
				return err
			}
			if err := tx.AppendTransition(ctx, &types.TransitionRecord{
				DocumentID: doc.ID,
				Version:    doc.Version.String(),
				From:       from,
				To:         to,
				Actor:      "alice",
				ActorRole:  types.RoleAuthor,
			}); err != nil {
				return err
			}
			from = to
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seeding transitions: %v", err)
	}
	return doc
}

func TestHistoryOrderedBySeq(t *testing.T) {
	store := memory.New()
	doc := seedDocument(t, store, "SOP-1", []types.DocumentStatus{
		types.StatusPendingReview, types.StatusUnderReview,
	})

	rec := NewRecorder(store)
	hist, err := rec.History(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("got %d records, want 3", len(hist))
	}
	for i, r := range hist {
		if r.Seq != i+1 {
			t.Errorf("record %d has seq %d, want %d", i, r.Seq, i+1)
		}
	}
	if hist[0].From != "" || hist[0].To != types.StatusDraft {
		t.Errorf("creation record = %s -> %s, want empty -> draft", hist[0].From, hist[0].To)
	}
	if hist[2].From != types.StatusPendingReview || hist[2].To != types.StatusUnderReview {
		t.Errorf("last record = %s -> %s", hist[2].From, hist[2].To)
	}
}

func TestVerifyIntegrityClean(t *testing.T) {
	store := memory.New()
	doc := seedDocument(t, store, "SOP-1", []types.DocumentStatus{types.StatusPendingReview})

	rec := NewRecorder(store)
	if err := rec.VerifyIntegrity(context.Background(), doc.ID); err != nil {
		t.Fatalf("VerifyIntegrity on clean trail: %v", err)
	}
}

func TestVerifyIntegrityNoTrail(t *testing.T) {
	store := memory.New()
	rec := NewRecorder(store)
	if err := rec.VerifyIntegrity(context.Background(), "SOP-NONE@1.0"); err != nil {
		t.Fatalf("VerifyIntegrity with no records: %v", err)
	}
}

func TestVerifyIntegrityDetectsTamperedChecksum(t *testing.T) {
	store := memory.New()
	doc := seedDocument(t, store, "SOP-1", []types.DocumentStatus{types.StatusPendingReview})

	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetMeta(ctx, ChainMetaKey(doc.ID), "deadbeef")
	})
	if err != nil {
		t.Fatalf("tampering checksum: %v", err)
	}

	rec := NewRecorder(store)
	verr := rec.VerifyIntegrity(ctx, doc.ID)
	var ie *IntegrityError
	if !errors.As(verr, &ie) {
		t.Fatalf("expected IntegrityError, got %v", verr)
	}
	if ie.DocumentID != doc.ID {
		t.Errorf("IntegrityError.DocumentID = %s, want %s", ie.DocumentID, doc.ID)
	}
}

func TestVerifyAllReportsOnlyTamperedTrails(t *testing.T) {
	store := memory.New()
	clean := seedDocument(t, store, "SOP-CLEAN", []types.DocumentStatus{types.StatusPendingReview})
	dirty := seedDocument(t, store, "SOP-DIRTY", []types.DocumentStatus{types.StatusPendingReview})
	_ = clean

	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetMeta(ctx, ChainMetaKey(dirty.ID), "deadbeef")
	})
	if err != nil {
		t.Fatalf("tampering checksum: %v", err)
	}

	rec := NewRecorder(store)
	failures, err := rec.VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1: %+v", len(failures), failures)
	}
	if failures[0].DocumentID != dirty.ID {
		t.Errorf("failure for %s, want %s", failures[0].DocumentID, dirty.ID)
	}
}
