// Package audit reads and verifies the append-only transition trail.
//
// Writing happens inside lifecycle transactions (storage's AppendTransition
// advances a per-document chain checksum in the same commit); this package
// provides the read side: fetching history and recomputing the chain to
// detect tampering.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// ChainMetaKey returns the meta-table key holding the running chain
// checksum for a document's transition trail.
func ChainMetaKey(docID string) string {
	return "audit_chain:" + docID
}

// IntegrityError describes a verification failure for one document trail.
type IntegrityError struct {
	DocumentID string
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit trail for %s failed verification: %s", e.DocumentID, e.Reason)
}

// Recorder provides read access to the audit trail.
type Recorder struct {
	store storage.Storage
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store storage.Storage) *Recorder {
	return &Recorder{store: store}
}

// History returns a document's transition records in sequence order. The
// trail starts with the creation record (empty From) and gains exactly one
// record per successful transition.
func (r *Recorder) History(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	recs, err := r.store.GetTransitions(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", docID, err)
	}
	return recs, nil
}

// VerifyIntegrity recomputes the checksum chain over a document's trail and
// compares it against the stored value. It returns an *IntegrityError when
// the trail has gaps, out-of-order records, or a checksum mismatch, which
// indicates records were altered or removed outside the engine.
func (r *Recorder) VerifyIntegrity(ctx context.Context, docID string) error {
	recs, err := r.store.GetTransitions(ctx, docID)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", docID, err)
	}

	stored, err := r.store.GetMeta(ctx, ChainMetaKey(docID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if len(recs) == 0 {
				return nil
			}
			return &IntegrityError{DocumentID: docID, Reason: "records exist but chain checksum is missing"}
		}
		return fmt.Errorf("loading chain checksum for %s: %w", docID, err)
	}
	if len(recs) == 0 {
		return &IntegrityError{DocumentID: docID, Reason: "chain checksum exists but trail is empty"}
	}

	chain := ""
	for i, rec := range recs {
		if rec.Seq != i+1 {
			return &IntegrityError{
				DocumentID: docID,
				Reason:     fmt.Sprintf("sequence gap: record %d has seq %d", i, rec.Seq),
			}
		}
		chain = rec.ChainHash(chain)
	}
	if chain != stored {
		return &IntegrityError{DocumentID: docID, Reason: "checksum mismatch"}
	}
	return nil
}

// VerifyAll verifies every document trail in the store and returns the
// failures. A nil slice means every trail verified clean.
func (r *Recorder) VerifyAll(ctx context.Context) ([]*IntegrityError, error) {
	docs, err := r.store.ListDocuments(ctx, types.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	var failures []*IntegrityError
	for _, doc := range docs {
		err := r.VerifyIntegrity(ctx, doc.ID)
		if err == nil {
			continue
		}
		var ie *IntegrityError
		if errors.As(err, &ie) {
			failures = append(failures, ie)
			continue
		}
		return nil, err
	}
	return failures, nil
}
