package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// auditMetaKey is the meta key holding the running audit chain hash for a
// document.
func auditMetaKey(docID string) string {
	return "audit_chain:" + docID
}

// appendTransition appends one audit record. The sequence number and the
// timestamp are assigned here, at commit time, never by the caller. The
// running chain hash in the meta table is advanced in the same transaction
// so the trail and its checksum cannot diverge.
//
// There is deliberately no update or delete counterpart.
func appendTransition(ctx context.Context, q dbtx, rec *types.TransitionRecord) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("transition record requires a document id")
	}
	if !rec.To.IsValid() {
		return fmt.Errorf("transition record has invalid target status: %s", rec.To)
	}
	if rec.Actor == "" {
		return fmt.Errorf("transition record requires an actor")
	}
	if !rec.ActorRole.IsValid() {
		return fmt.Errorf("transition record has invalid actor role: %s", rec.ActorRole)
	}

	rec.CreatedAt = time.Now()

	var maxSeq sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM transitions WHERE document_id = ?
	`, rec.DocumentID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("failed to read transition sequence: %w", err)
	}
	rec.Seq = int(maxSeq.Int64) + 1

	res, err := q.ExecContext(ctx, `
		INSERT INTO transitions (document_id, version, seq, from_status, to_status,
			actor, actor_role, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.DocumentID, rec.Version, rec.Seq, string(rec.From), string(rec.To),
		rec.Actor, string(rec.ActorRole), rec.Reason, dbTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}

	prev, err := getMeta(ctx, q, auditMetaKey(rec.DocumentID))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read audit chain: %w", err)
	}
	if err := setMeta(ctx, q, auditMetaKey(rec.DocumentID), rec.ChainHash(prev)); err != nil {
		return fmt.Errorf("failed to advance audit chain: %w", err)
	}
	return nil
}

func getTransitions(ctx context.Context, q dbtx, docID string) ([]*types.TransitionRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, version, seq, from_status, to_status,
			actor, actor_role, reason, created_at
		FROM transitions WHERE document_id = ? ORDER BY seq ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*types.TransitionRecord
	for rows.Next() {
		var r types.TransitionRecord
		var from, to, role string
		var createdAt sql.NullString
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Version, &r.Seq, &from, &to,
			&r.Actor, &role, &r.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		r.From = types.DocumentStatus(from)
		r.To = types.DocumentStatus(to)
		r.ActorRole = types.Role(role)
		if r.CreatedAt, err = scanTime(createdAt); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func getMeta(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta key %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

func setMeta(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}
