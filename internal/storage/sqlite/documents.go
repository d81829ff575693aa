package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

const documentColumns = `id, family_id, version_major, version_minor, title, status,
	author, reviewer, approver, classification, controlled,
	effective_date, obsolescence_date, review_due_date, created_at, updated_at`

// allowed update columns. Guards against caller typos silently becoming
// SQL errors and against non-column keys reaching the SET clause.
var documentUpdateColumns = map[string]bool{
	"title":             true,
	"reviewer":          true,
	"approver":          true,
	"classification":    true,
	"effective_date":    true,
	"obsolescence_date": true,
	"review_due_date":   true,
}

func insertDocument(ctx context.Context, q dbtx, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if doc.ID == "" {
		doc.ID = types.DocumentID(doc.FamilyID, doc.Version)
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, family_id, version_major, version_minor, title,
			status, author, reviewer, approver, classification, controlled,
			effective_date, obsolescence_date, review_due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.FamilyID, doc.Version.Major, doc.Version.Minor, doc.Title,
		string(doc.Status), doc.Author, doc.Reviewer, doc.Approver,
		doc.Classification, boolToInt(doc.Controlled),
		dbTimePtr(doc.EffectiveDate), dbTimePtr(doc.ObsolescenceDate),
		dbTimePtr(doc.ReviewDueDate), dbTime(doc.CreatedAt), dbTime(doc.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, q dbtx, id string) (*types.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return doc, err
}

func getFamily(ctx context.Context, q dbtx, familyID string) ([]*types.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE family_id = ?
		ORDER BY version_major ASC, version_minor ASC
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocuments(rows)
}

func listDocuments(ctx context.Context, q dbtx, filter types.DocumentFilter) ([]*types.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.FamilyID != "" {
		query += ` AND family_id = ?`
		args = append(args, filter.FamilyID)
	}
	if filter.Author != "" {
		query += ` AND author = ?`
		args = append(args, filter.Author)
	}
	if filter.TitleContains != "" {
		query += ` AND title LIKE ?`
		args = append(args, "%"+filter.TitleContains+"%")
	}
	if filter.EffectiveBefore != nil {
		query += ` AND effective_date IS NOT NULL AND effective_date <= ?`
		args = append(args, dbTime(*filter.EffectiveBefore))
	}
	if filter.ObsoleteBefore != nil {
		query += ` AND obsolescence_date IS NOT NULL AND obsolescence_date <= ?`
		args = append(args, dbTime(*filter.ObsoleteBefore))
	}
	if filter.ReviewDueBefore != nil {
		query += ` AND review_due_date IS NOT NULL AND review_due_date <= ?`
		args = append(args, dbTime(*filter.ReviewDueBefore))
	}
	query += ` ORDER BY family_id ASC, version_major ASC, version_minor ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanDocuments(rows)
}

// updateDocument applies column updates without a status precondition.
func updateDocument(ctx context.Context, q dbtx, id string, updates map[string]interface{}) error {
	set, args, err := buildDocumentSet(updates)
	if err != nil {
		return err
	}
	args = append(args, id)
	res, err := q.ExecContext(ctx, `UPDATE documents SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// updateDocumentStatus performs the optimistic status write: the UPDATE is
// guarded on the expected current status, so a concurrent transition that
// got there first makes this one fail with ErrConflict instead of racing.
func updateDocumentStatus(ctx context.Context, q dbtx, id string, from, to types.DocumentStatus, updates map[string]interface{}) error {
	set := `status = ?, updated_at = ?`
	args := []any{string(to), dbTime(time.Now())}

	if len(updates) > 0 {
		extra, extraArgs, err := buildDocumentSet(updates)
		if err != nil {
			return err
		}
		set += ", " + extra
		args = append(args, extraArgs...)
	}
	args = append(args, id, string(from))

	res, err := q.ExecContext(ctx, `UPDATE documents SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		// Two racing activations within a family trip the single-current
		// index; surface that as a conflict, not a bare driver error.
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: family already has a current version: %w", id, storage.ErrConflict)
		}
		return fmt.Errorf("failed to update document status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing document from a lost race.
		if _, getErr := getDocument(ctx, q, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("document %s no longer in status %s: %w", id, from, storage.ErrConflict)
	}
	return nil
}

// buildDocumentSet renders an allowlisted updates map into a SET clause.
// The updated_at column is always touched.
func buildDocumentSet(updates map[string]interface{}) (string, []any, error) {
	var clauses []string
	var args []any
	for col, val := range updates {
		if !documentUpdateColumns[col] {
			return "", nil, fmt.Errorf("unknown document column %q", col)
		}
		clauses = append(clauses, col+" = ?")
		switch v := val.(type) {
		case nil:
			args = append(args, nil)
		case *time.Time:
			args = append(args, dbTimePtr(v))
		case time.Time:
			args = append(args, dbTime(v))
		case string:
			args = append(args, v)
		default:
			return "", nil, fmt.Errorf("unsupported value type %T for column %q", val, col)
		}
	}
	clauses = append(clauses, "updated_at = ?")
	args = append(args, dbTime(time.Now()))
	return strings.Join(clauses, ", "), args, nil
}

func scanDocument(row *sql.Row) (*types.Document, error) {
	var d types.Document
	var status string
	var controlled int
	var effective, obsolescence, reviewDue, createdAt, updatedAt sql.NullString

	err := row.Scan(&d.ID, &d.FamilyID, &d.Version.Major, &d.Version.Minor,
		&d.Title, &status, &d.Author, &d.Reviewer, &d.Approver,
		&d.Classification, &controlled, &effective, &obsolescence, &reviewDue,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return buildDocument(&d, status, controlled, effective, obsolescence, reviewDue, createdAt, updatedAt)
}

func scanDocuments(rows *sql.Rows) ([]*types.Document, error) {
	var docs []*types.Document
	for rows.Next() {
		var d types.Document
		var status string
		var controlled int
		var effective, obsolescence, reviewDue, createdAt, updatedAt sql.NullString

		err := rows.Scan(&d.ID, &d.FamilyID, &d.Version.Major, &d.Version.Minor,
			&d.Title, &status, &d.Author, &d.Reviewer, &d.Approver,
			&d.Classification, &controlled, &effective, &obsolescence, &reviewDue,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := buildDocument(&d, status, controlled, effective, obsolescence, reviewDue, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func buildDocument(d *types.Document, status string, controlled int, effective, obsolescence, reviewDue, createdAt, updatedAt sql.NullString) (*types.Document, error) {
	d.Status = types.DocumentStatus(status)
	d.Controlled = controlled != 0

	var err error
	if d.EffectiveDate, err = scanTimePtr(effective); err != nil {
		return nil, err
	}
	if d.ObsolescenceDate, err = scanTimePtr(obsolescence); err != nil {
		return nil, err
	}
	if d.ReviewDueDate, err = scanTimePtr(reviewDue); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = scanTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = scanTime(updatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation sniffs SQLite constraint errors without binding to the
// driver's error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
