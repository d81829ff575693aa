package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

const edgeColumns = `from_id, from_family_id, to_family_id, type, active, created_at, created_by`

// addEdge inserts a dependency edge. The cycle check lives in the graph
// package and must run inside the same transaction as this insert; see
// graph.WouldCreateCycle.
func addEdge(ctx context.Context, q dbtx, edge *types.DependencyEdge) error {
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	edge.Active = true

	// Re-activating a previously deactivated edge is an upsert; a live
	// duplicate is rejected.
	var active int
	err := q.QueryRowContext(ctx, `
		SELECT active FROM edges WHERE from_id = ? AND to_family_id = ?
	`, edge.FromID, edge.ToFamilyID).Scan(&active)
	switch {
	case err == nil && active != 0:
		return fmt.Errorf("edge %s -> %s: %w", edge.FromID, edge.ToFamilyID, storage.ErrDuplicate)
	case err == nil:
		_, err = q.ExecContext(ctx, `
			UPDATE edges SET active = 1, type = ?, created_at = ?, created_by = ?
			WHERE from_id = ? AND to_family_id = ?
		`, string(edge.Type), dbTime(edge.CreatedAt), edge.CreatedBy, edge.FromID, edge.ToFamilyID)
		if err != nil {
			return fmt.Errorf("failed to reactivate edge: %w", err)
		}
		return nil
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to check edge: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO edges (from_id, from_family_id, to_family_id, type, active, created_at, created_by)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, edge.FromID, edge.FromFamilyID, edge.ToFamilyID, string(edge.Type),
		dbTime(edge.CreatedAt), edge.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to add edge: %w", err)
	}
	return nil
}

// deactivateEdge marks an edge inactive. Edges are never deleted.
func deactivateEdge(ctx context.Context, q dbtx, fromID, toFamilyID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE edges SET active = 0 WHERE from_id = ? AND to_family_id = ? AND active = 1
	`, fromID, toFamilyID)
	if err != nil {
		return fmt.Errorf("failed to deactivate edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("edge %s -> %s: %w", fromID, toFamilyID, storage.ErrNotFound)
	}
	return nil
}

func listEdges(ctx context.Context, q dbtx, activeOnly bool) ([]*types.DependencyEdge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY from_id, to_family_id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEdges(rows)
}

func edgesFrom(ctx context.Context, q dbtx, docID string) ([]*types.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges WHERE from_id = ? AND active = 1
		ORDER BY to_family_id
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edges from %s: %w", docID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanEdges(rows)
}

func edgesToFamily(ctx context.Context, q dbtx, familyID string) ([]*types.DependencyEdge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+edgeColumns+` FROM edges WHERE to_family_id = ? AND active = 1
		ORDER BY from_id
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edges to %s: %w", familyID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]*types.DependencyEdge, error) {
	var edges []*types.DependencyEdge
	for rows.Next() {
		var e types.DependencyEdge
		var typ string
		var active int
		var createdAt sql.NullString
		if err := rows.Scan(&e.FromID, &e.FromFamilyID, &e.ToFamilyID, &typ,
			&active, &createdAt, &e.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = types.EdgeType(typ)
		e.Active = active != 0
		var err error
		if e.CreatedAt, err = scanTime(createdAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
