// Package graph validates the document dependency graph.
//
// Dependency edges run from a document version to a target family, so the
// graph used for cycle detection collapses to family level: an edge
// A@1.0 -> B contributes the family edge A -> B. Cycle checks run at edge
// insert time, inside the same transaction that writes the edge, so a
// concurrent insert cannot slip a cycle past the check.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// CycleError reports the family cycle a rejected edge would have created.
type CycleError struct {
	// Path lists family IDs along the cycle, starting and ending with the
	// same family, e.g. [A, B, C, A].
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Dependent describes an active document blocking a destructive transition.
type Dependent struct {
	DocumentID string               `json:"document_id"`
	FamilyID   string               `json:"family_id"`
	Status     types.DocumentStatus `json:"status"`
	EdgeType   types.EdgeType       `json:"edge_type"`
}

// reader is the storage subset the validator needs. Both storage.Storage
// and storage.Transaction satisfy it.
type reader interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error)
	EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error)
}

// WouldCreateCycle reports whether adding an edge fromFamilyID -> toFamilyID
// would close a cycle in the active family graph. On detection it returns a
// *CycleError carrying the full path.
//
// The check walks existing active edges from toFamilyID looking for a path
// back to fromFamilyID; if one exists, the new edge completes the loop.
func WouldCreateCycle(ctx context.Context, r reader, fromFamilyID, toFamilyID string) error {
	if fromFamilyID == toFamilyID {
		return &CycleError{Path: []string{fromFamilyID, toFamilyID}}
	}

	edges, err := r.ListEdges(ctx, true)
	if err != nil {
		return fmt.Errorf("loading dependency edges: %w", err)
	}

	// Family-level adjacency. Multiple version edges between the same
	// families collapse into one.
	adj := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, e := range edges {
		if seen[e.FromFamilyID] == nil {
			seen[e.FromFamilyID] = make(map[string]bool)
		}
		if seen[e.FromFamilyID][e.ToFamilyID] {
			continue
		}
		seen[e.FromFamilyID][e.ToFamilyID] = true
		adj[e.FromFamilyID] = append(adj[e.FromFamilyID], e.ToFamilyID)
	}

	path := findPath(adj, toFamilyID, fromFamilyID, map[string]bool{})
	if path == nil {
		return nil
	}
	// The cycle is new edge + found path: from -> to -> ... -> from.
	cycle := append([]string{fromFamilyID}, path...)
	return &CycleError{Path: cycle}
}

// findPath does a depth-first search from start to target and returns the
// node path including both endpoints, or nil if unreachable.
func findPath(adj map[string][]string, start, target string, visited map[string]bool) []string {
	if start == target {
		return []string{start}
	}
	visited[start] = true
	for _, next := range adj[start] {
		if visited[next] {
			continue
		}
		if rest := findPath(adj, next, target, visited); rest != nil {
			return append([]string{start}, rest...)
		}
	}
	return nil
}

// ActiveDependents returns the active documents that depend on the given
// family. A dependent is active when its own status is non-terminal. With
// criticalOnly set, derived-from edges are ignored; they record lineage and
// do not block destructive transitions.
func ActiveDependents(ctx context.Context, r reader, familyID string, criticalOnly bool) ([]Dependent, error) {
	edges, err := r.EdgesToFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("loading dependents of %s: %w", familyID, err)
	}

	var deps []Dependent
	for _, e := range edges {
		if criticalOnly && !e.Type.Critical() {
			continue
		}
		doc, err := r.GetDocument(ctx, e.FromID)
		if err != nil {
			return nil, fmt.Errorf("loading dependent %s: %w", e.FromID, err)
		}
		if !doc.Status.IsActive() {
			continue
		}
		deps = append(deps, Dependent{
			DocumentID: doc.ID,
			FamilyID:   doc.FamilyID,
			Status:     doc.Status,
			EdgeType:   e.Type,
		})
	}
	return deps, nil
}

// AddEdge validates and inserts a dependency edge in one transaction: the
// cycle check and the insert see the same graph snapshot.
func AddEdge(ctx context.Context, store storage.Storage, edge *types.DependencyEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	return store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, edge.FromID)
		if err != nil {
			return err
		}
		if doc.Status.IsTerminal() {
			return fmt.Errorf("document %s is %s; terminal documents cannot gain dependencies", doc.ID, doc.Status)
		}
		edge.FromFamilyID = doc.FamilyID
		if err := WouldCreateCycle(ctx, tx, edge.FromFamilyID, edge.ToFamilyID); err != nil {
			return err
		}
		return tx.AddEdge(ctx, edge)
	})
}
