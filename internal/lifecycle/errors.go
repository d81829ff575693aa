package lifecycle

import (
	"fmt"
	"strings"

	"github.com/vellum-dms/vellum/internal/graph"
	"github.com/vellum-dms/vellum/internal/types"
)

// IllegalTransitionError reports an operation not permitted from the
// document's current status. The caller can recover by choosing a valid
// operation.
type IllegalTransitionError struct {
	DocumentID string
	Current    types.DocumentStatus
	Operation  types.Operation
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s does not permit %s while %s",
		e.DocumentID, e.Operation, e.Current)
}

// UnauthorizedActorError reports an actor lacking the role an operation
// requires. Never retried automatically.
type UnauthorizedActorError struct {
	DocumentID string
	Actor      string
	Operation  types.Operation
	Required   []types.Role
}

func (e *UnauthorizedActorError) Error() string {
	roles := make([]string, len(e.Required))
	for i, r := range e.Required {
		roles[i] = string(r)
	}
	return fmt.Sprintf("unauthorized: %s may not %s %s (requires %s)",
		e.Actor, e.Operation, e.DocumentID, strings.Join(roles, " or "))
}

// MissingAssigneeError reports a routing operation called without the
// required assignee.
type MissingAssigneeError struct {
	DocumentID string
	Operation  types.Operation
	Field      string
}

func (e *MissingAssigneeError) Error() string {
	return fmt.Sprintf("%s on %s requires a %s", e.Operation, e.DocumentID, e.Field)
}

// ValidationError reports a missing or invalid payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DependencyBlockError reports a destructive operation blocked by active
// dependents. Dependents carries the blocking chain for display.
type DependencyBlockError struct {
	DocumentID string
	FamilyID   string
	Operation  types.Operation
	Dependents []graph.Dependent
}

func (e *DependencyBlockError) Error() string {
	ids := make([]string, len(e.Dependents))
	for i, d := range e.Dependents {
		ids[i] = d.DocumentID
	}
	return fmt.Sprintf("%s on %s blocked by active dependents: %s",
		e.Operation, e.DocumentID, strings.Join(ids, ", "))
}

// CircularDependencyError reports an edge rejected because it would close
// a cycle. Path lists the families along the cycle.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// ConcurrencyConflictError reports two actors racing on the same document.
// The caller should re-fetch and retry.
type ConcurrencyConflictError struct {
	DocumentID string
	Operation  types.Operation
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s during %s; re-fetch and retry",
		e.DocumentID, e.Operation)
}
