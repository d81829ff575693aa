package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/vellum-dms/vellum/internal/graph"
	"github.com/vellum-dms/vellum/internal/notify"
	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// transitionKey indexes the transition table by (current status, operation).
type transitionKey struct {
	From types.DocumentStatus
	Op   types.Operation
}

// effects accumulates what a transition handler wants committed alongside
// the status write.
type effects struct {
	to         types.DocumentStatus
	updates    map[string]interface{}
	openTasks  []*types.WorkflowTask
	closeTasks []types.TaskType
	events     []*notify.Event

	// resultID redirects the returned document, used by create_new_version
	// to return the child draft.
	resultID string
	// skipStatusWrite suppresses the subject document's status write and
	// audit record when the handler manages its own persistence.
	skipStatusWrite bool
	// after runs inside the transaction after the subject's status write,
	// for sibling updates that must observe the new status.
	after func(ctx context.Context, tx storage.Transaction) error
}

type applyFunc func(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error

// transitionSpec describes one legal (status, operation) pair: the default
// target status, the roles that may drive it, and the handler applying
// payload validation and side effects.
type transitionSpec struct {
	to    types.DocumentStatus
	roles []types.Role
	apply applyFunc
}

// transitions is the authoritative transition table. An absent key is an
// illegal transition; nothing is dispatched dynamically.
var transitions = map[transitionKey]transitionSpec{
	{types.StatusDraft, types.OpSubmitForReview}: {
		to:    types.StatusPendingReview,
		roles: []types.Role{types.RoleAuthor},
		apply: applySubmitForReview,
	},
	{types.StatusPendingReview, types.OpBeginReview}: {
		to:    types.StatusUnderReview,
		roles: []types.Role{types.RoleReviewer},
	},
	// complete_review is accepted from pending_review too: the reviewer may
	// record an outcome without an explicit begin_review first.
	{types.StatusPendingReview, types.OpCompleteReview}: {
		roles: []types.Role{types.RoleReviewer},
		apply: applyCompleteReview,
	},
	{types.StatusUnderReview, types.OpCompleteReview}: {
		roles: []types.Role{types.RoleReviewer},
		apply: applyCompleteReview,
	},
	{types.StatusReviewed, types.OpRouteForApproval}: {
		to:    types.StatusPendingApproval,
		roles: []types.Role{types.RoleAuthor},
		apply: applyRouteForApproval,
	},
	{types.StatusPendingApproval, types.OpBeginApproval}: {
		to:    types.StatusUnderApproval,
		roles: []types.Role{types.RoleApprover},
	},
	{types.StatusPendingApproval, types.OpApprove}: {
		roles: []types.Role{types.RoleApprover},
		apply: applyApprove,
	},
	{types.StatusUnderApproval, types.OpApprove}: {
		roles: []types.Role{types.RoleApprover},
		apply: applyApprove,
	},
	{types.StatusPendingApproval, types.OpReject}: {
		to:    types.StatusDraft,
		roles: []types.Role{types.RoleApprover},
		apply: applyReject,
	},
	{types.StatusUnderApproval, types.OpReject}: {
		to:    types.StatusDraft,
		roles: []types.Role{types.RoleApprover},
		apply: applyReject,
	},
	{types.StatusApprovedPendingEffective, types.OpActivate}: {
		to:    types.StatusEffective,
		roles: []types.Role{types.RoleSystem},
		apply: applyActivate,
	},
	{types.StatusEffective, types.OpScheduleObsolescence}: {
		to:    types.StatusPendingObsolete,
		roles: []types.Role{types.RoleAuthor, types.RoleAdmin},
		apply: applyScheduleObsolescence,
	},
	{types.StatusPendingObsolete, types.OpFinalizeObsolescence}: {
		to:    types.StatusObsolete,
		roles: []types.Role{types.RoleSystem},
		apply: applyFinalizeObsolescence,
	},
	{types.StatusEffective, types.OpCreateNewVersion}: {
		roles: []types.Role{types.RoleAuthor, types.RoleAdmin},
		apply: applyCreateNewVersion,
	},
}

func init() {
	// terminate is legal from every non-terminal status.
	for _, st := range types.AllStatuses {
		if st.IsTerminal() {
			continue
		}
		transitions[transitionKey{st, types.OpTerminate}] = transitionSpec{
			to:    types.StatusTerminated,
			roles: []types.Role{types.RoleAuthor, types.RoleAdmin},
			apply: applyTerminate,
		}
	}
}

func applySubmitForReview(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.Reviewer == "" {
		return &MissingAssigneeError{DocumentID: doc.ID, Operation: req.Operation, Field: "reviewer"}
	}
	eff.updates["reviewer"] = req.Reviewer
	eff.openTasks = append(eff.openTasks, &types.WorkflowTask{
		DocumentID: doc.ID,
		Type:       types.TaskReview,
		Assignee:   req.Reviewer,
		DueAt:      e.taskDue(e.opts.ReviewTaskTTL),
	})
	return nil
}

func applyCompleteReview(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	switch req.Outcome {
	case OutcomeApprove:
		eff.to = types.StatusReviewed
	case OutcomeReject:
		if req.Reason == "" {
			return &ValidationError{Field: "reason", Message: "rejecting a review requires a reason"}
		}
		eff.to = types.StatusDraft
	default:
		return &ValidationError{Field: "outcome", Message: `must be "approve" or "reject"`}
	}
	eff.closeTasks = append(eff.closeTasks, types.TaskReview)
	return nil
}

func applyRouteForApproval(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.Approver == "" {
		return &MissingAssigneeError{DocumentID: doc.ID, Operation: req.Operation, Field: "approver"}
	}
	eff.updates["approver"] = req.Approver
	eff.openTasks = append(eff.openTasks, &types.WorkflowTask{
		DocumentID: doc.ID,
		Type:       types.TaskApproval,
		Assignee:   req.Approver,
		DueAt:      e.taskDue(e.opts.ApprovalTaskTTL),
	})
	return nil
}

func applyApprove(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.EffectiveDate == nil {
		return &ValidationError{Field: "effective_date", Message: "approval requires an effective date"}
	}
	now := e.clock.Now()
	if beforeDay(*req.EffectiveDate, now) {
		return &ValidationError{Field: "effective_date", Message: "must not be in the past"}
	}
	eff.updates["effective_date"] = req.EffectiveDate
	eff.closeTasks = append(eff.closeTasks, types.TaskApproval)

	if sameDay(*req.EffectiveDate, now) {
		// Effective immediately: the prior effective version is superseded
		// in the same transaction.
		eff.to = types.StatusEffective
		if due := e.reviewDue(); due != nil {
			eff.updates["review_due_date"] = due
		}
		return supersedePrior(ctx, tx, doc, req.Actor, role, eff)
	}

	// A future date leaves the current effective version in place until the
	// activation sweep supersedes it, but only one version per family may
	// wait in that state.
	family, err := tx.GetFamily(ctx, doc.FamilyID)
	if err != nil {
		return err
	}
	for _, member := range family {
		if member.ID != doc.ID && member.Status == types.StatusApprovedPendingEffective {
			return &ValidationError{
				Field:   "effective_date",
				Message: fmt.Sprintf("version %s is already approved and pending effective", member.ID),
			}
		}
	}
	eff.to = types.StatusApprovedPendingEffective
	return nil
}

func applyReject(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.Reason == "" {
		return &ValidationError{Field: "reason", Message: "rejecting an approval requires a reason"}
	}
	eff.closeTasks = append(eff.closeTasks, types.TaskApproval)
	return nil
}

func applyActivate(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if doc.EffectiveDate == nil {
		return &ValidationError{Field: "effective_date", Message: "document has no effective date"}
	}
	now := e.clock.Now()
	if beforeDay(now, *doc.EffectiveDate) {
		return &ValidationError{
			Field:   "effective_date",
			Message: fmt.Sprintf("has not elapsed (effective %s)", doc.EffectiveDate.Format("2006-01-02")),
		}
	}
	if due := e.reviewDue(); due != nil {
		eff.updates["review_due_date"] = due
	}
	return supersedePrior(ctx, tx, doc, req.Actor, role, eff)
}

func applyScheduleObsolescence(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.ObsolescenceDate == nil {
		return &ValidationError{Field: "obsolescence_date", Message: "required"}
	}
	if beforeDay(*req.ObsolescenceDate, e.clock.Now()) {
		return &ValidationError{Field: "obsolescence_date", Message: "must not be in the past"}
	}
	deps, err := graph.ActiveDependents(ctx, tx, doc.FamilyID, true)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		return &DependencyBlockError{
			DocumentID: doc.ID,
			FamilyID:   doc.FamilyID,
			Operation:  req.Operation,
			Dependents: deps,
		}
	}
	eff.updates["obsolescence_date"] = req.ObsolescenceDate
	return nil
}

func applyFinalizeObsolescence(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if doc.ObsolescenceDate == nil {
		return &ValidationError{Field: "obsolescence_date", Message: "document has no obsolescence date"}
	}
	if beforeDay(e.clock.Now(), *doc.ObsolescenceDate) {
		return &ValidationError{
			Field:   "obsolescence_date",
			Message: fmt.Sprintf("has not elapsed (obsolete %s)", doc.ObsolescenceDate.Format("2006-01-02")),
		}
	}
	return nil
}

func applyTerminate(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if req.Reason == "" {
		return &ValidationError{Field: "reason", Message: "termination requires a reason"}
	}

	family, err := tx.GetFamily(ctx, doc.FamilyID)
	if err != nil {
		return err
	}
	var restore *types.Document
	otherActive := false
	for _, m := range family {
		if m.ID == doc.ID {
			continue
		}
		if m.Status.IsActive() {
			otherActive = true
		}
		if m.Status == types.StatusSuperseded && (restore == nil || restore.Version.Less(m.Version)) {
			restore = m
		}
	}

	// Terminating the family's last active version retires the whole
	// family, so active dependents block it unless a superseded prior
	// version can be restored to effective.
	if !otherActive && restore == nil {
		deps, err := graph.ActiveDependents(ctx, tx, doc.FamilyID, true)
		if err != nil {
			return err
		}
		if len(deps) > 0 {
			return &DependencyBlockError{
				DocumentID: doc.ID,
				FamilyID:   doc.FamilyID,
				Operation:  req.Operation,
				Dependents: deps,
			}
		}
	}

	eff.closeTasks = append(eff.closeTasks, types.TaskReview, types.TaskApproval)

	// Restoration happens after the subject's status write so the family
	// never briefly holds two current versions.
	wasCurrent := doc.Status == types.StatusEffective || doc.Status == types.StatusApprovedPendingEffective
	if wasCurrent && restore != nil {
		prior := restore
		actor, actorRole := req.Actor, role
		eff.after = func(ctx context.Context, tx storage.Transaction) error {
			if err := tx.UpdateDocumentStatus(ctx, prior.ID, types.StatusSuperseded, types.StatusEffective, nil); err != nil {
				return err
			}
			if err := tx.AppendTransition(ctx, &types.TransitionRecord{
				DocumentID: prior.ID,
				Version:    prior.Version.String(),
				From:       types.StatusSuperseded,
				To:         types.StatusEffective,
				Actor:      actor,
				ActorRole:  actorRole,
				Reason:     "restored after termination of " + doc.ID,
			}); err != nil {
				return err
			}
			eff.events = append(eff.events, &notify.Event{
				Type:       notify.EventDocumentTransitioned,
				DocumentID: prior.ID,
				FamilyID:   prior.FamilyID,
				From:       types.StatusSuperseded,
				To:         types.StatusEffective,
				Operation:  req.Operation,
				Actor:      actor,
			})
			return nil
		}
	}
	return nil
}

func applyCreateNewVersion(ctx context.Context, e *Engine, tx storage.Transaction, doc *types.Document, req *Request, role types.Role, eff *effects) error {
	if !req.ChangeType.IsValid() {
		return &ValidationError{Field: "change_type", Message: `must be "major" or "minor"`}
	}

	// Bump from the family's highest version so an earlier draft attempt
	// never collides.
	family, err := tx.GetFamily(ctx, doc.FamilyID)
	if err != nil {
		return err
	}
	highest := doc.Version
	for _, m := range family {
		if highest.Less(m.Version) {
			highest = m.Version
		}
	}

	child := &types.Document{
		FamilyID:       doc.FamilyID,
		Version:        highest.Bump(req.ChangeType),
		Title:          doc.Title,
		Status:         types.StatusDraft,
		Author:         req.Actor,
		Classification: doc.Classification,
		Controlled:     doc.Controlled,
	}
	if err := tx.CreateDocument(ctx, child); err != nil {
		return err
	}
	if err := tx.AppendTransition(ctx, &types.TransitionRecord{
		DocumentID: child.ID,
		Version:    child.Version.String(),
		To:         types.StatusDraft,
		Actor:      req.Actor,
		ActorRole:  role,
		Reason:     fmt.Sprintf("new %s version of %s", req.ChangeType, doc.ID),
	}); err != nil {
		return err
	}

	// The child inherits the parent's active dependency edges.
	edges, err := tx.EdgesFrom(ctx, doc.ID)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if err := tx.AddEdge(ctx, &types.DependencyEdge{
			FromID:       child.ID,
			FromFamilyID: child.FamilyID,
			ToFamilyID:   edge.ToFamilyID,
			Type:         edge.Type,
			CreatedBy:    req.Actor,
		}); err != nil {
			return err
		}
	}

	eff.events = append(eff.events, &notify.Event{
		Type:       notify.EventDocumentCreated,
		DocumentID: child.ID,
		FamilyID:   child.FamilyID,
		To:         types.StatusDraft,
		Actor:      req.Actor,
	})
	eff.resultID = child.ID
	// The parent keeps its status; supersession happens when the child
	// activates.
	eff.skipStatusWrite = true
	return nil
}

// supersedePrior demotes the family's current effective member, if any, in
// the same transaction that makes doc effective. It runs before doc's own
// status write so the family never holds two effective versions.
func supersedePrior(ctx context.Context, tx storage.Transaction, doc *types.Document, actor string, role types.Role, eff *effects) error {
	family, err := tx.GetFamily(ctx, doc.FamilyID)
	if err != nil {
		return err
	}
	for _, m := range family {
		if m.ID == doc.ID || m.Status != types.StatusEffective {
			continue
		}
		if err := tx.UpdateDocumentStatus(ctx, m.ID, types.StatusEffective, types.StatusSuperseded, nil); err != nil {
			return err
		}
		if err := tx.AppendTransition(ctx, &types.TransitionRecord{
			DocumentID: m.ID,
			Version:    m.Version.String(),
			From:       types.StatusEffective,
			To:         types.StatusSuperseded,
			Actor:      actor,
			ActorRole:  role,
			Reason:     "superseded by " + doc.ID,
		}); err != nil {
			return err
		}
		eff.events = append(eff.events, &notify.Event{
			Type:       notify.EventDocumentTransitioned,
			DocumentID: m.ID,
			FamilyID:   m.FamilyID,
			From:       types.StatusEffective,
			To:         types.StatusSuperseded,
			Actor:      actor,
		})
	}
	return nil
}

// taskDue converts a TTL into a due date pointer; zero TTL means no due
// date and no escalation.
func (e *Engine) taskDue(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	due := e.clock.Now().Add(ttl)
	return &due
}

// reviewDue computes the next periodic-review due date.
func (e *Engine) reviewDue() *time.Time {
	if e.opts.ReviewInterval <= 0 {
		return nil
	}
	due := e.clock.Now().Add(e.opts.ReviewInterval)
	return &due
}
