// Package lifecycle implements the document lifecycle state machine.
//
// Engine.Transition is the single authoritative entry point for mutating
// document status: human callers and the scheduler both go through it. A
// compile-time transition table maps (current status, operation) to a
// handler; anything absent from the table is an illegal transition. Each
// successful transition commits the status write, the audit record and the
// workflow task changes in one storage transaction, then emits events.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vellum-dms/vellum/internal/graph"
	"github.com/vellum-dms/vellum/internal/identity"
	"github.com/vellum-dms/vellum/internal/notify"
	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// ReviewOutcome is the result a reviewer reports in complete_review.
type ReviewOutcome string

// Review outcome constants
const (
	OutcomeApprove ReviewOutcome = "approve"
	OutcomeReject  ReviewOutcome = "reject"
)

// Request carries one lifecycle operation. DocumentID, Operation and Actor
// are always required; the remaining fields are operation payload.
type Request struct {
	DocumentID string
	Operation  types.Operation
	Actor      string

	Reviewer         string           // submit_for_review
	Approver         string           // route_for_approval
	Outcome          ReviewOutcome    // complete_review
	Reason           string           // reject, terminate; optional elsewhere
	EffectiveDate    *time.Time       // approve
	ObsolescenceDate *time.Time       // schedule_obsolescence
	ChangeType       types.ChangeType // create_new_version
}

// Options tunes engine behavior. Zero values disable the corresponding
// feature (no task due dates, no periodic review scheduling).
type Options struct {
	// ReviewTaskTTL and ApprovalTaskTTL set due dates on workflow tasks;
	// overdue tasks are escalated by the scheduler.
	ReviewTaskTTL   time.Duration
	ApprovalTaskTTL time.Duration
	// ReviewInterval sets the periodic-review due date when a document
	// becomes effective.
	ReviewInterval time.Duration
}

// Engine owns document status and workflow task lifecycle.
type Engine struct {
	store  storage.Storage
	roles  identity.Provider
	bus    *notify.Bus
	clock  Clock
	logger *slog.Logger
	opts   Options
}

// New creates an Engine. bus may be nil when no event consumers exist;
// clock and logger fall back to the system clock and slog.Default.
func New(store storage.Storage, roles identity.Provider, bus *notify.Bus, clock Clock, logger *slog.Logger, opts Options) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		roles:  roles,
		bus:    bus,
		clock:  clock,
		logger: logger,
		opts:   opts,
	}
}

// Create registers a new document in DRAFT and appends its creation audit
// record. The actor becomes the document's author when Author is unset.
func (e *Engine) Create(ctx context.Context, doc *types.Document, actor string) (*types.Document, error) {
	if actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "required"}
	}
	if doc.Author == "" {
		doc.Author = actor
	}
	if doc.Status == "" {
		doc.Status = types.StatusDraft
	}
	if doc.Status != types.StatusDraft {
		return nil, &ValidationError{Field: "status", Message: "new documents start in draft"}
	}
	if doc.Version == (types.Version{}) {
		doc.Version = types.Version{Major: 1, Minor: 0}
	}

	var created *types.Document
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.AppendTransition(ctx, &types.TransitionRecord{
			DocumentID: doc.ID,
			Version:    doc.Version.String(),
			To:         types.StatusDraft,
			Actor:      actor,
			ActorRole:  types.RoleAuthor,
			Reason:     "created",
		}); err != nil {
			return err
		}
		var err error
		created, err = tx.GetDocument(ctx, doc.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, &notify.Event{
		Type:       notify.EventDocumentCreated,
		DocumentID: created.ID,
		FamilyID:   created.FamilyID,
		To:         created.Status,
		Actor:      actor,
	})
	return created, nil
}

// Transition executes one lifecycle operation atomically and returns the
// document in its post-transition state. On failure the document is
// unchanged and a typed error describes the rejection.
func (e *Engine) Transition(ctx context.Context, req Request) (*types.Document, error) {
	if !req.Operation.IsValid() {
		return nil, &ValidationError{Field: "operation", Message: fmt.Sprintf("unknown operation %q", req.Operation)}
	}
	if req.Actor == "" {
		return nil, &ValidationError{Field: "actor", Message: "required"}
	}
	if req.Operation.SystemOnly() && req.Actor != identity.SystemActor {
		return nil, &UnauthorizedActorError{
			DocumentID: req.DocumentID,
			Actor:      req.Actor,
			Operation:  req.Operation,
			Required:   []types.Role{types.RoleSystem},
		}
	}

	var result *types.Document
	var events []*notify.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}

		spec, ok := transitions[transitionKey{From: doc.Status, Op: req.Operation}]
		if !ok {
			return &IllegalTransitionError{
				DocumentID: doc.ID,
				Current:    doc.Status,
				Operation:  req.Operation,
			}
		}

		actorRole, err := e.authorize(doc, &req, spec.roles)
		if err != nil {
			return err
		}

		eff := &effects{to: spec.to, updates: map[string]interface{}{}}
		if spec.apply != nil {
			if err := spec.apply(ctx, e, tx, doc, &req, actorRole, eff); err != nil {
				return err
			}
		}

		if !eff.skipStatusWrite {
			if err := tx.UpdateDocumentStatus(ctx, doc.ID, doc.Status, eff.to, eff.updates); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					return &ConcurrencyConflictError{DocumentID: doc.ID, Operation: req.Operation}
				}
				return err
			}
			if err := tx.AppendTransition(ctx, &types.TransitionRecord{
				DocumentID: doc.ID,
				Version:    doc.Version.String(),
				From:       doc.Status,
				To:         eff.to,
				Actor:      req.Actor,
				ActorRole:  actorRole,
				Reason:     req.Reason,
			}); err != nil {
				return err
			}
			events = append(events, &notify.Event{
				Type:       notify.EventDocumentTransitioned,
				DocumentID: doc.ID,
				FamilyID:   doc.FamilyID,
				From:       doc.Status,
				To:         eff.to,
				Operation:  req.Operation,
				Actor:      req.Actor,
				Reason:     req.Reason,
			})
		}

		if eff.after != nil {
			if err := eff.after(ctx, tx); err != nil {
				return err
			}
		}

		for _, tt := range eff.closeTasks {
			if err := tx.CloseTasks(ctx, doc.ID, tt); err != nil {
				return err
			}
			events = append(events, &notify.Event{
				Type:       notify.EventTaskClosed,
				DocumentID: doc.ID,
				FamilyID:   doc.FamilyID,
				TaskType:   tt,
				Actor:      req.Actor,
			})
		}
		for _, task := range eff.openTasks {
			if err := tx.CreateTask(ctx, task); err != nil {
				return err
			}
			events = append(events, &notify.Event{
				Type:       notify.EventTaskOpened,
				DocumentID: doc.ID,
				FamilyID:   doc.FamilyID,
				TaskID:     task.ID,
				TaskType:   task.Type,
				Assignee:   task.Assignee,
			})
		}
		events = append(events, eff.events...)

		if eff.resultID != "" {
			result, err = tx.GetDocument(ctx, eff.resultID)
		} else {
			result, err = tx.GetDocument(ctx, doc.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		e.emit(ctx, ev)
	}
	return result, nil
}

// AddDependency declares that a document depends on a family. The edge is
// validated and cycle-checked in one transaction; a rejected cycle comes
// back as a CircularDependencyError carrying the family path.
func (e *Engine) AddDependency(ctx context.Context, edge *types.DependencyEdge) error {
	if err := graph.AddEdge(ctx, e.store, edge); err != nil {
		var ce *graph.CycleError
		if errors.As(err, &ce) {
			return &CircularDependencyError{Path: ce.Path}
		}
		return err
	}
	return nil
}

// DependencyCheckResult is the pre-flight answer for a destructive
// operation.
type DependencyCheckResult struct {
	Blocked       bool              `json:"blocked"`
	BlockingChain []graph.Dependent `json:"blocking_chain,omitempty"`
}

// DependencyCheck reports whether a destructive operation on the document
// would be blocked by active dependents, without attempting it.
// Non-destructive operations are never blocked.
func (e *Engine) DependencyCheck(ctx context.Context, docID string, op types.Operation) (*DependencyCheckResult, error) {
	if !op.Destructive() {
		return &DependencyCheckResult{}, nil
	}
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if op == types.OpTerminate && !e.lastActiveMember(ctx, e.store, doc) {
		// Terminating a non-final version leaves the family alive, so
		// dependents are unaffected.
		return &DependencyCheckResult{}, nil
	}
	deps, err := graph.ActiveDependents(ctx, e.store, doc.FamilyID, true)
	if err != nil {
		return nil, err
	}
	return &DependencyCheckResult{Blocked: len(deps) > 0, BlockingChain: deps}, nil
}

// authorize returns the role under which the actor may drive the
// operation, or an UnauthorizedActorError.
func (e *Engine) authorize(doc *types.Document, req *Request, allowed []types.Role) (types.Role, error) {
	held := e.roles.RolesFor(req.Actor, doc)
	for _, want := range allowed {
		for _, have := range held {
			if have == want {
				return want, nil
			}
		}
	}
	return "", &UnauthorizedActorError{
		DocumentID: doc.ID,
		Actor:      req.Actor,
		Operation:  req.Operation,
		Required:   allowed,
	}
}

// familyReader is the storage subset lastActiveMember needs; satisfied by
// both Storage and Transaction.
type familyReader interface {
	GetFamily(ctx context.Context, familyID string) ([]*types.Document, error)
}

// lastActiveMember reports whether doc is the only remaining active member
// of its version family.
func (e *Engine) lastActiveMember(ctx context.Context, r familyReader, doc *types.Document) bool {
	family, err := r.GetFamily(ctx, doc.FamilyID)
	if err != nil {
		return true
	}
	for _, member := range family {
		if member.ID != doc.ID && member.Status.IsActive() {
			return false
		}
	}
	return true
}

func (e *Engine) emit(ctx context.Context, ev *notify.Event) {
	if e.bus == nil {
		return
	}
	// Delivery failure never affects the committed transition.
	if err := e.bus.Dispatch(ctx, ev); err != nil {
		e.logger.Warn("event dispatch failed", "event", ev.Type, "document", ev.DocumentID, "error", err)
	}
}
