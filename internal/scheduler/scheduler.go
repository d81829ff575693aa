// Package scheduler drives time-based document transitions.
//
// A Scheduler holds an explicit list of sweeps built at construction:
// activation of approved documents whose effective date has elapsed,
// finalization of pending obsolescence, escalation of overdue workflow
// tasks, and opening of periodic-review tasks. Run executes the sweeps in
// order; candidates within a sweep fan out over a bounded worker pool, each
// in its own transaction, and one candidate's failure never aborts the
// batch. Transitions go through the lifecycle engine under the system
// actor, so every precondition is re-checked at commit time and a document
// already handled by a concurrent run is skipped, not double-processed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vellum-dms/vellum/internal/identity"
	"github.com/vellum-dms/vellum/internal/lifecycle"
	"github.com/vellum-dms/vellum/internal/notify"
	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

// DefaultWorkers bounds per-sweep concurrency when Options.Workers is
// unset.
const DefaultWorkers = 4

// Options tunes scheduler behavior.
type Options struct {
	// Workers bounds concurrent candidate processing within a sweep.
	Workers int
	// ReviewInterval sets the next periodic-review due date after a review
	// task opens. Zero disables rescheduling (the task still opens).
	ReviewInterval time.Duration
	// ReviewTaskTTL is the window a reviewer has to act on a freshly
	// opened periodic-review task before the escalation sweep picks it
	// up. Zero leaves the task without a due date (never escalated).
	ReviewTaskTTL time.Duration
	// BatchLimit caps candidates per sweep per run; zero means unbounded.
	BatchLimit int
}

// Sweep is one trigger-query/action pair. Find returns candidate IDs;
// Act processes a single candidate in its own transaction.
type Sweep struct {
	Name string
	Find func(ctx context.Context, now time.Time) ([]string, error)
	Act  func(ctx context.Context, id string) error
}

// SweepResult reports one sweep's outcome within a run.
type SweepResult struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// RunSummary aggregates a full scheduler pass.
type RunSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Sweeps    []SweepResult `json:"sweeps"`
}

// Processed sums candidates across all sweeps.
func (s *RunSummary) Processed() int {
	n := 0
	for _, sw := range s.Sweeps {
		n += sw.Processed
	}
	return n
}

// Failed sums failures across all sweeps.
func (s *RunSummary) Failed() int {
	n := 0
	for _, sw := range s.Sweeps {
		n += sw.Failed
	}
	return n
}

// Scheduler executes time-based sweeps against the lifecycle engine.
type Scheduler struct {
	store  storage.Storage
	engine *lifecycle.Engine
	bus    *notify.Bus
	clock  lifecycle.Clock
	logger *slog.Logger
	opts   Options
	sweeps []Sweep
}

// New builds a Scheduler with the standard four sweeps. clock and logger
// fall back to the system clock and slog.Default; bus may be nil.
func New(store storage.Storage, engine *lifecycle.Engine, bus *notify.Bus, clock lifecycle.Clock, logger *slog.Logger, opts Options) *Scheduler {
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	s := &Scheduler{
		store:  store,
		engine: engine,
		bus:    bus,
		clock:  clock,
		logger: logger,
		opts:   opts,
	}
	s.sweeps = []Sweep{
		{Name: "activation", Find: s.findActivatable, Act: s.activate},
		{Name: "obsolescence", Find: s.findObsoletable, Act: s.finalizeObsolescence},
		{Name: "task-escalation", Find: s.findOverdueTasks, Act: s.escalateTask},
		{Name: "periodic-review", Find: s.findReviewDue, Act: s.openPeriodicReview},
	}
	return s
}

// Sweeps returns the configured sweep names in execution order.
func (s *Scheduler) Sweeps() []string {
	names := make([]string, len(s.sweeps))
	for i, sw := range s.sweeps {
		names[i] = sw.Name
	}
	return names
}

// Run executes one full pass over all sweeps and returns the summary.
// Candidate failures are logged and counted; only context cancellation or
// a failing trigger query aborts the pass.
func (s *Scheduler) Run(ctx context.Context) (*RunSummary, error) {
	start := s.clock.Now()
	summary := &RunSummary{StartedAt: start}

	for _, sweep := range s.sweeps {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := s.runSweep(ctx, sweep, start)
		summary.Sweeps = append(summary.Sweeps, res)
		if err != nil {
			return summary, err
		}
	}
	summary.Duration = s.clock.Now().Sub(start)
	s.logger.Info("scheduler pass complete",
		"processed", summary.Processed(),
		"failed", summary.Failed())
	return summary, nil
}

// RunSweep executes a single sweep by name. The daemon uses this to drive
// each sweep on its own interval.
func (s *Scheduler) RunSweep(ctx context.Context, name string) (SweepResult, error) {
	for _, sweep := range s.sweeps {
		if sweep.Name == name {
			return s.runSweep(ctx, sweep, s.clock.Now())
		}
	}
	return SweepResult{}, fmt.Errorf("unknown sweep %q", name)
}

func (s *Scheduler) runSweep(ctx context.Context, sweep Sweep, now time.Time) (SweepResult, error) {
	res := SweepResult{Name: sweep.Name}

	ids, err := sweep.Find(ctx, now)
	if err != nil {
		return res, err
	}
	if s.opts.BatchLimit > 0 && len(ids) > s.opts.BatchLimit {
		ids = ids[:s.opts.BatchLimit]
	}
	if len(ids) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := sweep.Act(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			res.Processed++
			if err != nil {
				res.Failed++
				s.logger.Error("sweep candidate failed",
					"sweep", sweep.Name, "id", id, "error", err)
				return nil // next run retries; never abort the batch
			}
			res.Succeeded++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// ---- activation ----

func (s *Scheduler) findActivatable(ctx context.Context, now time.Time) ([]string, error) {
	status := types.StatusApprovedPendingEffective
	docs, err := s.store.ListDocuments(ctx, types.DocumentFilter{
		Status:          &status,
		EffectiveBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	return documentIDs(docs), nil
}

func (s *Scheduler) activate(ctx context.Context, id string) error {
	_, err := s.engine.Transition(ctx, lifecycle.Request{
		DocumentID: id,
		Operation:  types.OpActivate,
		Actor:      identity.SystemActor,
	})
	return ignoreAlreadyHandled(err)
}

// ---- obsolescence finalization ----

func (s *Scheduler) findObsoletable(ctx context.Context, now time.Time) ([]string, error) {
	status := types.StatusPendingObsolete
	docs, err := s.store.ListDocuments(ctx, types.DocumentFilter{
		Status:         &status,
		ObsoleteBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	return documentIDs(docs), nil
}

func (s *Scheduler) finalizeObsolescence(ctx context.Context, id string) error {
	_, err := s.engine.Transition(ctx, lifecycle.Request{
		DocumentID: id,
		Operation:  types.OpFinalizeObsolescence,
		Actor:      identity.SystemActor,
	})
	return ignoreAlreadyHandled(err)
}

// ---- workflow task escalation ----

func (s *Scheduler) findOverdueTasks(ctx context.Context, now time.Time) ([]string, error) {
	open := types.TaskOpen
	tasks, err := s.store.ListTasks(ctx, types.TaskFilter{
		State:     &open,
		DueBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids, nil
}

// escalateTask marks an overdue task escalated without touching the
// document's status, and notifies.
func (s *Scheduler) escalateTask(ctx context.Context, id string) error {
	var task *types.WorkflowTask
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.EscalateTask(ctx, id)
	})
	if err != nil {
		// A task closed or escalated since the query is not a failure.
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	task, err = s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	s.emit(ctx, &notify.Event{
		Type:       notify.EventTaskEscalated,
		DocumentID: task.DocumentID,
		TaskID:     task.ID,
		TaskType:   task.Type,
		Assignee:   task.Assignee,
		Actor:      identity.SystemActor,
	})
	return nil
}

// ---- periodic review ----

func (s *Scheduler) findReviewDue(ctx context.Context, now time.Time) ([]string, error) {
	status := types.StatusEffective
	docs, err := s.store.ListDocuments(ctx, types.DocumentFilter{
		Status:          &status,
		ReviewDueBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	return documentIDs(docs), nil
}

// openPeriodicReview opens a periodic-review task for the document's
// author and pushes the next review-due date, leaving status untouched.
func (s *Scheduler) openPeriodicReview(ctx context.Context, id string) error {
	var task *types.WorkflowTask
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if doc.Status != types.StatusEffective || doc.ReviewDueDate == nil || doc.ReviewDueDate.After(now) {
			return nil // handled since the query
		}

		// An unresolved review task from a prior cycle stays open; do not
		// stack another one.
		open := types.TaskOpen
		pr := types.TaskPeriodicReview
		existing, err := tx.ListTasks(ctx, types.TaskFilter{
			State: &open, Type: &pr, DocumentID: doc.ID,
		})
		if err != nil {
			return err
		}

		var next interface{}
		if s.opts.ReviewInterval > 0 {
			due := now.Add(s.opts.ReviewInterval)
			next = &due
		}
		if err := tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{
			"review_due_date": next,
		}); err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		// The due date counts from now, not from the (already elapsed)
		// review date, so the reviewer gets a full response window before
		// the escalation sweep sees the task.
		var dueAt *time.Time
		if s.opts.ReviewTaskTTL > 0 {
			d := now.Add(s.opts.ReviewTaskTTL)
			dueAt = &d
		}
		task = &types.WorkflowTask{
			DocumentID: doc.ID,
			Type:       types.TaskPeriodicReview,
			Assignee:   doc.Author,
			DueAt:      dueAt,
		}
		return tx.CreateTask(ctx, task)
	})
	if err != nil || task == nil {
		return err
	}
	s.emit(ctx, &notify.Event{
		Type:       notify.EventReviewDue,
		DocumentID: task.DocumentID,
		TaskID:     task.ID,
		TaskType:   task.Type,
		Assignee:   task.Assignee,
		Actor:      identity.SystemActor,
	})
	return nil
}

// ignoreAlreadyHandled filters errors that mean another run got there
// first: the precondition no longer holds, which is the idempotence the
// design relies on.
func ignoreAlreadyHandled(err error) error {
	if err == nil {
		return nil
	}
	var ite *lifecycle.IllegalTransitionError
	if errors.As(err, &ite) {
		return nil
	}
	var cce *lifecycle.ConcurrencyConflictError
	if errors.As(err, &cce) {
		return nil
	}
	return err
}

func (s *Scheduler) emit(ctx context.Context, ev *notify.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Dispatch(ctx, ev); err != nil {
		s.logger.Warn("event dispatch failed", "event", ev.Type, "error", err)
	}
}

func documentIDs(docs []*types.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
