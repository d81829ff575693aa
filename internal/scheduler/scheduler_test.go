package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-dms/vellum/internal/identity"
	"github.com/vellum-dms/vellum/internal/lifecycle"
	"github.com/vellum-dms/vellum/internal/notify"
	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/storage/memory"
	"github.com/vellum-dms/vellum/internal/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store  *memory.Store
	engine *lifecycle.Engine
	sched  *Scheduler
	clock  *fakeClock
	events []*notify.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		clock: &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)},
	}
	bus := notify.New(nil)
	bus.Register(&notify.FuncHandler{
		Name:  "capture",
		Types: notify.AllEventTypes,
		Pri:   0,
		HandleFn: func(ctx context.Context, event *notify.Event) error {
			f.events = append(f.events, event)
			return nil
		},
	})
	roles := identity.NewResolver(nil)
	f.engine = lifecycle.New(f.store, roles, bus, f.clock, nil, lifecycle.Options{
		ReviewTaskTTL: 3 * 24 * time.Hour,
	})
	f.sched = New(f.store, f.engine, bus, f.clock, nil, Options{
		Workers:        2,
		ReviewInterval: 180 * 24 * time.Hour,
		ReviewTaskTTL:  7 * 24 * time.Hour,
	})
	return f
}

// approvedDoc creates a document and advances it to
// APPROVED_PENDING_EFFECTIVE with the given effective date.
func (f *fixture) approvedDoc(t *testing.T, familyID string, effective time.Time) *types.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.engine.Create(ctx, &types.Document{
		FamilyID: familyID,
		Title:    "Procedure " + familyID,
		Author:   "alice",
	}, "alice")
	require.NoError(t, err)

	steps := []lifecycle.Request{
		{DocumentID: doc.ID, Operation: types.OpSubmitForReview, Actor: "alice", Reviewer: "bob"},
		{DocumentID: doc.ID, Operation: types.OpCompleteReview, Actor: "bob", Outcome: lifecycle.OutcomeApprove},
		{DocumentID: doc.ID, Operation: types.OpRouteForApproval, Actor: "alice", Approver: "carol"},
		{DocumentID: doc.ID, Operation: types.OpApprove, Actor: "carol", EffectiveDate: &effective},
	}
	for _, req := range steps {
		doc, err = f.engine.Transition(ctx, req)
		require.NoError(t, err, "step %s", req.Operation)
	}
	return doc
}

func (f *fixture) status(t *testing.T, id string) types.DocumentStatus {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc.Status
}

func TestActivationSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.clock.Now().Add(2 * 24 * time.Hour)
	far := f.clock.Now().Add(30 * 24 * time.Hour)
	d1 := f.approvedDoc(t, "SOP-1", due)
	d2 := f.approvedDoc(t, "SOP-2", far)

	// Nothing due yet.
	summary, err := f.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed())

	f.clock.Advance(2 * 24 * time.Hour)
	summary, err = f.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed())
	assert.Equal(t, 0, summary.Failed())

	assert.Equal(t, types.StatusEffective, f.status(t, d1.ID))
	assert.Equal(t, types.StatusApprovedPendingEffective, f.status(t, d2.ID))
}

func TestSchedulerIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.approvedDoc(t, "SOP-1", f.clock.Now())
	f.clock.Advance(time.Hour)

	first, err := f.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed())

	recsBefore, err := f.store.GetTransitions(ctx, doc.ID)
	require.NoError(t, err)

	// Immediate second run finds nothing: all preconditions already false.
	second, err := f.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed())

	recsAfter, err := f.store.GetTransitions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, recsAfter, len(recsBefore))
}

func TestObsolescenceSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.approvedDoc(t, "SOP-1", f.clock.Now())
	_, err := f.engine.Transition(ctx, lifecycle.Request{
		DocumentID: doc.ID, Operation: types.OpActivate, Actor: identity.SystemActor,
	})
	require.NoError(t, err)

	date := f.clock.Now().Add(7 * 24 * time.Hour)
	_, err = f.engine.Transition(ctx, lifecycle.Request{
		DocumentID: doc.ID, Operation: types.OpScheduleObsolescence,
		Actor: "alice", ObsolescenceDate: &date,
	})
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	summary, err := f.sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed())
	assert.Equal(t, types.StatusObsolete, f.status(t, doc.ID))
}

func TestEscalationSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc2, err := f.engine.Create(ctx, &types.Document{
		FamilyID: "SOP-2", Title: "Procedure SOP-2", Author: "alice",
	}, "alice")
	require.NoError(t, err)
	_, err = f.engine.Transition(ctx, lifecycle.Request{
		DocumentID: doc2.ID, Operation: types.OpSubmitForReview, Actor: "alice", Reviewer: "bob",
	})
	require.NoError(t, err)

	f.clock.Advance(4 * 24 * time.Hour) // past the 3-day review TTL
	summary, err := f.sched.Run(ctx)
	require.NoError(t, err)

	escalated := types.TaskEscalated
	tasks, err := f.store.ListTasks(ctx, types.TaskFilter{State: &escalated, DocumentID: doc2.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskReview, tasks[0].Type)

	// Document status untouched by escalation.
	assert.Equal(t, types.StatusPendingReview, f.status(t, doc2.ID))

	var sawEscalation bool
	for _, ev := range f.events {
		if ev.Type == notify.EventTaskEscalated && ev.DocumentID == doc2.ID {
			sawEscalation = true
		}
	}
	assert.True(t, sawEscalation, "escalation event not emitted")

	// Escalation is terminal for the sweep: the next run skips the task.
	second, err := f.sched.Run(ctx)
	require.NoError(t, err)
	for _, sw := range second.Sweeps {
		if sw.Name == "task-escalation" {
			assert.Equal(t, 0, sw.Processed)
		}
	}
	_ = summary
}

func TestPeriodicReviewSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.approvedDoc(t, "SOP-1", f.clock.Now())
	_, err := f.engine.Transition(ctx, lifecycle.Request{
		DocumentID: doc.ID, Operation: types.OpActivate, Actor: identity.SystemActor,
	})
	require.NoError(t, err)

	// Force the review due date into the past.
	past := f.clock.Now().Add(-time.Hour)
	err = f.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{"review_due_date": &past})
	})
	require.NoError(t, err)

	summary, err := f.sched.Run(ctx)
	require.NoError(t, err)
	_ = summary

	open := types.TaskOpen
	pr := types.TaskPeriodicReview
	tasks, err := f.store.ListTasks(ctx, types.TaskFilter{State: &open, Type: &pr, DocumentID: doc.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "alice", tasks[0].Assignee)

	// The task's window counts from the sweep, not from the elapsed review
	// date, so it is not born overdue.
	require.NotNil(t, tasks[0].DueAt)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), *tasks[0].DueAt)

	// The due date moved forward; status unchanged.
	got, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEffective, got.Status)
	require.NotNil(t, got.ReviewDueDate)
	assert.True(t, got.ReviewDueDate.After(f.clock.Now()))

	// No task stacking on the next run even if the date were due again,
	// and the fresh task is not escalated while its window is open.
	_, err = f.sched.Run(ctx)
	require.NoError(t, err)
	tasks, err = f.store.ListTasks(ctx, types.TaskFilter{State: &open, Type: &pr, DocumentID: doc.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.TaskOpen, tasks[0].State)

	// Once the window elapses, the escalation sweep takes it.
	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.sched.Run(ctx)
	require.NoError(t, err)
	escalated := types.TaskEscalated
	tasks, err = f.store.ListTasks(ctx, types.TaskFilter{State: &escalated, Type: &pr, DocumentID: doc.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSweepNamesStable(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"activation", "obsolescence", "task-escalation", "periodic-review"}, f.sched.Sweeps())
}
