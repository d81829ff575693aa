package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

const storageScopeName = "github.com/vellum-dms/vellum/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in vellum.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("vellum.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("vellum.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("vellum.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Documents ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateDocument(ctx context.Context, doc *types.Document) error {
	attrs := []attribute.KeyValue{
		attribute.String("vellum.document.id", doc.ID),
		attribute.String("vellum.document.family", doc.FamilyID),
	}
	ctx, span, t := s.op(ctx, "CreateDocument", attrs...)
	err := s.inner.CreateDocument(ctx, doc)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.document.id", id)}
	ctx, span, t := s.op(ctx, "GetDocument", attrs...)
	v, err := s.inner.GetDocument(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) GetFamily(ctx context.Context, familyID string) ([]*types.Document, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.document.family", familyID)}
	ctx, span, t := s.op(ctx, "GetFamily", attrs...)
	v, err := s.inner.GetFamily(ctx, familyID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error) {
	ctx, span, t := s.op(ctx, "ListDocuments")
	v, err := s.inner.ListDocuments(ctx, filter)
	span.SetAttributes(attribute.Int("vellum.result.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

// ── Dependency edges ────────────────────────────────────────────────────────

func (s *InstrumentedStorage) ListEdges(ctx context.Context, activeOnly bool) ([]*types.DependencyEdge, error) {
	attrs := []attribute.KeyValue{attribute.Bool("vellum.edges.active_only", activeOnly)}
	ctx, span, t := s.op(ctx, "ListEdges", attrs...)
	v, err := s.inner.ListEdges(ctx, activeOnly)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) EdgesFrom(ctx context.Context, docID string) ([]*types.DependencyEdge, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.document.id", docID)}
	ctx, span, t := s.op(ctx, "EdgesFrom", attrs...)
	v, err := s.inner.EdgesFrom(ctx, docID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) EdgesToFamily(ctx context.Context, familyID string) ([]*types.DependencyEdge, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.document.family", familyID)}
	ctx, span, t := s.op(ctx, "EdgesToFamily", attrs...)
	v, err := s.inner.EdgesToFamily(ctx, familyID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Audit trail ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetTransitions(ctx context.Context, docID string) ([]*types.TransitionRecord, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.document.id", docID)}
	ctx, span, t := s.op(ctx, "GetTransitions", attrs...)
	v, err := s.inner.GetTransitions(ctx, docID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Workflow tasks ──────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetTask(ctx context.Context, id string) (*types.WorkflowTask, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.task.id", id)}
	ctx, span, t := s.op(ctx, "GetTask", attrs...)
	v, err := s.inner.GetTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	ctx, span, t := s.op(ctx, "ListTasks")
	v, err := s.inner.ListTasks(ctx, filter)
	span.SetAttributes(attribute.Int("vellum.result.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

// ── Metadata ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetMeta(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("vellum.meta.key", key)}
	ctx, span, t := s.op(ctx, "GetMeta", attrs...)
	v, err := s.inner.GetMeta(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Transactions ────────────────────────────────────────────────────────────

// RunInTransaction traces the transaction as a single span. Individual
// statements inside the transaction are not traced separately; the span
// covers BEGIN through COMMIT/ROLLBACK including busy retries.
func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
