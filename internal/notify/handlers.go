package notify

import (
	"context"
	"log/slog"
)

// AllEventTypes lists every event type the bus carries, for handlers that
// subscribe to everything.
var AllEventTypes = []EventType{
	EventDocumentCreated,
	EventDocumentTransitioned,
	EventTaskOpened,
	EventTaskClosed,
	EventTaskEscalated,
	EventReviewDue,
}

// LogHandler writes every event to a structured logger. It runs at a low
// priority so domain handlers observe events first.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler. A nil logger falls back to
// slog.Default.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) ID() string           { return "log" }
func (h *LogHandler) Handles() []EventType { return AllEventTypes }
func (h *LogHandler) Priority() int        { return 100 }

func (h *LogHandler) Handle(ctx context.Context, event *Event) error {
	attrs := []any{
		"event", event.Type,
		"document", event.DocumentID,
	}
	if event.From != "" || event.To != "" {
		attrs = append(attrs, "from", string(event.From), "to", string(event.To))
	}
	if event.Actor != "" {
		attrs = append(attrs, "actor", event.Actor)
	}
	if event.TaskID != "" {
		attrs = append(attrs, "task", event.TaskID, "assignee", event.Assignee)
	}
	h.logger.Info("lifecycle event", attrs...)
	return nil
}

// FuncHandler adapts a function into a Handler, mostly for tests and
// small inline subscribers.
type FuncHandler struct {
	Name     string
	Types    []EventType
	Pri      int
	HandleFn func(ctx context.Context, event *Event) error
}

func (h *FuncHandler) ID() string           { return h.Name }
func (h *FuncHandler) Handles() []EventType { return h.Types }
func (h *FuncHandler) Priority() int        { return h.Pri }

func (h *FuncHandler) Handle(ctx context.Context, event *Event) error {
	return h.HandleFn(ctx, event)
}
