// Package notify dispatches lifecycle events to registered handlers.
//
// The bus is local and synchronous: the lifecycle engine and scheduler emit
// events after their transactions commit, and handlers (console output,
// task notifications, log sinks) run sequentially in priority order.
// Handler errors are logged and swallowed so one failing sink never blocks
// the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vellum-dms/vellum/internal/types"
)

// EventType identifies an event flowing through the bus.
type EventType string

const (
	// Document lifecycle events.
	EventDocumentCreated      EventType = "document.created"
	EventDocumentTransitioned EventType = "document.transitioned"

	// Workflow task events.
	EventTaskOpened    EventType = "task.opened"
	EventTaskClosed    EventType = "task.closed"
	EventTaskEscalated EventType = "task.escalated"

	// Periodic review events.
	EventReviewDue EventType = "review.due"
)

// Event is a single lifecycle occurrence flowing through the bus.
type Event struct {
	ID         string               `json:"id"`
	Type       EventType            `json:"type"`
	DocumentID string               `json:"document_id"`
	FamilyID   string               `json:"family_id,omitempty"`
	From       types.DocumentStatus `json:"from,omitempty"`
	To         types.DocumentStatus `json:"to,omitempty"`
	Operation  types.Operation      `json:"operation,omitempty"`
	Actor      string               `json:"actor,omitempty"`
	TaskID     string               `json:"task_id,omitempty"`
	TaskType   types.TaskType       `json:"task_type,omitempty"`
	Assignee   string               `json:"assignee,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Handler processes events on the bus. Handlers are called in priority
// order (lower priority value = called earlier) for matching event types.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler processes.
	Handles() []EventType

	// Priority determines call order. Lower values are called first.
	Priority() int

	// Handle processes a single event. Returning an error logs a warning
	// but does not stop the handler chain.
	Handle(ctx context.Context, event *Event) error
}

// Bus dispatches events to registered handlers.
type Bus struct {
	handlers []Handler
	logger   *slog.Logger
	mu       sync.RWMutex
}

// New creates a new event bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Dispatch sends an event to all registered handlers that handle its type.
// It assigns the event ID and timestamp when unset. Handler errors are
// logged but do not stop the chain.
func (b *Bus) Dispatch(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("notify: nil event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("notify: context cancelled: %w", err)
		}
		if err := h.Handle(ctx, event); err != nil {
			b.logger.Warn("event handler failed",
				"handler", h.ID(),
				"event", event.Type,
				"document", event.DocumentID,
				"error", err)
		}
	}
	return nil
}

// Handlers returns all registered handlers for status reporting.
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers for the given event type, sorted by
// priority (lowest first). Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
