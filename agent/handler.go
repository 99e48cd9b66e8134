package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgeline/forgeline/bus"
	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

// EventHandler is the consumer-facing boundary around an Adapter. Processing
// failures are converted into a best-effort {role}.failed publish and a
// terminal task status before the error is handed back to the consumer for
// dead-lettering. The task never rests in a non-terminal status after a
// failure.
type EventHandler struct {
	adapter   *Adapter
	publisher bus.Publisher
	tasks     *store.TaskStore
	logger    *slog.Logger
}

// HandlerOption configures an EventHandler.
type HandlerOption func(*EventHandler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *EventHandler) { h.logger = logger }
}

// NewEventHandler creates the handler for one role's consumer.
func NewEventHandler(adapter *Adapter, publisher bus.Publisher, tasks *store.TaskStore, opts ...HandlerOption) *EventHandler {
	h := &EventHandler{
		adapter:   adapter,
		publisher: publisher,
		tasks:     tasks,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements bus.Handler.
func (h *EventHandler) Handle(ctx context.Context, ev *event.Event) error {
	role := h.adapter.Role()
	h.logger.Info("Processing event",
		"role", role,
		"event_type", ev.Type,
		"task_id", ev.TaskID,
		"trace_id", ev.TraceID)

	next, err := h.adapter.ProcessEvent(ctx, ev)
	if err != nil {
		h.fail(ctx, ev, err)
		return err
	}

	if next == nil {
		return nil
	}

	if !h.publisher.Publish(ctx, next) {
		err := fmt.Errorf("publish %s: delivery failed", next.Type)
		h.fail(ctx, ev, err)
		return err
	}

	h.logger.Info("Event processed",
		"role", role,
		"event_type", ev.Type,
		"next_type", next.Type,
		"task_id", ev.TaskID)
	return nil
}

// fail records the failure on the task and publishes the role's failure
// event. Both are best-effort: secondary failures are logged and never mask
// the original error.
func (h *EventHandler) fail(ctx context.Context, ev *event.Event, cause error) {
	role := h.adapter.Role()

	if isStage(role) {
		if err := h.tasks.SetStage(ctx, ev.TaskID, role, store.StageFailed); err != nil {
			h.logger.Warn("Failed to record failed stage",
				"role", role, "task_id", ev.TaskID, "error", err)
		}
	}
	if err := h.tasks.MarkStatus(ctx, ev.TaskID, store.TaskFailed, cause.Error()); err != nil {
		h.logger.Warn("Failed to record failed task status",
			"role", role, "task_id", ev.TaskID, "error", err)
	}

	failure := event.NewAgentFailed(role, ev.TaskID, ev.TraceID, &event.AgentFailedPayload{
		Error:        cause.Error(),
		OriginalType: ev.Type,
	})
	if !h.publisher.Publish(ctx, failure) {
		h.logger.Warn("Failed to publish failure event",
			"role", role, "task_id", ev.TaskID, "original_type", ev.Type)
	}
}
