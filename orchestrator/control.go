package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

// ControlHandler is the orchestrator's consumer in event-driven mode. It
// reacts to the chain's terminal events: deploy.status completes the task,
// any {role}.failed fails it. Events for unknown tasks are logged and
// acknowledged so watcher-initiated scans never poison the control queue.
type ControlHandler struct {
	tasks  *store.TaskStore
	logger *slog.Logger
}

// ControlOption configures a ControlHandler.
type ControlOption func(*ControlHandler)

// WithControlLogger sets the logger.
func WithControlLogger(logger *slog.Logger) ControlOption {
	return func(h *ControlHandler) { h.logger = logger }
}

// NewControlHandler creates the control-plane handler.
func NewControlHandler(tasks *store.TaskStore, opts ...ControlOption) *ControlHandler {
	h := &ControlHandler{tasks: tasks, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements bus.Handler.
func (h *ControlHandler) Handle(ctx context.Context, ev *event.Event) error {
	switch p := ev.Payload.(type) {
	case *event.DeployStatusPayload:
		return h.handleDeploy(ctx, ev, p)
	case *event.AgentFailedPayload:
		return h.handleFailure(ctx, ev, p)
	}

	h.logger.Warn("Control handler received unexpected event",
		"event_type", ev.Type,
		"task_id", ev.TaskID)
	return nil
}

// handleDeploy records the terminal outcome of a successful chain.
func (h *ControlHandler) handleDeploy(ctx context.Context, ev *event.Event, p *event.DeployStatusPayload) error {
	switch p.Status {
	case event.DeploySucceeded, event.DeploySkipped:
		if err := h.mark(ctx, ev, store.TaskCompleted, ""); err != nil {
			return err
		}
		tasksCompleted.Inc()
		h.logger.Info("Task completed",
			"task_id", ev.TaskID,
			"trace_id", ev.TraceID,
			"deploy_status", p.Status,
			"urls", p.URLs)
	case event.DeployFailed:
		if err := h.mark(ctx, ev, store.TaskFailed, "deployment failed"); err != nil {
			return err
		}
		tasksFailed.WithLabelValues(string(event.ActorDeployer)).Inc()
	default:
		return fmt.Errorf("unknown deploy status: %q", p.Status)
	}
	return nil
}

// handleFailure records a role failure as the task's terminal state.
func (h *ControlHandler) handleFailure(ctx context.Context, ev *event.Event, p *event.AgentFailedPayload) error {
	tasksFailed.WithLabelValues(string(ev.Actor)).Inc()
	h.logger.Error("Pipeline role failed",
		"role", ev.Actor,
		"task_id", ev.TaskID,
		"trace_id", ev.TraceID,
		"original_type", p.OriginalType,
		"error", p.Error)

	msg := fmt.Sprintf("%s failed while processing %s: %s", ev.Actor, p.OriginalType, p.Error)
	return h.mark(ctx, ev, store.TaskFailed, msg)
}

// mark records a terminal status, tolerating tasks that were never
// persisted.
func (h *ControlHandler) mark(ctx context.Context, ev *event.Event, status store.TaskStatus, errMsg string) error {
	err := h.tasks.MarkStatus(ctx, ev.TaskID, status, errMsg)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Info("Terminal event for unknown task",
			"task_id", ev.TaskID,
			"event_type", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark task %s %s: %w", ev.TaskID, status, err)
	}
	return nil
}
