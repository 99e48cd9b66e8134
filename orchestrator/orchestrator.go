// Package orchestrator drives tasks through the pipeline. One facade serves
// both execution strategies: in-process sequential phases, or a single
// task.initiated publish that hands the chain to the event consumers. The
// strategy is resolved once from the environment at construction.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgeline/forgeline/bus"
	"github.com/forgeline/forgeline/environment"
	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

// TaskResult is the caller-facing outcome of a task submission. Both modes
// return the same shape: event-driven submissions report status "initiated",
// sequential runs report the terminal status.
type TaskResult struct {
	TaskID string           `json:"task_id"`
	Status store.TaskStatus `json:"status"`
	Cost   float64          `json:"cost"`
	URLs   []string         `json:"urls,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Orchestrator is the dual-mode task entry point.
type Orchestrator struct {
	env       *environment.Config
	tasks     *store.TaskStore
	executor  *SequentialExecutor
	publisher bus.Publisher
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator. The publisher is consulted only in
// event-driven mode; pass a NoopPublisher otherwise.
func New(env *environment.Config, tasks *store.TaskStore, executor *SequentialExecutor, publisher bus.Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		env:       env,
		tasks:     tasks,
		executor:  executor,
		publisher: publisher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteTask persists a new task and drives it according to the resolved
// mode. In event-driven mode a failed initiation publish falls back to the
// sequential executor transparently; the caller sees the same return shape
// either way.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID, projectID, requirements string) (*TaskResult, error) {
	if requirements == "" {
		return nil, fmt.Errorf("requirements are required")
	}

	task := store.NewTask(taskID, projectID, requirements)
	if err := o.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	o.logger.Info("Task accepted",
		"task_id", task.ID,
		"trace_id", task.TraceID,
		"project_id", projectID,
		"mode", o.env.Mode)

	if !o.env.EventDriven() {
		return o.executor.Execute(ctx, task)
	}

	initiated := event.NewTaskInitiated(task.ID, task.TraceID, &event.TaskInitiatedPayload{
		ProjectID:    projectID,
		Requirements: requirements,
		FirstAgent:   event.ActorPlanner,
	})

	if o.publisher.Publish(ctx, initiated) {
		if err := o.tasks.MarkStatus(ctx, task.ID, store.TaskInitiated, ""); err != nil {
			return nil, fmt.Errorf("mark task initiated: %w", err)
		}
		return &TaskResult{TaskID: task.ID, Status: store.TaskInitiated}, nil
	}

	modeFallbacks.Inc()
	o.logger.Warn("Task initiation publish failed, falling back to sequential execution",
		"task_id", task.ID,
		"trace_id", task.TraceID)

	return o.executor.Execute(ctx, task)
}

// GetTask loads the persisted state of a task.
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*store.Task, error) {
	return o.tasks.Get(ctx, taskID)
}
