package store

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/event"
)

// TaskStore wraps a Store with typed task operations. Every mutation is a
// single-document replace of the task record; concurrent stages of the same
// task are never in flight at once (sequential mode runs phases serially,
// event mode caps each role's prefetch at one), so read-modify-write is
// sufficient.
type TaskStore struct {
	store Store
}

// NewTaskStore creates a typed task store over the given document store.
func NewTaskStore(s Store) *TaskStore {
	return &TaskStore{store: s}
}

// Create persists a new task record.
func (ts *TaskStore) Create(ctx context.Context, t *Task) error {
	if err := ts.store.InsertOne(ctx, CollectionTasks, t.ID, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Get loads a task by id.
func (ts *TaskStore) Get(ctx context.Context, taskID string) (*Task, error) {
	var t Task
	if err := ts.store.FindOne(ctx, CollectionTasks, taskID, &t); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

// Save replaces a task record.
func (ts *TaskStore) Save(ctx context.Context, t *Task) error {
	if err := ts.store.UpdateOne(ctx, CollectionTasks, t.ID, t); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// SetStage records a stage transition on the persisted task.
func (ts *TaskStore) SetStage(ctx context.Context, taskID string, stage event.Actor, status StageStatus) error {
	return ts.mutate(ctx, taskID, func(t *Task) {
		t.SetStage(stage, status)
	})
}

// MarkStatus records an overall status transition on the persisted task.
func (ts *TaskStore) MarkStatus(ctx context.Context, taskID string, status TaskStatus, errMsg string) error {
	return ts.mutate(ctx, taskID, func(t *Task) {
		t.MarkStatus(status, errMsg)
	})
}

// AddCost accumulates spend on the persisted task.
func (ts *TaskStore) AddCost(ctx context.Context, taskID string, amount float64) error {
	if amount == 0 {
		return nil
	}
	return ts.mutate(ctx, taskID, func(t *Task) {
		t.AddCost(amount)
	})
}

func (ts *TaskStore) mutate(ctx context.Context, taskID string, fn func(*Task)) error {
	t, err := ts.Get(ctx, taskID)
	if err != nil {
		return err
	}
	fn(t)
	return ts.Save(ctx, t)
}
