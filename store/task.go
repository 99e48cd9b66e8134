package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/forgeline/event"
)

// StageStatus is the per-phase status recorded in a task's graph state.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageCompleted StageStatus = "completed"
	StageReworking StageStatus = "reworking"
	StageFailed    StageStatus = "failed"
)

// TaskStatus is the overall task status. Completed and failed are terminal.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskInitiated TaskStatus = "initiated"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is the user-visible unit of work driven through the pipeline. Its
// status and graph state are the single source of truth for pipeline
// position: external surfaces derive failure messages from these fields,
// never from transient logs.
type Task struct {
	ID           string                       `json:"id"`
	ProjectID    string                       `json:"project_id"`
	Requirements string                       `json:"requirements"`
	TraceID      string                       `json:"trace_id"`
	GraphState   map[event.Actor]StageStatus  `json:"graph_state"`
	Status       TaskStatus                   `json:"status"`
	Error        string                       `json:"error,omitempty"`
	Cost         float64                      `json:"cost"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

// NewTask creates a pending task with every pipeline stage pre-seeded as
// pending. A fresh task id is minted when taskID is empty.
func NewTask(taskID, projectID, requirements string) *Task {
	if taskID == "" {
		taskID = uuid.New().String()
	}
	graph := make(map[event.Actor]StageStatus, len(event.Stages))
	for _, stage := range event.Stages {
		graph[stage] = StagePending
	}
	now := time.Now().UTC()
	return &Task{
		ID:           taskID,
		ProjectID:    projectID,
		Requirements: requirements,
		TraceID:      event.NewTraceID(),
		GraphState:   graph,
		Status:       TaskPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SetStage records a stage transition in the graph state.
func (t *Task) SetStage(stage event.Actor, status StageStatus) {
	if t.GraphState == nil {
		t.GraphState = make(map[event.Actor]StageStatus)
	}
	t.GraphState[stage] = status
	t.UpdatedAt = time.Now().UTC()
}

// MarkStatus sets the overall status, recording an error message for
// failures.
func (t *Task) MarkStatus(status TaskStatus, errMsg string) {
	t.Status = status
	if status == TaskFailed && errMsg != "" {
		t.Error = errMsg
	}
	t.UpdatedAt = time.Now().UTC()
}

// AddCost accumulates spend attributed to this task.
func (t *Task) AddCost(amount float64) {
	t.Cost += amount
	t.UpdatedAt = time.Now().UTC()
}
