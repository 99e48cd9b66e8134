package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

func newControlFixture(t *testing.T) (*ControlHandler, *store.TaskStore, *store.Task) {
	t.Helper()
	tasks := store.NewTaskStore(store.NewMemoryStore())
	task := store.NewTask("task-1", "todo-app", "build a todo app")
	require.NoError(t, tasks.Create(context.Background(), task))
	return NewControlHandler(tasks), tasks, task
}

func TestControlCompletesOnDeploySuccess(t *testing.T) {
	h, tasks, task := newControlFixture(t)

	ev := event.NewDeployStatus(task.ID, task.TraceID, event.Artifact{}, &event.DeployStatusPayload{
		Status: event.DeploySucceeded,
		URLs:   []string{"https://todo-app.preview.forgeline.dev"},
	})
	require.NoError(t, h.Handle(context.Background(), ev))

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, stored.Status)
}

func TestControlCompletesOnDeploySkipped(t *testing.T) {
	h, tasks, task := newControlFixture(t)

	ev := event.NewDeployStatus(task.ID, task.TraceID, event.Artifact{},
		&event.DeployStatusPayload{Status: event.DeploySkipped})
	require.NoError(t, h.Handle(context.Background(), ev))

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, stored.Status)
}

func TestControlFailsOnDeployFailure(t *testing.T) {
	h, tasks, task := newControlFixture(t)

	ev := event.NewDeployStatus(task.ID, task.TraceID, event.Artifact{},
		&event.DeployStatusPayload{Status: event.DeployFailed})
	require.NoError(t, h.Handle(context.Background(), ev))

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskFailed, stored.Status)
	assert.Contains(t, stored.Error, "deployment failed")
}

func TestControlFailsTaskOnRoleFailure(t *testing.T) {
	h, tasks, task := newControlFixture(t)

	ev := event.NewAgentFailed(event.ActorCoder, task.ID, task.TraceID, &event.AgentFailedPayload{
		Error:        "model unavailable",
		OriginalType: event.TypeArchitectureProposed,
	})
	require.NoError(t, h.Handle(context.Background(), ev))

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskFailed, stored.Status)
	assert.Contains(t, stored.Error, "coder failed")
	assert.Contains(t, stored.Error, "model unavailable")
}

func TestControlToleratesUnknownTask(t *testing.T) {
	h, _, _ := newControlFixture(t)

	ev := event.NewAgentFailed(event.ActorExplorer, "never-persisted", "trace-1", &event.AgentFailedPayload{
		Error: "workspace missing",
	})
	require.NoError(t, h.Handle(context.Background(), ev),
		"terminal events for unknown tasks must not poison the control queue")
}

func TestControlIgnoresUnexpectedEvents(t *testing.T) {
	h, tasks, task := newControlFixture(t)

	ev := event.NewPlanCreated(task.ID, task.TraceID, event.Artifact{},
		&event.PlanCreatedPayload{PlanRef: "plans/task-1"})
	require.NoError(t, h.Handle(context.Background(), ev))

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskPending, stored.Status, "unexpected events leave the task untouched")
}
