package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/progress"
	"github.com/forgeline/forgeline/store"
)

// stubRunner scripts one role's result and records its inputs.
type stubRunner struct {
	role event.Actor
	res  *Result
	err  error
	got  []Input
}

func (s *stubRunner) Role() event.Actor { return s.role }

func (s *stubRunner) Run(_ context.Context, in Input) (*Result, error) {
	s.got = append(s.got, in)
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

// captureSink records progress entries for assertions.
type captureSink struct {
	mu      sync.Mutex
	entries []progress.Entry
}

func (c *captureSink) Write(_ context.Context, e progress.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureSink) all() []progress.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Entry(nil), c.entries...)
}

func newTaskFixture(t *testing.T) (*store.TaskStore, *store.Task) {
	t.Helper()
	tasks := store.NewTaskStore(store.NewMemoryStore())
	task := store.NewTask("task-1", "todo-app", "build a todo app")
	require.NoError(t, tasks.Create(context.Background(), task))
	return tasks, task
}

func TestProcessEventBuildsNextStageEvent(t *testing.T) {
	tasks, task := newTaskFixture(t)

	stub := &stubRunner{
		role: event.ActorPlanner,
		res: &Result{
			Summary: "the plan",
			Payload: &event.PlanCreatedPayload{PlanRef: "plans/task-1", Milestones: 2, Steps: 3},
			Cost:    0.05,
		},
	}
	a := NewAdapter(stub, tasks)

	incoming := event.NewTaskInitiated(task.ID, task.TraceID, &event.TaskInitiatedPayload{
		ProjectID:    "todo-app",
		Requirements: "build a todo app",
		FirstAgent:   event.ActorPlanner,
	})

	next, err := a.ProcessEvent(context.Background(), incoming)
	require.NoError(t, err)
	require.NotNil(t, next)

	assert.Equal(t, event.TypePlanCreated, next.Type)
	assert.Equal(t, event.ActorPlanner, next.Actor)
	assert.Equal(t, task.ID, next.TaskID)
	assert.Equal(t, task.TraceID, next.TraceID)

	// Runner input came from the event payload and task record.
	require.Len(t, stub.got, 1)
	assert.Equal(t, "build a todo app", stub.got[0].Requirements)
	assert.Equal(t, "todo-app", stub.got[0].ProjectID)

	// Stage and cost were persisted before the next event was returned.
	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StageCompleted, stored.GraphState[event.ActorPlanner])
	assert.Equal(t, 0.05, stored.Cost)
}

func TestProcessEventExtractsCoderInput(t *testing.T) {
	tasks, task := newTaskFixture(t)

	stub := &stubRunner{
		role: event.ActorCoder,
		res: &Result{
			Payload: &event.CodePROpenedPayload{
				Branch: "task/abc", Commit: "abc1234", FilesChanged: 3,
				LinesAdded: 90, CoverageEstimate: 70, Attempt: 1,
			},
			Artifact: event.Artifact{Branch: "task/abc", Commit: "abc1234"},
		},
	}
	a := NewAdapter(stub, tasks)

	incoming := event.NewArchitectureProposed(task.ID, task.TraceID, event.Artifact{},
		&event.ArchitectureProposedPayload{Stack: []string{"Go", "PostgreSQL"}, Models: 2, Endpoints: 4})

	next, err := a.ProcessEvent(context.Background(), incoming)
	require.NoError(t, err)

	require.Len(t, stub.got, 1)
	assert.Equal(t, "build a todo app", stub.got[0].Requirements)
	assert.Contains(t, stub.got[0].Context, "Go, PostgreSQL")

	assert.Equal(t, event.TypeCodePROpened, next.Type)
	assert.Equal(t, "task/abc", next.Branch)
	assert.Equal(t, "abc1234", next.Commit)
}

func TestProcessEventPropagatesAttempt(t *testing.T) {
	tasks, task := newTaskFixture(t)

	stub := &stubRunner{
		role: event.ActorTester,
		res: &Result{
			Payload: &event.TestResultsPayload{Passed: 10, Failed: 1, Coverage: 60, Attempt: 2},
		},
	}
	a := NewAdapter(stub, tasks)

	incoming := event.NewCodePROpened(task.ID, task.TraceID, event.Artifact{Branch: "task/abc"},
		&event.CodePROpenedPayload{
			Branch: "task/abc", Commit: "abc1234", FilesChanged: 1,
			LinesAdded: 10, CoverageEstimate: 50, Attempt: 2,
		})

	_, err := a.ProcessEvent(context.Background(), incoming)
	require.NoError(t, err)

	require.Len(t, stub.got, 1)
	assert.Equal(t, 2, stub.got[0].Attempt)
	assert.Equal(t, "task/abc", stub.got[0].Artifact.Branch)
}

func TestProcessEventExplorerWithoutTaskRecord(t *testing.T) {
	tasks := store.NewTaskStore(store.NewMemoryStore())

	stub := &stubRunner{
		role: event.ActorExplorer,
		res: &Result{
			Payload: &event.ExplorerScanCompletedPayload{Languages: []string{"Go"}},
		},
	}
	a := NewAdapter(stub, tasks)

	incoming := event.NewExplorerScanRequest("scan-1", "trace-1",
		&event.ExplorerScanRequestPayload{RepoPath: "/workspace", Reason: "file change"})

	next, err := a.ProcessEvent(context.Background(), incoming)
	require.NoError(t, err, "scan requests need no task record")

	require.Len(t, stub.got, 1)
	assert.Equal(t, "/workspace", stub.got[0].Workspace)
	assert.Equal(t, event.TypeExplorerScanCompleted, next.Type)
}

func TestProcessEventRejectsForeignEventType(t *testing.T) {
	tasks, task := newTaskFixture(t)

	stub := &stubRunner{role: event.ActorPlanner}
	a := NewAdapter(stub, tasks)

	// Deploy status terminates a chain; no role adapter consumes it.
	incoming := event.NewDeployStatus(task.ID, task.TraceID, event.Artifact{},
		&event.DeployStatusPayload{Status: event.DeploySucceeded})

	_, err := a.ProcessEvent(context.Background(), incoming)
	require.Error(t, err)
	assert.Empty(t, stub.got)
}

func TestProcessDirectReportsProgress(t *testing.T) {
	tasks, _ := newTaskFixture(t)

	sink := &captureSink{}
	reporter := progress.NewReporter(8, []progress.Sink{sink})

	stub := &stubRunner{
		role: event.ActorPlanner,
		res:  &Result{Summary: "the plan\nwith detail", Payload: &event.PlanCreatedPayload{PlanRef: "p"}},
	}
	a := NewAdapter(stub, tasks, WithReporter(reporter))

	res, err := a.ProcessDirect(context.Background(), Input{TaskID: "task-1", TraceID: "trace-1"})
	require.NoError(t, err)
	assert.Equal(t, "the plan\nwith detail", res.Summary)

	reporter.Close()
	entries := sink.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "started", entries[0].Message)
	assert.Equal(t, "completed: the plan", entries[1].Message)

	// Direct mode leaves task state to the executor.
	stored, err := tasks.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, store.StagePending, stored.GraphState[event.ActorPlanner])
	assert.Zero(t, stored.Cost)
}

func TestProcessDirectReportsFailure(t *testing.T) {
	tasks, _ := newTaskFixture(t)

	sink := &captureSink{}
	reporter := progress.NewReporter(8, []progress.Sink{sink})

	stub := &stubRunner{role: event.ActorCoder, err: errors.New("model unavailable")}
	a := NewAdapter(stub, tasks, WithReporter(reporter))

	_, err := a.ProcessDirect(context.Background(), Input{TaskID: "task-1", TraceID: "trace-1"})
	require.Error(t, err)

	reporter.Close()
	entries := sink.all()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Message, "failed: model unavailable")
}
