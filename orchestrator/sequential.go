package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/forgeline/agent"
	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

// Terminal business outcomes of a sequential run. They are recorded on the
// task, never panics.
var (
	// ErrReworkExhausted means the coder⇄tester loop ran out of attempts.
	ErrReworkExhausted = errors.New("rework budget exhausted")

	// ErrReviewRejected means the reviewer did not approve the change.
	ErrReviewRejected = errors.New("review did not approve the change")
)

// reworkState names the states of the coder⇄tester loop.
type reworkState int

const (
	stateFirstAttempt reworkState = iota
	stateReworking
	stateExhausted
)

// SequentialConfig tunes the sequential executor.
type SequentialConfig struct {
	// MaxCodeAttempts bounds the coder⇄tester rework loop. Minimum 1.
	MaxCodeAttempts int

	// PhasePause is an optional pause between phases. Zero disables it;
	// correctness never depends on it.
	PhasePause time.Duration
}

// DefaultSequentialConfig returns the production defaults.
func DefaultSequentialConfig() SequentialConfig {
	return SequentialConfig{MaxCodeAttempts: 2}
}

// SequentialExecutor drives a task through the fixed phase order in-process:
// planning, architecting, coding⇄testing, reviewing, deploying. Every phase
// transition is persisted into the task's graph state before the next phase
// starts.
type SequentialExecutor struct {
	tasks    *store.TaskStore
	adapters map[event.Actor]*agent.Adapter
	cfg      SequentialConfig
	logger   *slog.Logger
}

// SequentialOption configures a SequentialExecutor.
type SequentialOption func(*SequentialExecutor)

// WithSequentialLogger sets the logger.
func WithSequentialLogger(logger *slog.Logger) SequentialOption {
	return func(e *SequentialExecutor) { e.logger = logger }
}

// NewSequentialExecutor creates an executor over the given stage adapters.
func NewSequentialExecutor(tasks *store.TaskStore, adapters []*agent.Adapter, cfg SequentialConfig, opts ...SequentialOption) *SequentialExecutor {
	if cfg.MaxCodeAttempts < 1 {
		cfg.MaxCodeAttempts = 1
	}

	byRole := make(map[event.Actor]*agent.Adapter, len(adapters))
	for _, a := range adapters {
		byRole[a.Role()] = a
	}

	e := &SequentialExecutor{
		tasks:    tasks,
		adapters: byRole,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the task to a terminal status. The returned TaskResult is
// never nil once the task record exists; business failures return both the
// failed result and a sentinel-wrapped error.
func (e *SequentialExecutor) Execute(ctx context.Context, task *store.Task) (*TaskResult, error) {
	if err := e.tasks.MarkStatus(ctx, task.ID, store.TaskRunning, ""); err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	base := agent.Input{
		TaskID:       task.ID,
		ProjectID:    task.ProjectID,
		TraceID:      task.TraceID,
		Requirements: task.Requirements,
	}

	// Planning.
	planRes, err := e.runStage(ctx, task.ID, event.ActorPlanner, base)
	if err != nil {
		return e.result(ctx, task.ID, nil), err
	}
	e.pause(ctx)

	// Architecting.
	archIn := base
	archIn.Context = agent.ContextFrom(planRes.Payload)
	archRes, err := e.runStage(ctx, task.ID, event.ActorArchitect, archIn)
	if err != nil {
		return e.result(ctx, task.ID, nil), err
	}
	e.pause(ctx)

	// Coding ⇄ testing.
	codeRes, testRes, err := e.reworkLoop(ctx, task.ID, base, archRes)
	if err != nil {
		return e.result(ctx, task.ID, nil), err
	}
	e.pause(ctx)

	// Reviewing.
	reviewIn := base
	reviewIn.Context = agent.ContextFrom(codeRes.Payload) + " " + agent.ContextFrom(testRes.Payload)
	reviewIn.Artifact = codeRes.Artifact
	reviewRes, err := e.runStage(ctx, task.ID, event.ActorReviewer, reviewIn)
	if err != nil {
		return e.result(ctx, task.ID, nil), err
	}

	decision, ok := reviewRes.Payload.(*event.ReviewDecisionPayload)
	if !ok {
		err := fmt.Errorf("reviewer produced %T, want review decision", reviewRes.Payload)
		e.failStage(ctx, task.ID, event.ActorReviewer, err)
		return e.result(ctx, task.ID, nil), err
	}
	if decision.Decision != event.DecisionApproved {
		err := fmt.Errorf("review decision %s: %w", decision.Decision, ErrReviewRejected)
		e.failStage(ctx, task.ID, event.ActorReviewer, err)
		return e.result(ctx, task.ID, nil), err
	}
	e.pause(ctx)

	// Deploying.
	deployIn := base
	deployIn.Context = agent.ContextFrom(reviewRes.Payload)
	deployIn.Artifact = codeRes.Artifact
	deployRes, err := e.runStage(ctx, task.ID, event.ActorDeployer, deployIn)
	if err != nil {
		return e.result(ctx, task.ID, nil), err
	}

	var urls []string
	if status, ok := deployRes.Payload.(*event.DeployStatusPayload); ok {
		urls = status.URLs
	}

	if err := e.tasks.MarkStatus(ctx, task.ID, store.TaskCompleted, ""); err != nil {
		return nil, fmt.Errorf("mark task completed: %w", err)
	}
	tasksCompleted.Inc()

	e.logger.Info("Task completed",
		"task_id", task.ID,
		"trace_id", task.TraceID,
		"urls", urls)

	return e.result(ctx, task.ID, urls), nil
}

// reworkLoop runs the coder⇄tester cycle until the tests are green or the
// attempt budget runs out. Every rework entry is visible in the coder's
// graph state before the next attempt starts.
func (e *SequentialExecutor) reworkLoop(ctx context.Context, taskID string, base agent.Input, archRes *agent.Result) (*agent.Result, *agent.Result, error) {
	archContext := agent.ContextFrom(archRes.Payload)

	state := stateFirstAttempt
	attempt := 1
	feedback := ""

	for {
		if state == stateReworking {
			if err := e.tasks.SetStage(ctx, taskID, event.ActorCoder, store.StageReworking); err != nil {
				return nil, nil, fmt.Errorf("record coder rework: %w", err)
			}
		}

		codeIn := base
		codeIn.Context = archContext
		codeIn.Attempt = attempt
		codeIn.Feedback = feedback
		codeIn.Artifact = archRes.Artifact
		codeRes, err := e.runStage(ctx, taskID, event.ActorCoder, codeIn)
		if err != nil {
			return nil, nil, err
		}
		e.pause(ctx)

		testIn := base
		testIn.Context = agent.ContextFrom(codeRes.Payload)
		testIn.Attempt = attempt
		testIn.Artifact = codeRes.Artifact
		testRes, err := e.runStage(ctx, taskID, event.ActorTester, testIn)
		if err != nil {
			return nil, nil, err
		}

		verdict, ok := testRes.Payload.(*event.TestResultsPayload)
		if !ok {
			err := fmt.Errorf("tester produced %T, want test results", testRes.Payload)
			e.failStage(ctx, taskID, event.ActorTester, err)
			return nil, nil, err
		}

		if verdict.Green() {
			return codeRes, testRes, nil
		}

		if attempt >= e.cfg.MaxCodeAttempts {
			state = stateExhausted
			err := fmt.Errorf("tests still failing after %d coding attempts: %w", attempt, ErrReworkExhausted)
			e.setStageLogged(ctx, taskID, event.ActorCoder, store.StageFailed)
			e.failStage(ctx, taskID, event.ActorTester, err)
			return nil, nil, err
		}

		e.logger.Info("Tests failed, reworking",
			"task_id", taskID,
			"attempt", attempt,
			"failed", verdict.Failed)
		feedback = verdict.Feedback
		attempt++
		state = stateReworking
		e.pause(ctx)
	}
}

// runStage runs one phase and persists its transition: completed plus cost
// on success, failed plus terminal task status on error.
func (e *SequentialExecutor) runStage(ctx context.Context, taskID string, role event.Actor, in agent.Input) (*agent.Result, error) {
	ad, ok := e.adapters[role]
	if !ok {
		err := fmt.Errorf("no adapter for %s stage", role)
		e.failStage(ctx, taskID, role, err)
		return nil, err
	}

	res, err := ad.ProcessDirect(ctx, in)
	if err != nil {
		wrapped := fmt.Errorf("%s phase: %w", role, err)
		e.failStage(ctx, taskID, role, wrapped)
		return nil, wrapped
	}

	if err := e.tasks.SetStage(ctx, taskID, role, store.StageCompleted); err != nil {
		return nil, fmt.Errorf("record %s stage: %w", role, err)
	}
	if err := e.tasks.AddCost(ctx, taskID, res.Cost); err != nil {
		return nil, fmt.Errorf("record %s cost: %w", role, err)
	}
	return res, nil
}

// failStage persists the failed stage and the terminal task status. Both
// writes are best-effort: the causing error is what the caller reports.
func (e *SequentialExecutor) failStage(ctx context.Context, taskID string, role event.Actor, cause error) {
	tasksFailed.WithLabelValues(string(role)).Inc()
	e.setStageLogged(ctx, taskID, role, store.StageFailed)
	if err := e.tasks.MarkStatus(ctx, taskID, store.TaskFailed, cause.Error()); err != nil {
		e.logger.Warn("Failed to record failed task status",
			"task_id", taskID, "stage", role, "error", err)
	}
}

func (e *SequentialExecutor) setStageLogged(ctx context.Context, taskID string, role event.Actor, status store.StageStatus) {
	if err := e.tasks.SetStage(ctx, taskID, role, status); err != nil {
		e.logger.Warn("Failed to record stage status",
			"task_id", taskID, "stage", role, "status", status, "error", err)
	}
}

// result snapshots the persisted task into the caller-facing shape.
func (e *SequentialExecutor) result(ctx context.Context, taskID string, urls []string) *TaskResult {
	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		e.logger.Warn("Failed to load task for result", "task_id", taskID, "error", err)
		return &TaskResult{TaskID: taskID}
	}
	return &TaskResult{
		TaskID: t.ID,
		Status: t.Status,
		Cost:   t.Cost,
		URLs:   urls,
		Error:  t.Error,
	}
}

// pause sleeps for the configured inter-phase pause, if any.
func (e *SequentialExecutor) pause(ctx context.Context) {
	if e.cfg.PhasePause <= 0 {
		return
	}
	timer := time.NewTimer(e.cfg.PhasePause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
