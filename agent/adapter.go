package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/progress"
	"github.com/forgeline/forgeline/store"
)

// Adapter binds a role runner to the pipeline. Both execution modes flow
// through it: the sequential executor calls ProcessDirect, the event
// consumers call ProcessEvent. The runner itself never learns which.
type Adapter struct {
	runner    Runner
	tasks     *store.TaskStore
	reporter  *progress.Reporter
	logger    *slog.Logger
	workspace string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithReporter attaches a progress reporter.
func WithReporter(r *progress.Reporter) AdapterOption {
	return func(a *Adapter) { a.reporter = r }
}

// WithAdapterLogger sets the logger.
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = logger }
}

// WithWorkspace sets the workspace root handed to runners when the incoming
// event does not carry one.
func WithWorkspace(root string) AdapterOption {
	return func(a *Adapter) { a.workspace = root }
}

// NewAdapter creates an adapter for one role.
func NewAdapter(runner Runner, tasks *store.TaskStore, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		runner: runner,
		tasks:  tasks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Role returns the wrapped runner's role.
func (a *Adapter) Role() event.Actor { return a.runner.Role() }

// ProcessDirect runs the role once, reporting progress around the run.
// Task state stays untouched: in direct mode the sequential executor owns
// every state transition.
func (a *Adapter) ProcessDirect(ctx context.Context, in Input) (*Result, error) {
	role := a.runner.Role()
	a.report(in.TaskID, in.TraceID, role, "started")

	res, err := a.runner.Run(ctx, in)
	if err != nil {
		a.report(in.TaskID, in.TraceID, role, "failed: "+err.Error())
		return nil, err
	}

	a.report(in.TaskID, in.TraceID, role, "completed: "+firstLine(res.Summary))
	return res, nil
}

// ProcessEvent runs the role for one incoming event and builds the event for
// the next stage. The role's graph state and accumulated cost are persisted
// before the next event is returned.
func (a *Adapter) ProcessEvent(ctx context.Context, ev *event.Event) (*event.Event, error) {
	in, err := a.inputFromEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	res, err := a.ProcessDirect(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := a.persistOutcome(ctx, ev.TaskID, res); err != nil {
		return nil, err
	}

	return a.nextEvent(ev, res)
}

// persistOutcome records the stage completion and the run's cost on the
// task. Explorer runs have no pipeline stage and may have no task record.
func (a *Adapter) persistOutcome(ctx context.Context, taskID string, res *Result) error {
	role := a.runner.Role()
	if !isStage(role) {
		return nil
	}

	if err := a.tasks.SetStage(ctx, taskID, role, store.StageCompleted); err != nil {
		return fmt.Errorf("record %s stage: %w", role, err)
	}
	if err := a.tasks.AddCost(ctx, taskID, res.Cost); err != nil {
		return fmt.Errorf("record %s cost: %w", role, err)
	}
	return nil
}

// inputFromEvent extracts the role's input from its trigger event. Roles
// past the planner load the task record for the original requirements.
func (a *Adapter) inputFromEvent(ctx context.Context, ev *event.Event) (Input, error) {
	in := Input{
		TaskID:    ev.TaskID,
		TraceID:   ev.TraceID,
		Workspace: a.workspace,
		Artifact: event.Artifact{
			Repo:   ev.Repo,
			Branch: ev.Branch,
			Commit: ev.Commit,
		},
	}

	task, err := a.tasks.Get(ctx, ev.TaskID)
	switch {
	case err == nil:
		in.ProjectID = task.ProjectID
		in.Requirements = task.Requirements
	case errors.Is(err, store.ErrNotFound) && a.runner.Role() == event.ActorExplorer:
		// Scan requests may arrive for workspaces with no task record.
	default:
		return Input{}, fmt.Errorf("load task %s: %w", ev.TaskID, err)
	}

	switch p := ev.Payload.(type) {
	case *event.TaskInitiatedPayload:
		in.ProjectID = p.ProjectID
		in.Requirements = p.Requirements
	case *event.PlanCreatedPayload:
		in.Context = ContextFrom(p)
	case *event.ArchitectureProposedPayload:
		in.Context = ContextFrom(p)
	case *event.CodePROpenedPayload:
		in.Context = ContextFrom(p)
		in.Attempt = p.Attempt
	case *event.TestResultsPayload:
		in.Context = ContextFrom(p)
		in.Attempt = p.Attempt
	case *event.ReviewDecisionPayload:
		in.Context = ContextFrom(p)
	case *event.ExplorerScanRequestPayload:
		in.Workspace = p.RepoPath
		in.Context = p.Reason
	default:
		return Input{}, fmt.Errorf("%s cannot process %s events", a.runner.Role(), ev.Type)
	}

	return in, nil
}

// ContextFrom summarizes a stage payload as input context for the next
// role's prompt. Both execution modes use it so prompts stay identical
// across modes.
func ContextFrom(p event.Payload) string {
	switch p := p.(type) {
	case *event.PlanCreatedPayload:
		return p.Summary
	case *event.ArchitectureProposedPayload:
		return fmt.Sprintf("Stack: %s. %d data models, %d endpoints.",
			strings.Join(p.Stack, ", "), p.Models, p.Endpoints)
	case *event.CodePROpenedPayload:
		return fmt.Sprintf("Branch %s, commit %s: %d files changed, %d lines added, estimated coverage %.1f%%.",
			p.Branch, p.Commit, p.FilesChanged, p.LinesAdded, p.CoverageEstimate)
	case *event.TestResultsPayload:
		return fmt.Sprintf("Tests: %d passed, %d failed, %.1f%% coverage. %s",
			p.Passed, p.Failed, p.Coverage, p.Feedback)
	case *event.ReviewDecisionPayload:
		return fmt.Sprintf("Review %s: %s", p.Decision, p.Summary)
	}
	return ""
}

// nextEvent wraps the run's payload in the envelope for the next stage.
func (a *Adapter) nextEvent(ev *event.Event, res *Result) (*event.Event, error) {
	switch p := res.Payload.(type) {
	case *event.PlanCreatedPayload:
		return event.NewPlanCreated(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.ArchitectureProposedPayload:
		return event.NewArchitectureProposed(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.CodePROpenedPayload:
		return event.NewCodePROpened(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.TestResultsPayload:
		return event.NewTestResults(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.ReviewDecisionPayload:
		return event.NewReviewDecision(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.DeployStatusPayload:
		return event.NewDeployStatus(ev.TaskID, ev.TraceID, res.Artifact, p), nil
	case *event.ExplorerScanCompletedPayload:
		return event.NewExplorerScanCompleted(ev.TaskID, ev.TraceID, p), nil
	}
	return nil, fmt.Errorf("no event mapping for %T", res.Payload)
}

// report emits a progress entry when a reporter is attached.
func (a *Adapter) report(taskID, traceID string, actor event.Actor, message string) {
	if a.reporter == nil {
		return
	}
	a.reporter.Report(taskID, traceID, actor, message)
}

// isStage reports whether the role appears in task graph state.
func isStage(role event.Actor) bool {
	for _, stage := range event.Stages {
		if stage == role {
			return true
		}
	}
	return false
}
