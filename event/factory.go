package event

import (
	"time"

	"github.com/google/uuid"
)

// DefaultBranch is assumed when a transition has no branch context yet.
const DefaultBranch = "main"

// Artifact identifies the code state an event refers to. Fields are empty
// strings until the pipeline knows them.
type Artifact struct {
	Repo   string
	Branch string
	Commit string
}

// NewTraceID mints the identifier correlating every event of one task
// execution. Generated once at initiation, propagated unchanged by every
// hop.
func NewTraceID() string {
	return uuid.New().String()
}

// newEvent builds an envelope with the fields every constructor shares.
func newEvent(actor Actor, eventType, taskID, traceID string, art Artifact, payload Payload) *Event {
	branch := art.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	return &Event{
		Version:   Version,
		TraceID:   traceID,
		TaskID:    taskID,
		Actor:     actor,
		Type:      eventType,
		Repo:      art.Repo,
		Branch:    branch,
		Commit:    art.Commit,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewTaskInitiated is published by the orchestrator to start the chain.
func NewTaskInitiated(taskID, traceID string, p *TaskInitiatedPayload) *Event {
	return newEvent(ActorOrchestrator, TypeTaskInitiated, taskID, traceID, Artifact{}, p)
}

// NewPlanCreated is published by the planner when the plan is ready.
func NewPlanCreated(taskID, traceID string, art Artifact, p *PlanCreatedPayload) *Event {
	return newEvent(ActorPlanner, TypePlanCreated, taskID, traceID, art, p)
}

// NewArchitectureProposed is published by the architect.
func NewArchitectureProposed(taskID, traceID string, art Artifact, p *ArchitectureProposedPayload) *Event {
	return newEvent(ActorArchitect, TypeArchitectureProposed, taskID, traceID, art, p)
}

// NewCodePROpened is published by the coder after a coding attempt.
func NewCodePROpened(taskID, traceID string, art Artifact, p *CodePROpenedPayload) *Event {
	return newEvent(ActorCoder, TypeCodePROpened, taskID, traceID, art, p)
}

// NewTestResults is published by the tester.
func NewTestResults(taskID, traceID string, art Artifact, p *TestResultsPayload) *Event {
	return newEvent(ActorTester, TypeTestResults, taskID, traceID, art, p)
}

// NewReviewDecision is published by the reviewer.
func NewReviewDecision(taskID, traceID string, art Artifact, p *ReviewDecisionPayload) *Event {
	return newEvent(ActorReviewer, TypeReviewDecision, taskID, traceID, art, p)
}

// NewDeployStatus is published by the deployer; it terminates a successful
// chain.
func NewDeployStatus(taskID, traceID string, art Artifact, p *DeployStatusPayload) *Event {
	return newEvent(ActorDeployer, TypeDeployStatus, taskID, traceID, art, p)
}

// NewExplorerScanRequest asks the explorer to scan a workspace.
func NewExplorerScanRequest(taskID, traceID string, p *ExplorerScanRequestPayload) *Event {
	return newEvent(ActorOrchestrator, TypeExplorerScanRequest, taskID, traceID, Artifact{}, p)
}

// NewExplorerScanCompleted reports a finished workspace scan.
func NewExplorerScanCompleted(taskID, traceID string, p *ExplorerScanCompletedPayload) *Event {
	return newEvent(ActorExplorer, TypeExplorerScanCompleted, taskID, traceID, Artifact{}, p)
}

// NewAgentFailed converts a processing failure of the given actor into a
// first-class event carrying the error string and the event type that was
// being processed when the failure occurred.
func NewAgentFailed(actor Actor, taskID, traceID string, p *AgentFailedPayload) *Event {
	return newEvent(actor, FailureType(actor), taskID, traceID, Artifact{}, p)
}
