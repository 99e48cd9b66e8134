package event

import (
	"fmt"
)

// Payload is the role-specific body carried by an event envelope. Every
// payload names the event type whose schema it satisfies and validates its
// own structure before the carrying event is considered well-formed.
type Payload interface {
	// Schema returns the event type this payload belongs to.
	Schema() string

	// Validate checks structural invariants of the payload.
	Validate() error
}

// Decision is the reviewer's verdict.
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionRejected     Decision = "rejected"
	DecisionNeedsChanges Decision = "needs_changes"
)

// DeployState is the deployer's outcome.
type DeployState string

const (
	DeploySucceeded DeployState = "succeeded"
	DeployFailed    DeployState = "failed"
	DeploySkipped   DeployState = "skipped"
)

// TaskInitiatedPayload starts a task's event chain. FirstAgent names the
// role expected to react first.
type TaskInitiatedPayload struct {
	ProjectID    string `json:"project_id"`
	Requirements string `json:"requirements"`
	FirstAgent   Actor  `json:"first_agent"`
}

func (p *TaskInitiatedPayload) Schema() string { return TypeTaskInitiated }

func (p *TaskInitiatedPayload) Validate() error {
	if p.Requirements == "" {
		return fmt.Errorf("requirements is required")
	}
	if !p.FirstAgent.Valid() {
		return fmt.Errorf("unknown first_agent: %q", p.FirstAgent)
	}
	return nil
}

// PlanCreatedPayload summarizes the planner's output. The full plan text is
// referenced by PlanRef; only counts travel on the wire.
type PlanCreatedPayload struct {
	PlanRef    string `json:"plan_ref"`
	Milestones int    `json:"milestones"`
	Steps      int    `json:"steps"`
	Summary    string `json:"summary,omitempty"`
}

func (p *PlanCreatedPayload) Schema() string { return TypePlanCreated }

func (p *PlanCreatedPayload) Validate() error {
	if p.PlanRef == "" {
		return fmt.Errorf("plan_ref is required")
	}
	if p.Milestones < 0 || p.Steps < 0 {
		return fmt.Errorf("milestone and step counts must be non-negative")
	}
	return nil
}

// ArchitectureProposedPayload carries the architect's tech-stack choices.
type ArchitectureProposedPayload struct {
	Stack     []string `json:"stack"`
	Models    int      `json:"models"`
	Endpoints int      `json:"endpoints"`
	DesignRef string   `json:"design_ref,omitempty"`
}

func (p *ArchitectureProposedPayload) Schema() string { return TypeArchitectureProposed }

func (p *ArchitectureProposedPayload) Validate() error {
	if len(p.Stack) == 0 {
		return fmt.Errorf("stack must not be empty")
	}
	if p.Models < 0 || p.Endpoints < 0 {
		return fmt.Errorf("model and endpoint counts must be non-negative")
	}
	return nil
}

// CodePROpenedPayload describes the code artifact produced by a coding
// attempt.
type CodePROpenedPayload struct {
	Branch           string  `json:"branch"`
	Commit           string  `json:"commit"`
	FilesChanged     int     `json:"files_changed"`
	LinesAdded       int     `json:"lines_added"`
	CoverageEstimate float64 `json:"coverage_estimate"`
	Attempt          int     `json:"attempt"`
}

func (p *CodePROpenedPayload) Schema() string { return TypeCodePROpened }

func (p *CodePROpenedPayload) Validate() error {
	if p.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if p.FilesChanged < 0 || p.LinesAdded < 0 {
		return fmt.Errorf("file and line counts must be non-negative")
	}
	if p.CoverageEstimate < 0 || p.CoverageEstimate > 100 {
		return fmt.Errorf("coverage_estimate must be within [0, 100]")
	}
	if p.Attempt < 1 {
		return fmt.Errorf("attempt must be at least 1")
	}
	return nil
}

// TestResultsPayload reports a test run. Feedback carries failure detail
// handed back to the coder on rework.
type TestResultsPayload struct {
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Coverage float64 `json:"coverage"`
	Feedback string  `json:"feedback,omitempty"`
	Attempt  int     `json:"attempt"`
}

func (p *TestResultsPayload) Schema() string { return TypeTestResults }

func (p *TestResultsPayload) Validate() error {
	if p.Passed < 0 || p.Failed < 0 {
		return fmt.Errorf("pass and fail counts must be non-negative")
	}
	if p.Coverage < 0 || p.Coverage > 100 {
		return fmt.Errorf("coverage must be within [0, 100]")
	}
	return nil
}

// Green reports whether the run had no failures.
func (p *TestResultsPayload) Green() bool { return p.Failed == 0 }

// ReviewScores is the reviewer's numeric breakdown.
type ReviewScores struct {
	Correctness     float64 `json:"correctness"`
	Maintainability float64 `json:"maintainability"`
	Security        float64 `json:"security"`
}

// ReviewDecisionPayload carries the review verdict and score breakdown.
type ReviewDecisionPayload struct {
	Decision Decision     `json:"decision"`
	Scores   ReviewScores `json:"scores"`
	Summary  string       `json:"summary,omitempty"`
}

func (p *ReviewDecisionPayload) Schema() string { return TypeReviewDecision }

func (p *ReviewDecisionPayload) Validate() error {
	switch p.Decision {
	case DecisionApproved, DecisionRejected, DecisionNeedsChanges:
		return nil
	}
	return fmt.Errorf("unknown decision: %q", p.Decision)
}

// DeployStatusPayload reports the deployment outcome.
type DeployStatusPayload struct {
	Status      DeployState `json:"status"`
	URLs        []string    `json:"urls,omitempty"`
	Environment string      `json:"environment,omitempty"`
}

func (p *DeployStatusPayload) Schema() string { return TypeDeployStatus }

func (p *DeployStatusPayload) Validate() error {
	switch p.Status {
	case DeploySucceeded, DeployFailed, DeploySkipped:
		return nil
	}
	return fmt.Errorf("unknown deploy status: %q", p.Status)
}

// ExplorerScanRequestPayload asks the explorer to scan a workspace.
type ExplorerScanRequestPayload struct {
	RepoPath string `json:"repo_path"`
	Reason   string `json:"reason,omitempty"`
}

func (p *ExplorerScanRequestPayload) Schema() string { return TypeExplorerScanRequest }

func (p *ExplorerScanRequestPayload) Validate() error {
	if p.RepoPath == "" {
		return fmt.Errorf("repo_path is required")
	}
	return nil
}

// ExplorerScanCompletedPayload summarizes a workspace scan.
type ExplorerScanCompletedPayload struct {
	Languages  []string `json:"languages,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Tooling    []string `json:"tooling,omitempty"`
}

func (p *ExplorerScanCompletedPayload) Schema() string { return TypeExplorerScanCompleted }

func (p *ExplorerScanCompletedPayload) Validate() error { return nil }

// AgentFailedPayload converts a processing failure into a first-class event
// so downstream observers can react without crashing the consumer loop.
type AgentFailedPayload struct {
	Error        string `json:"error"`
	OriginalType string `json:"original_type,omitempty"`
}

func (p *AgentFailedPayload) Schema() string {
	// Failure payloads share one shape across roles; the concrete event type
	// is derived from the failing actor at construction time.
	return "failed"
}

func (p *AgentFailedPayload) Validate() error {
	if p.Error == "" {
		return fmt.Errorf("error is required")
	}
	return nil
}
