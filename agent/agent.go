// Package agent implements the pipeline roles. Each role is a Runner that
// turns a typed input into a typed payload for the next stage; the Adapter
// wires runners into both execution modes without the role logic knowing
// which mode it runs under.
package agent

import (
	"context"
	"strings"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
	"github.com/forgeline/forgeline/model"
)

// Input carries everything a role needs for one run. Fields irrelevant to a
// role stay zero.
type Input struct {
	TaskID    string
	ProjectID string
	TraceID   string

	// Requirements is the original task description.
	Requirements string

	// Context summarizes the upstream stage's output.
	Context string

	// Feedback carries test failure detail into a rework coding attempt.
	Feedback string

	// Attempt is the 1-based coding/testing attempt number.
	Attempt int

	// Workspace is the repository root on disk, when one exists.
	Workspace string

	// Artifact is the code state the run starts from.
	Artifact event.Artifact
}

// Result is a role's structured output.
type Result struct {
	// Summary is a one-paragraph human-readable account of the run.
	Summary string

	// Payload is the validated payload for the event this role emits.
	Payload event.Payload

	// Artifact is the code state after the run.
	Artifact event.Artifact

	// Cost is the USD spend of the run's LLM calls, zero for LLM-free roles.
	Cost float64
}

// Runner is one pipeline role. Run must be side-effect free with respect to
// task state; persistence is the Adapter's concern.
type Runner interface {
	Role() event.Actor
	Run(ctx context.Context, in Input) (*Result, error)
}

// Completer is the LLM capability the role runners consume. *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Params tunes the LLM calls shared by every LLM-backed runner.
type Params struct {
	// Temperature of the completion. Zero leaves the endpoint default.
	Temperature float64

	// MaxTokens caps the completion length. Zero leaves the endpoint default.
	MaxTokens int
}

// request builds the completion request for a role.
func (p Params) request(role event.Actor, messages []llm.Message) llm.Request {
	req := llm.Request{
		Capability: model.CapabilityForRole(string(role)).String(),
		Messages:   messages,
		MaxTokens:  p.MaxTokens,
	}
	if p.Temperature > 0 {
		t := p.Temperature
		req.Temperature = &t
	}
	return req
}

// firstLine returns the first non-empty line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
