package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
)

const architectSystemPrompt = `You are the architecture agent of a software delivery pipeline.
Given the requirements and the implementation plan, choose a technology stack
and sketch the data model.

Respond with a JSON object:
{
  "stack": ["language/framework", "database", "other components"],
  "models": 3,
  "endpoints": 5,
  "summary": "one paragraph describing the architecture"
}
"models" is the number of data models, "endpoints" the number of API endpoints.`

// Architect turns a plan into a technology stack proposal.
type Architect struct {
	llm    Completer
	params Params
}

// NewArchitect creates the architect role.
func NewArchitect(c Completer, params Params) *Architect {
	return &Architect{llm: c, params: params}
}

// Role implements Runner.
func (a *Architect) Role() event.Actor { return event.ActorArchitect }

// Run implements Runner.
func (a *Architect) Run(ctx context.Context, in Input) (*Result, error) {
	user := fmt.Sprintf("Requirements:\n%s\n\nPlan:\n%s", in.Requirements, in.Context)

	resp, err := a.llm.Complete(ctx, a.params.request(event.ActorArchitect, []llm.Message{
		{Role: "system", Content: architectSystemPrompt},
		{Role: "user", Content: user},
	}))
	if err != nil {
		return nil, fmt.Errorf("architect: %w", err)
	}

	var out struct {
		Stack     []string `json:"stack"`
		Models    int      `json:"models"`
		Endpoints int      `json:"endpoints"`
		Summary   string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("architect: parse proposal: %w", err)
	}
	if len(out.Stack) == 0 {
		return nil, fmt.Errorf("architect: proposal has an empty stack")
	}
	if out.Models < 0 {
		out.Models = 0
	}
	if out.Endpoints < 0 {
		out.Endpoints = 0
	}

	return &Result{
		Summary: out.Summary,
		Payload: &event.ArchitectureProposedPayload{
			Stack:     out.Stack,
			Models:    out.Models,
			Endpoints: out.Endpoints,
		},
		Artifact: in.Artifact,
		Cost:     resp.Cost,
	}, nil
}
