package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
)

const reviewerSystemPrompt = `You are the review agent of a software delivery pipeline.
Given the requirements, the change set, and the test results, decide whether
the change ships. Score each axis from 0 to 10.

Respond with a JSON object:
{
  "decision": "approved" | "rejected" | "needs_changes",
  "scores": {"correctness": 8.5, "maintainability": 7.0, "security": 9.0},
  "summary": "one paragraph justifying the decision"
}`

// Reviewer scores a change set and issues the ship decision.
type Reviewer struct {
	llm    Completer
	params Params
}

// NewReviewer creates the reviewer role.
func NewReviewer(c Completer, params Params) *Reviewer {
	return &Reviewer{llm: c, params: params}
}

// Role implements Runner.
func (r *Reviewer) Role() event.Actor { return event.ActorReviewer }

// Run implements Runner.
func (r *Reviewer) Run(ctx context.Context, in Input) (*Result, error) {
	user := fmt.Sprintf("Requirements:\n%s\n\nChange set and test results:\n%s",
		in.Requirements, in.Context)

	resp, err := r.llm.Complete(ctx, r.params.request(event.ActorReviewer, []llm.Message{
		{Role: "system", Content: reviewerSystemPrompt},
		{Role: "user", Content: user},
	}))
	if err != nil {
		return nil, fmt.Errorf("reviewer: %w", err)
	}

	var out struct {
		Decision string `json:"decision"`
		Scores   struct {
			Correctness     float64 `json:"correctness"`
			Maintainability float64 `json:"maintainability"`
			Security        float64 `json:"security"`
		} `json:"scores"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("reviewer: parse decision: %w", err)
	}

	payload := &event.ReviewDecisionPayload{
		Decision: event.Decision(out.Decision),
		Scores: event.ReviewScores{
			Correctness:     out.Scores.Correctness,
			Maintainability: out.Scores.Maintainability,
			Security:        out.Scores.Security,
		},
		Summary: out.Summary,
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("reviewer: %w", err)
	}

	return &Result{
		Summary:  out.Summary,
		Payload:  payload,
		Artifact: in.Artifact,
		Cost:     resp.Cost,
	}, nil
}
