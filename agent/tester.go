package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
)

const testerSystemPrompt = `You are the testing agent of a software delivery pipeline.
Given the requirements and a description of the change set, assess the change
and report the test outcome. When tests fail, the feedback must be concrete
enough for the coder to act on.

Respond with a JSON object:
{
  "passed": 24,
  "failed": 0,
  "coverage": 81.2,
  "feedback": "detail about failures, empty when everything passes"
}`

// Tester assesses a coding attempt and reports the test verdict.
type Tester struct {
	llm    Completer
	params Params
}

// NewTester creates the tester role.
func NewTester(c Completer, params Params) *Tester {
	return &Tester{llm: c, params: params}
}

// Role implements Runner.
func (t *Tester) Role() event.Actor { return event.ActorTester }

// Run implements Runner.
func (t *Tester) Run(ctx context.Context, in Input) (*Result, error) {
	attempt := in.Attempt
	if attempt < 1 {
		attempt = 1
	}

	user := fmt.Sprintf("Requirements:\n%s\n\nChange set (attempt %d):\n%s",
		in.Requirements, attempt, in.Context)

	resp, err := t.llm.Complete(ctx, t.params.request(event.ActorTester, []llm.Message{
		{Role: "system", Content: testerSystemPrompt},
		{Role: "user", Content: user},
	}))
	if err != nil {
		return nil, fmt.Errorf("tester: %w", err)
	}

	var out struct {
		Passed   int     `json:"passed"`
		Failed   int     `json:"failed"`
		Coverage float64 `json:"coverage"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("tester: parse verdict: %w", err)
	}
	if out.Passed < 0 {
		out.Passed = 0
	}
	if out.Failed < 0 {
		out.Failed = 0
	}
	if out.Coverage < 0 {
		out.Coverage = 0
	}
	if out.Coverage > 100 {
		out.Coverage = 100
	}

	summary := fmt.Sprintf("%d passed, %d failed, %.1f%% coverage", out.Passed, out.Failed, out.Coverage)

	return &Result{
		Summary: summary,
		Payload: &event.TestResultsPayload{
			Passed:   out.Passed,
			Failed:   out.Failed,
			Coverage: out.Coverage,
			Feedback: out.Feedback,
			Attempt:  attempt,
		},
		Artifact: in.Artifact,
		Cost:     resp.Cost,
	}, nil
}
