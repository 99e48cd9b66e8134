package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
	"github.com/forgeline/forgeline/store"
)

const plannerSystemPrompt = `You are the planning agent of a software delivery pipeline.
Decompose the requirements into milestones and concrete implementation steps.

Respond with a JSON object:
{
  "summary": "one paragraph describing the plan",
  "milestones": ["milestone 1", "milestone 2"],
  "steps": ["step 1", "step 2"]
}`

// planDocument is the full plan persisted under the payload's plan ref.
type planDocument struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Summary    string    `json:"summary"`
	Milestones []string  `json:"milestones"`
	Steps      []string  `json:"steps"`
	CreatedAt  time.Time `json:"created_at"`
}

// Planner decomposes task requirements into a plan. The full plan text is
// persisted in the plans collection; only counts and the ref travel on the
// wire.
type Planner struct {
	llm    Completer
	plans  store.Store
	params Params
}

// NewPlanner creates the planner role. plans may be nil when no document
// store is configured; the plan then lives only in the emitted summary.
func NewPlanner(c Completer, plans store.Store, params Params) *Planner {
	return &Planner{llm: c, plans: plans, params: params}
}

// Role implements Runner.
func (p *Planner) Role() event.Actor { return event.ActorPlanner }

// Run implements Runner.
func (p *Planner) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Requirements == "" {
		return nil, fmt.Errorf("planner: requirements are required")
	}

	resp, err := p.llm.Complete(ctx, p.params.request(event.ActorPlanner, []llm.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: in.Requirements},
	}))
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	var out struct {
		Summary    string   `json:"summary"`
		Milestones []string `json:"milestones"`
		Steps      []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("planner: parse plan: %w", err)
	}
	if len(out.Steps) == 0 {
		return nil, fmt.Errorf("planner: plan has no steps")
	}

	planRef := "plans/" + in.TaskID
	if p.plans != nil {
		doc := planDocument{
			ID:         in.TaskID,
			TaskID:     in.TaskID,
			Summary:    out.Summary,
			Milestones: out.Milestones,
			Steps:      out.Steps,
			CreatedAt:  time.Now().UTC(),
		}
		if err := p.plans.InsertOne(ctx, store.CollectionPlans, doc.ID, doc); err != nil &&
			!errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("planner: persist plan: %w", err)
		}
	}

	return &Result{
		Summary: out.Summary,
		Payload: &event.PlanCreatedPayload{
			PlanRef:    planRef,
			Milestones: len(out.Milestones),
			Steps:      len(out.Steps),
			Summary:    out.Summary,
		},
		Artifact: in.Artifact,
		Cost:     resp.Cost,
	}, nil
}
