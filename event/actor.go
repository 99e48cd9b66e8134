package event

import "fmt"

// Actor names the pipeline role that produced an event.
type Actor string

const (
	ActorPlanner      Actor = "planner"
	ActorArchitect    Actor = "architect"
	ActorCoder        Actor = "coder"
	ActorTester       Actor = "tester"
	ActorReviewer     Actor = "reviewer"
	ActorDeployer     Actor = "deployer"
	ActorExplorer     Actor = "explorer"
	ActorOrchestrator Actor = "orchestrator"
)

// Agents lists the worker roles in pipeline order. The orchestrator is not a
// pipeline stage; it initiates tasks and reacts to terminal events.
var Agents = []Actor{
	ActorPlanner,
	ActorArchitect,
	ActorCoder,
	ActorTester,
	ActorReviewer,
	ActorDeployer,
	ActorExplorer,
}

// Stages lists the roles that appear in a task's graph state, in the order
// the sequential executor runs them. The explorer is excluded: it is an
// on-demand scanner, not a phase of task execution.
var Stages = []Actor{
	ActorPlanner,
	ActorArchitect,
	ActorCoder,
	ActorTester,
	ActorReviewer,
	ActorDeployer,
}

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool {
	switch a {
	case ActorPlanner, ActorArchitect, ActorCoder, ActorTester,
		ActorReviewer, ActorDeployer, ActorExplorer, ActorOrchestrator:
		return true
	}
	return false
}

// ParseActor converts a string into an Actor, rejecting unknown names.
func ParseActor(s string) (Actor, error) {
	a := Actor(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown actor: %q", s)
	}
	return a, nil
}
