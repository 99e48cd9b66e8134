package event

import "sync"

// payloadRegistry maps event types to payload factories so the codec can
// resolve concrete payload types during deserialization.
var (
	payloadRegistry = make(map[string]func() Payload)
	payloadMu       sync.RWMutex
)

// RegisterPayload adds a payload factory for an event type. Later
// registrations for the same type win, which lets tests substitute shapes.
func RegisterPayload(eventType string, factory func() Payload) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	payloadRegistry[eventType] = factory
}

// newPayload instantiates an empty payload for the event type.
func newPayload(eventType string) (Payload, bool) {
	payloadMu.RLock()
	defer payloadMu.RUnlock()
	factory, ok := payloadRegistry[eventType]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func init() {
	RegisterPayload(TypeTaskInitiated, func() Payload { return &TaskInitiatedPayload{} })
	RegisterPayload(TypePlanCreated, func() Payload { return &PlanCreatedPayload{} })
	RegisterPayload(TypeArchitectureProposed, func() Payload { return &ArchitectureProposedPayload{} })
	RegisterPayload(TypeCodePROpened, func() Payload { return &CodePROpenedPayload{} })
	RegisterPayload(TypeTestResults, func() Payload { return &TestResultsPayload{} })
	RegisterPayload(TypeReviewDecision, func() Payload { return &ReviewDecisionPayload{} })
	RegisterPayload(TypeDeployStatus, func() Payload { return &DeployStatusPayload{} })
	RegisterPayload(TypeExplorerScanRequest, func() Payload { return &ExplorerScanRequestPayload{} })
	RegisterPayload(TypeExplorerScanCompleted, func() Payload { return &ExplorerScanCompletedPayload{} })

	// Every role shares the failure payload shape under its own event type.
	for _, actor := range Agents {
		RegisterPayload(FailureType(actor), func() Payload { return &AgentFailedPayload{} })
	}
	RegisterPayload(FailureType(ActorOrchestrator), func() Payload { return &AgentFailedPayload{} })
}
