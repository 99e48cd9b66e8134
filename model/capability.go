// Package model provides capability-based model selection for pipeline
// agents. Agents specify capabilities (planning, coding, reviewing) instead
// of model names, and the registry resolves them to available endpoints with
// fallback chains.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityPlanning is for requirement decomposition and milestones.
	CapabilityPlanning Capability = "planning"

	// CapabilityDesign is for architecture and data-model decisions.
	CapabilityDesign Capability = "design"

	// CapabilityCoding is for code generation and rework.
	CapabilityCoding Capability = "coding"

	// CapabilityTesting is for test synthesis and result analysis.
	CapabilityTesting Capability = "testing"

	// CapabilityReviewing is for code review and quality scoring.
	CapabilityReviewing Capability = "reviewing"

	// CapabilityFast is for quick, mechanical steps.
	CapabilityFast Capability = "fast"
)

// RoleCapabilities maps pipeline roles to their default capability.
var RoleCapabilities = map[string]Capability{
	"planner":   CapabilityPlanning,
	"architect": CapabilityDesign,
	"coder":     CapabilityCoding,
	"tester":    CapabilityTesting,
	"reviewer":  CapabilityReviewing,
	"deployer":  CapabilityFast,
	"explorer":  CapabilityFast,
}

// CapabilityForRole returns the default capability for a pipeline role.
// Unknown roles fall back to CapabilityFast.
func CapabilityForRole(role string) Capability {
	if cap, ok := RoleCapabilities[role]; ok {
		return cap
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityDesign, CapabilityCoding,
		CapabilityTesting, CapabilityReviewing, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
