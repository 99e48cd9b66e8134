package model

import "testing"

func TestCapabilityIsValid(t *testing.T) {
	valid := []Capability{
		CapabilityPlanning, CapabilityDesign, CapabilityCoding,
		CapabilityTesting, CapabilityReviewing, CapabilityFast,
	}
	for _, c := range valid {
		if !c.IsValid() {
			t.Errorf("%q should be valid", c)
		}
	}

	invalid := []Capability{"", "writing", "PLANNING", "code"}
	for _, c := range invalid {
		if c.IsValid() {
			t.Errorf("%q should be invalid", c)
		}
	}
}

func TestParseCapability(t *testing.T) {
	if got := ParseCapability("coding"); got != CapabilityCoding {
		t.Errorf("ParseCapability(coding) = %q", got)
	}
	if got := ParseCapability("nonsense"); got != "" {
		t.Errorf("ParseCapability(nonsense) = %q, want empty", got)
	}
}

func TestCapabilityForRole(t *testing.T) {
	tests := []struct {
		role string
		want Capability
	}{
		{"planner", CapabilityPlanning},
		{"architect", CapabilityDesign},
		{"coder", CapabilityCoding},
		{"tester", CapabilityTesting},
		{"reviewer", CapabilityReviewing},
		{"deployer", CapabilityFast},
		{"explorer", CapabilityFast},
		{"something-else", CapabilityFast},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := CapabilityForRole(tt.role); got != tt.want {
				t.Errorf("CapabilityForRole(%q) = %q, want %q", tt.role, got, tt.want)
			}
		})
	}
}
