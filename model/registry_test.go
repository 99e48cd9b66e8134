package model

import (
	"encoding/json"
	"testing"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	caps := r.ListCapabilities()
	if len(caps) != 6 {
		t.Errorf("expected 6 capabilities, got %d", len(caps))
	}

	endpoints := r.ListEndpoints()
	if len(endpoints) < 3 {
		t.Errorf("expected at least 3 endpoints, got %d", len(endpoints))
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityPlanning, "claude-opus"},
		{CapabilityDesign, "claude-sonnet"},
		{CapabilityCoding, "claude-sonnet"},
		{CapabilityTesting, "claude-sonnet"},
		{CapabilityReviewing, "claude-sonnet"},
		{CapabilityFast, "claude-haiku"},
		{Capability("unknown"), "qwen"}, // Falls back to default
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			got := r.Resolve(tt.capability)
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}
}

func TestRegistryGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityCoding)
	if len(chain) < 2 {
		t.Fatalf("expected at least 2 models in chain, got %d", len(chain))
	}
	if chain[0] != "claude-sonnet" {
		t.Errorf("first in chain should be the preferred model, got %q", chain[0])
	}

	hasLocal := false
	for _, m := range chain {
		if m == "qwen" {
			hasLocal = true
			break
		}
	}
	if !hasLocal {
		t.Error("expected the local fallback in the coding chain")
	}
}

func TestRegistryForRole(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		role     string
		expected string
	}{
		{"planner", "claude-opus"},
		{"architect", "claude-sonnet"},
		{"coder", "claude-sonnet"},
		{"deployer", "claude-haiku"},
		{"unknown-role", "claude-haiku"}, // Fast capability fallback
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := r.ForRole(tt.role)
			if got != tt.expected {
				t.Errorf("ForRole(%q) = %q, want %q", tt.role, got, tt.expected)
			}
		})
	}
}

func TestRegistrySetters(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.SetCapability(CapabilityCoding, &CapabilityConfig{
		Preferred: []string{"local-coder"},
	})
	r.SetEndpoint("local-coder", &EndpointConfig{
		Provider: "openai",
		URL:      "http://localhost:11434/v1",
		Model:    "codellama",
	})
	r.SetDefault("local-coder")

	if got := r.Resolve(CapabilityCoding); got != "local-coder" {
		t.Errorf("Resolve after SetCapability = %q, want local-coder", got)
	}
	if ep := r.GetEndpoint("local-coder"); ep == nil || ep.Model != "codellama" {
		t.Errorf("GetEndpoint after SetEndpoint = %+v", ep)
	}
	if got := r.Resolve(Capability("missing")); got != "local-coder" {
		t.Errorf("default model = %q, want local-coder", got)
	}
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	r := NewDefaultRegistry()

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal registry: %v", err)
	}

	var restored Registry
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal registry: %v", err)
	}

	if got := restored.Resolve(CapabilityPlanning); got != r.Resolve(CapabilityPlanning) {
		t.Errorf("round trip changed planning resolution: %q", got)
	}
	if len(restored.ListEndpoints()) != len(r.ListEndpoints()) {
		t.Error("round trip changed endpoint count")
	}
}

func TestEndpointCost(t *testing.T) {
	ep := &EndpointConfig{
		PromptCostPer1K:     0.003,
		CompletionCostPer1K: 0.015,
	}

	got := ep.Cost(1000, 2000)
	want := 0.003 + 2*0.015
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Cost(1000, 2000) = %f, want %f", got, want)
	}

	free := &EndpointConfig{}
	if free.Cost(5000, 5000) != 0 {
		t.Error("endpoints without price config must be free")
	}
}
