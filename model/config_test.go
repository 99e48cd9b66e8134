package model

import "testing"

func testRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"coding": {Preferred: []string{"primary"}, Fallback: []string{"backup"}},
			"custom": {Preferred: []string{"special"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"primary": {Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
			"backup":  {Provider: "openai", URL: "http://localhost:11434/v1", Model: "qwen2.5-coder:14b"},
			"special": {Provider: "openai", URL: "http://gpu-box:8000/v1", Model: "deepseek"},
		},
		Defaults: &DefaultsConfig{Model: "backup"},
	}
}

func TestFromConfig(t *testing.T) {
	r := FromConfig(testRegistryConfig())

	if got := r.Resolve(CapabilityCoding); got != "primary" {
		t.Errorf("Resolve(coding) = %q, want primary", got)
	}

	// Unknown capability names pass through verbatim.
	if got := r.Resolve(Capability("custom")); got != "special" {
		t.Errorf("Resolve(custom) = %q, want special", got)
	}

	// No capability entry falls back to the default model.
	if got := r.Resolve(CapabilityPlanning); got != "backup" {
		t.Errorf("Resolve(planning) = %q, want backup", got)
	}

	if ep := r.GetEndpoint("primary"); ep == nil || ep.Provider != "anthropic" {
		t.Errorf("GetEndpoint(primary) = %+v", ep)
	}
}

func TestFromConfigWithoutDefaults(t *testing.T) {
	cfg := testRegistryConfig()
	cfg.Defaults = nil

	r := FromConfig(cfg)
	if got := r.Resolve(CapabilityFast); got != "default" {
		t.Errorf("missing defaults should resolve to %q, got %q", "default", got)
	}
}

func TestRegistryMerge(t *testing.T) {
	r := NewDefaultRegistry()
	before := r.Resolve(CapabilityPlanning)

	r.Merge(&RegistryConfig{
		Capabilities: map[string]*CapabilityConfig{
			"coding": {Preferred: []string{"site-coder"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"site-coder": {Provider: "openai", URL: "http://gpu-box:8000/v1", Model: "deepseek"},
		},
	})

	if got := r.Resolve(CapabilityCoding); got != "site-coder" {
		t.Errorf("merged capability not applied, Resolve(coding) = %q", got)
	}
	if got := r.Resolve(CapabilityPlanning); got != before {
		t.Errorf("merge must not touch untouched capabilities, got %q", got)
	}
	if ep := r.GetEndpoint("site-coder"); ep == nil {
		t.Error("merged endpoint missing")
	}
}

func TestToConfigRoundTrip(t *testing.T) {
	r := FromConfig(testRegistryConfig())
	restored := FromConfig(r.ToConfig())

	if restored.Resolve(CapabilityCoding) != r.Resolve(CapabilityCoding) {
		t.Error("round trip changed coding resolution")
	}
	if len(restored.ListEndpoints()) != len(r.ListEndpoints()) {
		t.Error("round trip changed endpoint count")
	}
}
