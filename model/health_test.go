package model

import (
	"testing"
	"time"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Fatal("endpoint should start available")
	}

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	if r.IsEndpointAvailable("claude-sonnet") {
		t.Error("circuit should be open after threshold failures")
	}

	health := r.GetEndpointHealth("claude-sonnet")
	if health == nil || !health.CircuitOpen {
		t.Errorf("expected open circuit, got %+v", health)
	}
}

func TestCircuitClosesOnSuccess(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < 5; i++ {
		r.MarkEndpointFailure("qwen")
	}
	r.MarkEndpointSuccess("qwen")

	if !r.IsEndpointAvailable("qwen") {
		t.Error("success must close the circuit")
	}
	if health := r.GetEndpointHealth("qwen"); health.FailureCount != 0 {
		t.Errorf("success must reset failure count, got %d", health.FailureCount)
	}
}

func TestCircuitAllowsTestRequestAfterRecovery(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
	})

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Fatal("circuit should be open immediately after tripping")
	}

	time.Sleep(5 * time.Millisecond)
	if !r.IsEndpointAvailable("qwen") {
		t.Error("half-open circuit should allow a test request after recovery timeout")
	}
}

func TestAvailableFallbackChainSkipsOpenCircuits(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("claude-sonnet")
	}

	chain := r.GetAvailableFallbackChain(CapabilityCoding)
	for _, m := range chain {
		if m == "claude-sonnet" {
			t.Error("open-circuit endpoint should be filtered out of the chain")
		}
	}
	if len(chain) == 0 {
		t.Error("chain should still contain healthy fallbacks")
	}
}

func TestAvailableFallbackChainFallsBackToFullChain(t *testing.T) {
	r := NewDefaultRegistry()

	full := r.GetFallbackChain(CapabilityFast)
	for _, m := range full {
		for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
			r.MarkEndpointFailure(m)
		}
	}

	chain := r.GetAvailableFallbackChain(CapabilityFast)
	if len(chain) != len(full) {
		t.Errorf("with every circuit open the full chain must be returned, got %v", chain)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()

	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		r.MarkEndpointFailure("qwen")
	}
	r.ResetEndpointHealth("qwen")

	if !r.IsEndpointAvailable("qwen") {
		t.Error("reset endpoint should be available again")
	}
	if r.GetEndpointHealth("qwen") != nil {
		t.Error("reset endpoint should have no recorded health")
	}
}
