package providers

import (
	"encoding/json"
	"testing"

	"github.com/forgeline/forgeline/llm"
)

func TestAnthropicBuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	if got := p.BuildURL(""); got != "https://api.anthropic.com/v1/messages" {
		t.Errorf("BuildURL(default) = %q", got)
	}
	if got := p.BuildURL("https://proxy.internal/"); got != "https://proxy.internal/v1/messages" {
		t.Errorf("BuildURL(proxy) = %q", got)
	}
}

func TestAnthropicBuildRequestBodyLiftsSystemMessage(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-sonnet-4-20250514", []llm.Message{
		{Role: "system", Content: "You are a reviewer."},
		{Role: "user", Content: "Review this diff."},
	}, nil, 0)
	if err != nil {
		t.Fatalf("BuildRequestBody: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}

	if req["system"] != "You are a reviewer." {
		t.Errorf("system = %v", req["system"])
	}
	msgs := req["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("system message must be lifted out of the history, got %d messages", len(msgs))
	}
	// max_tokens is required by the API, so a default is applied
	if req["max_tokens"] != float64(4096) {
		t.Errorf("max_tokens = %v, want default 4096", req["max_tokens"])
	}
}

func TestAnthropicParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	body := []byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": "approved"}],
		"model": "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 30, "output_tokens": 5}
	}`)

	resp, err := p.ParseResponse(body, "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	if resp.Content != "approved" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 30 || resp.Usage.CompletionTokens != 5 || resp.Usage.TotalTokens != 35 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}
