package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"
)

func TestOpenAICompatibleGenerateText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"scenes\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s := NewOpenAICompatibleService(ProviderOpenRouter, "router-key", srv.URL, "")
	out, err := s.GenerateText(context.Background(), TextRequest{
		Model:             "anthropic/claude-sonnet-4",
		SystemInstruction: "plan",
		UserMessage:       "go",
		Schema:            &genai.Schema{Type: genai.TypeObject},
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != `{"scenes":[]}` {
		t.Errorf("unexpected output %q", out)
	}
	if body["model"] != "anthropic/claude-sonnet-4" {
		t.Errorf("routed model should pass through, got %v", body["model"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system+user messages, got %d", len(msgs))
	}
}

func TestOpenAIResolveModel(t *testing.T) {
	s := NewOpenAIService("k", "gpt-4o")
	if got := s.resolveModel("openai/gpt-4o-mini"); got != "gpt-4o-mini" {
		t.Errorf("got %q", got)
	}
	if got := s.resolveModel("google/gemini-2.5-pro"); got != "gpt-4o" {
		t.Errorf("foreign models should use the default, got %q", got)
	}
}
