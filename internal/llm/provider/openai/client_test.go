package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		model     string
		wantError bool
	}{
		{
			name:      "Valid configuration",
			apiKey:    "sk-test123",
			model:     "gpt-4o",
			wantError: false,
		},
		{
			name:      "Empty API key",
			apiKey:    "",
			model:     "gpt-4o",
			wantError: true,
		},
		{
			name:      "Default model",
			apiKey:    "sk-test123",
			model:     "",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenAIClient(tt.apiKey, tt.model)

			if tt.wantError && err == nil {
				t.Errorf("NewOpenAIClient() expected error but got none")
			}

			if !tt.wantError && err != nil {
				t.Errorf("NewOpenAIClient() unexpected error: %v", err)
			}

			if !tt.wantError && client == nil {
				t.Errorf("NewOpenAIClient() returned nil client")
			}

			if !tt.wantError && tt.model == "" {
				if client.Model() != DefaultModel {
					t.Errorf("Expected default model %s, got %s", DefaultModel, client.Model())
				}
			}
		})
	}
}

func TestGetCapabilities(t *testing.T) {
	client, err := NewOpenAIClient("sk-test123", "gpt-4o")
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	caps, err := client.GetCapabilities(context.Background())
	if err != nil {
		t.Fatalf("GetCapabilities() error: %v", err)
	}

	if caps["provider"] != "openai" {
		t.Errorf("Expected provider 'openai', got '%v'", caps["provider"])
	}
	if caps["model"] != "gpt-4o" {
		t.Errorf("Expected model 'gpt-4o', got '%v'", caps["model"])
	}
	if caps["context_window"] != 128000 {
		t.Errorf("Expected context window 128000, got %v", caps["context_window"])
	}
}

func newChatServer(t *testing.T, status int, content string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test123" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
}

func TestComplete(t *testing.T) {
	var body map[string]interface{}
	srv := newChatServer(t, http.StatusOK, "Hello from the model", &body)
	defer srv.Close()

	client, err := NewOpenAIClient("sk-test123", "", types.WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	got, err := client.Complete(context.Background(), "Say hello", types.Options{Temperature: 0.7, System: "be brief"})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "Hello from the model" {
		t.Errorf("Complete() = %q", got)
	}

	if body["model"] != DefaultModel {
		t.Errorf("Expected request model %s, got %v", DefaultModel, body["model"])
	}
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("Expected system and user messages, got %d", len(msgs))
	}
	if first := msgs[0].(map[string]interface{}); first["role"] != "system" {
		t.Errorf("Expected first message to be system, got %v", first["role"])
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		content   string
		wantEmpty bool
	}{
		{name: "API error status", status: http.StatusTooManyRequests},
		{name: "Blank completion", status: http.StatusOK, content: "   ", wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, tt.status, tt.content, nil)
			defer srv.Close()

			client, err := NewOpenAIClient("sk-test123", "gpt-4o-mini", types.WithBaseURL(srv.URL+"/v1"))
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}

			_, err = client.Complete(context.Background(), "prompt", types.Options{})
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if tt.wantEmpty && !errors.Is(err, types.ErrEmptyResponse) {
				t.Errorf("Expected ErrEmptyResponse, got %v", err)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	client, _ := NewOpenAIClient("sk-test123", "gpt-4o-mini")

	if n := client.CountTokens(""); n != 0 {
		t.Errorf("Expected 0 tokens for empty prompt, got %d", n)
	}
	if n := client.CountTokens("Write a haiku about the sea."); n <= 0 {
		t.Errorf("Expected positive token count, got %d", n)
	}
}
