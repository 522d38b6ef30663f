package custom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

func TestNewCustomClient(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		model     string
		wantError bool
	}{
		{name: "Valid configuration", baseURL: "http://localhost:8000/v1", model: "qwen2.5"},
		{name: "Missing base URL", baseURL: "", model: "qwen2.5", wantError: true},
		{name: "Missing model", baseURL: "http://localhost:8000/v1", model: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewCustomClient(tt.baseURL, "", tt.model)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.model, client.Model())
			assert.Equal(t, DefaultMaxTokens, client.maxTokens)
		})
	}
}

func TestCompleteAgainstCompatibleServer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "local-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"local answer"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := NewCustomClient(srv.URL+"/v1", "secret", "local-model")
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "hi", types.Options{})
	require.NoError(t, err)
	assert.Equal(t, "local answer", got)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewCustomClient(srv.URL, "", "local-model")
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hi", types.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}

func TestGetCapabilities(t *testing.T) {
	client, err := NewCustomClient("http://vllm:8000/v1", "", "mistral", types.WithMaxTokens(512))
	require.NoError(t, err)

	caps, err := client.GetCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "custom", caps["provider"])
	assert.Equal(t, "http://vllm:8000/v1", caps["base_url"])
	assert.Equal(t, 512, caps["max_tokens"])
	assert.Equal(t, 1, client.CountTokens("abcd"))
}
