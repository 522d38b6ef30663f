package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

func generateServer(t *testing.T, text string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/"+DefaultModel+":generateContent"), "path %s", r.URL.Path)
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]string{{"text": text}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
}

func TestNewGeminiClient(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	assert.Error(t, err)

	client, err := NewGeminiClient(context.Background(), "AIza-test", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
}

func TestComplete(t *testing.T) {
	var body map[string]interface{}
	srv := generateServer(t, "PROMPT: You are a helpful assistant.", &body)
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), "AIza-test", "", types.WithBaseURL(srv.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "Generate a prompt", types.Options{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "PROMPT: You are a helpful assistant.", got)

	genCfg, ok := body["generationConfig"].(map[string]interface{})
	require.True(t, ok, "generationConfig missing from request: %v", body)
	assert.InDelta(t, 0.7, genCfg["temperature"], 0.001)
}

func TestCompleteEmpty(t *testing.T) {
	srv := generateServer(t, "", nil)
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), "AIza-test", "", types.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "Generate a prompt", types.Options{})
	assert.True(t, errors.Is(err, types.ErrEmptyResponse), "got %v", err)
}

func TestGetCapabilities(t *testing.T) {
	client, err := NewGeminiClient(context.Background(), "AIza-test", "gemini-1.5-pro")
	require.NoError(t, err)

	caps, err := client.GetCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gemini", caps["provider"])
	assert.Equal(t, "gemini-1.5-pro", caps["model"])
}
