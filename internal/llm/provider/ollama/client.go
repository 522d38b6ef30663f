package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/longmans/prompt-agent/internal/llm/tokens"
	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package ollama provides the Ollama provider for the LLM adapter.
//
// Key Advantage:
//   - Zero cost, runs entirely on the user's machine
//   - No prompt or example data leaves the host
//
// Token Counting:
//   - Ollama doesn't expose a tokenizer
//   - Approximated with the char-to-token ratio (1 token ≈ 4 characters)

const (
	DefaultBaseURL   = "http://localhost:11434"
	DefaultModel     = "llama3"
	DefaultMaxTokens = 2048
	DefaultTimeout   = 120 * time.Second
)

// OllamaClientImpl implements the provider client for Ollama.
type OllamaClientImpl struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaClient creates a client for the Ollama instance at baseURL.
func NewOllamaClient(baseURL, model string, opts ...types.ClientOption) (*OllamaClientImpl, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid Ollama base URL %q", baseURL)
	}

	o := types.ApplyClientOptions(types.ClientOptions{
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}, opts...)

	return &OllamaClientImpl{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxTokens:  o.MaxTokens,
		httpClient: o.HTTPClient,
	}, nil
}

// Complete sends prompt to the chat endpoint with streaming disabled.
func (c *OllamaClientImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	opts = opts.Merge(types.Options{MaxTokens: c.maxTokens})

	msgs := opts.Messages(prompt)
	ollamaMsgs := make([]ollamaMessage, len(msgs))
	for i, m := range msgs {
		ollamaMsgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	request := ollamaChatRequest{
		Model:    c.model,
		Messages: ollamaMsgs,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	body, err := c.makeRequest(ctx, "/api/chat", request)
	if err != nil {
		return "", fmt.Errorf("Ollama API request failed: %w", err)
	}

	var chatResponse ollamaChatResponse
	if err := json.Unmarshal(body, &chatResponse); err != nil {
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	if chatResponse.Error != "" {
		return "", fmt.Errorf("Ollama error: %s", chatResponse.Error)
	}
	if strings.TrimSpace(chatResponse.Message.Content) == "" {
		return "", types.ErrEmptyResponse
	}
	return chatResponse.Message.Content, nil
}

// makeRequest makes an HTTP request to the Ollama API
func (c *OllamaClientImpl) makeRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

// CountTokens approximates token count using char-to-token ratio.
func (c *OllamaClientImpl) CountTokens(prompt string) int {
	return tokens.Estimate(prompt)
}

// Model returns the configured model name.
func (c *OllamaClientImpl) Model() string {
	return c.model
}

// GetCapabilities returns Ollama model capabilities.
func (c *OllamaClientImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":   "ollama",
		"model":      c.model,
		"base_url":   c.baseURL,
		"max_tokens": c.maxTokens,
		"local":      true,
	}, nil
}
