package custom

import (
	"context"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/longmans/prompt-agent/internal/llm/provider/openai"
	"github.com/longmans/prompt-agent/internal/llm/tokens"
	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package custom provides the provider for any OpenAI-compatible endpoint
// (vLLM, LocalAI, LM Studio, OpenRouter and similar gateways).
//
// Compatibility requirements:
//   - Endpoint: POST {base_url}/chat/completions
//   - Request and response bodies follow the OpenAI chat completions schema
//   - API key is optional; self-hosted servers usually ignore it

const (
	DefaultMaxTokens = 2048
	DefaultTimeout   = 60 * time.Second
)

// CustomClientImpl implements the provider client for OpenAI-compatible endpoints.
type CustomClientImpl struct {
	baseURL   string
	model     string
	maxTokens int
	client    *goopenai.Client
}

// NewCustomClient creates a client for the endpoint at baseURL.
func NewCustomClient(baseURL, apiKey, model string, opts ...types.ClientOption) (*CustomClientImpl, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("custom provider base URL is required")
	}
	if model == "" {
		return nil, fmt.Errorf("custom provider model is required")
	}

	o := types.ApplyClientOptions(types.ClientOptions{
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}, append([]types.ClientOption{types.WithBaseURL(baseURL)}, opts...)...)

	return &CustomClientImpl{
		baseURL:   o.BaseURL,
		model:     model,
		maxTokens: o.MaxTokens,
		client:    openai.NewSDKClient(apiKey, o),
	}, nil
}

// Complete sends prompt as a single user turn.
func (c *CustomClientImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	text, err := openai.ChatCompletion(ctx, c.client, c.model, prompt, opts.Merge(types.Options{MaxTokens: c.maxTokens}))
	if err != nil {
		return "", fmt.Errorf("custom endpoint %s request failed: %w", c.baseURL, err)
	}
	return text, nil
}

// CountTokens approximates token usage; the remote tokenizer is unknown.
func (c *CustomClientImpl) CountTokens(prompt string) int {
	return tokens.Estimate(prompt)
}

// Model returns the configured model name.
func (c *CustomClientImpl) Model() string {
	return c.model
}

// GetCapabilities returns capabilities from configuration.
func (c *CustomClientImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":   "custom",
		"model":      c.model,
		"base_url":   c.baseURL,
		"max_tokens": c.maxTokens,
	}, nil
}
