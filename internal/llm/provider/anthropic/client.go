package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/longmans/prompt-agent/internal/llm/tokens"
	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package anthropic provides the Anthropic provider for the LLM adapter.
//
// Responsibilities:
//   - Send single-prompt requests to the Messages API
//   - Map the optional system instruction to the top-level system block
//   - Concatenate text blocks of the reply
//
// SDK retries are disabled; the adapter owns the retry budget.

const (
	DefaultModel     = string(anthropic.ModelClaudeSonnet4_20250514)
	DefaultBaseURL   = "https://api.anthropic.com/"
	DefaultMaxTokens = 2048
	DefaultTimeout   = 60 * time.Second
)

// AnthropicClientImpl implements the provider client for Anthropic.
type AnthropicClientImpl struct {
	model     string
	maxTokens int
	baseURL   string
	client    anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey, model string, opts ...types.ClientOption) (*AnthropicClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	o := types.ApplyClientOptions(types.ClientOptions{
		BaseURL:   DefaultBaseURL,
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}, opts...)

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(o.BaseURL),
		option.WithHTTPClient(o.HTTPClient),
		option.WithMaxRetries(0),
	)

	return &AnthropicClientImpl{
		model:     model,
		maxTokens: o.MaxTokens,
		baseURL:   o.BaseURL,
		client:    client,
	}, nil
}

// Complete sends prompt as a single user message.
func (c *AnthropicClientImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	opts = opts.Merge(types.Options{MaxTokens: c.maxTokens})

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Anthropic API request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", types.ErrEmptyResponse
	}
	return text, nil
}

// CountTokens approximates token usage locally.
func (c *AnthropicClientImpl) CountTokens(prompt string) int {
	return tokens.Estimate(prompt)
}

// Model returns the configured model name.
func (c *AnthropicClientImpl) Model() string {
	return c.model
}

// GetCapabilities returns supported features and limits.
func (c *AnthropicClientImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":       "anthropic",
		"model":          c.model,
		"max_tokens":     c.maxTokens,
		"context_window": 200000,
	}, nil
}
