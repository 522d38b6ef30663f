package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/longmans/prompt-agent/internal/llm/tokens"
	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package openai provides the OpenAI provider for the LLM adapter.
//
// Responsibilities:
//   - Send single-prompt chat completions to the OpenAI API
//   - Apply per-call temperature, token cap and system instruction
//   - Report usage and capabilities for the configured model
//
// Supported Models:
//   - gpt-4o-mini: default, fast and inexpensive
//   - gpt-4o: multimodal flagship
//   - gpt-4-turbo: 128k context
//   - gpt-3.5-turbo: legacy, lowest cost

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 60 * time.Second
)

// OpenAIClientImpl implements the provider client for OpenAI.
type OpenAIClientImpl struct {
	model     string
	maxTokens int
	baseURL   string
	client    *goopenai.Client
}

// NewOpenAIClient creates a new OpenAI client with configuration.
func NewOpenAIClient(apiKey, model string, opts ...types.ClientOption) (*OpenAIClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	o := types.ApplyClientOptions(types.ClientOptions{
		BaseURL:   DefaultBaseURL,
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}, opts...)

	return &OpenAIClientImpl{
		model:     model,
		maxTokens: o.MaxTokens,
		baseURL:   o.BaseURL,
		client:    NewSDKClient(apiKey, o),
	}, nil
}

// NewSDKClient builds a go-openai client for any OpenAI-compatible endpoint.
func NewSDKClient(apiKey string, o types.ClientOptions) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if o.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.BaseURL, "/")
	}
	cfg.HTTPClient = o.HTTPClient
	return goopenai.NewClientWithConfig(cfg)
}

// Complete sends prompt as a single user turn and returns the first choice.
func (c *OpenAIClientImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	text, err := ChatCompletion(ctx, c.client, c.model, prompt, opts.Merge(types.Options{MaxTokens: c.maxTokens}))
	if err != nil {
		return "", fmt.Errorf("OpenAI API request failed: %w", err)
	}
	return text, nil
}

// ChatCompletion runs one chat completion through an OpenAI-compatible client.
func ChatCompletion(ctx context.Context, client *goopenai.Client, model, prompt string, opts types.Options) (string, error) {
	msgs := opts.Messages(prompt)
	chatMessages := make([]goopenai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		chatMessages[i] = goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", types.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// CountTokens counts prompt tokens with the model's BPE encoding.
func (c *OpenAIClientImpl) CountTokens(prompt string) int {
	return tokens.Count(c.model, prompt)
}

// Model returns the configured model name.
func (c *OpenAIClientImpl) Model() string {
	return c.model
}

// GetCapabilities returns supported features and limits.
func (c *OpenAIClientImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":       "openai",
		"model":          c.model,
		"base_url":       c.baseURL,
		"max_tokens":     c.maxTokens,
		"context_window": getContextWindow(c.model),
	}, nil
}

func getContextWindow(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4-turbo"):
		return 128000
	case strings.HasPrefix(model, "gpt-4"):
		return 8192
	case strings.HasPrefix(model, "gpt-3.5"):
		return 16385
	default:
		return 128000
	}
}
