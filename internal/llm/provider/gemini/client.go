package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/longmans/prompt-agent/internal/llm/tokens"
	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package gemini provides the Google Gemini provider for the LLM adapter,
// built on the google.golang.org/genai SDK against the Gemini Developer API.

const (
	DefaultModel     = "gemini-2.0-flash-exp"
	DefaultMaxTokens = 8192
	DefaultTimeout   = 60 * time.Second
)

// GeminiClientImpl implements the provider client for Gemini.
type GeminiClientImpl struct {
	model     string
	maxTokens int
	client    *genai.Client
}

// NewGeminiClient creates a new Gemini client. No request is made until Complete.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...types.ClientOption) (*GeminiClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	o := types.ApplyClientOptions(types.ClientOptions{
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}, opts...)

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.HTTPClient,
	}
	if o.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClientImpl{
		model:     model,
		maxTokens: o.MaxTokens,
		client:    client,
	}, nil
}

// Complete generates content for a single-turn prompt.
func (c *GeminiClientImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	opts = opts.Merge(types.Options{MaxTokens: c.maxTokens})

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("Gemini API request failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", types.ErrEmptyResponse
	}
	return text, nil
}

// CountTokens approximates token usage locally.
func (c *GeminiClientImpl) CountTokens(prompt string) int {
	return tokens.Estimate(prompt)
}

// Model returns the configured model name.
func (c *GeminiClientImpl) Model() string {
	return c.model
}

// GetCapabilities returns supported features and limits.
func (c *GeminiClientImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"provider":       "gemini",
		"model":          c.model,
		"max_tokens":     c.maxTokens,
		"context_window": 1048576,
	}, nil
}
