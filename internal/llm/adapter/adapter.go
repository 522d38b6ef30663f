package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longmans/prompt-agent/internal/llm/types"
)

// Package adapter provides a unified completion interface over the supported
// LLM providers.
//
// Responsibilities:
//   - Select one provider client at configuration time
//   - Apply configured defaults (temperature, token cap, per-call timeout)
//   - Retry failed calls within the configured budget
//   - Record request metrics and tracing spans
//   - Cache one handle per provider for the whole process (Registry)
//
// Supported Providers:
//  1. Gemini: gemini-2.0-flash-exp (default), gemini-1.5-pro
//  2. OpenAI: gpt-4o-mini, gpt-4o
//  3. Anthropic: claude-sonnet-4, claude-3-5-haiku
//  4. Ollama: local models (llama3, mistral, qwen2.5)
//  5. Custom: any OpenAI-compatible endpoint (vLLM, LocalAI, LM Studio)
//
// Fallback Behavior (No LLM Configured):
//   - The adapter is still constructed, in the "none" state
//   - Complete returns ErrProviderNotConfigured
//   - Callers reject optimization requests for that provider up front

// LLMAdapter defines the unified interface for LLM providers.
type LLMAdapter interface {
	// Complete sends a single prompt and returns the completion text.
	// Zero-valued options fall back to the adapter's configured defaults.
	Complete(ctx context.Context, prompt string, opts types.Options) (string, error)

	// CountTokens estimates the token count of prompt for this model.
	CountTokens(prompt string) int

	// GetCapabilities returns supported features and limits for this provider/model.
	GetCapabilities(ctx context.Context) (map[string]interface{}, error)

	// Provider returns the provider this adapter talks to.
	Provider() ProviderType

	// Model returns the model name in use.
	Model() string

	// IsConfigured reports whether credentials for the provider were supplied.
	IsConfigured() bool
}

// ProviderType identifies an LLM provider
type ProviderType string

const (
	ProviderGemini    ProviderType = "gemini"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
	ProviderCustom    ProviderType = "custom"
	ProviderNone      ProviderType = "none" // No LLM configured
)

// Providers lists every supported provider in display order.
var Providers = []ProviderType{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderCustom}

var (
	// ErrProviderNotConfigured is returned when an LLM operation is attempted without a configured provider
	ErrProviderNotConfigured = errors.New("LLM provider not configured")

	// ErrUnsupportedProvider is returned for provider names outside Providers.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")

	// ErrEmptyResponse is returned when the model answered without usable text.
	ErrEmptyResponse = types.ErrEmptyResponse
)

// ParseProviderType normalises a provider name and checks it is supported.
func ParseProviderType(name string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}

// Config holds the settings for one provider handle.
type Config struct {
	Provider    ProviderType  `json:"provider"`
	APIKey      string        `json:"api_key"`  // Gemini/OpenAI/Anthropic, optional for Custom
	BaseURL     string        `json:"base_url"` // Ollama/Custom, optional override elsewhere
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`
	ProxyURL    string        `json:"proxy_url"`
}

// HasCredentials reports whether cfg carries what its provider needs to make calls.
func (c Config) HasCredentials() bool {
	switch c.Provider {
	case ProviderOllama:
		return true
	case ProviderCustom:
		return c.BaseURL != "" && c.Model != ""
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return c.APIKey != ""
	default:
		return false
	}
}
