package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/longmans/prompt-agent/internal/llm/provider/anthropic"
	"github.com/longmans/prompt-agent/internal/llm/provider/custom"
	"github.com/longmans/prompt-agent/internal/llm/provider/gemini"
	"github.com/longmans/prompt-agent/internal/llm/provider/ollama"
	"github.com/longmans/prompt-agent/internal/llm/provider/openai"
	"github.com/longmans/prompt-agent/internal/llm/types"
	"github.com/longmans/prompt-agent/internal/metrics"
	"github.com/longmans/prompt-agent/internal/tracing"
)

const (
	DefaultTemperature   = 0.7
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 3
	defaultRetryInterval = 500 * time.Millisecond
)

// providerClient is implemented by every provider package.
type providerClient interface {
	Complete(ctx context.Context, prompt string, opts types.Options) (string, error)
	CountTokens(prompt string) int
	GetCapabilities(ctx context.Context) (map[string]interface{}, error)
	Model() string
}

// llmAdapterImpl is the unified adapter implementation
type llmAdapterImpl struct {
	provider      ProviderType
	model         string
	client        providerClient
	defaults      types.Options
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
}

// NewLLMAdapter creates the adapter for cfg.Provider. Missing credentials
// yield an unconfigured adapter rather than an error.
func NewLLMAdapter(ctx context.Context, cfg *Config) (LLMAdapter, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == ProviderNone {
		return &llmAdapterImpl{provider: ProviderNone}, nil
	}
	if _, err := ParseProviderType(string(cfg.Provider)); err != nil {
		return nil, err
	}
	if !cfg.HasCredentials() {
		return &llmAdapterImpl{provider: cfg.Provider, model: cfg.Model}, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient, err := NewHTTPClient(timeout, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	opts := []types.ClientOption{types.WithHTTPClient(httpClient)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, types.WithMaxTokens(cfg.MaxTokens))
	}

	var client providerClient
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.BaseURL != "" {
			opts = append(opts, types.WithBaseURL(cfg.BaseURL))
		}
		client, err = gemini.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, opts...)
	case ProviderOpenAI:
		if cfg.BaseURL != "" {
			opts = append(opts, types.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.NewOpenAIClient(cfg.APIKey, cfg.Model, opts...)
	case ProviderAnthropic:
		if cfg.BaseURL != "" {
			opts = append(opts, types.WithBaseURL(cfg.BaseURL))
		}
		client, err = anthropic.NewAnthropicClient(cfg.APIKey, cfg.Model, opts...)
	case ProviderOllama:
		client, err = ollama.NewOllamaClient(cfg.BaseURL, cfg.Model, opts...)
	case ProviderCustom:
		client, err = custom.NewCustomClient(cfg.BaseURL, cfg.APIKey, cfg.Model, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return newAdapter(cfg, client), nil
}

func newAdapter(cfg *Config, client providerClient) *llmAdapterImpl {
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &llmAdapterImpl{
		provider:      cfg.Provider,
		model:         client.Model(),
		client:        client,
		defaults:      types.Options{Temperature: temperature, MaxTokens: cfg.MaxTokens},
		timeout:       cfg.Timeout,
		maxRetries:    maxRetries,
		retryInterval: defaultRetryInterval,
	}
}

// Complete delegates to the provider client, retrying transient failures.
func (a *llmAdapterImpl) Complete(ctx context.Context, prompt string, opts types.Options) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, a.provider)
	}
	opts = opts.Merge(a.defaults)

	ctx, span := tracing.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", string(a.provider)),
		attribute.String("llm.model", a.model),
		attribute.Float64("llm.temperature", opts.Temperature),
	)

	start := time.Now()
	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		if attempt > 1 {
			metrics.LLMRetriesTotal.WithLabelValues(string(a.provider)).Inc()
		}
		text, err := a.completeOnce(ctx, prompt, opts)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return text, err
	},
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(uint(a.maxRetries+1)),
	)

	metrics.LLMRequestDuration.WithLabelValues(string(a.provider), a.model).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	} else {
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "input").Add(float64(a.client.CountTokens(prompt)))
		metrics.LLMTokensUsed.WithLabelValues(string(a.provider), a.model, "output").Add(float64(a.client.CountTokens(text)))
	}
	metrics.LLMRequestsTotal.WithLabelValues(string(a.provider), a.model, status).Inc()

	span.SetAttributes(attribute.Int("llm.attempts", attempt))
	tracing.EndSpan(span, err)

	return text, err
}

func (a *llmAdapterImpl) completeOnce(ctx context.Context, prompt string, opts types.Options) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.client.Complete(ctx, prompt, opts)
}

func (a *llmAdapterImpl) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.retryInterval
	b.MaxInterval = 10 * a.retryInterval
	return b
}

// CountTokens delegates to provider-specific client
func (a *llmAdapterImpl) CountTokens(prompt string) int {
	if a.client == nil {
		return 0
	}
	return a.client.CountTokens(prompt)
}

// GetCapabilities delegates to provider-specific client
func (a *llmAdapterImpl) GetCapabilities(ctx context.Context) (map[string]interface{}, error) {
	if a.client == nil {
		return map[string]interface{}{
			"provider":   string(a.provider),
			"model":      a.model,
			"configured": false,
		}, nil
	}

	caps, err := a.client.GetCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	caps["configured"] = true
	caps["temperature"] = a.defaults.Temperature
	caps["max_retries"] = a.maxRetries
	return caps, nil
}

// Provider returns the configured provider type
func (a *llmAdapterImpl) Provider() ProviderType {
	return a.provider
}

// Model returns the model name used for requests.
func (a *llmAdapterImpl) Model() string {
	return a.model
}

// IsConfigured returns true if the provider has usable credentials
func (a *llmAdapterImpl) IsConfigured() bool {
	return a.client != nil
}
