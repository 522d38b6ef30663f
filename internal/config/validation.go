package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/longmans/prompt-agent/internal/llm/adapter"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
// Missing provider credentials are not an error: such providers are simply
// left out of ConfiguredProviders.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		add("server.grpc_port", "port must be between 0 and 65535, got %d", c.Server.GRPCPort)
	} else if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		add("server.grpc_port", "grpc_port must differ from port %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		add("server.rate_limit_per_minute", "must not be negative, got %d", c.Server.RateLimitPerMinute)
	}
	if c.Server.RateLimitPerMinute > 0 && c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "burst must be at least 1 when rate limiting is enabled, got %d", c.Server.RateLimitBurst)
	}
	if c.Server.ReadTimeoutSeconds < 1 {
		add("server.read_timeout_seconds", "timeout must be at least 1 second, got %d", c.Server.ReadTimeoutSeconds)
	}
	if c.Server.WriteTimeoutSeconds < 1 {
		add("server.write_timeout_seconds", "timeout must be at least 1 second, got %d", c.Server.WriteTimeoutSeconds)
	}
	for i, key := range c.Server.APIKeys {
		if strings.TrimSpace(key) == "" {
			add(fmt.Sprintf("server.api_keys[%d]", i), "api key must not be empty")
		}
	}

	// LLM
	if _, err := adapter.ParseProviderType(c.LLM.DefaultProvider); err != nil {
		names := make([]string, len(adapter.Providers))
		for i, p := range adapter.Providers {
			names[i] = string(p)
		}
		add("llm.default_provider", "invalid provider '%s', must be one of: %s", c.LLM.DefaultProvider, strings.Join(names, ", "))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.TimeoutSeconds < 1 {
		add("llm.timeout_seconds", "timeout must be at least 1 second, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 10 {
		add("llm.max_retries", "max_retries must be between 0 and 10, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.MaxTokens < 0 {
		add("llm.max_tokens", "max_tokens must not be negative, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.DailyBudgetUSD < 0 {
		add("llm.daily_budget_usd", "daily_budget_usd must not be negative, got %g", c.LLM.DailyBudgetUSD)
	}
	if c.LLM.BudgetWarnThreshold < 0 || c.LLM.BudgetWarnThreshold > 1 {
		add("llm.budget_warn_threshold", "budget_warn_threshold must be between 0 and 1, got %g", c.LLM.BudgetWarnThreshold)
	}
	if c.LLM.ProxyURL != "" {
		if u, err := url.Parse(c.LLM.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("llm.proxy_url", "invalid proxy URL %q", c.LLM.ProxyURL)
		}
	}
	for _, name := range providerKeys {
		ps := c.providerByKey(name)
		field := "llm." + name
		if ps.BaseURL != "" {
			if u, err := url.Parse(ps.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				add(field+".base_url", "invalid URL %q", ps.BaseURL)
			}
		}
		if ps.MaxTokens < 0 {
			add(field+".max_tokens", "max_tokens must not be negative, got %d", ps.MaxTokens)
		}
	}
	if c.LLM.Custom.BaseURL != "" && c.LLM.Custom.Model == "" {
		add("llm.custom.model", "model is required when custom base_url is set")
	}

	// Storage
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		add("storage.sqlite_path", "sqlite_path is required when storage is enabled")
	}
	if c.Storage.HistoryLimit < 1 {
		add("storage.history_limit", "history_limit must be at least 1, got %d", c.Storage.HistoryLimit)
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		add("logging.format", "invalid format '%s', must be json or console", c.Logging.Format)
	}

	// Tracing
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate", "sampling_rate must be between 0 and 1, got %g", c.Tracing.SamplingRate)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		add("tracing.endpoint", "endpoint is required when tracing is enabled")
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path", "path must start with '/', got %q", c.Metrics.Path)
	}

	return errs
}
