package config

import (
	"context"
	"time"

	"github.com/longmans/prompt-agent/internal/llm/adapter"
)

// Package config provides configuration management for the prompt agent.
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (PROMPTAGENT_* prefix, e.g. PROMPTAGENT_SERVER_PORT)
//   3. Conventional provider variables (GOOGLE_API_KEY, OPENAI_API_KEY,
//      ANTHROPIC_API_KEY, OLLAMA_BASE_URL)
//   4. YAML config file (default: /etc/prompt-agent/config.yaml, optional)
//   5. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server: host, port, grpc_port, allowed_origins, rate limits, timeouts,
//      api_keys
//   2. LLM: default_provider, temperature, timeout_seconds, max_retries,
//      max_tokens, proxy_url, daily_budget_usd, budget_warn_threshold and one
//      block per provider
//      (gemini, openai, anthropic, ollama, custom) with api_key, model,
//      base_url, max_tokens
//   3. Storage: run history in SQLite
//   4. Logging: level, format, app/audit log files and rotation
//   5. Tracing: OTLP endpoint, sampling rate, service name
//   6. Metrics: Prometheus endpoint
//
// HTTPS_PROXY / HTTP_PROXY / NO_PROXY are honoured by the provider transport
// whenever llm.proxy_url is empty.

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "/etc/prompt-agent/config.yaml"

// ProviderSettings is the configuration block of one model provider.
type ProviderSettings struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Host     string
		Port     int
		GRPCPort int // 0 disables the gRPC health service
		// AllowedOrigins lists the origins allowed by CORS and the WebSocket
		// upgrader. ["*"] allows any origin.
		AllowedOrigins         []string
		RateLimitPerMinute     int // per client, 0 disables
		RateLimitBurst         int
		ReadTimeoutSeconds     int
		WriteTimeoutSeconds    int
		ShutdownTimeoutSeconds int
		// APIKeys, when non-empty, are required on /api/v1 and /ws routes.
		APIKeys []string
	}

	// LLM provider configuration
	LLM struct {
		DefaultProvider     string
		Temperature         float64
		TimeoutSeconds      int
		MaxRetries          int
		MaxTokens           int
		ProxyURL            string
		DailyBudgetUSD      float64 // estimated spend cap per UTC day, 0 is unlimited
		BudgetWarnThreshold float64

		Gemini    ProviderSettings
		OpenAI    ProviderSettings
		Anthropic ProviderSettings
		Ollama    ProviderSettings
		Custom    ProviderSettings
	}

	// Run history
	Storage struct {
		Enabled      bool
		SQLitePath   string
		HistoryLimit int
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}

	// Tracing configuration
	Tracing struct {
		Enabled      bool
		Endpoint     string
		SamplingRate float64
		ServiceName  string
	}

	// Metrics configuration
	Metrics struct {
		Enabled bool
		Path    string
	}
}

// Provider returns the settings block for p.
func (c *Config) Provider(p adapter.ProviderType) (ProviderSettings, bool) {
	switch p {
	case adapter.ProviderGemini:
		return c.LLM.Gemini, true
	case adapter.ProviderOpenAI:
		return c.LLM.OpenAI, true
	case adapter.ProviderAnthropic:
		return c.LLM.Anthropic, true
	case adapter.ProviderOllama:
		return c.LLM.Ollama, true
	case adapter.ProviderCustom:
		return c.LLM.Custom, true
	}
	return ProviderSettings{}, false
}

// ProviderConfig resolves the adapter configuration for p, merging the
// provider block with the global LLM settings.
func (c *Config) ProviderConfig(p adapter.ProviderType) (adapter.Config, bool) {
	ps, ok := c.Provider(p)
	if !ok {
		return adapter.Config{}, false
	}
	maxTokens := ps.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.LLM.MaxTokens
	}
	return adapter.Config{
		Provider:    p,
		APIKey:      ps.APIKey,
		BaseURL:     ps.BaseURL,
		Model:       ps.Model,
		Temperature: c.LLM.Temperature,
		MaxTokens:   maxTokens,
		Timeout:     time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		MaxRetries:  c.LLM.MaxRetries,
		ProxyURL:    c.LLM.ProxyURL,
	}, true
}

// ConfiguredProviders lists the providers that can serve requests, in
// display order. Ollama counts as configured once a base URL is set.
func (c *Config) ConfiguredProviders() []string {
	var out []string
	for _, p := range adapter.Providers {
		cfg, _ := c.ProviderConfig(p)
		if !cfg.HasCredentials() {
			continue
		}
		if p == adapter.ProviderOllama && cfg.BaseURL == "" {
			continue
		}
		out = append(out, string(p))
	}
	return out
}

// DefaultModel returns the model type used when a request names none.
func (c *Config) DefaultModel() string {
	return c.LLM.DefaultProvider
}

// SupportedModels returns the model types requests may name.
func (c *Config) SupportedModels() []string {
	return c.ConfiguredProviders()
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}

// LiveCatalog exposes the model catalog of the manager's current
// configuration, so reloads take effect without rebuilding the service.
type LiveCatalog struct {
	Manager ConfigManager
}

func (l LiveCatalog) DefaultModel() string {
	return l.Manager.Get(context.Background()).DefaultModel()
}

func (l LiveCatalog) SupportedModels() []string {
	return l.Manager.Get(context.Background()).SupportedModels()
}

// ProviderLookup returns an adapter.ConfigLookup that always reads the
// manager's current configuration.
func ProviderLookup(mgr ConfigManager) adapter.ConfigLookup {
	return func(p adapter.ProviderType) (adapter.Config, bool) {
		return mgr.Get(context.Background()).ProviderConfig(p)
	}
}
