package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PROMPTAGENT_SERVER_PORT.
const EnvPrefix = "PROMPTAGENT"

var providerKeys = []string{"gemini", "openai", "anthropic", "ollama", "custom"}

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	viper      *viper.Viper
	watchChan  chan Config

	mu     sync.RWMutex
	config *Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.readConfigFile(); err != nil {
		return err
	}

	return m.refresh()
}

// readConfigFile reads the YAML file. A missing file is not an error.
func (m *viperConfigManager) readConfigFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// refresh rebuilds the Config from viper and the environment.
func (m *viperConfigManager) refresh() error {
	cfg, err := m.unmarshalConfig()
	if err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	applyEnvOverrides(cfg)

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and publishes every valid reload. Updates
// are dropped while the previous one has not been consumed.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if err := m.refresh(); err != nil {
			return
		}
		cfg := m.Get(ctx)
		if len(cfg.Validate()) > 0 {
			return
		}
		select {
		case m.watchChan <- *cfg:
		default:
		}
	})
	m.viper.WatchConfig()

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.readConfigFile(); err != nil {
		return err
	}
	return m.refresh()
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.grpc_port", defaults.Server.GRPCPort)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_minute", defaults.Server.RateLimitPerMinute)
	m.viper.SetDefault("server.rate_limit_burst", defaults.Server.RateLimitBurst)
	m.viper.SetDefault("server.read_timeout_seconds", defaults.Server.ReadTimeoutSeconds)
	m.viper.SetDefault("server.write_timeout_seconds", defaults.Server.WriteTimeoutSeconds)
	m.viper.SetDefault("server.shutdown_timeout_seconds", defaults.Server.ShutdownTimeoutSeconds)
	m.viper.SetDefault("server.api_keys", defaults.Server.APIKeys)

	// LLM defaults
	m.viper.SetDefault("llm.default_provider", defaults.LLM.DefaultProvider)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)
	m.viper.SetDefault("llm.max_retries", defaults.LLM.MaxRetries)
	m.viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)
	m.viper.SetDefault("llm.proxy_url", defaults.LLM.ProxyURL)
	m.viper.SetDefault("llm.daily_budget_usd", defaults.LLM.DailyBudgetUSD)
	m.viper.SetDefault("llm.budget_warn_threshold", defaults.LLM.BudgetWarnThreshold)
	for _, name := range providerKeys {
		ps := defaults.providerByKey(name)
		m.viper.SetDefault("llm."+name+".api_key", ps.APIKey)
		m.viper.SetDefault("llm."+name+".model", ps.Model)
		m.viper.SetDefault("llm."+name+".base_url", ps.BaseURL)
		m.viper.SetDefault("llm."+name+".max_tokens", ps.MaxTokens)
	}

	// Storage defaults
	m.viper.SetDefault("storage.enabled", defaults.Storage.Enabled)
	m.viper.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
	m.viper.SetDefault("storage.history_limit", defaults.Storage.HistoryLimit)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Tracing defaults
	m.viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	m.viper.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	m.viper.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)
	m.viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	// Metrics defaults
	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.path", defaults.Metrics.Path)
}

// unmarshalConfig unmarshals viper config into a new Config struct.
func (m *viperConfigManager) unmarshalConfig() (*Config, error) {
	cfg := &Config{}

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.GRPCPort = m.viper.GetInt("server.grpc_port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMinute = m.viper.GetInt("server.rate_limit_per_minute")
	cfg.Server.RateLimitBurst = m.viper.GetInt("server.rate_limit_burst")
	cfg.Server.ReadTimeoutSeconds = m.viper.GetInt("server.read_timeout_seconds")
	cfg.Server.WriteTimeoutSeconds = m.viper.GetInt("server.write_timeout_seconds")
	cfg.Server.ShutdownTimeoutSeconds = m.viper.GetInt("server.shutdown_timeout_seconds")
	cfg.Server.APIKeys = m.viper.GetStringSlice("server.api_keys")

	// LLM
	cfg.LLM.DefaultProvider = strings.ToLower(m.viper.GetString("llm.default_provider"))
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")
	cfg.LLM.MaxRetries = m.viper.GetInt("llm.max_retries")
	cfg.LLM.MaxTokens = m.viper.GetInt("llm.max_tokens")
	cfg.LLM.ProxyURL = m.viper.GetString("llm.proxy_url")
	cfg.LLM.DailyBudgetUSD = m.viper.GetFloat64("llm.daily_budget_usd")
	cfg.LLM.BudgetWarnThreshold = m.viper.GetFloat64("llm.budget_warn_threshold")
	for _, name := range providerKeys {
		*cfg.providerByKey(name) = ProviderSettings{
			APIKey:    m.viper.GetString("llm." + name + ".api_key"),
			Model:     m.viper.GetString("llm." + name + ".model"),
			BaseURL:   m.viper.GetString("llm." + name + ".base_url"),
			MaxTokens: m.viper.GetInt("llm." + name + ".max_tokens"),
		}
	}

	// Storage
	cfg.Storage.Enabled = m.viper.GetBool("storage.enabled")
	cfg.Storage.SQLitePath = m.viper.GetString("storage.sqlite_path")
	cfg.Storage.HistoryLimit = m.viper.GetInt("storage.history_limit")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	// Tracing
	cfg.Tracing.Enabled = m.viper.GetBool("tracing.enabled")
	cfg.Tracing.Endpoint = m.viper.GetString("tracing.endpoint")
	cfg.Tracing.SamplingRate = m.viper.GetFloat64("tracing.sampling_rate")
	cfg.Tracing.ServiceName = m.viper.GetString("tracing.service_name")

	// Metrics
	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.Path = m.viper.GetString("metrics.path")

	return cfg, nil
}

// providerByKey returns a pointer to the provider block named key.
func (c *Config) providerByKey(key string) *ProviderSettings {
	switch key {
	case "gemini":
		return &c.LLM.Gemini
	case "openai":
		return &c.LLM.OpenAI
	case "anthropic":
		return &c.LLM.Anthropic
	case "ollama":
		return &c.LLM.Ollama
	default:
		return &c.LLM.Custom
	}
}

// applyEnvOverrides applies the conventional provider environment variables.
// They only fill values the config file and PROMPTAGENT_* variables left empty.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		target *string
		envs   []string
	}{
		{&cfg.LLM.Gemini.APIKey, []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}},
		{&cfg.LLM.OpenAI.APIKey, []string{"OPENAI_API_KEY"}},
		{&cfg.LLM.OpenAI.BaseURL, []string{"OPENAI_BASE_URL"}},
		{&cfg.LLM.Anthropic.APIKey, []string{"ANTHROPIC_API_KEY"}},
		{&cfg.LLM.Ollama.BaseURL, []string{"OLLAMA_BASE_URL"}},
	}
	for _, o := range overrides {
		if *o.target != "" {
			continue
		}
		for _, env := range o.envs {
			if v := os.Getenv(env); v != "" {
				*o.target = v
				break
			}
		}
	}
}
