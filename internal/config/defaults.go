package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.GRPCPort = 9090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMinute = 30
	cfg.Server.RateLimitBurst = 5
	cfg.Server.ReadTimeoutSeconds = 30
	cfg.Server.WriteTimeoutSeconds = 600 // a full run makes five model calls
	cfg.Server.ShutdownTimeoutSeconds = 15

	// LLM defaults
	cfg.LLM.DefaultProvider = "gemini"
	cfg.LLM.Temperature = 0.7
	cfg.LLM.TimeoutSeconds = 60
	cfg.LLM.MaxRetries = 3
	cfg.LLM.MaxTokens = 4096
	cfg.LLM.ProxyURL = ""
	cfg.LLM.DailyBudgetUSD = 0
	cfg.LLM.BudgetWarnThreshold = 0.8
	cfg.LLM.Gemini = ProviderSettings{Model: "gemini-2.0-flash-exp"}
	cfg.LLM.OpenAI = ProviderSettings{Model: "gpt-4o-mini"}
	cfg.LLM.Anthropic = ProviderSettings{Model: "claude-sonnet-4-20250514"}
	cfg.LLM.Ollama = ProviderSettings{Model: "llama3"}
	cfg.LLM.Custom = ProviderSettings{}

	// Storage defaults
	cfg.Storage.Enabled = true
	cfg.Storage.SQLitePath = "/var/lib/prompt-agent/runs.db"
	cfg.Storage.HistoryLimit = 50

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = ""
	cfg.Logging.AuditLogPath = "/var/log/prompt-agent/audit.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Tracing defaults
	cfg.Tracing.Enabled = false
	cfg.Tracing.Endpoint = "localhost:4318"
	cfg.Tracing.SamplingRate = 1.0
	cfg.Tracing.ServiceName = "prompt-agent"

	// Metrics defaults
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	return cfg
}
