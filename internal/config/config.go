package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the failwatch server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Source   SourceConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	LLM      LLMConfig
	Mail     MailConfig
	Pipeline PipelineConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SourceConfig points at the monitored failures database. It may be the
// same instance as the primary database or a different one.
type SourceConfig struct {
	URL   string
	Table string
}

type RedisConfig struct {
	URL string
}

type LedgerConfig struct {
	// Backend is "file" or "postgres".
	Backend string
	// FilePath backs the file ledger; ignored for postgres.
	FilePath string
}

type LLMConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Gemini           GeminiConfig
	Anthropic        AnthropicConfig
	Ollama           OllamaConfig
	// AnalysisCacheTTL enables the Redis analysis cache when positive.
	AnalysisCacheTTL time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type MailConfig struct {
	SMTPHost         string
	SMTPPort         int
	Sender           string
	DefaultRecipient string
}

type PipelineConfig struct {
	ThrottleWindow  time.Duration
	DispatchTimeout time.Duration
}

type AuthConfig struct {
	// BootstrapKey seeds an admin API key at startup when no keys exist.
	BootstrapKey string
}

var validProviders = map[string]bool{
	"gemini":    true,
	"anthropic": true,
	"ollama":    true,
}

var validLedgerBackends = map[string]bool{
	"file":     true,
	"postgres": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FAILWATCH_PORT", 8080),
			Env:  envString("FAILWATCH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Source: SourceConfig{
			URL:   envString("SOURCE_DATABASE_URL", os.Getenv("DATABASE_URL")),
			Table: envString("SOURCE_TABLE", "failed_job_archive"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Ledger: LedgerConfig{
			Backend:  envString("LEDGER_BACKEND", "file"),
			FilePath: envString("LEDGER_FILE", "data/sent_log.json"),
		},
		LLM: LLMConfig{
			Provider:         envString("LLM_PROVIDER", "gemini"),
			InferenceTimeout: envDurationSecs("LLM_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Gemini: GeminiConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-flash-latest"),
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			AnalysisCacheTTL: envDuration("ANALYSIS_CACHE_TTL", 24*time.Hour),
		},
		Mail: MailConfig{
			SMTPHost:         os.Getenv("SMTP_HOST"),
			SMTPPort:         envInt("SMTP_PORT", 25),
			Sender:           os.Getenv("SENDER_EMAIL"),
			DefaultRecipient: envString("DEFAULT_RECIPIENT", os.Getenv("SENDER_EMAIL")),
		},
		Pipeline: PipelineConfig{
			ThrottleWindow:  envDuration("THROTTLE_WINDOW", 24*time.Hour),
			DispatchTimeout: envDurationSecs("DISPATCH_TIMEOUT_SECS", 30*time.Second),
		},
		Auth: AuthConfig{
			BootstrapKey: os.Getenv("BOOTSTRAP_API_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validLedgerBackends[c.Ledger.Backend] {
		return fmt.Errorf("LEDGER_BACKEND must be one of file, postgres; got %q", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "file" && c.Ledger.FilePath == "" {
		return fmt.Errorf("LEDGER_FILE is required when LEDGER_BACKEND is file")
	}

	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("LLM_PROVIDER must be one of gemini, anthropic, ollama; got %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "gemini" && c.LLM.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
	}
	if c.LLM.Provider == "anthropic" && c.LLM.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER is anthropic")
	}

	if c.Mail.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required")
	}
	if c.Mail.Sender == "" {
		return fmt.Errorf("SENDER_EMAIL is required")
	}
	if !strings.Contains(c.Mail.Sender, "@") {
		return fmt.Errorf("SENDER_EMAIL must be an email address, got %q", c.Mail.Sender)
	}

	if c.Pipeline.ThrottleWindow <= 0 {
		return fmt.Errorf("THROTTLE_WINDOW must be positive, got %s", c.Pipeline.ThrottleWindow)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
