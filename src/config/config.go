// Package config provides configuration management for the Freeda support backend.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Conversational gateway
	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string
	FallbackModels []string
	MaxConcurrency int
	MaxRetries     int
	BackoffBase    time.Duration
	RequestTimeout time.Duration

	// Circuit breaker
	FailureThreshold int
	RecoveryWindow   time.Duration

	// Storage
	StorageType string
	TicketsFile string
	PostgresDSN string

	// Event mirror. Empty means events stay in process.
	RedpandaBrokers []string

	// Enrichment
	EnableAnalytics   bool
	EnableRAG         bool
	KnowledgeBaseFile string
	CannedRepliesFile string
	SystemPrompt      string

	// HTTP surface
	HTTPAddr           string
	AllowedOrigins     []string
	RateLimitPerMinute int

	LogLevel string
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		MistralBaseURL:     "https://api.mistral.ai",
		MistralModel:       "mistral-medium",
		FallbackModels:     []string{"mistral-small", "mistral-tiny"},
		MaxConcurrency:     3,
		MaxRetries:         2,
		BackoffBase:        time.Second,
		RequestTimeout:     60 * time.Second,
		FailureThreshold:   4,
		RecoveryWindow:     60 * time.Second,
		StorageType:        StorageMemory,
		TicketsFile:        "data/tickets.json",
		EnableAnalytics:    true,
		EnableRAG:          false,
		KnowledgeBaseFile:  "data/knowledge_base.json",
		HTTPAddr:           ":8000",
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 10,
		LogLevel:           "info",
	}
}

// Load reads the given .env files (default ".env"), ignoring missing ones,
// then loads configuration from the environment. Variables already set in
// the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	p := &parser{}

	cfg.MistralAPIKey = os.Getenv("MISTRAL_API_KEY")
	cfg.MistralBaseURL = getEnv("MISTRAL_API_URL", cfg.MistralBaseURL)
	cfg.MistralModel = getEnv("MISTRAL_MODEL", cfg.MistralModel)
	cfg.FallbackModels = getEnvList("MISTRAL_FALLBACK_MODELS", cfg.FallbackModels)
	cfg.MaxConcurrency = p.getInt("MISTRAL_MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.MaxRetries = p.getInt("MISTRAL_MAX_RETRIES", cfg.MaxRetries)
	cfg.BackoffBase = p.getSeconds("MISTRAL_BACKOFF_SECONDS", cfg.BackoffBase)
	cfg.RequestTimeout = p.getSeconds("MISTRAL_TIMEOUT_SECONDS", cfg.RequestTimeout)

	cfg.FailureThreshold = p.getInt("CIRCUIT_FAILURE_THRESHOLD", cfg.FailureThreshold)
	cfg.RecoveryWindow = p.getSeconds("CIRCUIT_RECOVERY_SECONDS", cfg.RecoveryWindow)

	cfg.StorageType = strings.ToLower(getEnv("STORAGE_TYPE", cfg.StorageType))
	cfg.TicketsFile = getEnv("TICKETS_FILE", cfg.TicketsFile)
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.RedpandaBrokers = getEnvList("REDPANDA_BROKERS", nil)

	cfg.EnableAnalytics = p.getBool("ENABLE_AUTO_ANALYTICS", cfg.EnableAnalytics)
	cfg.EnableRAG = p.getBool("ENABLE_RAG", cfg.EnableRAG)
	cfg.KnowledgeBaseFile = getEnv("KNOWLEDGE_BASE_FILE", cfg.KnowledgeBaseFile)
	cfg.CannedRepliesFile = os.Getenv("CANNED_REPLIES_FILE")
	cfg.SystemPrompt = os.Getenv("SYSTEM_PROMPT")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.RateLimitPerMinute = p.getInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("MISTRAL_MAX_CONCURRENCY must be >= 1, got %d", c.MaxConcurrency))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MISTRAL_MAX_RETRIES must be >= 0, got %d", c.MaxRetries))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MISTRAL_TIMEOUT_SECONDS must be > 0"))
	}
	if c.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("CIRCUIT_FAILURE_THRESHOLD must be >= 1, got %d", c.FailureThreshold))
	}
	if c.RecoveryWindow <= 0 {
		errs = append(errs, fmt.Errorf("CIRCUIT_RECOVERY_SECONDS must be > 0"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0, got %d", c.RateLimitPerMinute))
	}

	switch c.StorageType {
	case StorageMemory:
	case StorageFile:
		if c.TicketsFile == "" {
			errs = append(errs, fmt.Errorf("TICKETS_FILE is required when STORAGE_TYPE=file"))
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("POSTGRES_DSN is required when STORAGE_TYPE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_TYPE must be one of memory, file, postgres, got %q", c.StorageType))
	}
	return errors.Join(errs...)
}

// GatewayEnabled reports whether an API key is configured.
func (c *Config) GatewayEnabled() bool {
	return c.MistralAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return n
}

func (p *parser) getSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a number of seconds, got %q", key, value))
		return defaultValue
	}
	return time.Duration(f * float64(time.Second))
}

func (p *parser) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be true or false, got %q", key, value))
		return defaultValue
	}
	return b
}
