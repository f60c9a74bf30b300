// Package config provides configuration management for the PharmGuard services.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the feedback database and exports

	// Explanation cache
	CacheMaxItems int
	CacheTTL      time.Duration

	// Explanation collaborator
	ExplanationProvider string // groq, anthropic, none
	ExplanationTimeout  time.Duration
	GroqAPIKey          string
	AnthropicAPIKey     string

	// Optional override of the built-in knowledge tables
	KnowledgePath string

	// Transport settings
	Transport string // stdio, http
	HTTPPort  int

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:             filepath.Join(homeDir, ".pharmguard"),
		CacheMaxItems:       1000,
		CacheTTL:            24 * time.Hour,
		ExplanationProvider: "groq",
		ExplanationTimeout:  30 * time.Second,
		Transport:           "stdio",
		HTTPPort:            8081,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PHARMGUARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("PHARMGUARD_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PHARMGUARD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("PHARMGUARD_EXPLANATION_PROVIDER"); v != "" {
		cfg.ExplanationProvider = v
	}
	if v := os.Getenv("PHARMGUARD_EXPLANATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ExplanationTimeout = d
		}
	}
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	cfg.KnowledgePath = os.Getenv("PHARMGUARD_KNOWLEDGE_PATH")

	if v := os.Getenv("PHARMGUARD_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("PHARMGUARD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("PHARMGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHARMGUARD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Explanation converts the lite settings into a collaborator configuration,
// leaving endpoint and model choices at their client defaults.
func (c *LiteConfig) Explanation() domain.ExplanationConfig {
	return domain.ExplanationConfig{
		Provider: c.ExplanationProvider,
		Timeout:  c.ExplanationTimeout,
		Groq: domain.GroqConfig{
			APIKey:      c.GroqAPIKey,
			Temperature: 0.1,
		},
		Anthropic: domain.AnthropicConfig{
			APIKey:      c.AnthropicAPIKey,
			Temperature: 0.1,
		},
	}
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
