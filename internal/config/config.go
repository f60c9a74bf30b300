package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfigFile reads configuration from an explicit file instead of searching
// the default locations.
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from .env, the config file and the environment
func (m *Manager) loadConfig() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pharmguard/")
	}

	v.SetEnvPrefix("PHARMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys are commonly exported without the prefix.
	_ = v.BindEnv("explanation.groq.api_key", "PHARMGUARD_EXPLANATION_GROQ_API_KEY", "GROQ_API_KEY")
	_ = v.BindEnv("explanation.anthropic.api_key", "PHARMGUARD_EXPLANATION_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_upload_bytes", 5*1024*1024)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.tls_enabled", false)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "pharmguard")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "1m")
	v.SetDefault("database.migrations_path", "")

	// Explanation collaborator defaults
	v.SetDefault("explanation.provider", "groq")
	v.SetDefault("explanation.timeout", "30s")
	v.SetDefault("explanation.groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("explanation.groq.api_key", "")
	v.SetDefault("explanation.groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("explanation.groq.max_tokens", 500)
	v.SetDefault("explanation.groq.temperature", 0.1)
	v.SetDefault("explanation.groq.timeout", "30s")
	v.SetDefault("explanation.groq.rate_limit", 5)
	v.SetDefault("explanation.anthropic.base_url", "")
	v.SetDefault("explanation.anthropic.api_key", "")
	v.SetDefault("explanation.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("explanation.anthropic.max_tokens", 500)
	v.SetDefault("explanation.anthropic.temperature", 0.1)
	v.SetDefault("explanation.anthropic.timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	v.SetDefault("feedback.backend", "sqlite")
	v.SetDefault("feedback.sqlite_path", "pharmguard-feedback.db")

	v.SetDefault("knowledge.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetExplanationConfig returns the text-generation collaborator configuration
func (m *Manager) GetExplanationConfig() *domain.ExplanationConfig {
	return &m.config.Explanation
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max upload bytes must be positive")
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	switch strings.ToLower(config.Explanation.Provider) {
	case "", "groq", "anthropic", "none":
	default:
		return fmt.Errorf("invalid explanation provider: %s", config.Explanation.Provider)
	}

	switch strings.ToLower(config.Feedback.Backend) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid feedback backend: %s", config.Feedback.Backend)
	}
	if strings.EqualFold(config.Feedback.Backend, "postgres") && !config.Database.Enabled {
		return fmt.Errorf("postgres feedback backend requires database.enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection as a postgres:// URL, the
// form golang-migrate expects.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: "sslmode=" + url.QueryEscape(db.SSLMode),
	}
	return u.String()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
