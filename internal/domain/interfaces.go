package domain

import (
	"context"
	"time"
)

// TextGenerator is an external text-generation collaborator. Implementations
// send a single prompt and return the raw completion text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ExplanationCache stores collaborator completions keyed by a context hash.
type ExplanationCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ReportRepository persists analysis results
type ReportRepository interface {
	Create(ctx context.Context, result *AnalysisResult) (*StoredReport, error)
	GetByID(ctx context.Context, id string) (*StoredReport, error)
	ListByPatient(ctx context.Context, patientID string) ([]*StoredReport, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetExplanationConfig() *ExplanationConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
