package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
)

const applicationName = "pharmguard"

// Config describes the report database and its pool limits.
type Config struct {
	Host        string
	Port        int
	Database    string
	Username    string
	Password    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// ConfigFromDomain maps the application database settings onto pool settings.
func ConfigFromDomain(c domain.DatabaseConfig) Config {
	return Config{
		Host:        c.Host,
		Port:        c.Port,
		Database:    c.Database,
		Username:    c.Username,
		Password:    c.Password,
		SSLMode:     c.SSLMode,
		MaxConns:    int32(c.MaxOpenConns),
		MinConns:    int32(c.MaxIdleConns),
		MaxConnLife: c.ConnMaxLifetime,
		MaxConnIdle: c.ConnMaxIdleTime,
	}
}

// DSN renders the keyword/value connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName

	// zero keeps the pgxpool default
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = min(c.MinConns, pc.MaxConns)
	}
	if c.MaxConnLife > 0 {
		pc.MaxConnLifetime = c.MaxConnLife
	}
	if c.MaxConnIdle > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdle
	}
	return pc, nil
}

// DB is the pgx pool shared by the report repository and health checks.
type DB struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewConnection opens the pool and verifies it with a ping.
func NewConnection(ctx context.Context, config Config, logger *logrus.Logger) (*DB, error) {
	pc, err := config.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", config.Host, config.Port, err)
	}

	logger.WithFields(logrus.Fields{
		"host":      config.Host,
		"database":  config.Database,
		"max_conns": pc.MaxConns,
	}).Info("Report database connected")

	return &DB{Pool: pool, log: logger}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	if db.Pool == nil {
		return
	}
	db.Pool.Close()
	db.log.Debug("Report database pool closed")
}

// Health satisfies api.HealthCheck.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Stats returns connection pool statistics
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}
