package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/api"
	"github.com/pharmguard-mcp-server/internal/config"
	"github.com/pharmguard-mcp-server/internal/database"
	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/knowledge"
	"github.com/pharmguard-mcp-server/internal/repository"
	"github.com/pharmguard-mcp-server/internal/service"
	"github.com/pharmguard-mcp-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	if configManager.IsProduction() || cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	kb, err := loadKnowledge(cfg.Knowledge.Path)
	if err != nil {
		return err
	}

	cache, closeCache, err := newExplanationCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	explainer, provider, err := service.NewConfiguredExplainer(cfg.Explanation, cache, cfg.Cache.DefaultTTL, logger)
	if err != nil {
		return fmt.Errorf("configuring explanations: %w", err)
	}

	deps := api.Dependencies{
		Analyzer: service.NewAnalyzer(kb, explainer, logger),
		Provider: provider,
		Logger:   logger,
	}

	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.ApplySchema(ctx, configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger); err != nil {
			return err
		}

		deps.Reports = repository.NewReportRepository(db.Pool, logger)
		deps.DatabaseHealth = db.Health
	}

	store, err := newFeedbackStore(cfg.Feedback, configManager.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer store.Close()
	deps.Feedback = store

	logger.WithFields(logrus.Fields{
		"addr":        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"environment": cfg.Environment,
		"provider":    provider,
		"persistence": cfg.Database.Enabled,
		"feedback":    cfg.Feedback.Backend,
	}).Info("Starting PharmGuard API server")

	return api.NewServer(cfg.Server, deps).Start(ctx)
}

func loadKnowledge(path string) (*knowledge.KnowledgeBase, error) {
	if path == "" {
		return knowledge.Default()
	}
	kb, err := knowledge.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge tables: %w", err)
	}
	return kb, nil
}

// newExplanationCache prefers Redis when configured and falls back to an
// in-process LRU when Redis is absent or unreachable.
func newExplanationCache(ctx context.Context, cfg domain.CacheConfig, logger *logrus.Logger) (domain.ExplanationCache, func(), error) {
	if cfg.RedisURL != "" {
		redisCache, err := external.NewRedisCache(ctx, cfg)
		if err == nil {
			logger.Info("Using Redis explanation cache")
			return redisCache, func() { redisCache.Close() }, nil
		}
		logger.WithError(err).Warn("Redis unavailable, using in-memory explanation cache")
	}
	return external.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL), func() {}, nil
}

func newFeedbackStore(cfg domain.FeedbackConfig, databaseURL string) (feedback.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return feedback.NewPostgresStoreFromURL(databaseURL)
	default:
		return feedback.NewSQLiteStore(cfg.SQLitePath)
	}
}

func newLogger(cfg domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.SetOutput(f)
	}

	return logger, nil
}
