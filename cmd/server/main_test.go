package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/pkg/external"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(domain.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger, err = newLogger(domain.LoggingConfig{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "server.log")})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = newLogger(domain.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewExplanationCache(t *testing.T) {
	ctx := context.Background()

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache, closeFn, err := newExplanationCache(ctx, domain.CacheConfig{
			RedisURL:   "redis://" + mr.Addr(),
			DefaultTTL: time.Hour,
		}, quietLogger())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &external.RedisCache{}, cache)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		cache, closeFn, err := newExplanationCache(ctx, domain.CacheConfig{
			RedisURL:   "redis://127.0.0.1:1",
			DefaultTTL: time.Hour,
			MaxItems:   10,
		}, quietLogger())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &external.MemoryCache{}, cache)
	})

	t.Run("memory", func(t *testing.T) {
		cache, closeFn, err := newExplanationCache(ctx, domain.CacheConfig{MaxItems: 10, DefaultTTL: time.Hour}, quietLogger())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &external.MemoryCache{}, cache)
	})
}

func TestNewFeedbackStore_SQLite(t *testing.T) {
	store, err := newFeedbackStore(domain.FeedbackConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "feedback.db"),
	}, "")
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &feedback.SQLiteStore{}, store)
}

func TestLoadKnowledge(t *testing.T) {
	kb, err := loadKnowledge("")
	require.NoError(t, err)
	assert.True(t, kb.IsSupported("CODEINE"))

	_, err = loadKnowledge("/nonexistent/tables.yaml")
	assert.Error(t, err)
}
