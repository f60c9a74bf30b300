// Package main provides the standalone MCP entry point for PharmGuard.
// It needs no external services: explanations are cached in memory and
// clinician feedback lives in SQLite under the data directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/config"
	"github.com/pharmguard-mcp-server/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// stdout belongs to the stdio transport.
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"data_dir":  cfg.DataDir,
	}).Info("Starting PharmGuard MCP server (lite)")

	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		server.Close()
		os.Exit(1)
	}

	logger.Info("PharmGuard MCP server (lite) stopped")
}
