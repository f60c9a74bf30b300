// Package mcp exposes the pharmacogenomic pipeline as Model Context Protocol
// tools. The lite server needs no external services: explanations are cached
// in memory and clinician feedback is kept in SQLite.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/pharmguard-mcp-server/internal/config"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/knowledge"
	"github.com/pharmguard-mcp-server/internal/service"
	"github.com/pharmguard-mcp-server/pkg/external"
)

const (
	serverName    = "pharmguard-mcp-server-lite"
	serverVersion = "v1.0.0"

	transportStdio = "stdio"
	transportHTTP  = "http"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config        *litecfg.LiteConfig
	mcpServer     *mcp.Server
	tools         *Toolset
	analyzer      *service.Analyzer
	feedbackStore feedback.Store
	cache         *external.MemoryCache
	provider      string
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		server.logger.SetLevel(level)
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	kb, err := loadKnowledge(cfg.KnowledgePath)
	if err != nil {
		return nil, err
	}

	server.cache = external.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	explainer, provider, err := service.NewConfiguredExplainer(cfg.Explanation(), server.cache, cfg.CacheTTL, server.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure explanations: %w", err)
	}
	server.provider = provider
	server.analyzer = service.NewAnalyzer(kb, explainer, server.logger)

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.tools = NewToolset(server.analyzer, server.feedbackStore, cfg.ExportDir(), server.logger)
	server.tools.Register(server.mcpServer)

	server.logger.WithFields(logrus.Fields{
		"provider":  provider,
		"drugs":     len(kb.SupportedDrugs()),
		"data_dir":  cfg.DataDir,
		"transport": cfg.Transport,
	}).Info("Lite server initialized successfully")

	return server, nil
}

func loadKnowledge(path string) (*knowledge.KnowledgeBase, error) {
	if path == "" {
		return knowledge.Default()
	}
	kb, err := knowledge.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge tables: %w", err)
	}
	return kb, nil
}

// Start serves MCP on the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting PharmGuard MCP Server (Lite)...")

	switch s.config.Transport {
	case "", transportStdio:
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case transportHTTP:
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.WithField("addr", httpServer.Addr).Info("MCP HTTP transport listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// MCPServer returns the underlying SDK server.
func (s *LiteServer) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Provider names the active explanation backend.
func (s *LiteServer) Provider() string {
	return s.provider
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			return err
		}
	}
	return nil
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}

// GetCache returns the explanation cache.
func (s *LiteServer) GetCache() *external.MemoryCache {
	return s.cache
}
