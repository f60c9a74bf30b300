package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/domain"
	"github.com/pharmguard-mcp-server/internal/feedback"
	"github.com/pharmguard-mcp-server/internal/middleware"
	"github.com/pharmguard-mcp-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthCheck reports the status of an optional backing service.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP layer serves. Reports and
// Feedback are optional; endpoints backed by a nil store answer 503.
type Dependencies struct {
	Analyzer *service.Analyzer
	Reports  domain.ReportRepository
	Feedback feedback.Store
	// DatabaseHealth is consulted by /health when set.
	DatabaseHealth HealthCheck
	// Provider names the explanation backend for /health.
	Provider string
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	config domain.ServerConfig
	deps   Dependencies
	log    *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config domain.ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadBytes + 1<<20

	limiter := middleware.NewRateLimiter(config.RateLimit, config.RateBurst)
	router.Use(
		gin.Recovery(),
		middleware.CorrelationID(),
		middleware.SecurityHeaders(),
		cors.New(corsConfig(config.AllowedOrigins)),
		middleware.AuditLogger(logger),
		limiter.Middleware(),
		middleware.RequestTimeout(config.RequestTimeout),
	)

	s := &Server{
		config: config,
		deps:   deps,
		log:    logger,
		router: router,
	}
	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Correlation-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Correlation-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithFields(logrus.Fields{
		"addr": addr,
		"tls":  s.config.TLSEnabled,
	}).Info("HTTP server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/drugs", s.handleDrugs)
		v1.GET("/reports", s.handleListReports)
		v1.GET("/reports/:id", s.handleGetReport)
		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
	}
}

func (s *Server) fail(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}
