// Package http provides the API server, routing and request middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jobHTTP "github.com/allisson/escrowd/internal/job/http"
	webhookHTTP "github.com/allisson/escrowd/internal/webhook/http"
)

// ServerConfig holds the settings the API server needs from the application
// configuration.
type ServerConfig struct {
	Host string
	Port int

	// APIKeyHash enables API-key authentication on job endpoints when set.
	APIKeyHash string

	// IP rate limiting for the inbound webhook endpoint.
	RateLimitWebhookEnabled        bool
	RateLimitWebhookRequestsPerSec float64
	RateLimitWebhookBurst          int

	CORSEnabled      bool
	CORSAllowOrigins string
}

// Server represents the API HTTP server.
type Server struct {
	config            ServerConfig
	server            *http.Server
	router            *gin.Engine
	logger            *slog.Logger
	db                *sql.DB
	jobHandler        *jobHTTP.JobHandler
	webhookHandler    *webhookHTTP.WebhookHandler
	metricsMiddleware gin.HandlerFunc
}

// NewServer creates a new API server with routes and middleware wired.
// metricsMiddleware may be nil when metrics are disabled.
func NewServer(
	config ServerConfig,
	logger *slog.Logger,
	db *sql.DB,
	jobHandler *jobHTTP.JobHandler,
	webhookHandler *webhookHTTP.WebhookHandler,
	metricsMiddleware gin.HandlerFunc,
) *Server {
	s := &Server{
		config:            config,
		logger:            logger,
		db:                db,
		jobHandler:        jobHandler,
		webhookHandler:    webhookHandler,
		metricsMiddleware: metricsMiddleware,
	}

	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// buildRouter assembles the gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(s.config.CORSEnabled, s.config.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if s.metricsMiddleware != nil {
		router.Use(s.metricsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")

	jobs := v1.Group("/jobs")
	if s.config.APIKeyHash != "" {
		jobs.Use(APIKeyAuthMiddleware(s.config.APIKeyHash, s.logger))
	}
	jobs.POST("", s.jobHandler.Create)
	jobs.GET("", s.jobHandler.List)
	jobs.GET("/:id", s.jobHandler.Get)
	jobs.POST("/:id/cancel", s.jobHandler.Cancel)

	webhook := v1.Group("/webhook")
	if s.config.RateLimitWebhookEnabled {
		webhook.Use(IPRateLimitMiddleware(
			s.config.RateLimitWebhookRequestsPerSec,
			s.config.RateLimitWebhookBurst,
			s.logger,
		))
	}
	webhook.POST("", s.webhookHandler.Receive)

	return router
}

// healthHandler reports liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports readiness, checking the database connection.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.db.PingContext(ctx) != nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the API HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the API HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
