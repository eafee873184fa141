// Package api is the HTTP transport: participants long-poll a ready endpoint
// and operators inspect or drain the quorums.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quorumgate/pkg/api/middleware"
	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
	"quorumgate/pkg/observability"
	"quorumgate/pkg/quorum"
)

// Coordinator is the slice of the endpoint the HTTP layer drives.
type Coordinator interface {
	Submit(ctx context.Context, msg endpoint.Message) error
	Snapshot(ctx context.Context) (quorum.Snapshot, error)
	Drain(ctx context.Context, role models.Role) ([]string, error)
}

// Server encapsulates the HTTP API server and its dependencies.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	coordinator Coordinator
	mailboxes   *Mailboxes
	limiter     *middleware.RateLimiter
	logger      *zap.Logger
}

// Config holds API server configuration.
type Config struct {
	Port        string
	ServiceName string
	// APIKey guards the admin routes; empty leaves them open.
	APIKey      string
	RateLimit   middleware.RateLimiterConfig
	Coordinator Coordinator
	// Mailboxes must be the same instance the endpoint replies through.
	Mailboxes *Mailboxes
	Logger    *zap.Logger
}

// NewServer creates a new API server with all dependencies.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Coordinator == nil || cfg.Mailboxes == nil {
		return nil, errors.New("coordinator and mailboxes are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "quorumgate-coordinator"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit = middleware.DefaultRateLimiterConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Middleware stack (order matters)
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	router.Use(requestLogger(cfg.Logger))
	router.Use(middleware.BodySizeLimitMiddleware(4 << 10))

	s := &Server{
		router:      router,
		coordinator: cfg.Coordinator,
		mailboxes:   cfg.Mailboxes,
		limiter:     middleware.NewRateLimiter(cfg.RateLimit, nil),
		logger:      cfg.Logger.Named("api"),
	}
	s.registerRoutes(cfg.APIKey)

	// No WriteTimeout: a ready request stays open until its quorum is released.
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. Parked ready requests are cut
// off when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(apiKey string) {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/ready", s.ready)

		quorums := v1.Group("/quorums", s.limiter.Middleware(), middleware.APIKeyAuth(apiKey))
		{
			quorums.GET("", s.getQuorums)
			quorums.POST("/:role/drain", middleware.ValidRoleParam(), s.drainQuorum)
		}
	}
}

// requestLogger logs completed HTTP requests.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
			zap.String("trace_id", observability.TraceID(c.Request.Context())))
	}
}

// healthCheck reports healthy while the endpoint loop answers.
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	status, httpStatus := "healthy", http.StatusOK
	_, err := s.coordinator.Snapshot(ctx)
	if err != nil {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":          status,
		"endpoint":        err == nil,
		"parked_requests": s.mailboxes.Len(),
		"timestamp":       time.Now().UTC(),
	})
}
