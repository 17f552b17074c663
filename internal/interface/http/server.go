// Package http implements the REST API of the course path engine on gin.
// Identity arrives in trusted gateway headers; every domain error maps to a
// stable status code and error envelope.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillmate/skillmate-core/config"
	"github.com/skillmate/skillmate-core/internal/application/command"
	"github.com/skillmate/skillmate-core/internal/application/query"
	"github.com/skillmate/skillmate-core/internal/interface/http/handlers"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout time.Duration

	// WriteTimeout must exceed the generation timeout, generate is synchronous.
	WriteTimeout time.Duration

	IdleTimeout time.Duration

	// MaxBodyBytes caps request bodies (default: 1 MB).
	MaxBodyBytes int64

	// EnableMetrics exposes /metrics.
	EnableMetrics bool

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  90 * time.Second,
		IdleTimeout:   60 * time.Second,
		MaxBodyBytes:  1 << 20,
		EnableMetrics: true,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (write side)
	Generate     *command.GenerateCoursePathHandler
	Enrollment   *command.EnrollmentHandler
	CompleteStep *command.MarkTopicCompleteHandler
	SubmitReview *command.SubmitReviewHandler
	HelpfulVote  *command.MarkReviewHelpfulHandler
	Catalogue    *command.CatalogueHandler
	RegisterUser *command.RegisterUserHandler

	// Queries (read side)
	GetCoursePath      *query.GetCoursePathHandler
	GetUserCoursePaths *query.GetUserCoursePathsHandler
	GetProgress        *query.GetProgressHandler
	PathProgress       *query.GetLearningPathProgressHandler
	Browse             *query.CatalogueHandler

	// Features gates optional endpoints. Nil enables everything.
	Features *config.FeatureFlags

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker("", 0)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(
		handlers.RequestID(s.logger),
		handlers.Recovery(s.logger),
		handlers.AccessLog(s.logger),
		handlers.SecurityHeaders(),
		handlers.BodyLimit(cfg.MaxBodyBytes),
		handlers.Identity(),
	)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.engine
	r.NoRoute(func(c *gin.Context) {
		respondStatus(c, http.StatusNotFound, "not_found", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		respondStatus(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Metrics
	// ─────────────────────────────────────────────────────────────────────────

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	if s.config.EnableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	auth := api.Group("", handlers.RequireUser())

	// ─────────────────────────────────────────────────────────────────────────
	// Course paths
	// ─────────────────────────────────────────────────────────────────────────

	api.GET("/course-paths/search", s.handleSearchCoursePaths)
	api.GET("/course-paths/:id", s.handleGetCoursePath)
	auth.POST("/course-paths", s.handleGenerateCoursePath)
	auth.POST("/course-paths/:id/retry", s.handleRetryGeneration)
	auth.POST("/course-paths/:id/archive", s.handleArchiveCoursePath)

	// ─────────────────────────────────────────────────────────────────────────
	// Enrollment & progress
	// ─────────────────────────────────────────────────────────────────────────

	auth.PUT("/course-paths/:id/enrollment", s.handleEnroll)
	auth.DELETE("/course-paths/:id/enrollment", s.handleUnenroll)
	auth.POST("/course-paths/:id/topics/:index/complete", s.handleMarkTopicComplete)
	auth.GET("/course-paths/:id/progress", s.handleGetProgress)

	// ─────────────────────────────────────────────────────────────────────────
	// Reviews
	// ─────────────────────────────────────────────────────────────────────────

	api.GET("/course-paths/:id/reviews", s.handleListReviews)
	auth.PUT("/course-paths/:id/reviews", s.handleSubmitReview)
	auth.POST("/reviews/:id/helpful", s.handleMarkReviewHelpful)

	// ─────────────────────────────────────────────────────────────────────────
	// Users & learning paths
	// ─────────────────────────────────────────────────────────────────────────

	auth.POST("/users", s.handleRegisterUser)
	auth.GET("/users/me/course-paths", s.handleGetMyCoursePaths)
	auth.POST("/learning-paths", s.handleCreateLearningPath)
	api.GET("/learning-paths/:id", s.handleGetLearningPath)
	auth.GET("/learning-paths/:id/progress", s.handleGetLearningPathProgress)
}

// featureEnabled consults the flag set for the calling user.
func (s *Server) featureEnabled(c *gin.Context, name string) bool {
	if s.deps.Features == nil {
		return true
	}
	return s.deps.Features.IsEnabled(name, &config.FeatureContext{UserID: handlers.UserID(c)})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
