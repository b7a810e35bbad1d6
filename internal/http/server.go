// Package http serves the pipeline over a small JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// maxRequestBody bounds POST bodies. Requests are prose, not uploads.
const maxRequestBody = "1M"

// Pipeline is the subset of the orchestrator the server needs.
type Pipeline interface {
	Run(ctx context.Context, req orchestrator.Request) *orchestrator.Result
	Agent() orchestrator.Agent
	Stages() orchestrator.Stages
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes health, agent and run endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	runs     *RunStore
	logger   *logging.Logger
	config   *Config
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.echo.GET("/metrics", echo.WrapHandler(h))
	}
}

// WithHTTPMetrics records OTEL request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.echo.Use(m.MetricsMiddleware())
	}
}

// WithRunStore replaces the default in-memory run store.
func WithRunStore(rs *RunStore) Option {
	return func(s *Server) {
		s.runs = rs
	}
}

// NewServer creates a server. A nil cfg listens on localhost:9090.
func NewServer(pipeline Pipeline, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		runs:     NewRunStore(DefaultRunStoreSize),
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxRequestBody))
	e.Use(s.requestLogger)

	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), reqID)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/agent", s.handleAgent)
	v1.POST("/runs", s.handleCreateRun)
	v1.GET("/runs/:id", s.handleGetRun)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AgentResponse is the body of GET /api/v1/agent.
type AgentResponse struct {
	orchestrator.Agent
	Strategies map[orchestrator.Stage]string `json:"strategies"`
}

// RunRequest is the body of POST /api/v1/runs.
type RunRequest struct {
	Request string `json:"request"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAgent(c echo.Context) error {
	return c.JSON(http.StatusOK, AgentResponse{
		Agent:      s.pipeline.Agent(),
		Strategies: s.pipeline.Stages().Describe(),
	})
}

func (s *Server) handleCreateRun(c echo.Context) error {
	var body RunRequest
	if err := c.Bind(&body); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res := s.pipeline.Run(c.Request().Context(), orchestrator.Request(body.Request))
	s.runs.Put(res)
	return c.JSON(statusFor(res.State), res)
}

func (s *Server) handleGetRun(c echo.Context) error {
	res, ok := s.runs.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(statusFor(res.State), res)
}

// statusFor maps a terminal state to an HTTP status. Rejection is a normal
// outcome of a well-formed request.
func statusFor(state orchestrator.State) int {
	switch state {
	case orchestrator.StateDone, orchestrator.StateRejected:
		return http.StatusOK
	case orchestrator.StateCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// Handler returns the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
