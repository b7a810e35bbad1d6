package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Pipeline is the subset of the orchestrator the tools need.
type Pipeline interface {
	Run(ctx context.Context, req orchestrator.Request) *orchestrator.Result
	Agent() orchestrator.Agent
	Stages() orchestrator.Stages
}

// Config configures the MCP server.
type Config struct {
	Name    string
	Version string
	Logger  *logging.Logger
	Metrics *Metrics
}

// DefaultConfig returns defaults with a no-op logger.
func DefaultConfig() *Config {
	return &Config{
		Name:    "agentd",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// Server registers pipeline tools on an MCP server.
type Server struct {
	mcp      *mcp.Server
	pipeline Pipeline
	metrics  *Metrics
	logger   *logging.Logger
}

// NewServer creates the server and registers its tools.
func NewServer(cfg *Config, pipeline Pipeline) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil, logger)
	}

	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
