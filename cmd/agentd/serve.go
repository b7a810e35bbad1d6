package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	agenthttp "github.com/fyrsmithlabs/agentd/internal/http"
	agentmcp "github.com/fyrsmithlabs/agentd/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API.

Endpoints:
  GET  /health           liveness
  GET  /api/v1/agent     agent profile and strategies
  POST /api/v1/runs      run a request {"request": "..."}
  GET  /api/v1/runs/:id  fetch a recent run
  GET  /metrics          Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			cfg := &agenthttp.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			srv, err := agenthttp.NewServer(a.pipeline, a.logger, cfg,
				agenthttp.WithMetricsHandler(a.metrics.Handler()),
				agenthttp.WithHTTPMetrics(agenthttp.NewHTTPMetrics(a.telemetry.Meter(instrumentationName), a.logger)),
			)
			if err != nil {
				return fmt.Errorf("creating http server: %w", err)
			}

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- srv.Start()
			}()

			select {
			case err := <-serverErrors:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info(ctx, "shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(shutdownCtx, "server shutdown error", zap.Error(err))
				return err
			}
			a.logger.Info(shutdownCtx, "server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override server.host")
	cmd.Flags().IntVar(&port, "port", 0, "override server.http_port")
	return cmd
}

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the pipeline as MCP tools over stdio",
		Long: `Expose the pipeline as MCP tools over stdio.

Tools: run_pipeline, describe_agent, validate_artifacts.
Logs are written to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			srv, err := agentmcp.NewServer(&agentmcp.Config{
				Name:    "agentd",
				Version: version,
				Logger:  a.logger,
				Metrics: agentmcp.NewMetrics(a.telemetry.Meter(instrumentationName), a.logger),
			}, a.pipeline)
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}

			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
