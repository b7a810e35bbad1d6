package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/workflows"
)

// dialTemporal connects to the frontend. A nil logger keeps the SDK default.
func dialTemporal(cfg config.TemporalConfig, logger *logging.Logger) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}
	if logger != nil {
		opts.Logger = workflows.NewTemporalLogger(logger)
	}
	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

func newWorkerCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run pipeline workflows from Temporal",
		Long: `Run pipeline workflows from Temporal.

The worker polls temporal.task_queue and executes PipelineWorkflow: the
pipeline activity runs once, and Done runs submitted with persist are written
through the sink with retries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			c, err := dialTemporal(a.cfg.Temporal, a.logger)
			if err != nil {
				return err
			}
			defer c.Close()
			a.logger.Info(ctx, "temporal client connected", zap.String("host", a.cfg.Temporal.HostPort))

			wfMetrics, err := workflows.NewMetrics(a.telemetry.Meter(instrumentationName))
			if err != nil {
				return fmt.Errorf("creating workflow metrics: %w", err)
			}
			activities := &workflows.Activities{Pipeline: a.pipeline, Metrics: wfMetrics}
			if a.sink != nil {
				activities.Sink = a.sink
			}

			w := worker.New(c, a.cfg.Temporal.TaskQueue, worker.Options{})
			workflows.Register(w, activities)

			if err := w.Start(); err != nil {
				return fmt.Errorf("worker error: %w", err)
			}
			a.logger.Info(ctx, "worker started",
				zap.String("task_queue", a.cfg.Temporal.TaskQueue),
				zap.Bool("sink", a.sink != nil),
			)

			<-ctx.Done()
			a.logger.Info(ctx, "shutdown signal received")
			w.Stop()
			a.logger.Info(ctx, "worker stopped gracefully")
			return nil
		},
	}
}

func newSubmitCmd(root *rootOptions) *cobra.Command {
	var (
		persist bool
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "submit request...",
		Short: "Start a pipeline workflow on Temporal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.LoadWithFile(root.configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			c, err := dialTemporal(cfg.Temporal, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			run, err := workflows.Submit(ctx, c, cfg.Temporal.TaskQueue, workflows.PipelineInput{
				Request: strings.Join(args, " "),
				Persist: persist,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !wait {
				return writeJSON(out, map[string]string{
					"workflow_id": run.GetID(),
					"run_id":      run.GetRunID(),
				})
			}

			var result workflows.PipelineOutput
			if err := run.Get(ctx, &result); err != nil {
				return fmt.Errorf("waiting for workflow %s: %w", run.GetID(), err)
			}
			if err := writeJSON(out, result); err != nil {
				return err
			}
			return awaitedExit(result)
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "persist Done runs through the worker's sink")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the workflow and print its result")
	return cmd
}

// awaitedExit maps a finished workflow to the exit code run would use.
func awaitedExit(out workflows.PipelineOutput) error {
	state := orchestrator.State(out.Run.State)
	if code := exitCodeFor(state); code != exitOK {
		return &exitError{code: code, err: fmt.Errorf("workflow run %s: %s", state, out.Run.Error)}
	}
	return nil
}
