// Command agentd runs the five-stage agent pipeline: analyze, plan,
// generate, validate and optimize.
//
// Usage:
//
//	# Run one request and print the report
//	agentd run "Build a REST API using Flask and deploy it to AWS."
//
//	# Serve the HTTP API with Prometheus metrics
//	agentd serve --port 9090
//
//	# Expose the pipeline as MCP tools over stdio
//	agentd mcp
//
//	# Run durable pipelines from Temporal
//	agentd worker
//	agentd submit --wait "Build a CLI tool"
//
//	# Process *.request files dropped into a directory
//	agentd watch --dir ./inbox
//
// Configuration is read from ~/.config/agentd/config.yaml and AGENTD_*
// environment variables. See internal/config for the full list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitFailure
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agentd",
		Short: "Turn free-form requests into validated artifacts",
		Long: `agentd runs a request through a fixed five-stage pipeline:
analyze, plan, generate, validate and optimize.

Each stage uses the strategy selected in the pipeline section of the config.
Runs end Done, Rejected (validation failed), Failed or Cancelled.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/agentd/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	flags.StringVar(&opts.logFormat, "log-format", "", "override logging.format (json or console)")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newWorkerCmd(opts),
		newSubmitCmd(opts),
		newWatchCmd(opts),
		newAgentCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agentd by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
