package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
)

// defaultRequest is used when run is given no request at all.
const defaultRequest = "Build a REST API using Flask and deploy it to AWS."

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		file    string
		asJSON  bool
		persist bool
	)

	cmd := &cobra.Command{
		Use:   "run [request...]",
		Short: "Run one request through the pipeline and print the report",
		Long: `Run one request through the pipeline and print the report.

The request is taken from the arguments, from --file, or from stdin with
--file -. Without any of them the built-in example request is used.

Exit status is 0 for Done and Rejected runs, 1 for Failed runs and 130 for
cancelled runs.

Examples:
  agentd run "Build a CLI tool in Go"
  echo "Build a CLI tool" | agentd run -f -
  agentd run --json "Build a CLI tool" | jq .state`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req, err := readRequest(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			res := a.pipeline.Run(ctx, req)

			var (
				persisted  *sink.Result
				persistErr error
			)
			if persist || a.cfg.Sink.Enabled {
				if persist && a.sink == nil {
					persistErr = errors.New("--persist requires sink.enabled and sink.dir")
				} else if persisted, persistErr = a.persist(ctx, res); persistErr != nil {
					a.logger.Error(ctx, "failed to persist artifacts", zap.Error(persistErr))
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, jsonReport{Result: res, Persisted: persisted}); err != nil {
					return err
				}
			} else {
				writeReport(out, res, persisted)
			}

			if code := exitCodeFor(res.State); code != exitOK {
				return &exitError{code: code, err: fmt.Errorf("run %s: %s", res.State, res.Error)}
			}
			if persistErr != nil {
				return &exitError{code: exitFailure, err: persistErr}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the request from a file (- for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&persist, "persist", false, "write Done runs through the sink (requires sink.dir)")
	return cmd
}

// readRequest resolves the request text from args, a file or stdin.
func readRequest(stdin io.Reader, file string, args []string) (orchestrator.Request, error) {
	if file != "" && len(args) > 0 {
		return "", fmt.Errorf("use either arguments or --file, not both")
	}

	switch {
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return orchestrator.Request(strings.TrimSpace(string(data))), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading request file: %w", err)
		}
		return orchestrator.Request(strings.TrimSpace(string(data))), nil
	case len(args) > 0:
		return orchestrator.Request(strings.Join(args, " ")), nil
	default:
		return defaultRequest, nil
	}
}

// exitCodeFor maps a terminal state to the process exit code.
func exitCodeFor(s orchestrator.State) int {
	switch s {
	case orchestrator.StateDone, orchestrator.StateRejected:
		return exitOK
	case orchestrator.StateCancelled:
		return exitCancelled
	default:
		return exitFailure
	}
}
