package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/watch"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		dir string
		ext string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run every request file dropped into a directory",
		Long: `Run every request file dropped into a directory.

Each <name>.request file is run through the pipeline. The result is written
to <name>.result.json and the request is renamed to <name>.request.done.
Done runs are persisted when the sink is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			wc := a.cfg.Watch
			if dir != "" {
				wc.Dir = dir
			}
			if ext != "" {
				wc.Extension = ext
			}

			out := cmd.OutOrStdout()
			opts := []watch.Option{
				watch.WithLogger(a.logger),
				watch.OnOutcome(func(o watch.Outcome) {
					state := "error"
					if o.Result != nil {
						state = string(o.Result.State)
					}
					fmt.Fprintf(out, "%s\t%s\n", state, o.Path)
				}),
			}
			if a.sink != nil {
				opts = append(opts, watch.WithSink(a.sink))
			}

			inbox, err := watch.New(wc, a.pipeline, opts...)
			if err != nil {
				return err
			}
			return inbox.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "override watch.dir")
	cmd.Flags().StringVar(&ext, "ext", "", "override watch.extension")
	return cmd
}
