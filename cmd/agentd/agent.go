package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// agentInfo is the --json form of the agent command.
type agentInfo struct {
	orchestrator.Agent
	Strategies map[orchestrator.Stage]string `json:"strategies"`
}

func newAgentCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Show the configured agent profile and stage strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			info := agentInfo{
				Agent:      a.pipeline.Agent(),
				Strategies: a.pipeline.Stages().Describe(),
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, info)
			}

			st := newReportStyles(out)
			fmt.Fprintf(out, "%s %s\n", st.heading.Render("Agent Name:"), info.Name)
			fmt.Fprintln(out, st.heading.Render("Capabilities:"))
			for _, c := range info.Capabilities {
				fmt.Fprintf(out, "  - %s\n", c)
			}
			fmt.Fprintln(out, st.heading.Render("Operating Principles:"))
			for _, p := range info.OperatingPrinciples {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			fmt.Fprintln(out, st.heading.Render("Strategies:"))
			for _, stage := range orchestrator.AllStages() {
				fmt.Fprintf(out, "  %-9s %s\n", stage, info.Strategies[stage])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
