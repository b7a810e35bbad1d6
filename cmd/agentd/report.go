package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
)

// reportStyles renders headings for one output. Colors are dropped
// automatically when the output is not a terminal.
type reportStyles struct {
	heading lipgloss.Style
	label   lipgloss.Style
	states  map[orchestrator.State]lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		label:   r.NewStyle().Foreground(lipgloss.Color("244")),
		states: map[orchestrator.State]lipgloss.Style{
			orchestrator.StateDone:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
			orchestrator.StateRejected:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
			orchestrator.StateFailed:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
			orchestrator.StateCancelled: r.NewStyle().Bold(true).Foreground(lipgloss.Color("244")),
		},
	}
}

// writeReport prints the run in stage order, one heading per stage.
func writeReport(w io.Writer, res *orchestrator.Result, persisted *sink.Result) {
	st := newReportStyles(w)
	line := func(heading, value string) {
		fmt.Fprintf(w, "%s %s\n", st.heading.Render(heading), value)
	}

	line("Agent Name:", res.Agent)
	line("Analysis Result:", "")
	writeList(w, st, "requirements", res.Requirements.Requirements)
	writeList(w, st, "constraints", res.Requirements.Constraints)
	writeList(w, st, "outcomes", res.Requirements.Outcomes)

	line("Plan:", "")
	for i, step := range res.Plan.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}

	line("Generated Code:", "")
	writeArtifacts(w, st, res.Artifacts)

	verdict := "valid"
	if !res.Report.Valid {
		verdict = "invalid"
	}
	line("Validation Report:", verdict)
	for _, issue := range res.Report.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}

	line("Optimized Code:", "")
	writeArtifacts(w, st, res.Final)

	stateStyle, ok := st.states[res.State]
	if !ok {
		stateStyle = st.heading
	}
	line("State:", stateStyle.Render(string(res.State)))
	if res.Error != "" {
		line("Error:", res.Error)
	}
	if persisted != nil {
		line("Persisted:", persisted.Dir)
		if persisted.Commit != "" {
			fmt.Fprintf(w, "  %s %s\n", st.label.Render("commit"), persisted.Commit)
		}
	}
	fmt.Fprintf(w, "%s %s\n", st.label.Render("run"), res.RunID)
}

func writeList(w io.Writer, st reportStyles, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(w, "  %s: none\n", st.label.Render(label))
		return
	}
	fmt.Fprintf(w, "  %s:\n", st.label.Render(label))
	for _, item := range items {
		fmt.Fprintf(w, "    - %s\n", item)
	}
}

func writeArtifacts(w io.Writer, st reportStyles, set orchestrator.ArtifactSet) {
	if set.Len() == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, a := range set.Artifacts() {
		fmt.Fprintf(w, "  %s\n", st.label.Render("--- "+a.Name))
		for _, l := range strings.Split(strings.TrimRight(a.Content, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", l)
		}
	}
}

// jsonReport is the --json form of a run.
type jsonReport struct {
	*orchestrator.Result
	Persisted *sink.Result `json:"persisted,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
