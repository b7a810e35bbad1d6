// Package workflows runs the pipeline as a Temporal workflow so that runs
// survive worker restarts and can persist their artifacts durably.
package workflows

import "github.com/fyrsmithlabs/agentd/internal/orchestrator"

// TaskQueue is the default queue polled by the agentd worker.
const TaskQueue = "agentd-pipeline"

// PipelineInput starts a PipelineWorkflow.
type PipelineInput struct {
	Request string `json:"request"`
	Persist bool   `json:"persist"` // write Done runs through the sink
}

// ArtifactFile is the wire form of an artifact.
type ArtifactFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RunSummary is the serializable outcome of RunPipelineActivity.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	State       string         `json:"state"`
	Plan        []string       `json:"plan"`
	Valid       bool           `json:"is_valid"`
	Issues      []string       `json:"issues"`
	Artifacts   []ArtifactFile `json:"artifacts"`
	Error       string         `json:"error,omitempty"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Fingerprint string         `json:"fingerprint"`
}

// PersistInput is the input of PersistArtifactsActivity.
type PersistInput struct {
	RunID     string         `json:"run_id"`
	Artifacts []ArtifactFile `json:"artifacts"`
}

// PersistOutput reports where artifacts were written.
type PersistOutput struct {
	Dir    string   `json:"dir"`
	Files  []string `json:"files"`
	Commit string   `json:"commit,omitempty"`
}

// PipelineOutput is the workflow result.
type PipelineOutput struct {
	Run     RunSummary     `json:"run"`
	Persist *PersistOutput `json:"persist,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// Summarize converts a Result into its wire form. Artifacts are the final set.
func Summarize(res *orchestrator.Result) RunSummary {
	s := RunSummary{
		RunID:       res.RunID,
		State:       string(res.State),
		Plan:        res.Plan.Clone().Steps,
		Valid:       res.Report.Valid,
		Issues:      res.Report.Clone().Issues,
		Artifacts:   toFiles(res.Final),
		Error:       res.Error,
		Fingerprint: res.Fingerprint,
	}
	if se, ok := res.StageError(); ok {
		s.FailedStage = se.Stage.String()
	}
	return s
}

func toFiles(set orchestrator.ArtifactSet) []ArtifactFile {
	files := make([]ArtifactFile, 0, set.Len())
	for _, a := range set.Artifacts() {
		files = append(files, ArtifactFile{Name: a.Name, Content: a.Content})
	}
	return files
}

func toSet(files []ArtifactFile) (orchestrator.ArtifactSet, error) {
	items := make([]orchestrator.Artifact, len(files))
	for i, f := range files {
		items[i] = orchestrator.Artifact{Name: f.Name, Content: f.Content}
	}
	return orchestrator.NewArtifactSet(items...)
}
