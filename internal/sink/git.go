// Package sink persists final artifacts to disk, optionally committing each
// run to a local git repository.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// ErrUnsafeName is returned for artifact names that would leave the run
// directory.
var ErrUnsafeName = errors.New("artifact name escapes the output directory")

// Result describes what a Write produced.
type Result struct {
	Dir    string   `json:"dir"`
	Files  []string `json:"files"`
	Commit string   `json:"commit,omitempty"`
}

// GitSink writes each run to <root>/<run-id>/.
type GitSink struct {
	root   string
	commit bool
	name   string
	email  string
	logger *logging.Logger
	now    func() time.Time

	mu sync.Mutex // serializes worktree access
}

// New creates a sink from config.
func New(cfg config.SinkConfig, logger *logging.Logger) (*GitSink, error) {
	if cfg.Dir == "" {
		return nil, errors.New("sink dir is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving sink dir: %w", err)
	}
	return &GitSink{
		root:   root,
		commit: cfg.Commit,
		name:   cfg.AuthorName,
		email:  cfg.AuthorEmail,
		logger: logger.Named("sink"),
		now:    time.Now,
	}, nil
}

// Root returns the absolute output directory.
func (s *GitSink) Root() string {
	return s.root
}

// Write stores set under the run directory. Writing the same run twice is
// idempotent: unchanged content produces no new commit.
func (s *GitSink) Write(ctx context.Context, runID string, set orchestrator.ArtifactSet) (Result, error) {
	if runID == "" || !filepath.IsLocal(runID) || strings.ContainsAny(runID, `/\`) {
		return Result{}, fmt.Errorf("invalid run id %q", runID)
	}
	for _, name := range set.Names() {
		if strings.Contains(name, `\`) || !filepath.IsLocal(name) {
			return Result{}, fmt.Errorf("%w: %q", ErrUnsafeName, name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, runID)
	res := Result{Dir: dir, Files: make([]string, 0, set.Len())}
	for _, a := range set.Artifacts() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		target := filepath.Join(dir, filepath.FromSlash(a.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return res, fmt.Errorf("creating directory for %s: %w", a.Name, err)
		}
		if err := os.WriteFile(target, []byte(a.Content), 0o644); err != nil {
			return res, fmt.Errorf("writing %s: %w", a.Name, err)
		}
		res.Files = append(res.Files, path.Join(runID, a.Name))
	}

	if s.commit {
		hash, err := s.commitRun(runID, res.Files)
		if err != nil {
			return res, err
		}
		res.Commit = hash
	}

	s.logger.Info(ctx, "artifacts persisted",
		zap.String("dir", dir),
		zap.Int("files", len(res.Files)),
		zap.String("commit", res.Commit),
	)
	return res, nil
}

func (s *GitSink) commitRun(runID string, files []string) (string, error) {
	repo, err := git.PlainOpen(s.root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(s.root, false)
	}
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}
	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return "", fmt.Errorf("staging %s: %w", f, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("reading status: %w", err)
	}
	changed := false
	for _, f := range files {
		if st := status.File(f).Staging; st == git.Added || st == git.Modified {
			changed = true
			break
		}
	}
	if !changed {
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("reading HEAD: %w", err)
		}
		return head.Hash().String(), nil
	}

	hash, err := wt.Commit(fmt.Sprintf("agentd: run %s\n\n%d artifacts", runID, len(files)), &git.CommitOptions{
		Author: &object.Signature{Name: s.name, Email: s.email, When: s.now()},
	})
	if err != nil {
		return "", fmt.Errorf("committing run %s: %w", runID, err)
	}
	return hash.String(), nil
}
