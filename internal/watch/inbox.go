// Package watch turns a directory into a request inbox.
//
// Every file with the configured extension that appears in the directory is
// read as a request and run through the pipeline. The run result is written
// next to it as <name>.result.json and the request is renamed to
// <name><ext>.done so it is not picked up again. A cancelled run leaves the
// request untouched.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/sink"
)

const (
	// DefaultExtension marks request files.
	DefaultExtension = ".request"

	// DefaultDebounce is how long a file must stay quiet before it is read.
	DefaultDebounce = 200 * time.Millisecond

	resultSuffix = ".result.json"
	doneSuffix   = ".done"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrReservedExtension is returned for extensions the inbox writes itself.
	ErrReservedExtension = errors.New("extension is reserved for inbox output")
)

// Pipeline runs a single request.
type Pipeline interface {
	Run(ctx context.Context, req orchestrator.Request) *orchestrator.Result
}

// ArtifactWriter persists the final artifacts of a completed run.
type ArtifactWriter interface {
	Write(ctx context.Context, runID string, set orchestrator.ArtifactSet) (sink.Result, error)
}

// Outcome describes one processed request file.
type Outcome struct {
	Path      string
	Result    *orchestrator.Result
	Persisted *sink.Result
	Err       error
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(in *Inbox) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithSink persists artifacts of runs that finish in StateDone.
func WithSink(w ArtifactWriter) Option {
	return func(in *Inbox) { in.sink = w }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// OnOutcome registers a callback invoked after each processed file.
func OnOutcome(fn func(Outcome)) Option {
	return func(in *Inbox) { in.onOutcome = fn }
}

// Inbox watches a directory for request files.
type Inbox struct {
	dir       string
	ext       string
	debounce  time.Duration
	pipeline  Pipeline
	sink      ArtifactWriter
	logger    *logging.Logger
	onOutcome func(Outcome)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates an inbox for cfg.Dir. The directory is created if missing.
func New(cfg config.WatchConfig, pipeline Pipeline, opts ...Option) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch dir is required")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	ext := cfg.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == ".json" || ext == doneSuffix {
		return nil, fmt.Errorf("%w: %s", ErrReservedExtension, ext)
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating watch dir: %w", err)
	}

	in := &Inbox{
		dir:      dir,
		ext:      ext,
		debounce: DefaultDebounce,
		pipeline: pipeline,
		logger:   logging.NewNop(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.Named("watch")
	return in, nil
}

// Dir returns the absolute inbox directory.
func (in *Inbox) Dir() string {
	return in.dir
}

// Run processes files already in the inbox, then watches for new ones until
// ctx is done. Requests are processed one at a time.
func (in *Inbox) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watching %s: %w", in.dir, err)
	}

	ready := make(chan string, 16)
	done := make(chan struct{})
	defer func() {
		close(done)
		in.stopTimers()
	}()

	existing, err := in.scan()
	if err != nil {
		return err
	}
	in.logger.Info(ctx, "watching inbox",
		zap.String("dir", in.dir),
		zap.String("extension", in.ext),
		zap.Int("pending", len(existing)),
	)
	for _, path := range existing {
		in.process(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				if in.matches(event.Name) {
					in.schedule(ctx, event.Name, ready, done)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn(ctx, "watcher error", zap.Error(err))

		case path := <-ready:
			in.process(ctx, path)
		}
	}
}

func (in *Inbox) matches(path string) bool {
	return filepath.Dir(path) == in.dir && strings.HasSuffix(path, in.ext) && filepath.Base(path) != in.ext
}

func (in *Inbox) scan() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.Type().IsRegular() && in.matches(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// schedule (re)arms the debounce timer for path. The timer gives up once
// done is closed or ctx ends.
func (in *Inbox) schedule(ctx context.Context, path string, ready chan<- string, done <-chan struct{}) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t, ok := in.pending[path]; ok {
		t.Reset(in.debounce)
		return
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()

		select {
		case ready <- path:
		case <-done:
		case <-ctx.Done():
		}
	})
}

func (in *Inbox) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
}

// process runs one request file. Failures are logged and reported through
// the outcome callback; they never stop the inbox.
func (in *Inbox) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// Already handled by an earlier event.
		return
	}

	out := Outcome{Path: path}
	defer func() {
		if in.onOutcome != nil {
			in.onOutcome(out)
		}
	}()

	if err != nil {
		out.Err = fmt.Errorf("reading request: %w", err)
		in.logger.Error(ctx, "failed to read request", zap.String("path", path), zap.Error(err))
		return
	}

	res := in.pipeline.Run(ctx, orchestrator.Request(strings.TrimSpace(string(data))))
	out.Result = res

	if res.State == orchestrator.StateCancelled || ctx.Err() != nil {
		// Leave the request in place so the next Run picks it up again.
		in.logger.Info(ctx, "request cancelled, left in inbox",
			zap.String("path", path),
			zap.String("run_id", res.RunID),
			zap.String("state", string(res.State)),
		)
		return
	}

	if in.sink != nil && res.State == orchestrator.StateDone {
		persisted, err := in.sink.Write(ctx, res.RunID, res.Final)
		if err != nil {
			out.Err = fmt.Errorf("persisting artifacts: %w", err)
			in.logger.Error(ctx, "failed to persist artifacts", zap.String("run_id", res.RunID), zap.Error(err))
		} else {
			out.Persisted = &persisted
		}
	}

	if err := in.complete(path, res); err != nil {
		out.Err = errors.Join(out.Err, err)
		in.logger.Error(ctx, "failed to complete request", zap.String("path", path), zap.Error(err))
		return
	}

	in.logger.Info(ctx, "request processed",
		zap.String("path", path),
		zap.String("run_id", res.RunID),
		zap.String("state", string(res.State)),
	)
}

// complete writes the result file and marks the request done.
func (in *Inbox) complete(path string, res *orchestrator.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	base := strings.TrimSuffix(path, in.ext)
	if err := os.WriteFile(base+resultSuffix, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	if err := os.Rename(path, path+doneSuffix); err != nil {
		return fmt.Errorf("marking request done: %w", err)
	}
	return nil
}

// ResultPath returns where the result for a request file is written.
func (in *Inbox) ResultPath(requestPath string) string {
	return strings.TrimSuffix(requestPath, in.ext) + resultSuffix
}
