// Package optimization rewrites validated artifacts into canonical form.
package optimization

import (
	"bytes"
	"context"
	"encoding/json"
	"go/format"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Formatter normalizes artifact content. Go sources go through gofmt and
// JSON is re-indented. Every text artifact loses trailing whitespace and
// gains a final newline. Content that cannot be formatted is left as is.
// Names and order never change.
type Formatter struct {
	indent string
	logger *logging.Logger
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithIndent sets the JSON indent. Default is two spaces.
func WithIndent(indent string) FormatterOption {
	return func(f *Formatter) { f.indent = indent }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) FormatterOption {
	return func(f *Formatter) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFormatter creates a Formatter.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{indent: "  ", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("optimization")
	return f
}

// Optimize implements orchestrator.Optimizer.
func (f *Formatter) Optimize(ctx context.Context, set orchestrator.ArtifactSet, _ orchestrator.ValidationReport) (orchestrator.ArtifactSet, error) {
	out := set
	var changed []string
	for _, a := range set.Artifacts() {
		if err := ctx.Err(); err != nil {
			return orchestrator.ArtifactSet{}, err
		}
		formatted := f.Format(a.Name, a.Content)
		if formatted != a.Content {
			out = out.With(a.Name, formatted)
			changed = append(changed, a.Name)
		}
	}
	f.logger.Debug(ctx, "artifacts formatted", zap.Strings("changed", changed))
	return out, nil
}

// Format returns the canonical form of one artifact.
func (f *Formatter) Format(name, content string) string {
	if content == "" {
		return content
	}
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".go":
		if src, err := format.Source([]byte(content)); err == nil {
			content = string(src)
		}
	case ".json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(strings.TrimSpace(content)), "", f.indent); err == nil {
			content = buf.String()
		}
	}
	// Two trailing spaces are a hard line break in Markdown.
	if ext != ".md" && ext != ".markdown" {
		content = trimTrailing(content)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content
}

func trimTrailing(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

var _ orchestrator.Optimizer = (*Formatter)(nil)
