package optimization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

func TestFormatter_Format(t *testing.T) {
	f := NewFormatter()

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"gofmt", "main.go", "package main\n\nfunc main(){println(1)}", "package main\n\nfunc main() { println(1) }\n"},
		{"broken go kept", "bad.go", "package main\nfunc {\n", "package main\nfunc {\n"},
		{"json indent", "a.json", `{"a":[1,2]}`, "{\n  \"a\": [\n    1,\n    2\n  ]\n}\n"},
		{"broken json kept", "b.json", `{"a":`, "{\"a\":\n"},
		{"trailing whitespace", "config.yaml", "a: 1   \nb: 2\t", "a: 1\nb: 2\n"},
		{"markdown keeps hard breaks", "README.md", "line  \nnext", "line  \nnext\n"},
		{"already canonical", "x.txt", "hello\n", "hello\n"},
		{"empty untouched", "x.txt", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.file, tt.content))
		})
	}
}

func TestFormatter_WithIndent(t *testing.T) {
	f := NewFormatter(WithIndent("\t"))
	assert.Equal(t, "{\n\t\"a\": 1\n}\n", f.Format("a.json", `{"a":1}`))
}

func TestFormatter_OptimizePreservesKeys(t *testing.T) {
	in := orchestrator.MustArtifactSet(
		orchestrator.Artifact{Name: "main.py", Content: "# Placeholder code"},
		orchestrator.Artifact{Name: "config.yaml", Content: "# Placeholder config\n"},
	)

	out, err := NewFormatter().Optimize(context.Background(), in, orchestrator.Valid())
	require.NoError(t, err)

	assert.True(t, in.SameKeys(out))
	assert.Equal(t, []string{"main.py", "config.yaml"}, out.Names())
	content, _ := out.Get("main.py")
	assert.Equal(t, "# Placeholder code\n", content)

	original, _ := in.Get("main.py")
	assert.Equal(t, "# Placeholder code", original, "input set must not change")
}

func TestFormatter_Idempotent(t *testing.T) {
	f := NewFormatter()
	in := orchestrator.MustArtifactSet(
		orchestrator.Artifact{Name: "main.go", Content: "package main\nfunc main(){}"},
		orchestrator.Artifact{Name: "a.json", Content: `{"x":true}`},
	)

	once, err := f.Optimize(context.Background(), in, orchestrator.Valid())
	require.NoError(t, err)
	twice, err := f.Optimize(context.Background(), once, orchestrator.Valid())
	require.NoError(t, err)

	assert.True(t, once.Equal(twice))
}

func TestFormatter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFormatter().Optimize(ctx, orchestrator.DefaultArtifacts(), orchestrator.Valid())
	assert.ErrorIs(t, err, context.Canceled)
}
