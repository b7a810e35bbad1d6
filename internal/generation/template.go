// Package generation provides Generator strategies.
package generation

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// DefaultAppName names the scaffolded program when none is configured.
const DefaultAppName = "app"

var mainTemplate = template.Must(template.New("main.go").Parse(`// Command {{.Name}} was scaffolded from a {{len .Steps}}-step plan.
package main

import (
	_ "embed"
	"fmt"
)

//go:embed config.yaml
var config string

var plan = []string{
{{- range .Steps}}
	{{printf "%q" .}},
{{- end}}
}

func main() {
	fmt.Print(config)
	for _, step := range plan {
		fmt.Println(step)
	}
}
`))

var configTemplate = template.Must(template.New("config.yaml").Parse(`name: {{printf "%q" .Name}}
steps:
{{- range .Steps}}
  - {{printf "%q" .}}
{{- end}}
`))

var readmeTemplate = template.Must(template.New("README.md").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).Parse(`# {{.Name}}

Generated from the following plan:
{{range $i, $s := .Steps}}
{{add $i 1}}. {{$s}}
{{- end}}

Entry point: [main.go](main.go). Settings: [config.yaml](config.yaml).
`))

// TemplateGenerator renders a small Go program scaffold from the plan.
type TemplateGenerator struct {
	name string
}

// NewTemplateGenerator creates a generator; name is sanitized for use as a
// program name.
func NewTemplateGenerator(name string) *TemplateGenerator {
	return &TemplateGenerator{name: sanitizeName(name)}
}

type templateData struct {
	Name  string
	Steps []string
}

// Generate implements orchestrator.Generator.
func (g *TemplateGenerator) Generate(_ context.Context, plan orchestrator.Plan) (orchestrator.ArtifactSet, error) {
	data := templateData{Name: g.name, Steps: plan.Steps}

	var set orchestrator.ArtifactSet
	for _, tmpl := range []*template.Template{mainTemplate, configTemplate, readmeTemplate} {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return orchestrator.ArtifactSet{}, fmt.Errorf("render %s: %w", tmpl.Name(), err)
		}
		set = set.With(tmpl.Name(), buf.String())
	}
	return set, nil
}

var nameUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

func sanitizeName(name string) string {
	name = nameUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return DefaultAppName
	}
	return name
}

var _ orchestrator.Generator = (*TemplateGenerator)(nil)
