package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/secrets"
)

// Rule checks an artifact set and reports issues. Rules must not fail:
// anything they cannot check is itself an issue.
type Rule interface {
	Name() string
	Check(ctx context.Context, set orchestrator.ArtifactSet) []Issue
}

// DefaultRules returns the standard rule set. detector may be nil to skip
// secret scanning.
func DefaultRules(detector *secrets.Detector) []Rule {
	rules := []Rule{
		NonEmptyRule{},
		SafeNameRule{},
		SyntaxRule{},
		CrossReferenceRule{},
		WhitespaceRule{},
	}
	if detector != nil {
		rules = append(rules, SecretsRule{Detector: detector})
	}
	return rules
}

// NonEmptyRule requires at least one artifact and no blank content.
type NonEmptyRule struct{}

func (NonEmptyRule) Name() string { return "non-empty" }

func (r NonEmptyRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	if set.Len() == 0 {
		is.Add(r.Name(), "", "artifact set is empty")
	}
	for _, a := range set.Artifacts() {
		if strings.TrimSpace(a.Content) == "" {
			is.Add(r.Name(), a.Name, "content is empty")
		}
	}
	return is.All()
}

// SafeNameRule rejects names that would escape the output directory.
type SafeNameRule struct{}

func (SafeNameRule) Name() string { return "safe-name" }

func (r SafeNameRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	for _, name := range set.Names() {
		if strings.Contains(name, `\`) || !filepath.IsLocal(name) {
			is.Add(r.Name(), name, "name must be a relative path inside the output directory")
		}
	}
	return is.All()
}

// SyntaxRule parses artifacts whose extension it recognizes: Go, JSON,
// YAML and TOML. Other artifacts are skipped.
type SyntaxRule struct{}

func (SyntaxRule) Name() string { return "syntax" }

func (r SyntaxRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	for _, a := range set.Artifacts() {
		if err := checkSyntax(a.Name, a.Content); err != nil {
			is.Add(r.Name(), a.Name, err.Error())
		}
	}
	return is.All()
}

func checkSyntax(name, content string) error {
	switch strings.ToLower(path.Ext(name)) {
	case ".go":
		_, err := parser.ParseFile(token.NewFileSet(), name, content, parser.AllErrors)
		return err
	case ".json":
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
	case ".toml":
		var v map[string]any
		if _, err := toml.Decode(content, &v); err != nil {
			return fmt.Errorf("invalid TOML: %w", err)
		}
	}
	return nil
}

// SecretsRule flags credentials found by the Gitleaks rule set.
type SecretsRule struct {
	Detector *secrets.Detector
}

func (SecretsRule) Name() string { return "secrets" }

func (r SecretsRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	for _, a := range set.Artifacts() {
		findings, err := r.Detector.Detect(a.Content)
		if err != nil {
			is.Warn(r.Name(), a.Name, "could not scan for secrets: "+err.Error())
			continue
		}
		for _, f := range findings {
			is.Add(r.Name(), a.Name, "possible secret at "+f.String())
		}
	}
	return is.All()
}

var (
	goEmbed      = regexp.MustCompile(`(?m)^\s*//go:embed\s+(.+)$`)
	markdownLink = regexp.MustCompile(`\]\(([^)\s]+)\)`)
	externalLink = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// CrossReferenceRule checks that files referenced by other artifacts exist
// in the set: go:embed patterns in Go sources and relative links in Markdown.
type CrossReferenceRule struct{}

func (CrossReferenceRule) Name() string { return "cross-reference" }

func (r CrossReferenceRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	for _, a := range set.Artifacts() {
		dir := path.Dir(a.Name)
		for _, ref := range references(a) {
			target := path.Clean(path.Join(dir, ref))
			if !set.Has(target) {
				is.Add(r.Name(), a.Name, fmt.Sprintf("references missing artifact %q", target))
			}
		}
	}
	return is.All()
}

func references(a orchestrator.Artifact) []string {
	var refs []string
	switch strings.ToLower(path.Ext(a.Name)) {
	case ".go":
		for _, m := range goEmbed.FindAllStringSubmatch(a.Content, -1) {
			for _, pattern := range strings.Fields(m[1]) {
				pattern = strings.Trim(pattern, "\"`")
				// Globs and directories cannot be resolved against a flat set.
				if strings.ContainsAny(pattern, "*?[") || strings.HasSuffix(pattern, "/") {
					continue
				}
				refs = append(refs, pattern)
			}
		}
	case ".md", ".markdown":
		for _, m := range markdownLink.FindAllStringSubmatch(a.Content, -1) {
			link := m[1]
			if i := strings.IndexByte(link, '#'); i >= 0 {
				link = link[:i]
			}
			if link == "" || externalLink.MatchString(link) || strings.HasPrefix(link, "/") {
				continue
			}
			refs = append(refs, link)
		}
	}
	return refs
}

// WhitespaceRule warns about trailing whitespace and a missing final newline.
// It never invalidates a report.
type WhitespaceRule struct{}

func (WhitespaceRule) Name() string { return "whitespace" }

func (r WhitespaceRule) Check(_ context.Context, set orchestrator.ArtifactSet) []Issue {
	var is Issues
	for _, a := range set.Artifacts() {
		if a.Content == "" {
			continue
		}
		if !strings.HasSuffix(a.Content, "\n") {
			is.Warn(r.Name(), a.Name, "missing final newline")
		}
		for i, line := range strings.Split(a.Content, "\n") {
			if strings.TrimRight(line, " \t") != line {
				is.Warn(r.Name(), a.Name, fmt.Sprintf("trailing whitespace on line %d", i+1))
				break
			}
		}
	}
	return is.All()
}
