// Package analysis provides Analyzer strategies that turn a free-form
// request into requirements, constraints and outcomes.
package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// Category is the RequirementSet collection a clause is filed under.
type Category string

const (
	CategoryRequirement Category = "requirement"
	CategoryConstraint  Category = "constraint"
	CategoryOutcome     Category = "outcome"
)

// Pattern classifies a clause when Regex matches it.
type Pattern struct {
	Name     string
	Regex    string
	Weight   float64
	Category Category
}

// DefaultPatterns returns the built-in clause classifiers.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "goal", Regex: `(?i)^(so that|in order to|to allow|allowing|enabling)\b`, Weight: 0.95, Category: CategoryOutcome},
		{Name: "delivery", Regex: `(?i)\b(deploy(ed|s|ing)?|release[sd]?|ship(ped|s)?|publish(ed|es)?|launch(ed|es)?|go live)\b`, Weight: 0.9, Category: CategoryOutcome},
		{Name: "technology", Regex: `(?i)^(using|with|via|written in|based on|built on|on top of|in (go|golang|python|java|rust|typescript|javascript))\b`, Weight: 0.85, Category: CategoryConstraint},
		{Name: "limit", Regex: `(?i)\b(without|within|under|at most|no more than|less than|only|must not|should not|cannot|never)\b`, Weight: 0.8, Category: CategoryConstraint},
		{Name: "action", Regex: `(?i)^(build|create|implement|add|write|make|design|develop|support|provide|expose|generate|handle|integrate|set up|setup)\b`, Weight: 0.7, Category: CategoryRequirement},
		{Name: "obligation", Regex: `(?i)\b(must|should|required to|has to|needs to)\b`, Weight: 0.6, Category: CategoryConstraint},
	}
}

type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// HeuristicAnalyzer splits a request into clauses and files each clause by
// the highest-weight matching pattern. Unmatched clauses are requirements.
type HeuristicAnalyzer struct {
	patterns []*compiledPattern
}

// NewHeuristicAnalyzer compiles patterns, or DefaultPatterns when empty.
func NewHeuristicAnalyzer(patterns []Pattern) (*HeuristicAnalyzer, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	compiled := make([]*compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		switch p.Category {
		case CategoryRequirement, CategoryConstraint, CategoryOutcome:
		default:
			return nil, fmt.Errorf("pattern %q: unknown category %q", p.Name, p.Category)
		}
		compiled = append(compiled, &compiledPattern{Pattern: p, regex: re})
	}

	return &HeuristicAnalyzer{patterns: compiled}, nil
}

// Analyze implements orchestrator.Analyzer.
func (h *HeuristicAnalyzer) Analyze(_ context.Context, req orchestrator.Request) (orchestrator.RequirementSet, error) {
	if err := req.Validate(); err != nil {
		return orchestrator.RequirementSet{}, err
	}

	var requirements, constraints, outcomes []string
	for _, clause := range SplitClauses(string(req)) {
		category := CategoryRequirement
		if match := h.findBestMatch(clause); match != nil {
			category = match.Category
		}
		switch category {
		case CategoryConstraint:
			constraints = append(constraints, clause)
		case CategoryOutcome:
			outcomes = append(outcomes, clause)
		default:
			requirements = append(requirements, clause)
		}
	}

	return orchestrator.NewRequirementSet(requirements, constraints, outcomes), nil
}

// Classify returns the category of a single clause and the pattern that decided it.
func (h *HeuristicAnalyzer) Classify(clause string) (Category, string) {
	if match := h.findBestMatch(clause); match != nil {
		return match.Category, match.Name
	}
	return CategoryRequirement, ""
}

// findBestMatch returns the highest-weight matching pattern. Ties keep the first.
func (h *HeuristicAnalyzer) findBestMatch(clause string) *compiledPattern {
	var best *compiledPattern
	var bestWeight float64

	for _, p := range h.patterns {
		if p.regex.MatchString(clause) && p.Weight > bestWeight {
			best = p
			bestWeight = p.Weight
		}
	}
	return best
}

var (
	sentenceBreak = regexp.MustCompile(`[.!?;]+(\s+|$)|\n+`)
	conjunction   = regexp.MustCompile(`(?i)\s*,\s*(?:and\s+|then\s+)?|\s+(?:and then|and|then)\s+`)
	qualifier     = regexp.MustCompile(`(?i)\s+(using|with|without|within|via|so that|in order to)\s+`)
	leading       = regexp.MustCompile(`(?i)^(?:and then|and|then|also)\s+`)
)

// SplitClauses breaks text into trimmed clauses in reading order. Qualifying
// phrases such as "using Flask" become clauses of their own.
func SplitClauses(text string) []string {
	var clauses []string
	for _, sentence := range sentenceBreak.Split(text, -1) {
		for _, part := range conjunction.Split(sentence, -1) {
			for _, clause := range splitQualifiers(part) {
				if c := normalizeClause(clause); c != "" {
					clauses = append(clauses, c)
				}
			}
		}
	}
	return clauses
}

// splitQualifiers cuts before each qualifier keyword, keeping the keyword
// at the start of the following clause.
func splitQualifiers(s string) []string {
	locs := qualifier.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}

	out := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		keywordStart := loc[2]
		out = append(out, s[start:loc[0]])
		start = keywordStart
	}
	return append(out, s[start:])
}

func normalizeClause(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = leading.ReplaceAllString(s, "")
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != ')' && r != '"' && r != '\''
	})
	s = strings.TrimSpace(s)
	if !strings.ContainsFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return ""
	}
	return s
}

var _ orchestrator.Analyzer = (*HeuristicAnalyzer)(nil)
