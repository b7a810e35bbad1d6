package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

func TestSplitClauses(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{
			"Build a REST API using Flask and deploy it to AWS.",
			[]string{"Build a REST API", "using Flask", "deploy it to AWS"},
		},
		{
			"Add login, add logout; then write tests",
			[]string{"Add login", "add logout", "write tests"},
		},
		{
			"Create a CLI.\nIt must not use cgo!",
			[]string{"Create a CLI", "It must not use cgo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitClauses(tt.in))
		})
	}
}

func TestHeuristicAnalyzer_Analyze(t *testing.T) {
	a, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	set, err := a.Analyze(context.Background(), "Build a REST API using Flask and deploy it to AWS.")
	require.NoError(t, err)

	assert.Equal(t, []string{"Build a REST API"}, set.Requirements)
	assert.Equal(t, []string{"using Flask"}, set.Constraints)
	assert.Equal(t, []string{"deploy it to AWS"}, set.Outcomes)
}

func TestHeuristicAnalyzer_OrderAndDuplicates(t *testing.T) {
	a, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	set, err := a.Analyze(context.Background(), "Add caching. Add metrics. Add caching. It should not exceed 50ms")
	require.NoError(t, err)

	assert.Equal(t, []string{"Add caching", "Add metrics", "Add caching"}, set.Requirements)
	assert.Equal(t, []string{"It should not exceed 50ms"}, set.Constraints)
	assert.Empty(t, set.Outcomes)
}

func TestHeuristicAnalyzer_EmptyAndInvalid(t *testing.T) {
	a, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	set, err := a.Analyze(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, set.Validate())
	assert.True(t, set.IsEmpty())

	set, err = a.Analyze(context.Background(), "?!... ,,,")
	require.NoError(t, err)
	assert.True(t, set.IsEmpty(), "punctuation-only text is not an error")

	_, err = a.Analyze(context.Background(), "\xff")
	assert.ErrorIs(t, err, orchestrator.ErrInvalidRequest)
}

func TestHeuristicAnalyzer_Deterministic(t *testing.T) {
	a, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	req := orchestrator.Request("Implement auth with OAuth, ship it so that users can sign in")
	first, err := a.Analyze(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.Analyze(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestHeuristicAnalyzer_Classify(t *testing.T) {
	a, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	tests := []struct {
		clause  string
		want    Category
		pattern string
	}{
		{"so that customers can pay", CategoryOutcome, "goal"},
		{"must be deployed nightly", CategoryOutcome, "delivery"},
		{"using PostgreSQL", CategoryConstraint, "technology"},
		{"within 200ms", CategoryConstraint, "limit"},
		{"Create a dashboard", CategoryRequirement, "action"},
		{"a dashboard for admins", CategoryRequirement, ""},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			got, name := a.Classify(tt.clause)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.pattern, name)
		})
	}
}

func TestNewHeuristicAnalyzer_RejectsBadPatterns(t *testing.T) {
	_, err := NewHeuristicAnalyzer([]Pattern{{Name: "bad", Regex: "(", Weight: 1, Category: CategoryOutcome}})
	assert.Error(t, err)

	_, err = NewHeuristicAnalyzer([]Pattern{{Name: "odd", Regex: "x", Weight: 1, Category: "other"}})
	assert.Error(t, err)
}

type stubCompleter struct {
	text string
	err  error
}

func (s stubCompleter) Complete(context.Context, string) (string, error) {
	return s.text, s.err
}

func TestLLMAnalyzer(t *testing.T) {
	a := NewLLMAnalyzer(stubCompleter{
		text: "```json\n{\"requirements\":[\"REST API\",\" \"],\"constraints\":[\"Flask\"]}\n```",
	}, nil, nil)

	set, err := a.Analyze(context.Background(), "Build a REST API using Flask")
	require.NoError(t, err)
	require.NoError(t, set.Validate(), "missing collections are filled in")
	assert.Equal(t, []string{"REST API"}, set.Requirements)
	assert.Equal(t, []string{"Flask"}, set.Constraints)
	assert.Empty(t, set.Outcomes)
}

func TestLLMAnalyzer_BlankRequestSkipsModel(t *testing.T) {
	a := NewLLMAnalyzer(stubCompleter{err: errors.New("must not be called")}, nil, nil)

	set, err := a.Analyze(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestLLMAnalyzer_Fallback(t *testing.T) {
	heuristic, err := NewHeuristicAnalyzer(nil)
	require.NoError(t, err)

	a := NewLLMAnalyzer(stubCompleter{err: errors.New("unavailable")}, heuristic, nil)
	set, err := a.Analyze(context.Background(), "Build a CLI")
	require.NoError(t, err)
	assert.Equal(t, []string{"Build a CLI"}, set.Requirements)

	a = NewLLMAnalyzer(stubCompleter{err: errors.New("unavailable")}, nil, nil)
	_, err = a.Analyze(context.Background(), "Build a CLI")
	assert.ErrorContains(t, err, "unavailable")
}
