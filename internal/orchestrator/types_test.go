package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, Request("").Validate())
	assert.NoError(t, Request("Build a REST API").Validate())
	assert.ErrorIs(t, Request("bad \xff bytes").Validate(), ErrInvalidRequest)

	assert.True(t, Request("  \n").IsBlank())
	assert.False(t, Request("x").IsBlank())
}

func TestRequirementSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     RequirementSet
		wantErr bool
	}{
		{"empty but well formed", EmptyRequirementSet(), false},
		{"populated", NewRequirementSet([]string{"a"}, []string{"b"}, []string{"c"}), false},
		{"zero value", RequirementSet{}, true},
		{"missing outcomes", RequirementSet{Requirements: []string{}, Constraints: []string{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRequirements)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequirementSet_CloneIsIndependent(t *testing.T) {
	orig := NewRequirementSet([]string{"api", "api"}, nil, []string{"deployed"})
	clone := orig.Clone()
	clone.Requirements[0] = "changed"

	assert.Equal(t, []string{"api", "api"}, orig.Requirements, "duplicates are kept and order preserved")
	assert.True(t, orig.Equal(NewRequirementSet([]string{"api", "api"}, []string{}, []string{"deployed"})))

	assert.Nil(t, RequirementSet{}.Clone().Requirements, "nil collections stay detectable")
}

func TestRequirementSet_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(EmptyRequirementSet())
	require.NoError(t, err)
	assert.JSONEq(t, `{"requirements":[],"constraints":[],"outcomes":[]}`, string(data))
}

func TestPlan(t *testing.T) {
	p := NewPlan("one", "two")
	c := p.Clone()
	c.Steps[0] = "changed"

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "one", p.Steps[0])
	assert.Equal(t, `["one", "two"]`, p.String())
	assert.Equal(t, 0, NewPlan().Len())
}

func TestValidationReport_Check(t *testing.T) {
	assert.NoError(t, Valid().Check())
	assert.NoError(t, Valid("advisory note").Check())
	assert.NoError(t, Invalid("syntax error").Check())
	assert.ErrorIs(t, Invalid().Check(), ErrInconsistentReport)

	assert.NotNil(t, Valid().Issues)
	assert.Empty(t, Valid().Issues)
	assert.Equal(t, `{is_valid: false, issues: ["syntax error"]}`, Invalid("syntax error").String())
}
