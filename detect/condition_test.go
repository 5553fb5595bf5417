package detect

import (
	"testing"

	"bastion/core"

	"github.com/stretchr/testify/assert"
)

func testEvalContext() *core.EvalContext {
	return &core.EvalContext{
		SourceIP:  "203.0.113.42",
		EventType: "user_login",
		Severity:  "warning",
		Message:   "Failed login attempt from 203.0.113.42",
		Source:    "auth-service",
	}
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name string
		cond core.Condition
		want bool
	}{
		{
			name: "equals match",
			cond: core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorEquals, Value: "203.0.113.42"},
			want: true,
		},
		{
			name: "equals mismatch",
			cond: core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorEquals, Value: "198.51.100.7"},
			want: false,
		},
		{
			name: "equals is case sensitive",
			cond: core.Condition{Field: core.ConditionFieldSource, Operator: core.OperatorEquals, Value: "Auth-Service"},
			want: false,
		},
		{
			name: "contains match",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorContains, Value: "login attempt"},
			want: true,
		},
		{
			name: "contains is case sensitive",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorContains, Value: "failed login"},
			want: false,
		},
		{
			name: "regex match is case insensitive",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorRegex, Value: "failed login"},
			want: true,
		},
		{
			name: "regex anchored mismatch",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorRegex, Value: "^login"},
			want: false,
		},
		{
			name: "invalid regex fails closed",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorRegex, Value: "([unclosed"},
			want: false,
		},
		{
			name: "in membership match",
			cond: core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorIn, Values: []string{"198.51.100.7", "203.0.113.42"}},
			want: true,
		},
		{
			name: "in membership mismatch",
			cond: core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorIn, Values: []string{"198.51.100.7"}},
			want: false,
		},
		{
			name: "in with empty set",
			cond: core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorIn, Values: []string{}},
			want: false,
		},
		{
			name: "unknown field fails closed",
			cond: core.Condition{Field: "hostname", Operator: core.OperatorEquals, Value: "auth-service"},
			want: false,
		},
		{
			name: "unknown operator fails closed",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: "startswith", Value: "Failed"},
			want: false,
		},
		{
			name: "empty value fails closed",
			cond: core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorEquals, Value: ""},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.cond, testEvalContext()))
		})
	}
}

func TestEvaluateConditionEmptyField(t *testing.T) {
	ctx := testEvalContext()
	ctx.SourceIP = ""

	cond := core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorEquals, Value: ""}
	assert.False(t, EvaluateCondition(cond, ctx), "empty field never matches, even against an empty value")

	cond = core.Condition{Field: core.ConditionFieldSourceIP, Operator: core.OperatorIn, Values: []string{""}}
	assert.False(t, EvaluateCondition(cond, ctx))
}

func TestEvaluateConditionNilContext(t *testing.T) {
	cond := core.Condition{Field: core.ConditionFieldMessage, Operator: core.OperatorContains, Value: "x"}
	assert.False(t, EvaluateCondition(cond, nil))
}

func TestCompileCachedCachesInvalidPatterns(t *testing.T) {
	assert.Nil(t, compileCached("([bad"))
	// Second lookup hits the negative cache entry
	assert.Nil(t, compileCached("([bad"))

	re := compileCached("failed login")
	assert.NotNil(t, re)
	assert.True(t, re.MatchString("FAILED LOGIN"))
}
