// Package detect implements the detection pipeline: condition evaluation,
// the user-rule engine, the built-in heuristic classifier, and the
// orchestration that turns ingested log events into persisted alerts.
package detect

import (
	"regexp"
	"strings"

	"bastion/core"

	lru "github.com/hashicorp/golang-lru/v2"
)

// regexCacheSize bounds the compiled-pattern cache. Rule sets are small in
// practice; the bound exists so a churn of bad patterns cannot grow memory.
const regexCacheSize = 256

// regexCache caches case-insensitive compiled patterns across evaluations.
// A nil entry records a pattern that failed to compile so it is not
// recompiled per event.
var regexCache, _ = lru.New[string, *regexp.Regexp](regexCacheSize)

// compileCached returns the compiled case-insensitive pattern, or nil when
// the pattern is invalid.
func compileCached(pattern string) *regexp.Regexp {
	if re, ok := regexCache.Get(pattern); ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		regexCache.Add(pattern, nil)
		return nil
	}

	regexCache.Add(pattern, re)
	return re
}

// EvaluateCondition evaluates a single condition against an event context.
// It fails closed: an absent or empty field, an invalid regex pattern, or an
// operand that does not fit the operator all evaluate to false rather than
// returning an error.
func EvaluateCondition(cond core.Condition, ctx *core.EvalContext) bool {
	if ctx == nil {
		return false
	}

	fieldValue, ok := ctx.Field(cond.Field)
	if !ok || fieldValue == "" {
		return false
	}

	switch cond.Operator {
	case core.OperatorEquals:
		return cond.Value != "" && fieldValue == cond.Value

	case core.OperatorContains:
		return cond.Value != "" && strings.Contains(fieldValue, cond.Value)

	case core.OperatorRegex:
		if cond.Value == "" {
			return false
		}
		re := compileCached(cond.Value)
		if re == nil {
			return false
		}
		return re.MatchString(fieldValue)

	case core.OperatorIn:
		for _, member := range cond.Values {
			if fieldValue == member {
				return true
			}
		}
		return false

	default:
		return false
	}
}
