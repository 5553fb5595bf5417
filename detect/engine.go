package detect

import (
	"bastion/core"

	"go.uber.org/zap"
)

// RuleEngine evaluates user-defined alerting rules against events.
// Rules are evaluated independently: every matching rule produces its own
// alert request, with no cross-rule short circuit and no ordering
// guarantees between rules.
type RuleEngine struct {
	logger *zap.SugaredLogger
}

// NewRuleEngine creates a new rule engine
func NewRuleEngine(logger *zap.SugaredLogger) *RuleEngine {
	if logger == nil {
		panic("logger is required")
	}
	return &RuleEngine{logger: logger}
}

// Evaluate runs every enabled rule against the context and returns one
// alert request per matching rule. A rule matches when all of its
// conditions match (AND semantics); a rule with zero conditions never
// matches. A rule whose conditions fail validation is skipped with a
// logged error and does not abort evaluation of the remaining rules.
func (e *RuleEngine) Evaluate(rules []core.Rule, ctx *core.EvalContext) []*core.AlertRequest {
	var requests []*core.AlertRequest

	for i := range rules {
		rule := &rules[i]

		if !rule.Enabled {
			continue
		}

		// An empty condition list would match vacuously under AND
		// semantics; such a rule would fire on every event, so it is
		// defined to never match instead.
		if len(rule.Conditions) == 0 {
			e.logger.Debugw("Skipping rule with no conditions",
				"rule_id", rule.ID,
				"rule_name", rule.Name)
			continue
		}

		if broken := e.validateConditions(rule); broken {
			continue
		}

		if e.ruleMatches(rule, ctx) {
			requests = append(requests, rule.AlertRequest())
		}
	}

	return requests
}

// validateConditions re-checks a rule's parsed conditions and reports
// whether the rule is broken. Conditions are validated at load time, but a
// rule handed in from another source (e.g. a direct API payload) gets the
// same treatment here.
func (e *RuleEngine) validateConditions(rule *core.Rule) bool {
	for i := range rule.Conditions {
		if err := rule.Conditions[i].Validate(); err != nil {
			e.logger.Errorw("Skipping rule with invalid condition",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err)
			return true
		}
	}
	return false
}

func (e *RuleEngine) ruleMatches(rule *core.Rule, ctx *core.EvalContext) bool {
	for i := range rule.Conditions {
		if !EvaluateCondition(rule.Conditions[i], ctx) {
			return false
		}
	}
	return true
}
