package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ConditionField selects which event context field a condition matches against
type ConditionField string

const (
	// ConditionFieldSourceIP matches the event's origin address
	ConditionFieldSourceIP ConditionField = "source_ip"
	// ConditionFieldEventType matches the event type tag
	ConditionFieldEventType ConditionField = "event_type"
	// ConditionFieldSeverity matches the event's log level as a string
	ConditionFieldSeverity ConditionField = "severity"
	// ConditionFieldMessage matches the free-text message
	ConditionFieldMessage ConditionField = "message"
	// ConditionFieldSource matches the source tag
	ConditionFieldSource ConditionField = "source"
)

// IsValid checks if the field selector is valid
func (f ConditionField) IsValid() bool {
	switch f {
	case ConditionFieldSourceIP, ConditionFieldEventType, ConditionFieldSeverity,
		ConditionFieldMessage, ConditionFieldSource:
		return true
	default:
		return false
	}
}

// ConditionOperator selects how the field value is compared
type ConditionOperator string

const (
	// OperatorEquals is exact string equality
	OperatorEquals ConditionOperator = "equals"
	// OperatorContains is a case-sensitive substring test
	OperatorContains ConditionOperator = "contains"
	// OperatorRegex is a case-insensitive regular expression match
	OperatorRegex ConditionOperator = "regex"
	// OperatorIn is set membership over a list of values
	OperatorIn ConditionOperator = "in"
)

// IsValid checks if the operator is valid
func (o ConditionOperator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorContains, OperatorRegex, OperatorIn:
		return true
	default:
		return false
	}
}

// ErrInvalidCondition is returned when stored condition data fails validation
var ErrInvalidCondition = errors.New("invalid rule condition")

// Condition is one field/operator/value predicate of an alerting rule.
// Conditions are parsed and validated once when a rule is loaded; a rule
// whose stored conditions do not validate is skipped by the engine rather
// than coerced at match time.
//
// Value carries the operand for equals/contains/regex; Values carries the
// member set for in. Exactly one of the two is populated for a valid
// condition.
type Condition struct {
	Field    ConditionField    `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    string            `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []string          `json:"values,omitempty" yaml:"values,omitempty"`
}

// Validate checks the condition's field selector, operator, and operand shape
func (c *Condition) Validate() error {
	if !c.Field.IsValid() {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidCondition, c.Field)
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, c.Operator)
	}

	switch c.Operator {
	case OperatorIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("%w: operator %q requires a non-empty value set", ErrInvalidCondition, c.Operator)
		}
	default:
		if c.Value == "" {
			return fmt.Errorf("%w: operator %q requires a value", ErrInvalidCondition, c.Operator)
		}
		if len(c.Values) > 0 {
			return fmt.Errorf("%w: operator %q does not accept a value set", ErrInvalidCondition, c.Operator)
		}
	}

	return nil
}

// ParseConditions parses a stored condition list from JSON and validates
// every entry. Rules are stored with their conditions serialized as a JSON
// array; this is the single point where that loosely-typed representation
// becomes the validated internal one.
func ParseConditions(data []byte) ([]Condition, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var conditions []Condition
	if err := json.Unmarshal(data, &conditions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	for i := range conditions {
		if err := conditions[i].Validate(); err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
	}

	return conditions, nil
}
