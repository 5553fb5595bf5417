package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rule represents a user-defined alerting rule. A rule matches an event when
// every one of its conditions matches (implicit AND). Rules are owned by the
// rule store; the detection pipeline only ever reads enabled-rule snapshots
// and never mutates them.
type Rule struct {
	ID          string      `json:"id" example:"failed_login"`
	Name        string      `json:"name" example:"Failed User Login"`
	Description string      `json:"description" example:"Detects failed login attempts"`
	Conditions  []Condition `json:"conditions"`
	Severity    Severity    `json:"severity" example:"high"`
	Enabled     bool        `json:"enabled" example:"true"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewRule creates a rule with a generated ID and timestamps
func NewRule(name, description string, severity Severity, conditions []Condition) *Rule {
	now := time.Now().UTC()
	return &Rule{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Conditions:  conditions,
		Severity:    severity,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks rule fields before create/update
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid rule severity: %q", r.Severity)
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// AlertRequest builds the alert request a match of this rule produces
func (r *Rule) AlertRequest() *AlertRequest {
	return &AlertRequest{
		Severity:    r.Severity,
		Title:       r.Name,
		Description: fmt.Sprintf("Alerting rule %q matched: %s", r.Name, r.Description),
		RuleID:      r.ID,
	}
}
