package core

import (
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity of an alert
type Severity string

const (
	// SeverityCritical indicates an alert requiring immediate response
	SeverityCritical Severity = "critical"
	// SeverityHigh indicates a serious alert
	SeverityHigh Severity = "high"
	// SeverityMedium indicates a moderate alert
	SeverityMedium Severity = "medium"
	// SeverityLow indicates a minor alert
	SeverityLow Severity = "low"
	// SeverityInfo indicates an informational alert
	SeverityInfo Severity = "info"
)

// severityOrder ranks severities for comparison and notification filtering
var severityOrder = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// String returns the string representation
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	_, ok := severityOrder[s]
	return ok
}

// AtLeast reports whether s is equal to or more severe than other.
// Unknown severities rank below info.
func (s Severity) AtLeast(other Severity) bool {
	return severityOrder[s] >= severityOrder[other]
}

// SeveritiesAtLeast returns the severities ranking at or above min, most
// severe first. Used to turn a minimum-severity filter into a member set
// for storage queries.
func SeveritiesAtLeast(min Severity) []Severity {
	ordered := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

	var out []Severity
	for _, s := range ordered {
		if s.AtLeast(min) {
			out = append(out, s)
		}
	}
	return out
}

// AlertStatus represents the lifecycle status of an alert
type AlertStatus string

const (
	// AlertStatusActive indicates a new alert awaiting review
	AlertStatusActive AlertStatus = "active"
	// AlertStatusAcknowledged indicates an alert an operator has taken ownership of
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	// AlertStatusResolved indicates a closed alert
	AlertStatusResolved AlertStatus = "resolved"
)

// String returns the string representation
func (s AlertStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	default:
		return false
	}
}

// Alert represents a detected security condition with a tracked lifecycle.
// The detection pipeline always creates alerts with status active; status
// only ever advances forward from there (see alert_lifecycle.go).
type Alert struct {
	AlertID        string      `json:"alert_id" example:"alert-123"`
	CreatedAt      time.Time   `json:"created_at" example:"2026-08-30T12:00:00Z"`
	Severity       Severity    `json:"severity" example:"high"`
	Title          string      `json:"title" example:"Authentication Failure"`
	Description    string      `json:"description" example:"Failed login attempt from 203.0.113.42"`
	Source         string      `json:"source" example:"auth-service"`
	SourceIP       string      `json:"source_ip,omitempty" example:"203.0.113.42"`
	Status         AlertStatus `json:"status" example:"active"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}

// AlertRequest is a pipeline-internal request to raise an alert. Both the
// heuristic classifier and the rule engine emit these; the pipeline merges
// them and persists the survivors as Alerts.
type AlertRequest struct {
	Severity    Severity
	Title       string
	Description string
	// RuleID is set when the request came from a user-defined rule
	RuleID string
	// Detector is set when the request came from a built-in detector
	Detector string
}

// NewAlertFromRequest materializes an active alert for a request, stamping
// identity, timestamp, and the originating event's source fields.
func NewAlertFromRequest(req *AlertRequest, event *Event) *Alert {
	return &Alert{
		AlertID:     uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Severity:    req.Severity,
		Title:       req.Title,
		Description: req.Description,
		Source:      event.Source,
		SourceIP:    event.SourceIP,
		Status:      AlertStatusActive,
	}
}
