package core

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity level of an ingested log event
type LogLevel string

const (
	// LogLevelInfo indicates routine, informational events
	LogLevelInfo LogLevel = "info"
	// LogLevelWarning indicates events that merit attention
	LogLevelWarning LogLevel = "warning"
	// LogLevelError indicates failures
	LogLevelError LogLevel = "error"
	// LogLevelCritical indicates severe failures or active threats
	LogLevelCritical LogLevel = "critical"
)

// String returns the string representation
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelCritical:
		return true
	default:
		return false
	}
}

// Event represents a single ingested security log event.
// Events are immutable once stored: the ingestion path assigns EventID and
// Timestamp, and no component mutates an event afterwards.
type Event struct {
	EventID   string                 `json:"event_id" example:"event-123"`
	Timestamp time.Time              `json:"timestamp" example:"2026-08-30T12:00:00Z"`
	Level     LogLevel               `json:"level" example:"warning"`
	Source    string                 `json:"source" example:"auth-service"`
	SourceIP  string                 `json:"source_ip,omitempty" example:"203.0.113.42"`
	EventType string                 `json:"event_type" example:"user_login"`
	Message   string                 `json:"message" example:"Failed login attempt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates a new Event with a generated UUID and UTC timestamp
func NewEvent() *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
	}
}

// EvalContext is the flattened, string-typed view of an Event used for
// condition matching. It is derived once per event and discarded after the
// evaluation pass.
type EvalContext struct {
	SourceIP  string
	EventType string
	Severity  string
	Message   string
	Source    string
}

// NewEvalContext derives the evaluation context for an event
func NewEvalContext(event *Event) *EvalContext {
	return &EvalContext{
		SourceIP:  event.SourceIP,
		EventType: event.EventType,
		Severity:  event.Level.String(),
		Message:   event.Message,
		Source:    event.Source,
	}
}

// Field returns the context value selected by field, and whether the
// selector is known. Unknown selectors report false so condition
// evaluation can fail closed.
func (c *EvalContext) Field(field ConditionField) (string, bool) {
	switch field {
	case ConditionFieldSourceIP:
		return c.SourceIP, true
	case ConditionFieldEventType:
		return c.EventType, true
	case ConditionFieldSeverity:
		return c.Severity, true
	case ConditionFieldMessage:
		return c.Message, true
	case ConditionFieldSource:
		return c.Source, true
	default:
		return "", false
	}
}
