package storage

import (
	"context"
	"time"

	"bastion/core"
)

// LogStorageInterface defines the interface for log event storage.
// AppendLog assigns the event id and timestamp when absent and is durable
// on return; stored events are immutable.
type LogStorageInterface interface {
	AppendLog(ctx context.Context, event *core.Event) (*core.Event, error)
	GetLogs(ctx context.Context, limit, offset int) ([]core.Event, error)
	GetLog(ctx context.Context, id string) (*core.Event, error)
	GetLogCount(ctx context.Context) (int64, error)
}

// AlertStorageInterface defines the interface for alert storage.
// GetAlerts filters by minimum severity before applying pagination; a zero
// minSeverity means no filter.
type AlertStorageInterface interface {
	CreateAlert(ctx context.Context, alert *core.Alert) error
	GetAlert(ctx context.Context, id string) (*core.Alert, error)
	GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error)
	GetAlertCount(ctx context.Context) (int64, error)
	UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus, timestamp time.Time) error
}

// RuleStorageInterface defines the interface for alerting rule storage
type RuleStorageInterface interface {
	GetEnabledRules(ctx context.Context) ([]core.Rule, error)
	GetRules(ctx context.Context, limit, offset int) ([]core.Rule, error)
	GetRule(ctx context.Context, id string) (*core.Rule, error)
	GetRuleCount(ctx context.Context) (int64, error)
	CreateRule(ctx context.Context, rule *core.Rule) error
	UpdateRule(ctx context.Context, id string, rule *core.Rule) error
	DeleteRule(ctx context.Context, id string) error
	EnableRule(ctx context.Context, id string) error
	DisableRule(ctx context.Context, id string) error
}
