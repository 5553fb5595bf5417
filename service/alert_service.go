package service

import (
	"context"
	"fmt"
	"time"

	"bastion/core"
	"bastion/storage"

	"go.uber.org/zap"
)

// AlertService exposes alert queries and status transitions to the API
type AlertService struct {
	store  storage.AlertStorageInterface
	logger *zap.SugaredLogger
}

// NewAlertService creates a new alert service
func NewAlertService(store storage.AlertStorageInterface, logger *zap.SugaredLogger) *AlertService {
	if store == nil {
		panic("service: alert storage is required")
	}
	if logger == nil {
		panic("service: logger is required")
	}
	return &AlertService{store: store, logger: logger}
}

// GetAlerts returns a page of alerts, newest first. A non-zero minSeverity
// filters before pagination, so a short page means no further matches.
func (s *AlertService) GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error) {
	if minSeverity != "" && !minSeverity.IsValid() {
		return nil, fmt.Errorf("%w: invalid severity %q", storage.ErrInvalidInput, minSeverity)
	}
	return s.store.GetAlerts(ctx, limit, offset, minSeverity)
}

// GetAlert returns a single alert by id
func (s *AlertService) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// UpdateAlertStatus applies a lifecycle transition to an alert and returns
// the updated alert. The storage layer enforces the transition rules
// against the stored state, so a stale caller cannot move an alert
// backwards.
func (s *AlertService) UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus) (*core.Alert, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid alert status: %q", status)
	}

	if err := s.store.UpdateAlertStatus(ctx, id, status, time.Now().UTC()); err != nil {
		return nil, err
	}

	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Alert status updated",
		"alert_id", id,
		"status", status)

	return alert, nil
}
