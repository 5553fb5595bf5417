package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bastion/core"

	"go.uber.org/zap"
)

// SQLiteAlertStorage persists alerts in SQLite
type SQLiteAlertStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteAlertStorage creates an alert storage backed by the given database
func NewSQLiteAlertStorage(sqlite *SQLite, logger *zap.SugaredLogger) (*SQLiteAlertStorage, error) {
	storage := &SQLiteAlertStorage{
		sqlite: sqlite,
		logger: logger,
	}

	if err := storage.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure alerts table: %w", err)
	}

	return storage, nil
}

func (s *SQLiteAlertStorage) ensureTable() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alerts (
		alert_id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		source_ip TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		acknowledged_at DATETIME,
		resolved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
	`

	if _, err := s.sqlite.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}

	return nil
}

// CreateAlert persists a new alert
func (s *SQLiteAlertStorage) CreateAlert(ctx context.Context, alert *core.Alert) error {
	if alert == nil {
		return fmt.Errorf("%w: alert is nil", ErrInvalidInput)
	}
	if alert.AlertID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}
	if !alert.Severity.IsValid() {
		return fmt.Errorf("%w: invalid severity %q", ErrInvalidInput, alert.Severity)
	}

	_, err := s.sqlite.DB.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, created_at, severity, title, description, source, source_ip, status, acknowledged_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.AlertID, alert.CreatedAt, alert.Severity.String(), alert.Title,
		alert.Description, alert.Source, alert.SourceIP, alert.Status.String(),
		alert.AcknowledgedAt, alert.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// GetAlert retrieves one alert by id
func (s *SQLiteAlertStorage) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	row := s.sqlite.DB.QueryRowContext(ctx, `
		SELECT alert_id, created_at, severity, title, description, source, source_ip, status, acknowledged_at, resolved_at
		FROM alerts WHERE alert_id = ?`, id)

	alert, err := scanAlertRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// GetAlerts retrieves alerts newest-first. A non-zero minSeverity restricts
// the result to alerts at or above that severity; the filter applies in the
// query, before pagination.
func (s *SQLiteAlertStorage) GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error) {
	query := `
		SELECT alert_id, created_at, severity, title, description, source, source_ip, status, acknowledged_at, resolved_at
		FROM alerts`
	var args []interface{}

	if minSeverity != "" {
		if !minSeverity.IsValid() {
			return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalidInput, minSeverity)
		}
		severities := core.SeveritiesAtLeast(minSeverity)
		placeholders := make([]string, len(severities))
		for i, sev := range severities {
			placeholders[i] = "?"
			args = append(args, sev.String())
		}
		query += " WHERE severity IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.sqlite.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}

	return alerts, rows.Err()
}

// GetAlertCount returns the total number of stored alerts
func (s *SQLiteAlertStorage) GetAlertCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.sqlite.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// UpdateAlertStatus applies a validated status transition. The lifecycle
// check runs against the stored row so concurrent operators cannot move an
// alert backwards.
func (s *SQLiteAlertStorage) UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus, timestamp time.Time) error {
	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}

	if err := alert.TransitionTo(status, timestamp); err != nil {
		return err
	}

	result, err := s.sqlite.DB.ExecContext(ctx, `
		UPDATE alerts SET status = ?, acknowledged_at = ?, resolved_at = ? WHERE alert_id = ?`,
		alert.Status.String(), alert.AcknowledgedAt, alert.ResolvedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}

	return nil
}

func scanAlertRow(row rowScanner) (*core.Alert, error) {
	var (
		alert          core.Alert
		severity       string
		status         string
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
	)

	err := row.Scan(&alert.AlertID, &alert.CreatedAt, &severity, &alert.Title,
		&alert.Description, &alert.Source, &alert.SourceIP, &status,
		&acknowledgedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	alert.Severity = core.Severity(severity)
	alert.Status = core.AlertStatus(status)
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		alert.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}

	return &alert, nil
}
