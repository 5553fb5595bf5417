package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bastion/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SQLiteLogStorage persists log events in SQLite. Events are append-only:
// there is no update path once a row is written.
type SQLiteLogStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteLogStorage creates a log storage backed by the given database
func NewSQLiteLogStorage(sqlite *SQLite, logger *zap.SugaredLogger) (*SQLiteLogStorage, error) {
	storage := &SQLiteLogStorage{
		sqlite: sqlite,
		logger: logger,
	}

	if err := storage.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure logs table: %w", err)
	}

	return storage, nil
}

func (s *SQLiteLogStorage) ensureTable() error {
	schema := `
	CREATE TABLE IF NOT EXISTS logs (
		event_id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		source_ip TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
	`

	if _, err := s.sqlite.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create logs table: %w", err)
	}

	return nil
}

// AppendLog stores one event, assigning its id and timestamp when absent.
// The write is durable on return.
func (s *SQLiteLogStorage) AppendLog(ctx context.Context, event *core.Event) (*core.Event, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: event is nil", ErrInvalidInput)
	}

	stored := *event
	if stored.EventID == "" {
		stored.EventID = uuid.New().String()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	var metadata []byte
	if len(stored.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(stored.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal metadata: %v", ErrInvalidInput, err)
		}
	}

	_, err := s.sqlite.DB.ExecContext(ctx, `
		INSERT INTO logs (event_id, timestamp, level, source, source_ip, event_type, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.EventID, stored.Timestamp, stored.Level.String(), stored.Source,
		stored.SourceIP, stored.EventType, stored.Message, nullableString(metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to insert log event: %w", err)
	}

	return &stored, nil
}

// GetLogs retrieves events newest-first
func (s *SQLiteLogStorage) GetLogs(ctx context.Context, limit, offset int) ([]core.Event, error) {
	rows, err := s.sqlite.DB.QueryContext(ctx, `
		SELECT event_id, timestamp, level, source, source_ip, event_type, message, metadata
		FROM logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		event, err := scanLogRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// GetLog retrieves one event by id
func (s *SQLiteLogStorage) GetLog(ctx context.Context, id string) (*core.Event, error) {
	row := s.sqlite.DB.QueryRowContext(ctx, `
		SELECT event_id, timestamp, level, source, source_ip, event_type, message, metadata
		FROM logs WHERE event_id = ?`, id)

	event, err := scanLogRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetLogCount returns the total number of stored events
func (s *SQLiteLogStorage) GetLogCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.sqlite.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLogRow(row rowScanner) (*core.Event, error) {
	var (
		event    core.Event
		level    string
		metadata sql.NullString
	)

	err := row.Scan(&event.EventID, &event.Timestamp, &level, &event.Source,
		&event.SourceIP, &event.EventType, &event.Message, &metadata)
	if err != nil {
		return nil, err
	}

	event.Level = core.LogLevel(level)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log metadata for %s: %w", event.EventID, err)
		}
	}

	return &event, nil
}

func nullableString(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
