package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bastion/core"

	"go.uber.org/zap"
)

// SQLiteRuleStorage persists alerting rules in SQLite. Conditions are
// stored as a JSON array and parsed through core.ParseConditions on load;
// a row whose conditions no longer validate is skipped with a logged error
// so one corrupt rule cannot take down an evaluation pass.
type SQLiteRuleStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteRuleStorage creates a rule storage backed by the given database
func NewSQLiteRuleStorage(sqlite *SQLite, logger *zap.SugaredLogger) (*SQLiteRuleStorage, error) {
	storage := &SQLiteRuleStorage{
		sqlite: sqlite,
		logger: logger,
	}

	if err := storage.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure rules table: %w", err)
	}

	return storage, nil
}

func (s *SQLiteRuleStorage) ensureTable() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		conditions TEXT NOT NULL DEFAULT '[]',
		severity TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(enabled);
	`

	if _, err := s.sqlite.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create rules table: %w", err)
	}

	return nil
}

// GetEnabledRules returns the validated, enabled-rule snapshot used by an
// evaluation pass. Rules with malformed stored conditions are skipped, not
// fatal.
func (s *SQLiteRuleStorage) GetEnabledRules(ctx context.Context) ([]core.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, description, conditions, severity, enabled, created_at, updated_at
		FROM rules WHERE enabled = 1 ORDER BY created_at`)
}

// GetRules retrieves rules with pagination
func (s *SQLiteRuleStorage) GetRules(ctx context.Context, limit, offset int) ([]core.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, description, conditions, severity, enabled, created_at, updated_at
		FROM rules ORDER BY created_at LIMIT ? OFFSET ?`, limit, offset)
}

func (s *SQLiteRuleStorage) queryRules(ctx context.Context, query string, args ...interface{}) ([]core.Rule, error) {
	rows, err := s.sqlite.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		rule, err := s.scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			// Malformed stored conditions, already logged
			continue
		}
		rules = append(rules, *rule)
	}

	return rules, rows.Err()
}

// GetRule retrieves one rule by id. Unlike list queries, malformed stored
// conditions surface as an error here so the operator can see what broke.
func (s *SQLiteRuleStorage) GetRule(ctx context.Context, id string) (*core.Rule, error) {
	row := s.sqlite.DB.QueryRowContext(ctx, `
		SELECT id, name, description, conditions, severity, enabled, created_at, updated_at
		FROM rules WHERE id = ?`, id)

	var (
		rule       core.Rule
		conditions string
		severity   string
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &conditions,
		&severity, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.Severity = core.Severity(severity)
	rule.Conditions, err = core.ParseConditions([]byte(conditions))
	if err != nil {
		return nil, fmt.Errorf("rule %s has malformed conditions: %w", id, err)
	}

	return &rule, nil
}

// GetRuleCount returns the total number of stored rules
func (s *SQLiteRuleStorage) GetRuleCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.sqlite.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// CreateRule persists a new rule
func (s *SQLiteRuleStorage) CreateRule(ctx context.Context, rule *core.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal conditions: %v", ErrInvalidInput, err)
	}

	_, err = s.sqlite.DB.ExecContext(ctx, `
		INSERT INTO rules (id, name, description, conditions, severity, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Description, string(conditions),
		rule.Severity.String(), rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// UpdateRule replaces a stored rule's mutable fields
func (s *SQLiteRuleStorage) UpdateRule(ctx context.Context, id string, rule *core.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal conditions: %v", ErrInvalidInput, err)
	}

	result, err := s.sqlite.DB.ExecContext(ctx, `
		UPDATE rules SET name = ?, description = ?, conditions = ?, severity = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Description, string(conditions), rule.Severity.String(),
		rule.Enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return s.requireAffected(result, id)
}

// DeleteRule removes a rule
func (s *SQLiteRuleStorage) DeleteRule(ctx context.Context, id string) error {
	result, err := s.sqlite.DB.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return s.requireAffected(result, id)
}

// EnableRule marks a rule enabled
func (s *SQLiteRuleStorage) EnableRule(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, true)
}

// DisableRule marks a rule disabled
func (s *SQLiteRuleStorage) DisableRule(ctx context.Context, id string) error {
	return s.setEnabled(ctx, id, false)
}

func (s *SQLiteRuleStorage) setEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.sqlite.DB.ExecContext(ctx, `
		UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule enabled flag: %w", err)
	}
	return s.requireAffected(result, id)
}

func (s *SQLiteRuleStorage) requireAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	return nil
}

// scanRuleRow scans one list-query row. Returns (nil, nil) for a rule whose
// stored conditions fail to parse.
func (s *SQLiteRuleStorage) scanRuleRow(rows *sql.Rows) (*core.Rule, error) {
	var (
		rule       core.Rule
		conditions string
		severity   string
	)

	err := rows.Scan(&rule.ID, &rule.Name, &rule.Description, &conditions,
		&severity, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.Severity = core.Severity(severity)
	rule.Conditions, err = core.ParseConditions([]byte(conditions))
	if err != nil {
		s.logger.Errorw("Skipping rule with malformed stored conditions",
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"error", err)
		return nil, nil
	}

	return &rule, nil
}
