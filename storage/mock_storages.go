package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bastion/core"

	"github.com/google/uuid"
)

// MockLogStorage is an in-memory LogStorageInterface for testing
type MockLogStorage struct {
	mu     sync.Mutex
	events []core.Event
	// AppendErr, when set, is returned by AppendLog
	AppendErr error
}

// NewMockLogStorage creates an empty in-memory log storage
func NewMockLogStorage() *MockLogStorage {
	return &MockLogStorage{}
}

func (m *MockLogStorage) AppendLog(ctx context.Context, event *core.Event) (*core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	stored := *event
	if stored.EventID == "" {
		stored.EventID = uuid.New().String()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, stored)
	return &stored, nil
}

func (m *MockLogStorage) GetLogs(ctx context.Context, limit, offset int) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset >= len(m.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.events) {
		end = len(m.events)
	}
	out := make([]core.Event, end-offset)
	copy(out, m.events[offset:end])
	return out, nil
}

func (m *MockLogStorage) GetLog(ctx context.Context, id string) (*core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].EventID == id {
			event := m.events[i]
			return &event, nil
		}
	}
	return nil, fmt.Errorf("%w: log %s", ErrNotFound, id)
}

func (m *MockLogStorage) GetLogCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

// MockAlertStorage is an in-memory AlertStorageInterface for testing
type MockAlertStorage struct {
	mu     sync.Mutex
	alerts map[string]*core.Alert
	order  []string
	// CreateErr, when set, is returned by CreateAlert
	CreateErr error
}

// NewMockAlertStorage creates an empty in-memory alert storage
func NewMockAlertStorage() *MockAlertStorage {
	return &MockAlertStorage{alerts: make(map[string]*core.Alert)}
}

func (m *MockAlertStorage) CreateAlert(ctx context.Context, alert *core.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}

	stored := *alert
	m.alerts[stored.AlertID] = &stored
	m.order = append(m.order, stored.AlertID)
	return nil
}

func (m *MockAlertStorage) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}
	copied := *alert
	return &copied, nil
}

func (m *MockAlertStorage) GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matching []core.Alert
	for _, id := range m.order {
		alert := m.alerts[id]
		if minSeverity != "" && !alert.Severity.AtLeast(minSeverity) {
			continue
		}
		matching = append(matching, *alert)
	}

	if offset >= len(matching) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[offset:end], nil
}

func (m *MockAlertStorage) GetAlertCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.order)), nil
}

func (m *MockAlertStorage) UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}
	return alert.TransitionTo(status, timestamp)
}

// All returns the stored alerts in creation order
func (m *MockAlertStorage) All() []core.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.Alert, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.alerts[id])
	}
	return out
}

// MockRuleStorage is an in-memory RuleStorageInterface for testing
type MockRuleStorage struct {
	mu    sync.Mutex
	rules map[string]*core.Rule
	order []string
	// EnabledErr, when set, is returned by GetEnabledRules
	EnabledErr error
}

// NewMockRuleStorage creates an in-memory rule storage seeded with rules
func NewMockRuleStorage(rules ...*core.Rule) *MockRuleStorage {
	m := &MockRuleStorage{rules: make(map[string]*core.Rule)}
	for _, rule := range rules {
		stored := *rule
		m.rules[stored.ID] = &stored
		m.order = append(m.order, stored.ID)
	}
	return m
}

func (m *MockRuleStorage) GetEnabledRules(ctx context.Context) ([]core.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EnabledErr != nil {
		return nil, m.EnabledErr
	}

	var out []core.Rule
	for _, id := range m.order {
		if m.rules[id].Enabled {
			out = append(out, *m.rules[id])
		}
	}
	return out, nil
}

func (m *MockRuleStorage) GetRules(ctx context.Context, limit, offset int) ([]core.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset >= len(m.order) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.order) {
		end = len(m.order)
	}
	out := make([]core.Rule, 0, end-offset)
	for _, id := range m.order[offset:end] {
		out = append(out, *m.rules[id])
	}
	return out, nil
}

func (m *MockRuleStorage) GetRule(ctx context.Context, id string) (*core.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	copied := *rule
	return &copied, nil
}

func (m *MockRuleStorage) GetRuleCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.order)), nil
}

func (m *MockRuleStorage) CreateRule(ctx context.Context, rule *core.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; exists {
		return fmt.Errorf("%w: rule %s already exists", ErrInvalidInput, rule.ID)
	}
	stored := *rule
	m.rules[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

func (m *MockRuleStorage) UpdateRule(ctx context.Context, id string, rule *core.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	stored := *rule
	stored.ID = id
	m.rules[id] = &stored
	return nil
}

func (m *MockRuleStorage) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	delete(m.rules, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRuleStorage) EnableRule(ctx context.Context, id string) error {
	return m.setEnabled(id, true)
}

func (m *MockRuleStorage) DisableRule(ctx context.Context, id string) error {
	return m.setEnabled(id, false)
}

func (m *MockRuleStorage) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	rule.Enabled = enabled
	return nil
}
