package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bastion/core"
	"bastion/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockIngester records ingested events and assigns ids like the real service
type mockIngester struct {
	events []*core.Event
	err    error
}

func (m *mockIngester) Ingest(ctx context.Context, event *core.Event) (*core.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.events = append(m.events, event)
	return event, nil
}

// mockAlertManager serves alerts from a map
type mockAlertManager struct {
	alerts map[string]*core.Alert
}

func (m *mockAlertManager) GetAlerts(ctx context.Context, limit, offset int, minSeverity core.Severity) ([]core.Alert, error) {
	var out []core.Alert
	for _, a := range m.alerts {
		if minSeverity != "" && !a.Severity.AtLeast(minSeverity) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockAlertManager) GetAlert(ctx context.Context, id string) (*core.Alert, error) {
	alert, ok := m.alerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return alert, nil
}

func (m *mockAlertManager) UpdateAlertStatus(ctx context.Context, id string, status core.AlertStatus) (*core.Alert, error) {
	alert, ok := m.alerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := alert.TransitionTo(status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return alert, nil
}

type apiFixture struct {
	api      *API
	ingester *mockIngester
	alerts   *mockAlertManager
	rules    *storage.MockRuleStorage
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	f := &apiFixture{
		ingester: &mockIngester{},
		alerts:   &mockAlertManager{alerts: make(map[string]*core.Alert)},
		rules:    storage.NewMockRuleStorage(),
	}

	hub := NewHub(context.Background(), logger)
	go hub.Start()
	t.Cleanup(hub.Stop)

	f.api = NewAPI(Config{
		ListenAddr:     ":0",
		RequestTimeout: 5 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, f.ingester, storage.NewMockLogStorage(), f.alerts, f.rules, hub, logger)

	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	f.api.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleCreateLog(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/logs", map[string]interface{}{
		"level":      "warning",
		"source":     "auth-service",
		"source_ip":  "203.0.113.42",
		"event_type": "user_login",
		"message":    "Failed login attempt from 203.0.113.42",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var event core.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, core.LogLevelWarning, event.Level)

	require.Len(t, f.ingester.events, 1)
}

func TestHandleCreateLogValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing level", map[string]interface{}{"source": "s", "message": "m"}},
		{"bad level", map[string]interface{}{"level": "fatal", "source": "s", "message": "m"}},
		{"missing source", map[string]interface{}{"level": "info", "message": "m"}},
		{"missing message", map[string]interface{}{"level": "info", "source": "s"}},
		{"bad source ip", map[string]interface{}{"level": "info", "source": "s", "message": "m", "source_ip": "not-an-ip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/logs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Empty(t, f.ingester.events)
}

func TestHandleGetAlertsMinSeverity(t *testing.T) {
	f := newAPIFixture(t)

	for i, sev := range []core.Severity{core.SeverityCritical, core.SeverityMedium, core.SeverityInfo} {
		id := fmt.Sprintf("a-%d", i)
		f.alerts.alerts[id] = &core.Alert{
			AlertID:   id,
			CreatedAt: time.Now().UTC(),
			Severity:  sev,
			Title:     "t",
			Status:    core.AlertStatusActive,
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/alerts?min_severity=medium", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []core.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Alerts, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts?min_severity=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetAlertNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/alerts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateAlertStatus(t *testing.T) {
	f := newAPIFixture(t)

	alert := &core.Alert{
		AlertID:   "a-1",
		CreatedAt: time.Now().UTC(),
		Severity:  core.SeverityHigh,
		Title:     "Authentication Failure",
		Status:    core.AlertStatusActive,
	}
	f.alerts.alerts[alert.AlertID] = alert

	rec := f.do(t, http.MethodPost, "/api/v1/alerts/a-1/status", map[string]string{"status": "acknowledged"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated core.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, core.AlertStatusAcknowledged, updated.Status)
	assert.NotNil(t, updated.AcknowledgedAt)

	// Backwards transition is rejected with a conflict
	f.alerts.alerts[alert.AlertID].Status = core.AlertStatusResolved
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/a-1/status", map[string]string{"status": "acknowledged"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleUpdateAlertStatusRejectsActive(t *testing.T) {
	f := newAPIFixture(t)

	// "active" is not a valid transition target
	rec := f.do(t, http.MethodPost, "/api/v1/alerts/a-1/status", map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRuleCRUD(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"name":     "Watchlist hit",
		"severity": "high",
		"conditions": []map[string]interface{}{
			{"field": "source_ip", "operator": "in", "values": []string{"203.0.113.42"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created core.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/rules/%s/disable", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rule, err := f.rules.GetRule(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)

	rec = f.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateRuleRejectsInvalidCondition(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"name":     "Broken rule",
		"severity": "high",
		"conditions": []map[string]interface{}{
			// in without values
			{"field": "source_ip", "operator": "in"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := zap.NewNop().Sugar()
	hub := NewHub(context.Background(), logger)
	go hub.Start()
	t.Cleanup(hub.Stop)

	a := NewAPI(Config{
		ListenAddr:     ":0",
		RequestTimeout: 5 * time.Second,
		RateLimitRPS:   1,
		RateLimitBurst: 2,
	}, &mockIngester{}, storage.NewMockLogStorage(), &mockAlertManager{alerts: map[string]*core.Alert{}}, storage.NewMockRuleStorage(), hub, logger)

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		a.Router().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited, "burst exhaustion must return 429")
}
