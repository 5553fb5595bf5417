package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bastion/core"
	"bastion/storage"

	"github.com/gorilla/mux"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// createLogRequest is the ingestion payload. Level, source and message are
// mandatory; everything else is optional context for detection.
type createLogRequest struct {
	Level     string                 `json:"level" validate:"required,oneof=info warning error critical"`
	Source    string                 `json:"source" validate:"required,max=256"`
	SourceIP  string                 `json:"source_ip" validate:"omitempty,ip"`
	EventType string                 `json:"event_type" validate:"omitempty,max=128"`
	Message   string                 `json:"message" validate:"required,max=8192"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type updateAlertStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=acknowledged resolved"`
}

type ruleRequest struct {
	Name        string           `json:"name" validate:"required,max=256"`
	Description string           `json:"description" validate:"max=2048"`
	Severity    string           `json:"severity" validate:"required,oneof=critical high medium low info"`
	Enabled     *bool            `json:"enabled"`
	Conditions  []core.Condition `json:"conditions"`
}

func (a *API) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	var req createLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	event := core.NewEvent()
	event.Level = core.LogLevel(req.Level)
	event.Source = req.Source
	event.SourceIP = req.SourceIP
	event.EventType = req.EventType
	event.Message = req.Message
	if req.Metadata != nil {
		event.Metadata = req.Metadata
	}

	stored, err := a.logs.Ingest(r.Context(), event)
	if err != nil {
		a.logger.Errorw("Failed to ingest log event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store log event")
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

func (a *API) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	logs, err := a.logStore.GetLogs(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorw("Failed to list logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}

	total, err := a.logStore.GetLogCount(r.Context())
	if err != nil {
		a.logger.Errorw("Failed to count logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := a.logStore.GetLog(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "log event not found")
			return
		}
		a.logger.Errorw("Failed to get log", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get log event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (a *API) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	minSeverity := core.Severity(r.URL.Query().Get("min_severity"))
	if minSeverity != "" && !minSeverity.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid min_severity")
		return
	}

	alerts, err := a.alerts.GetAlerts(r.Context(), limit, offset, minSeverity)
	if err != nil {
		a.logger.Errorw("Failed to list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert, err := a.alerts.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		a.logger.Errorw("Failed to get alert", "alert_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (a *API) handleUpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateAlertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := a.alerts.UpdateAlertStatus(r.Context(), id, core.AlertStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "alert not found")
		case strings.Contains(err.Error(), "invalid transition"):
			writeError(w, http.StatusConflict, err.Error())
		default:
			a.logger.Errorw("Failed to update alert status", "alert_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update alert status")
		}
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (a *API) handleGetRules(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	rules, err := a.rules.GetRules(r.Context(), limit, offset)
	if err != nil {
		a.logger.Errorw("Failed to list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	total, err := a.rules.GetRuleCount(r.Context())
	if err != nil {
		a.logger.Errorw("Failed to count rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  rules,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.decodeRule(w, r)
	if !ok {
		return
	}

	if err := a.rules.CreateRule(r.Context(), rule); err != nil {
		a.logger.Errorw("Failed to create rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rule, err := a.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to get rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rule, ok := a.decodeRule(w, r)
	if !ok {
		return
	}

	if err := a.rules.UpdateRule(r.Context(), id, rule); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to update rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	rule.ID = id
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := a.rules.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to delete rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEnableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, a.rules.EnableRule)
}

func (a *API) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, a.rules.DisableRule)
}

func (a *API) setRuleEnabled(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id := mux.Vars(r)["id"]

	if err := op(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		a.logger.Errorw("Failed to toggle rule", "rule_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeRule parses and validates a rule payload, writing an error response
// and returning ok=false on failure.
func (a *API) decodeRule(w http.ResponseWriter, r *http.Request) (*core.Rule, bool) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := a.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	rule := core.NewRule(req.Name, req.Description, core.Severity(req.Severity), req.Conditions)
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return rule, true
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= maxPageLimit {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
