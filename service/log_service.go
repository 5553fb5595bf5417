// Package service contains the application services sitting between the
// HTTP handlers and the storage and detection layers.
package service

import (
	"context"
	"fmt"

	"bastion/core"
	"bastion/metrics"
	"bastion/storage"

	"go.uber.org/zap"
)

// DetectionTrigger receives stored events for asynchronous detection
type DetectionTrigger interface {
	OnLogCreated(event *core.Event)
}

// LogService handles log event ingestion. Persistence is synchronous;
// detection and broadcasting are handed off and never delay or fail the
// ingest call.
type LogService struct {
	store    storage.LogStorageInterface
	detector DetectionTrigger
	logger   *zap.SugaredLogger
}

// NewLogService creates a new log ingestion service
func NewLogService(store storage.LogStorageInterface, detector DetectionTrigger, logger *zap.SugaredLogger) *LogService {
	if store == nil {
		panic("service: log storage is required")
	}
	if detector == nil {
		panic("service: detection trigger is required")
	}
	if logger == nil {
		panic("service: logger is required")
	}
	return &LogService{
		store:    store,
		detector: detector,
		logger:   logger,
	}
}

// Ingest validates and persists a log event, then triggers detection.
// The returned event carries the assigned id and timestamp.
func (s *LogService) Ingest(ctx context.Context, event *core.Event) (*core.Event, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	if !event.Level.IsValid() {
		return nil, fmt.Errorf("invalid log level: %q", event.Level)
	}
	if event.Source == "" {
		return nil, fmt.Errorf("event source is required")
	}
	if event.Message == "" {
		return nil, fmt.Errorf("event message is required")
	}

	stored, err := s.store.AppendLog(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to store log event: %w", err)
	}

	metrics.LogsIngested.WithLabelValues(stored.Level.String()).Inc()

	s.logger.Debugw("Log event ingested",
		"event_id", stored.EventID,
		"level", stored.Level,
		"source", stored.Source)

	s.detector.OnLogCreated(stored)

	return stored, nil
}
