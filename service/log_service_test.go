package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bastion/core"
	"bastion/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingTrigger captures detection handoffs
type recordingTrigger struct {
	mu     sync.Mutex
	events []*core.Event
}

func (r *recordingTrigger) OnLogCreated(event *core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func validEvent() *core.Event {
	event := core.NewEvent()
	event.Level = core.LogLevelWarning
	event.Source = "auth-service"
	event.Message = "Failed login attempt"
	return event
}

func TestIngestStoresAndTriggersDetection(t *testing.T) {
	store := storage.NewMockLogStorage()
	trigger := &recordingTrigger{}
	svc := NewLogService(store, trigger, zap.NewNop().Sugar())

	stored, err := svc.Ingest(context.Background(), validEvent())
	require.NoError(t, err)
	assert.NotEmpty(t, stored.EventID)

	require.Equal(t, 1, trigger.count())
	assert.Equal(t, stored, trigger.events[0], "detection sees the stored event, with id and timestamp assigned")
}

func TestIngestValidation(t *testing.T) {
	store := storage.NewMockLogStorage()
	trigger := &recordingTrigger{}
	svc := NewLogService(store, trigger, zap.NewNop().Sugar())

	tests := []struct {
		name   string
		mutate func(e *core.Event)
	}{
		{"invalid level", func(e *core.Event) { e.Level = "fatal" }},
		{"missing source", func(e *core.Event) { e.Source = "" }},
		{"missing message", func(e *core.Event) { e.Message = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(event)
			_, err := svc.Ingest(context.Background(), event)
			assert.Error(t, err)
		})
	}

	_, err := svc.Ingest(context.Background(), nil)
	assert.Error(t, err)

	assert.Zero(t, trigger.count(), "invalid events never reach detection")
}

func TestIngestStoreFailureSkipsDetection(t *testing.T) {
	store := storage.NewMockLogStorage()
	store.AppendErr = errors.New("disk full")
	trigger := &recordingTrigger{}
	svc := NewLogService(store, trigger, zap.NewNop().Sugar())

	_, err := svc.Ingest(context.Background(), validEvent())
	require.Error(t, err)
	assert.Zero(t, trigger.count())
}
