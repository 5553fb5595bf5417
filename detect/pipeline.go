package detect

import (
	"context"
	"sync"
	"time"

	"bastion/core"
	"bastion/metrics"

	"go.uber.org/zap"
)

// Broadcast event type tags, part of the websocket wire contract
const (
	EventLogCreated   = "log_created"
	EventAlertCreated = "alert_created"
)

// shutdownTimeout bounds how long Stop waits for in-flight detection passes
const shutdownTimeout = 30 * time.Second

// RuleSource provides the enabled-rule snapshot for an evaluation pass
type RuleSource interface {
	GetEnabledRules(ctx context.Context) ([]core.Rule, error)
}

// AlertWriter persists alerts produced by the pipeline
type AlertWriter interface {
	CreateAlert(ctx context.Context, alert *core.Alert) error
}

// Broadcaster fans an event out to all live subscribers. Implementations
// must never block the caller on a slow subscriber.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// Pipeline orchestrates detection for newly ingested log events: it runs
// the heuristic classifier and the rule engine, persists resulting alerts,
// and notifies subscribers.
//
// OnLogCreated is fire-and-forget relative to the ingestion request: the
// caller gets its response as soon as the event is durably stored, and the
// detection pass runs in the background to completion, with partial
// failures logged rather than propagated.
type Pipeline struct {
	classifier  *Classifier
	engine      *RuleEngine
	rules       RuleSource
	alerts      AlertWriter
	broadcaster Broadcaster
	logger      *zap.SugaredLogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPipeline creates a detection pipeline
func NewPipeline(classifier *Classifier, engine *RuleEngine, rules RuleSource, alerts AlertWriter, broadcaster Broadcaster, logger *zap.SugaredLogger) *Pipeline {
	if classifier == nil || engine == nil || rules == nil || alerts == nil || broadcaster == nil {
		panic("all pipeline dependencies are required")
	}
	if logger == nil {
		panic("logger is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		classifier:  classifier,
		engine:      engine,
		rules:       rules,
		alerts:      alerts,
		broadcaster: broadcaster,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnLogCreated handles one newly stored log event. The log_created
// broadcast happens synchronously so it always precedes any alert_created
// broadcast for the same event; the detection pass itself runs in the
// background.
func (p *Pipeline) OnLogCreated(event *core.Event) {
	p.broadcaster.Broadcast(EventLogCreated, event)
	metrics.BroadcastsSent.WithLabelValues(EventLogCreated).Inc()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.detect(event)
	}()
}

// detect runs one detection pass: classifier and rule engine concurrently,
// then alert persistence and notification. An in-flight pass is never
// cancelled; p.ctx only gates the external calls it makes.
func (p *Pipeline) detect(event *core.Event) {
	start := time.Now()
	defer func() {
		metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		classifierReq *core.AlertRequest
		ruleReqs      []*core.AlertRequest
		inner         sync.WaitGroup
	)

	inner.Add(2)
	go func() {
		defer inner.Done()
		classifierReq = p.classifier.Classify(p.ctx, event)
	}()
	go func() {
		defer inner.Done()
		ruleReqs = p.evaluateRules(event)
	}()
	inner.Wait()

	var requests []*core.AlertRequest
	if classifierReq != nil {
		requests = append(requests, classifierReq)
	}
	requests = append(requests, ruleReqs...)
	requests = dedupeRequests(requests)

	if len(requests) == 0 {
		p.logger.Debugw("No alerts for event", "event_id", event.EventID)
		return
	}

	for _, req := range requests {
		p.raiseAlert(req, event)
	}
}

// evaluateRules loads the enabled-rule snapshot and runs the engine.
// A rule store failure loses the rule contribution for this event only.
func (p *Pipeline) evaluateRules(event *core.Event) []*core.AlertRequest {
	rules, err := p.rules.GetEnabledRules(p.ctx)
	if err != nil {
		p.logger.Errorw("Failed to load enabled rules",
			"event_id", event.EventID,
			"error", err)
		metrics.DetectionFailures.WithLabelValues("rule_load").Inc()
		return nil
	}

	return p.engine.Evaluate(rules, core.NewEvalContext(event))
}

// raiseAlert persists one alert and broadcasts it. A store failure drops
// this alert only; remaining requests for the event are still processed.
func (p *Pipeline) raiseAlert(req *core.AlertRequest, event *core.Event) {
	alert := core.NewAlertFromRequest(req, event)

	if err := p.alerts.CreateAlert(p.ctx, alert); err != nil {
		p.logger.Errorw("Failed to persist alert",
			"event_id", event.EventID,
			"title", alert.Title,
			"error", err)
		metrics.DetectionFailures.WithLabelValues("alert_store").Inc()
		return
	}

	metrics.AlertsGenerated.WithLabelValues(alert.Severity.String()).Inc()
	p.broadcaster.Broadcast(EventAlertCreated, alert)
	metrics.BroadcastsSent.WithLabelValues(EventAlertCreated).Inc()

	p.logger.Infow("Alert created",
		"alert_id", alert.AlertID,
		"event_id", event.EventID,
		"severity", alert.Severity,
		"title", alert.Title)
}

// dedupeRequests drops duplicate (title, severity) requests so the
// classifier and an equivalent user rule do not double-alert on one event
func dedupeRequests(requests []*core.AlertRequest) []*core.AlertRequest {
	if len(requests) < 2 {
		return requests
	}

	type key struct {
		title    string
		severity core.Severity
	}
	seen := make(map[key]bool, len(requests))
	deduped := requests[:0]
	for _, req := range requests {
		k := key{title: req.Title, severity: req.Severity}
		if seen[k] {
			continue
		}
		seen[k] = true
		deduped = append(deduped, req)
	}
	return deduped
}

// Stop waits for in-flight detection passes to finish, with a timeout so
// shutdown cannot hang on a stuck external call. Passes are never
// cancelled mid-flight; partial results already persisted stay persisted.
func (p *Pipeline) Stop() {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Detection pipeline stopped")
	case <-time.After(shutdownTimeout):
		p.logger.Warn("Detection pipeline shutdown timed out - abandoning in-flight passes")
	}

	p.cancel()
}
