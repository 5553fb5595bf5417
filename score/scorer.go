// Package score provides the client for the external anomaly scorer: a
// remote natural-language classifier consulted for error- and
// critical-level events.
package score

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bastion/core"
	"bastion/metrics"

	"go.uber.org/zap"
)

// maxResponseBytes bounds how much of a scorer response body is read
const maxResponseBytes = 64 * 1024

// ScoreContext is the compact event summary submitted alongside the message
type ScoreContext struct {
	Source    string `json:"source"`
	EventType string `json:"event_type"`
	SourceIP  string `json:"source_ip,omitempty"`
}

// ScoreResult is the scorer's verdict for one message
type ScoreResult struct {
	IsAnomalous bool    `json:"is_anomalous"`
	Confidence  float64 `json:"confidence"`
}

// Neutral returns the no-anomaly result used when the scorer is
// unavailable, times out, or errors.
func Neutral() ScoreResult {
	return ScoreResult{IsAnomalous: false, Confidence: 0}
}

// Scorer scores a log message for anomalousness. Implementations must
// honor the context deadline; callers treat any error as a neutral result.
type Scorer interface {
	Score(ctx context.Context, message string, sctx ScoreContext) (ScoreResult, error)
}

// HTTPScorer calls a remote scoring endpoint over HTTPS. A circuit breaker
// stops the pipeline from stalling on every event while the scorer is down.
type HTTPScorer struct {
	url            string
	client         *http.Client
	circuitBreaker *core.CircuitBreaker
	logger         *zap.SugaredLogger
}

// NewHTTPScorer creates a scorer client. The timeout bounds the whole
// request including connection setup and body read.
func NewHTTPScorer(url string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPScorer {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &HTTPScorer{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		circuitBreaker: core.MustNewCircuitBreaker(core.CircuitBreakerConfig{
			MaxFailures:         3,
			Timeout:             60 * time.Second,
			MaxHalfOpenRequests: 1,
		}),
		logger: logger,
	}
}

// scoreRequest is the wire format of a scoring request
type scoreRequest struct {
	Message string       `json:"message"`
	Context ScoreContext `json:"context"`
}

// Score submits the message and context summary to the remote endpoint.
// Transport failures, non-200 responses, and malformed bodies all return an
// error; the caller degrades to Neutral().
func (s *HTTPScorer) Score(ctx context.Context, message string, sctx ScoreContext) (ScoreResult, error) {
	if err := s.circuitBreaker.Allow(); err != nil {
		metrics.ScorerRequests.WithLabelValues("circuit_open").Inc()
		return Neutral(), fmt.Errorf("scorer unavailable: %w", err)
	}

	body, err := json.Marshal(scoreRequest{Message: message, Context: sctx})
	if err != nil {
		return Neutral(), fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Neutral(), fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.circuitBreaker.RecordFailure()
		metrics.ScorerRequests.WithLabelValues("error").Inc()
		return Neutral(), fmt.Errorf("scorer request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Debugw("Failed to close scorer response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		s.circuitBreaker.RecordFailure()
		metrics.ScorerRequests.WithLabelValues("bad_status").Inc()
		return Neutral(), fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var result ScoreResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		s.circuitBreaker.RecordFailure()
		metrics.ScorerRequests.WithLabelValues("bad_body").Inc()
		return Neutral(), fmt.Errorf("failed to decode scorer response: %w", err)
	}

	// Clamp out-of-contract confidence values instead of trusting the
	// remote end.
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	s.circuitBreaker.RecordSuccess()
	metrics.ScorerRequests.WithLabelValues("ok").Inc()
	return result, nil
}
