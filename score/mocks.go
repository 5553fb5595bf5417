package score

import (
	"context"
	"sync"
	"time"
)

// MockScorer implements Scorer for testing. It records every call and
// returns a configurable result, optionally after a delay to simulate a
// slow or hung scorer.
type MockScorer struct {
	mu     sync.Mutex
	calls  []MockScoreCall
	Result ScoreResult
	Err    error
	Delay  time.Duration // simulated processing time before responding
}

// MockScoreCall captures one Score invocation
type MockScoreCall struct {
	Message string
	Context ScoreContext
}

// NewMockScorer creates a mock scorer returning the given result
func NewMockScorer(result ScoreResult) *MockScorer {
	return &MockScorer{Result: result}
}

// Score records the call and returns the configured result. When a delay
// is configured, context cancellation wins over the delay, matching the
// bounded-timeout contract of the real client.
func (m *MockScorer) Score(ctx context.Context, message string, sctx ScoreContext) (ScoreResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockScoreCall{Message: message, Context: sctx})
	delay := m.Delay
	result := m.Result
	err := m.Err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Neutral(), ctx.Err()
		}
	}

	if err != nil {
		return Neutral(), err
	}
	if ctx.Err() != nil {
		return Neutral(), ctx.Err()
	}
	return result, nil
}

// Calls returns a copy of the recorded calls
func (m *MockScorer) Calls() []MockScoreCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockScoreCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of Score invocations
func (m *MockScorer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
