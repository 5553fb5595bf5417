package score

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPScorerScore(t *testing.T) {
	var received scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(ScoreResult{IsAnomalous: true, Confidence: 0.85})
	}))
	defer server.Close()

	scorer := NewHTTPScorer(server.URL, time.Second, zap.NewNop().Sugar())

	result, err := scorer.Score(context.Background(), "unexplained process spawn storm", ScoreContext{
		Source:    "host-monitor",
		EventType: "process_spawn",
		SourceIP:  "203.0.113.42",
	})
	require.NoError(t, err)
	assert.True(t, result.IsAnomalous)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)

	assert.Equal(t, "unexplained process spawn storm", received.Message)
	assert.Equal(t, "host-monitor", received.Context.Source)
	assert.Equal(t, "203.0.113.42", received.Context.SourceIP)
}

func TestHTTPScorerClampsConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ScoreResult{IsAnomalous: true, Confidence: 3.7})
	}))
	defer server.Close()

	scorer := NewHTTPScorer(server.URL, time.Second, zap.NewNop().Sugar())

	result, err := scorer.Score(context.Background(), "msg", ScoreContext{Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestHTTPScorerBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	scorer := NewHTTPScorer(server.URL, time.Second, zap.NewNop().Sugar())

	result, err := scorer.Score(context.Background(), "msg", ScoreContext{Source: "s"})
	require.Error(t, err)
	assert.Equal(t, Neutral(), result)
}

func TestHTTPScorerMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	scorer := NewHTTPScorer(server.URL, time.Second, zap.NewNop().Sugar())

	_, err := scorer.Score(context.Background(), "msg", ScoreContext{Source: "s"})
	assert.Error(t, err)
}

func TestHTTPScorerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		json.NewEncoder(w).Encode(ScoreResult{})
	}))
	defer server.Close()

	scorer := NewHTTPScorer(server.URL, time.Second, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := scorer.Score(ctx, "msg", ScoreContext{Source: "s"})
	require.Error(t, err)
	assert.Equal(t, Neutral(), result)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestHTTPScorerCircuitOpens(t *testing.T) {
	scorer := NewHTTPScorer("http://127.0.0.1:1", 100*time.Millisecond, zap.NewNop().Sugar())

	// Three transport failures trip the breaker
	for i := 0; i < 3; i++ {
		_, err := scorer.Score(context.Background(), "msg", ScoreContext{Source: "s"})
		require.Error(t, err)
	}

	_, err := scorer.Score(context.Background(), "msg", ScoreContext{Source: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer unavailable")
}
