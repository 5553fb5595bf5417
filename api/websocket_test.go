package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type hubFixture struct {
	hub    *Hub
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()
	hub := NewHub(context.Background(), logger)
	go hub.Start()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, logger, w, r)
	}))

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return &hubFixture{hub: hub, server: server}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(frame, &msg))
	return msg
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	f := newHubFixture(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = f.dial(t)
		defer conns[i].Close()
	}

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.Broadcast("alert_created", map[string]string{"alert_id": "a-1"})

	for _, conn := range conns {
		msg := readMessage(t, conn)
		assert.Equal(t, "alert_created", msg.Type)
		assert.False(t, msg.Timestamp.IsZero())

		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "a-1", data["alert_id"])
	}
}

func TestHubEvictsClosedSubscriber(t *testing.T) {
	f := newHubFixture(t)

	open := make([]*websocket.Conn, 3)
	for i := range open {
		open[i] = f.dial(t)
		defer open[i].Close()
	}
	closed := f.dial(t)

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 4
	}, 2*time.Second, 10*time.Millisecond)

	closed.Close()

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 3
	}, 2*time.Second, 10*time.Millisecond, "closed subscriber must leave the registry")

	f.hub.Broadcast("log_created", map[string]string{"event_id": "e-1"})

	for _, conn := range open {
		msg := readMessage(t, conn)
		assert.Equal(t, "log_created", msg.Type)
	}
}

func TestHubUnregisterById(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	var id string
	f.hub.mu.RLock()
	for subID := range f.hub.subscribers {
		id = subID
	}
	f.hub.mu.RUnlock()
	require.NotEmpty(t, id)

	f.hub.Unregister(id)

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Unregistering again is a no-op
	f.hub.Unregister(id)
	assert.Equal(t, 0, f.hub.SubscriberCount())
}

// readUntilType drains frames until one of the given type arrives, or the
// connection closes or times out.
func readUntilType(conn *websocket.Conn, msgType string) bool {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		var msg Message
		if json.Unmarshal(frame, &msg) != nil {
			continue
		}
		if msg.Type == msgType {
			return true
		}
	}
}

func TestHubUnregisterDuringBroadcastStream(t *testing.T) {
	f := newHubFixture(t)

	conns := make([]*websocket.Conn, 8)
	for i := range conns {
		conns[i] = f.dial(t)
		defer conns[i].Close()
	}

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 8
	}, 2*time.Second, 10*time.Millisecond)

	var ids []string
	f.hub.mu.RLock()
	for id := range f.hub.subscribers {
		ids = append(ids, id)
	}
	f.hub.mu.RUnlock()
	require.Len(t, ids, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.hub.Broadcast("log_created", map[string]string{"event_id": "e"})
		}
	}()
	for _, id := range ids[:4] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			f.hub.Unregister(id)
		}(id)
	}
	wg.Wait()

	// Unregistering an id already evicted by the race is a no-op
	f.hub.Unregister(ids[0])

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 4
	}, 2*time.Second, 10*time.Millisecond)

	// A broadcast after the evictions settle reaches exactly the survivors:
	// evicted connections drain whatever was buffered before their close but
	// never see this marker.
	f.hub.Broadcast("alert_created", map[string]string{"alert_id": "marker"})

	delivered := 0
	for _, conn := range conns {
		if readUntilType(conn, "alert_created") {
			delivered++
		}
	}
	assert.Equal(t, 4, delivered)
}

func TestHubBroadcastWithNoSubscribers(t *testing.T) {
	f := newHubFixture(t)

	// Must not block or panic
	f.hub.Broadcast("log_created", map[string]string{"event_id": "e-1"})
	assert.Equal(t, 0, f.hub.SubscriberCount())
}

func TestHubConcurrentBroadcasts(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			f.hub.Broadcast("log_created", map[string]string{"event_id": "e"})
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		msg := readMessage(t, conn)
		assert.Equal(t, "log_created", msg.Type)
	}
}

func TestHubStopClosesSubscribers(t *testing.T) {
	logger := zap.NewNop().Sugar()
	hub := NewHub(context.Background(), logger)
	go hub.Start()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, logger, w, r)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Stop()

	assert.Equal(t, 0, hub.SubscriberCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
