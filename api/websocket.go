// Package api provides the HTTP surface of the Bastion security monitor:
// the REST endpoints, the log-ingestion entry point, and the WebSocket
// infrastructure for real-time event broadcasting.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"bastion/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket configuration constants
const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512

	// sendChannelSize is the per-subscriber send buffer. A subscriber that
	// falls this far behind is evicted rather than queued further.
	sendChannelSize = 256
)

// Message is the wire format of every broadcast frame
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// subscriber represents a single WebSocket subscriber connection.
// Each subscriber runs its own read and write pump goroutines.
type subscriber struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of live subscribers and broadcasts messages to all
// of them. The subscriber map is the only shared mutable state: register
// and unregister go through the hub's run loop, and broadcasts iterate a
// point-in-time snapshot, so a subscriber removed mid-broadcast may or may
// not receive that message.
type Hub struct {
	// Live subscribers keyed by generated id
	subscribers map[string]*subscriber

	// Serialized frames awaiting fanout
	broadcast chan []byte

	// Register and unregister requests from connection handlers
	register   chan *subscriber
	unregister chan *subscriber

	mu     sync.RWMutex
	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// upgrader configures WebSocket connection upgrades
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub. The hub must be started with Start()
// before use; it creates its own cancellable context from the parent so
// Stop() works even when the parent never cancels.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		subscribers: make(map[string]*subscriber),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		logger:      logger,
		ctx:         hubCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start runs the hub's event loop. Must be called exactly once per Hub.
func (h *Hub) Start() {
	defer close(h.done)

	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for _, sub := range h.subscribers {
				close(sub.send)
				sub.conn.Close()
			}
			h.subscribers = make(map[string]*subscriber)
			h.mu.Unlock()
			metrics.SubscribersConnected.Set(0)
			h.logger.Info("WebSocket hub stopped")
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.id] = sub
			total := len(h.subscribers)
			h.mu.Unlock()
			metrics.SubscribersConnected.Set(float64(total))
			h.logger.Debugw("Subscriber registered",
				"subscriber_id", sub.id,
				"total_subscribers", total)

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub.id]; ok {
				delete(h.subscribers, sub.id)
				close(sub.send)
				total := len(h.subscribers)
				h.mu.Unlock()
				metrics.SubscribersConnected.Set(float64(total))
				h.logger.Debugw("Subscriber unregistered",
					"subscriber_id", sub.id,
					"total_subscribers", total)
			} else {
				h.mu.Unlock()
			}

		case frame := <-h.broadcast:
			// Fan out to a snapshot of the current subscribers. A full
			// send buffer means the subscriber has stalled; it is
			// disconnected so it cannot block delivery to the others.
			h.mu.RLock()
			for _, sub := range h.subscribers {
				select {
				case sub.send <- frame:
				default:
					go func(stalled *subscriber) {
						select {
						case h.unregister <- stalled:
						case <-h.ctx.Done():
						}
						stalled.conn.Close()
					}(sub)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast serializes an event and queues it for delivery to every live
// subscriber. Best-effort and non-blocking: a failed or slow subscriber is
// evicted, never retried, and no error reaches the caller.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	msg := Message{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("Failed to marshal broadcast message",
			"type", eventType,
			"error", err)
		return
	}

	select {
	case h.broadcast <- frame:
	case <-time.After(1 * time.Second):
		h.logger.Warnw("Broadcast queue full, dropping message", "type", eventType)
	}
}

// Register adds a connection to the registry and returns its subscriber id
func (h *Hub) Register(conn *websocket.Conn) string {
	sub := &subscriber{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendChannelSize),
	}

	select {
	case h.register <- sub:
	case <-h.ctx.Done():
		conn.Close()
		return sub.id
	}

	go sub.writePump()
	go sub.readPump()

	return sub.id
}

// Unregister removes a subscriber by id and closes its connection.
// Unknown ids are a no-op, so racing an implicit eviction is safe.
func (h *Hub) Unregister(id string) {
	h.mu.RLock()
	sub, ok := h.subscribers[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case h.unregister <- sub:
	case <-h.ctx.Done():
	}
	sub.conn.Close()
}

// SubscriberCount returns the number of live subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Stop gracefully shuts down the hub and closes every subscriber
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// readPump discards inbound frames and detects disconnection. Subscribers
// are listen-only; the read loop exists for close/pong handling.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.ctx.Done():
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debugw("Subscriber unexpected close",
					"subscriber_id", s.id,
					"error", err)
			}
			return
		}
	}
}

// writePump delivers queued frames to the connection, with a ping/pong
// heartbeat. A write failure is an implicit close: the pump exits and the
// connection is dropped without affecting other subscribers.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs handles WebSocket upgrade requests and subscriber lifecycle
func serveWs(hub *Hub, logger *zap.SugaredLogger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	id := hub.Register(conn)
	logger.Debugw("WebSocket subscriber connected",
		"subscriber_id", id,
		"remote_addr", r.RemoteAddr)
}
