package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cementqa/internal/infrastructure"
	"cementqa/pkg/contracts/events"
)

// ErrHubClosed is returned by Publish after the hub stopped
var ErrHubClosed = errors.New("websocket hub closed")

const broadcastQueueSize = 64

// outbound is one encoded event waiting for delivery
type outbound struct {
	eventType string
	sessionID string
	scoped    bool
	payload   []byte
}

// Stats is a snapshot of hub counters
type Stats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	quit     chan struct{}
	quitOnce sync.Once

	heartbeat time.Duration
	logger    *slog.Logger
	metrics   *Metrics

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a hub. heartbeat <= 0 disables heartbeat events; metrics
// may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics, heartbeat time.Duration) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		heartbeat:  heartbeat,
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
	}
}

// Run is the hub loop. It returns nil when ctx is done or Close is called,
// after disconnecting every client.
func (h *Hub) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		_ = h.Close()
		h.disconnectAll()
	}()

	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down", slog.String("reason", ctx.Err().Error()))
			return nil
		case <-h.quit:
			h.logger.Info("websocket hub closed")
			return nil

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.mu.Lock()
			removed := h.removeLocked(c)
			h.mu.Unlock()
			if removed {
				h.metrics.disconnected(context.Background(), time.Since(c.connectedAt))
				h.logger.Info("client unregistered",
					slog.String("client_id", c.id),
					slog.Int("total_clients", h.ClientCount()),
					slog.Duration("connection_duration", time.Since(c.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-tick:
			h.sendHeartbeat()
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.totalConnections.Add(1)

	ctx := c.context()
	h.metrics.connected(ctx, c.sessionID != "")
	h.logger.InfoContext(ctx, "client registered",
		slog.String("client_id", c.id),
		slog.String("session_id", c.sessionID),
		slog.String("remote_addr", c.remoteAddr),
		slog.Int("total_clients", count))

	hello := events.New(events.TypeConnection, c.sessionID)
	hello.TraceID = c.traceID
	payload, err := json.Marshal(hello)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.WarnContext(ctx, "client buffer full, connection message dropped",
			slog.String("client_id", c.id))
	}
}

// removeLocked drops c and closes its send channel. The caller holds h.mu.
func (h *Hub) removeLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.accepts(msg) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent, dropped := 0, 0
	for _, c := range targets {
		select {
		case c.send <- msg.payload:
			sent++
		default:
			dropped++
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
			h.metrics.dropped(context.Background(), msg.eventType)
			h.metrics.disconnected(context.Background(), time.Since(c.connectedAt))
			h.logger.WarnContext(c.context(), "client send buffer full, disconnecting",
				slog.String("client_id", c.id))
		}
	}

	h.messagesSent.Add(int64(sent))
	h.messagesDropped.Add(int64(dropped))
	h.metrics.sent(context.Background(), msg.eventType, sent)
	h.logger.Debug("event broadcast",
		slog.String("event_type", msg.eventType),
		slog.String("session_id", msg.sessionID),
		slog.Int("delivered", sent),
		slog.Int("dropped", dropped))
}

func (h *Hub) sendHeartbeat() {
	payload, err := json.Marshal(events.New(events.TypeHeartbeat, ""))
	if err != nil {
		return
	}
	h.deliver(outbound{eventType: string(events.TypeHeartbeat), payload: payload})
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// Register adds a client. It blocks until the hub loop accepts it.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.quit:
		return ErrHubClosed
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Publish queues ev for delivery to matching clients
func (h *Hub) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := outbound{
		eventType: string(ev.Type),
		sessionID: ev.SessionID,
		scoped:    ev.IsSessionScoped(),
		payload:   payload,
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.quit:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the hub loop
func (h *Hub) Close() error {
	h.quitOnce.Do(func() { close(h.quit) })
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
	}
}
