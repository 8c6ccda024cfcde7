package notifications

import (
	"context"
	"errors"
	"sync"

	"quill/internal/middleware"
	"quill/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 8
	maxTotalConns   = 10000
)

var (
	// ErrServerFull is returned when the hub holds maxTotalConns connections.
	ErrServerFull = errors.New("server connection limit reached")
	// ErrUserLimit is returned when a user already holds maxConnsPerUser connections.
	ErrUserLimit = errors.New("user connection limit reached")
	// ErrHubClosed is returned by Register after Shutdown.
	ErrHubClosed = errors.New("hub is shut down")
)

// Hub maps userID to the set of live websocket clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[*Client]struct{})}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "reaction hub" }

// Register adds a connection for userID. Connection limits are enforced per user
// and per process.
func (h *Hub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrServerFull
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserLimit
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	middleware.ActiveWebSockets.Inc()
	return client, nil
}

// UnregisterClient removes a client and stops its writer. Calling it twice
// for the same client is safe.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.userID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.userID)
	}
	h.totalConns--
	middleware.ActiveWebSockets.Dec()
	client.stop()
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Broadcast sends message to all connections of userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.conns[userID] {
		c.TrySend(data)
	}
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// StartWiring subscribes the hub to the Notifier's Redis channels so events
// published by any instance reach local clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(channel, payload string) {
		if channel == BroadcastChannel {
			h.BroadcastAll(payload)
			return
		}
		userID, ok := parseUserChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid event channel", "channel", channel)
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown closes every client and empties the hub.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	// Stopped writers send a going-away close frame and exit.
	for _, clients := range h.conns {
		for client := range clients {
			client.stop()
			middleware.ActiveWebSockets.Dec()
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}

// Publisher fans events out through Redis when available and straight to the
// local hub otherwise.
type Publisher struct {
	hub      *Hub
	notifier *Notifier
}

// NewPublisher creates a Publisher. Either argument may be nil.
func NewPublisher(hub *Hub, notifier *Notifier) *Publisher {
	return &Publisher{hub: hub, notifier: notifier}
}

// Broadcast delivers an event to every connected client.
func (p *Publisher) Broadcast(ctx context.Context, eventType string, payload any) error {
	message, err := Event{Type: eventType, Payload: payload}.Encode()
	if err != nil {
		return err
	}
	observability.WebSocketEventsTotal.WithLabelValues(eventType).Inc()
	if p.notifier.Enabled() {
		return p.notifier.PublishBroadcast(ctx, message)
	}
	if p.hub != nil {
		p.hub.BroadcastAll(message)
	}
	return nil
}

// ToUser delivers an event to the connections of a single user.
func (p *Publisher) ToUser(ctx context.Context, userID uint, eventType string, payload any) error {
	message, err := Event{Type: eventType, Payload: payload}.Encode()
	if err != nil {
		return err
	}
	observability.WebSocketEventsTotal.WithLabelValues(eventType).Inc()
	if p.notifier.Enabled() {
		return p.notifier.PublishUser(ctx, userID, message)
	}
	if p.hub != nil {
		p.hub.Broadcast(userID, message)
	}
	return nil
}
