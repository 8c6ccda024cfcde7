package notifications

import (
	"sync"
	"time"

	"quill/internal/middleware"
	"quill/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var dropNotice = []byte(`{"type":"events_dropped","payload":{"reason":"buffer_full"}}`)

// Client is one websocket subscriber. Outbound frames are queued on send and
// written by a single goroutine; done is closed when the hub drops the client.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// UserID returns the account the connection was opened for.
func (c *Client) UserID() uint { return c.userID }

// Done is closed once the hub has let go of the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Serve runs the connection until the peer leaves or the hub drops it.
// onMessage, when set, sees every frame the peer sends.
func (c *Client) Serve(onMessage func(*Client, []byte)) {
	go c.writeLoop()
	c.readLoop(onMessage)
}

func (c *Client) readLoop(onMessage func(*Client, []byte)) {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Warn("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(c, frame)
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame := <-c.send:
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// TrySend queues a frame without blocking. When the buffer is full the frame
// is dropped and an events_dropped notice is queued in its place if there is
// room, so the client knows to re-fetch counts.
func (c *Client) TrySend(frame []byte) bool {
	select {
	case <-c.done:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
	middleware.Logger.Warn("websocket buffer full, dropped event", "user_id", c.userID)
	select {
	case c.send <- dropNotice:
	default:
	}
	return false
}
