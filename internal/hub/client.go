package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
)

// Client is one live observer connection. It is owned by the Hub: created on
// register, mutated only by the hub and its own pumps, destroyed on close or
// eviction.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	alive    bool
	closed   bool
	lastSeen time.Time
	channels map[string]struct{}
}

func (c *Client) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// sweepAlive clears the liveness flag and reports whether the client had
// refreshed it since the previous sweep.
func (c *Client) sweepAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Client) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
}

func (c *Client) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

func (c *Client) subscribedTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// enqueue hands a prepared frame to the write pump without blocking. A full
// queue or an already-closed client counts as a delivery failure.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send queue onto the socket. It is the only writer of
// data frames for this connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
}

// readPump parses inbound envelopes and dispatches them. Any transport error
// unregisters the client.
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.markAlive()

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.sendError(c, "malformed message")
			continue
		}
		c.hub.dispatch(c, msg)
	}
}
