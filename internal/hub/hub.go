package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/san-kum/aeropid/internal/history"
	"github.com/san-kum/aeropid/internal/metrics"
	"github.com/san-kum/aeropid/internal/system"
)

const DefaultHeartbeat = 30 * time.Second

// Core is the command/query surface the hub needs from the simulation. The
// concrete implementation is *system.System.
type Core interface {
	Execute(command string, value any) (system.Status, error)
	Snapshot() system.Status
	HistoryData(limit int, from, to time.Time) history.Window
}

// Hub tracks all live observers, delivers point-to-point responses and
// global broadcasts, and evicts peers that stop answering liveness probes.
type Hub struct {
	core      Core
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[*Client]struct{}
	nextID  atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
}

func New(core Core, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	h := &Hub{
		core:      core,
		heartbeat: heartbeat,
		clients:   make(map[*Client]struct{}),
		done:      make(chan struct{}),
	}
	go h.heartbeatLoop()
	return h
}

// Register adopts a websocket connection, starts its pumps and immediately
// unicasts a welcome message with the full current state.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:          fmt.Sprintf("client-%d", h.nextID.Add(1)),
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		alive:       true,
		lastSeen:    time.Now(),
		channels:    make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.ConnectedClients.Set(float64(n))

	go c.writePump()
	go c.readPump()

	h.SendTo(c, Welcome{
		Type:      TypeWelcome,
		ClientID:  c.ID,
		System:    h.core.Snapshot(),
		Timestamp: nowMs(),
	})
	log.Printf("hub: %s connected from %s", c.ID, c.RemoteAddr)
	return c
}

// Unregister removes a client and releases its resources. Safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	metrics.ConnectedClients.Set(float64(n))
	c.close()
	c.conn.Close()
	log.Printf("hub: %s disconnected", c.ID)
}

// SendTo unicasts one message; false means the client queue was full or the
// message could not be encoded.
func (h *Hub) SendTo(c *Client, msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

// Broadcast sends a message to every registered client, optionally filtered
// to those subscribed to a channel. Delivery failures are counted and the
// broadcast continues to the remaining clients.
func (h *Hub) Broadcast(msg any, channels ...string) (sent, failed int) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if len(channels) > 0 && !c.subscribedTo(channels[0]) {
			continue
		}
		if c.enqueue(data) {
			sent++
		} else {
			failed++
		}
	}

	metrics.BroadcastsSent.Add(float64(sent))
	metrics.BroadcastsFailed.Add(float64(failed))
	return sent, failed
}

// BroadcastData fans out one tick's refreshed state to all observers.
func (h *Hub) BroadcastData(st system.Status) (sent, failed int) {
	return h.Broadcast(newDataUpdate(st))
}

// ClientCount reports the number of registered observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the heartbeat, closes every connection gracefully and
// clears the registry.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range targets {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		c.close()
		c.conn.Close()
	}
	metrics.ConnectedClients.Set(0)
}

// heartbeatLoop pings all clients on a fixed interval. A client whose
// liveness flag was not refreshed since the previous sweep is evicted, so a
// silent peer survives exactly one interval before termination.
func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.sweepAlive() {
			log.Printf("hub: %s missed heartbeat, evicting", c.ID)
			metrics.ClientsEvicted.Inc()
			h.Unregister(c)
			continue
		}
		c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.SendTo(c, ErrorMessage{Type: TypeError, Message: message, Timestamp: nowMs()})
}

// dispatch routes one parsed inbound envelope. Failures are reported to the
// sender only and never terminate the connection.
func (h *Hub) dispatch(c *Client, msg Inbound) {
	switch msg.Type {
	case TypeCommand:
		h.handleCommand(c, msg)
	case TypePing:
		h.SendTo(c, Pong{Type: TypePong, Timestamp: nowMs()})
	case TypeHeartbeat:
		// liveness already refreshed by the read pump
	case TypeGetHistory:
		var from, to time.Time
		if msg.From > 0 {
			from = time.UnixMilli(msg.From)
		}
		if msg.To > 0 {
			to = time.UnixMilli(msg.To)
		}
		w := h.core.HistoryData(msg.Limit, from, to)
		h.SendTo(c, newHistoryData(w))
	case TypeSubscribe:
		c.subscribe(msg.Channels)
	case TypeUnsubscribe:
		c.unsubscribe(msg.Channels)
	default:
		h.sendError(c, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Hub) handleCommand(c *Client, msg Inbound) {
	var value any
	if len(msg.Value) > 0 {
		if err := json.Unmarshal(msg.Value, &value); err != nil {
			h.sendError(c, "malformed command value")
			return
		}
	}

	st, err := h.core.Execute(msg.Command, value)
	resp := CommandResponse{
		Type:      TypeCommandResponse,
		Command:   msg.Command,
		Value:     value,
		Success:   err == nil,
		Timestamp: nowMs(),
	}
	if err != nil {
		resp.Error = err.Error()
		metrics.Commands.WithLabelValues(msg.Command, "error").Inc()
	} else {
		resp.Result = st
		metrics.Commands.WithLabelValues(msg.Command, "ok").Inc()
	}
	h.SendTo(c, resp)

	// a successful command mutated shared state; push it to all observers
	if err == nil {
		h.Broadcast(SystemUpdate{Type: TypeSystemUpdate, System: st, Timestamp: nowMs()})
	}
}
