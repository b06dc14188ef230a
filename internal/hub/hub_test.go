package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/aeropid/internal/system"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func newTestCore() *system.System {
	return system.New(system.Options{
		Reference: 45,
		Kp:        2.0,
		Ki:        0.5,
		Kd:        0.1,
		MaxPoints: 100,
		Seed:      7,
	})
}

func newTestHub(t *testing.T, heartbeat time.Duration) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(newTestCore(), heartbeat)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(conn)
	}))
	t.Cleanup(func() {
		h.Shutdown()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readEnvelope(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %q message received", msgType)
	return nil
}

func TestWelcomeOnConnect(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)

	msg := readEnvelope(t, conn)
	assert.Equal(t, TypeWelcome, msg["type"])
	assert.NotEmpty(t, msg["clientId"])

	sys, ok := msg["system"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 45.0, sys["referenceAngle"])
	assert.Equal(t, false, sys["isRunning"])
}

func TestUniqueClientIDs(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)

	a := readEnvelope(t, dial(t, srv))
	b := readEnvelope(t, dial(t, srv))
	assert.NotEqual(t, a["clientId"], b["clientId"])
}

func TestBroadcastFanout(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, time.Minute)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, srv)
		readEnvelope(t, conns[i]) // welcome
	}
	g.Eventually(h.ClientCount).Should(Equal(3))

	sent, failed := h.BroadcastData(system.Status{CurrentAngle: 12.5, IsRunning: true})
	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, failed)

	for _, conn := range conns {
		msg := readUntil(t, conn, TypeDataUpdate)
		data := msg["data"].(map[string]any)
		assert.Equal(t, 12.5, data["currentAngle"])
		assert.Equal(t, true, data["isRunning"])
	}
}

func TestBroadcastCountsFailures(t *testing.T) {
	h, srv := newTestHub(t, time.Minute)

	conn := dial(t, srv)
	readEnvelope(t, conn)

	// A client whose queue cannot accept anything counts as failed without
	// aborting delivery to the healthy one.
	stuck := &Client{
		ID:       "stuck",
		send:     make(chan []byte),
		channels: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[stuck] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, stuck)
		h.mu.Unlock()
	}()

	sent, failed := h.BroadcastData(system.Status{})
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)
}

func TestDisconnectFreesClient(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, time.Minute)

	conn := dial(t, srv)
	readEnvelope(t, conn)
	g.Eventually(h.ClientCount).Should(Equal(1))

	conn.Close()
	g.Eventually(h.ClientCount).WithTimeout(2 * time.Second).Should(Equal(0))
}

func TestCommandRoundTrip(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "command", "command": "startSystem"}))

	resp := readUntil(t, conn, TypeCommandResponse)
	assert.Equal(t, "startSystem", resp["command"])
	assert.Equal(t, true, resp["success"])

	// successful commands also push the new state to every observer
	update := readUntil(t, conn, TypeSystemUpdate)
	sys := update["system"].(map[string]any)
	assert.Equal(t, true, sys["isRunning"])
}

func TestCommandFailureIsLocal(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "command", "command": "setTargetAngle", "value": 500,
	}))

	resp := readUntil(t, conn, TypeCommandResponse)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "out of range")

	// connection survives the failure
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, conn, TypePong)
}

func TestUnknownCommandIsNotFatal(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "command", "command": "warpDrive"}))
	resp := readUntil(t, conn, TypeCommandResponse)
	assert.Equal(t, false, resp["success"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, conn, TypePong)
}

func TestPingPong(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	msg := readUntil(t, conn, TypePong)
	assert.NotZero(t, msg["timestamp"])
}

func TestGetHistory(t *testing.T) {
	h, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	core := h.core.(*system.System)
	core.Execute(system.CmdStart, nil)
	now := time.Now()
	for i := 1; i <= 10; i++ {
		core.Tick(now.Add(time.Duration(i)*100*time.Millisecond), 0.1)
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "getHistory", "limit": 4}))
	msg := readUntil(t, conn, TypeHistoryData)

	hist := msg["history"].(map[string]any)
	angles := hist["angles"].([]any)
	errors := hist["errors"].([]any)
	times := hist["times"].([]any)
	assert.Len(t, angles, 4)
	assert.Len(t, errors, 4)
	assert.Len(t, times, 4)
}

func TestChannelFilter(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, time.Minute)

	subbed := dial(t, srv)
	readEnvelope(t, subbed)
	plain := dial(t, srv)
	readEnvelope(t, plain)
	g.Eventually(h.ClientCount).Should(Equal(2))

	require.NoError(t, subbed.WriteJSON(map[string]any{
		"type": "subscribe", "channels": []string{"diagnostics"},
	}))

	g.Eventually(func() int {
		sent, _ := h.Broadcast(Pong{Type: TypePong, Timestamp: nowMs()}, "diagnostics")
		return sent
	}).Should(Equal(1))

	require.NoError(t, subbed.WriteJSON(map[string]any{
		"type": "unsubscribe", "channels": []string{"diagnostics"},
	}))

	g.Eventually(func() int {
		sent, _ := h.Broadcast(Pong{Type: TypePong, Timestamp: nowMs()}, "diagnostics")
		return sent
	}).Should(Equal(0))
}

func TestMalformedMessage(t *testing.T) {
	_, srv := newTestHub(t, time.Minute)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := readUntil(t, conn, TypeError)
	assert.Contains(t, msg["message"], "malformed")
}

func TestHeartbeatEvictsSilentClient(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, 30*time.Millisecond)

	// Never reading means never answering pings: the first sweep clears the
	// liveness flag, the second finds it still cleared and evicts.
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	g.Eventually(h.ClientCount).Should(Equal(1))
	g.Eventually(h.ClientCount).WithTimeout(2 * time.Second).Should(Equal(0))
}

func TestResponsiveClientSurvivesHeartbeat(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, 30*time.Millisecond)

	conn := dial(t, srv)

	// Reading keeps the default ping handler responding with pongs; the
	// loop ends when t.Cleanup closes the connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.Eventually(h.ClientCount).Should(Equal(1))
	g.Consistently(h.ClientCount).WithTimeout(200 * time.Millisecond).Should(Equal(1))
}

func TestShutdownClearsRegistry(t *testing.T) {
	g := NewWithT(t)
	h, srv := newTestHub(t, time.Minute)

	for i := 0; i < 3; i++ {
		readEnvelope(t, dial(t, srv))
	}
	g.Eventually(h.ClientCount).Should(Equal(3))

	h.Shutdown()
	assert.Equal(t, 0, h.ClientCount())
}
