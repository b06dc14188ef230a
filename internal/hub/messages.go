package hub

import (
	"encoding/json"
	"time"

	"github.com/san-kum/aeropid/internal/history"
	"github.com/san-kum/aeropid/internal/stats"
	"github.com/san-kum/aeropid/internal/system"
)

// Message types on the wire. One JSON object per message; the type field
// selects the schema.
const (
	TypeCommand     = "command"
	TypePing        = "ping"
	TypeGetHistory  = "getHistory"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeHeartbeat   = "heartbeat"

	TypeWelcome         = "welcome"
	TypeDataUpdate      = "dataUpdate"
	TypeCommandResponse = "commandResponse"
	TypeHistoryData     = "historyData"
	TypeSystemUpdate    = "systemUpdate"
	TypePong            = "pong"
	TypeError           = "error"
)

// Inbound is the envelope parsed from client messages. Fields beyond Type are
// schema-dependent and optional.
type Inbound struct {
	Type     string          `json:"type"`
	Command  string          `json:"command,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	From     int64           `json:"from,omitempty"`
	To       int64           `json:"to,omitempty"`
	Channels []string        `json:"channels,omitempty"`
}

type Welcome struct {
	Type      string        `json:"type"`
	ClientID  string        `json:"clientId"`
	System    system.Status `json:"system"`
	Timestamp int64         `json:"timestamp"`
}

type DataPayload struct {
	CurrentAngle   float64       `json:"currentAngle"`
	ReferenceAngle float64       `json:"referenceAngle"`
	Error          float64       `json:"error"`
	Stats          stats.Summary `json:"stats"`
	IsRunning      bool          `json:"isRunning"`
}

type DataUpdate struct {
	Type      string      `json:"type"`
	Data      DataPayload `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

type CommandResponse struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	Value     any    `json:"value,omitempty"`
	Success   bool   `json:"success"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type HistoryPayload struct {
	Angles []float64 `json:"angles"`
	Errors []float64 `json:"errors"`
	Times  []int64   `json:"times"`
}

type HistoryData struct {
	Type      string         `json:"type"`
	History   HistoryPayload `json:"history"`
	Timestamp int64          `json:"timestamp"`
}

type SystemUpdate struct {
	Type      string        `json:"type"`
	System    system.Status `json:"system"`
	Timestamp int64         `json:"timestamp"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newDataUpdate(st system.Status) DataUpdate {
	return DataUpdate{
		Type: TypeDataUpdate,
		Data: DataPayload{
			CurrentAngle:   st.CurrentAngle,
			ReferenceAngle: st.ReferenceAngle,
			Error:          st.Error,
			Stats:          st.Stats,
			IsRunning:      st.IsRunning,
		},
		Timestamp: nowMs(),
	}
}

func newHistoryData(w history.Window) HistoryData {
	times := make([]int64, len(w.Times))
	for i, t := range w.Times {
		times[i] = t.UnixMilli()
	}
	return HistoryData{
		Type: TypeHistoryData,
		History: HistoryPayload{
			Angles: w.Angles,
			Errors: w.Errors,
			Times:  times,
		},
		Timestamp: nowMs(),
	}
}
