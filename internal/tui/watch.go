package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/aeropid/internal/hub"
	"github.com/san-kum/aeropid/internal/system"
)

const (
	graphWidth    = 70
	graphHeight   = 12
	angleCapacity = 200
	targetStep    = 5.0
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Bold(true)
	stopStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type envelope struct {
	Type     string           `json:"type"`
	ClientID string           `json:"clientId"`
	Data     *hub.DataPayload `json:"data"`
	System   *system.Status   `json:"system"`
	Message  string           `json:"message"`
}

type wsMsg envelope

type wsErrMsg struct{ err error }

// Model renders the live angle stream from a running server and forwards
// key bindings as commands.
type Model struct {
	conn     *websocket.Conn
	incoming chan tea.Msg

	clientID  string
	angles    []float64
	current   system.Status
	lastError string
}

func NewModel(conn *websocket.Conn) Model {
	m := Model{
		conn:     conn,
		incoming: make(chan tea.Msg, 64),
		angles:   make([]float64, 0, angleCapacity),
	}
	go m.readLoop()
	return m
}

func (m Model) readLoop() {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			m.incoming <- wsErrMsg{err: err}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		m.incoming <- wsMsg(env)
	}
}

func (m Model) waitForMessage() tea.Cmd {
	return func() tea.Msg { return <-m.incoming }
}

func (m Model) Init() tea.Cmd {
	return m.waitForMessage()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.conn.Close()
			return m, tea.Quit
		case " ":
			if m.current.IsRunning {
				m.sendCommand(system.CmdStop, nil)
			} else {
				m.sendCommand(system.CmdStart, nil)
			}
		case "r":
			m.sendCommand(system.CmdReset, nil)
		case "e":
			m.sendCommand(system.CmdEmergencyStop, nil)
		case "c":
			m.sendCommand(system.CmdCalibrate, nil)
		case "up", "k":
			m.sendCommand(system.CmdSetTargetAngle, m.current.ReferenceAngle+targetStep)
		case "down", "j":
			m.sendCommand(system.CmdSetTargetAngle, m.current.ReferenceAngle-targetStep)
		}
		return m, nil

	case wsMsg:
		m.apply(envelope(msg))
		return m, m.waitForMessage()

	case wsErrMsg:
		m.lastError = fmt.Sprintf("connection lost: %v", msg.err)
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) apply(env envelope) {
	switch env.Type {
	case hub.TypeWelcome:
		m.clientID = env.ClientID
		if env.System != nil {
			m.current = *env.System
		}
	case hub.TypeDataUpdate:
		if env.Data == nil {
			return
		}
		m.current.CurrentAngle = env.Data.CurrentAngle
		m.current.ReferenceAngle = env.Data.ReferenceAngle
		m.current.Error = env.Data.Error
		m.current.IsRunning = env.Data.IsRunning
		m.current.Stats = env.Data.Stats
		m.angles = append(m.angles, env.Data.CurrentAngle)
		if len(m.angles) > angleCapacity {
			m.angles = m.angles[1:]
		}
	case hub.TypeSystemUpdate:
		if env.System != nil {
			m.current = *env.System
		}
	case hub.TypeError:
		m.lastError = env.Message
	}
}

func (m Model) sendCommand(command string, value any) {
	msg := map[string]any{"type": hub.TypeCommand, "command": command}
	if value != nil {
		msg["value"] = value
	}
	m.conn.WriteJSON(msg)
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("aeropid watch"))
	b.WriteString("\n")

	run := stopStyle.Render("STOPPED")
	if m.current.IsRunning {
		run = runStyle.Render("RUNNING")
	}

	rows := []struct{ label, value string }{
		{"client", m.clientID},
		{"state", run},
		{"angle", fmt.Sprintf("%8.2f°", m.current.CurrentAngle)},
		{"target", fmt.Sprintf("%8.2f°", m.current.ReferenceAngle)},
		{"error", fmt.Sprintf("%8.2f°", m.current.Error)},
		{"avg", fmt.Sprintf("%8.2f°", m.current.Stats.AvgAngle)},
		{"std", fmt.Sprintf("%8.2f", m.current.Stats.StdAngle)},
		{"uptime", fmt.Sprintf("%7.1fs", float64(m.current.Stats.UptimeMs)/1000)},
	}
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row.label))
		b.WriteString(valueStyle.Render(row.value))
		b.WriteString("\n")
	}

	if len(m.angles) > 1 {
		graph := asciigraph.Plot(m.angles,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("angle (deg)"))
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n")
	}

	if m.lastError != "" {
		b.WriteString(errStyle.Render(m.lastError))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("space start/stop · ↑/↓ target · r reset · e estop · c calibrate · q quit"))
	return b.String()
}

// Run dials the server and blocks inside the bubbletea program until quit.
func Run(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	p := tea.NewProgram(NewModel(conn))
	_, err = p.Run()
	return err
}
