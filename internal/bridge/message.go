// ABOUTME: Command message types sent from the dashboard to the agent
// ABOUTME: Defines the JSON wire shape, recognized command types, and agent stats reports

package bridge

import "time"

// MessageType tags a command sent to the agent.
type MessageType string

const (
	TypeSendMessage MessageType = "sendMessage"
	TypeSetDay      MessageType = "setDay"
	TypeListPlayers MessageType = "listPlayers"
)

// Valid reports whether t is a command the agent understands.
func (t MessageType) Valid() bool {
	switch t {
	case TypeSendMessage, TypeSetDay, TypeListPlayers:
		return true
	}
	return false
}

// CommandMessage is one dashboard-to-agent command.
type CommandMessage struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Agent event names with special handling.
const (
	EventReconnected = "reconnected"
	EventServerStats = "serverStats"

	// EventMessage names agent payloads that carry no "event" field.
	EventMessage = "message"
)

// ServerStats is the latest serverStats report from the agent.
type ServerStats struct {
	Players    int       `json:"players"`
	TimeOfDay  int64     `json:"time"`
	TPS        float64   `json:"tps"`
	ReportedAt time.Time `json:"reported_at"`
}

// parseServerStats reads a serverStats payload. Numbers arrive as float64
// from encoding/json; missing fields stay zero.
func parseServerStats(msg map[string]any, at time.Time) ServerStats {
	st := ServerStats{ReportedAt: at}
	if v, ok := msg["players"].(float64); ok {
		st.Players = int(v)
	}
	if v, ok := msg["time"].(float64); ok {
		st.TimeOfDay = int64(v)
	}
	if v, ok := msg["tps"].(float64); ok {
		st.TPS = v
	}
	return st
}
