package transport

import "encoding/json"

// Envelope is the wire message exchanged with the broker: every outbound
// request, its inbound reply, and every inbound event share this shape.
// Replies echo ID; events carry Topic instead.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
}

// IsError reports whether the broker returned a wire-level error for this
// envelope rather than a data payload.
func (e Envelope) IsError() bool {
	return e.ErrorCode != "" || e.Error != ""
}

// HeartbeatEnvelope builds the periodic, correlation-bearing ping the
// supervisor sends to detect silent failures.
func HeartbeatEnvelope(id string, timestampMs int64) Envelope {
	data, _ := json.Marshal(map[string]int64{"timestamp": timestampMs})
	return Envelope{
		ID:        id,
		Type:      "HEARTBEAT",
		Action:    "ping",
		Timestamp: timestampMs,
		Data:      data,
	}
}

// IsHeartbeat reports whether this envelope is a heartbeat ping or pong.
func (e Envelope) IsHeartbeat() bool {
	return e.Type == "HEARTBEAT"
}
