package domain

import (
	"encoding/json"
	"time"
)

// MessageType classifies bus traffic.
type MessageType string

const (
	MessageTypeBroadcast MessageType = "broadcast"
	MessageTypeEvent     MessageType = "event"
	MessageTypeRequest   MessageType = "request"
	MessageTypeResponse  MessageType = "response"
)

// Standard bus channels used by the engine.
const (
	ChannelPanel      = "bus:panel"
	ChannelEscalation = "bus:escalation"
	ChannelDecisions  = "bus:decisions"
)

// Message is the uniform bus envelope.
type Message struct {
	MessageID     string          `json:"message_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Type          MessageType     `json:"type"`
	Source        string          `json:"source"`
	Target        string          `json:"target,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// PanelSelectedPayload is published on ChannelPanel when a panel convenes.
type PanelSelectedPayload struct {
	SessionID string           `json:"session_id"`
	Condition TriggerCondition `json:"condition"`
	Domains   []string         `json:"domains"`
	Panel     []string         `json:"panel"`
}

// EscalationPayload is published on ChannelEscalation.
type EscalationPayload struct {
	SessionID      string `json:"session_id"`
	Reason         string `json:"reason"`
	PreferredClass string `json:"preferred_class"`
}

// DecisionPayload is published on ChannelDecisions when a session finalizes.
type DecisionPayload struct {
	SessionID           string  `json:"session_id"`
	Winner              string  `json:"winner,omitempty"`
	AggregateConfidence float64 `json:"aggregate_confidence"`
	Escalated           bool    `json:"escalated"`
	LowConfidence       bool    `json:"low_confidence"`
	Summary             string  `json:"summary"`
}
