package web

import (
	"context"
	"encoding/json"

	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

// WebSocket event types
const (
	EventSessionStatus = "session.status"
	EventQR            = "tg_qr"
	EventAuthSuccess   = "tg_auth_success"
	EventError         = "error"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SessionStatusPayload is the payload for EventSessionStatus
type SessionStatusPayload struct {
	Status string `json:"status"`
}

// SessionStatusEvent encodes a session state change.
func SessionStatusEvent(status telegram.Status) []byte {
	b, _ := json.Marshal(WSEvent{
		Type:    EventSessionStatus,
		Payload: SessionStatusPayload{Status: string(status)},
	})
	return b
}

// HubSink forwards published events to dashboard clients. The event subject
// becomes the message type.
type HubSink struct {
	hub *Hub
}

// NewHubSink creates a sink over hub.
func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Send implements publisher.Sink.
func (s *HubSink) Send(_ context.Context, subject string, payload []byte) error {
	return s.Handle(subject, payload)
}

// Handle broadcasts a raw event; it matches the NATS subscription handler.
func (s *HubSink) Handle(subject string, data []byte) error {
	s.hub.Broadcast(WSEvent{Type: subject, Payload: json.RawMessage(data)})
	return nil
}
