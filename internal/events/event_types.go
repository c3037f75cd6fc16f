package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketClosed   EventType = "ticket_closed"
	EventMessageRelayed EventType = "message_relayed"
)

// Event represents a relay lifecycle event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Subject     string `json:"subject"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Trigger   string `json:"trigger"`
}

// MessageRelayedPayload payload.
type MessageRelayedPayload struct {
	Direction   string `json:"direction"`
	BodyPreview string `json:"body_preview"`
}
