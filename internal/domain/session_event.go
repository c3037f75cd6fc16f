package domain

// SessionEventName enumerates server to web events.
type SessionEventName string

const (
	EventTicketCreated       SessionEventName = "ticketCreated"
	EventMessageFromPlatform SessionEventName = "messageFromPlatform"
	EventTicketClosed        SessionEventName = "ticketClosed"
	EventSystemMessage       SessionEventName = "systemMessage"
	EventError               SessionEventName = "error"
)

// SessionEvent is delivered to a single web connection.
type SessionEvent struct {
	Name    SessionEventName `json:"event"`
	Payload interface{}      `json:"data"`
}

// TicketCreatedPayload acknowledges ticket creation.
type TicketCreatedPayload struct {
	TicketID    string `json:"ticketId"`
	ChannelName string `json:"channelName"`
}

// PlatformMessagePayload carries an operator reply to the web user.
type PlatformMessagePayload struct {
	Author    string `json:"author"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// TicketClosedPayload announces a closed ticket.
type TicketClosedPayload struct {
	TicketID string `json:"ticketId"`
	ClosedBy string `json:"closedBy"`
}

// SystemMessagePayload is a relay notice shown to the user.
type SystemMessagePayload struct {
	Text string `json:"text"`
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TicketCreatedEvent builds a ticketCreated event.
func TicketCreatedEvent(t Ticket) SessionEvent {
	return SessionEvent{Name: EventTicketCreated, Payload: TicketCreatedPayload{TicketID: t.ID, ChannelName: t.ChannelName}}
}

// TicketClosedEvent builds a ticketClosed event.
func TicketClosedEvent(ticketID, closedBy string) SessionEvent {
	return SessionEvent{Name: EventTicketClosed, Payload: TicketClosedPayload{TicketID: ticketID, ClosedBy: closedBy}}
}

// SystemMessageEvent builds a systemMessage event.
func SystemMessageEvent(text string) SessionEvent {
	return SessionEvent{Name: EventSystemMessage, Payload: SystemMessagePayload{Text: text}}
}

// ErrorEvent builds an error event.
func ErrorEvent(message string) SessionEvent {
	return SessionEvent{Name: EventError, Payload: ErrorPayload{Message: message}}
}
