package domain

import "time"

// Metadata holds the user-supplied descriptive fields captured when a ticket is opened.
type Metadata struct {
	Name    string            `json:"name"`
	Subject string            `json:"subject"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Ticket is one open support conversation linking a web user to a private platform channel.
//
// ID, ChannelID, UserID, Metadata and CreatedAt never change after creation.
// SessionID follows the user's current web connection and is empty while disconnected.
type Ticket struct {
	ID          string
	ChannelID   string
	ChannelName string
	UserID      string
	SessionID   string
	Metadata    Metadata
	CreatedAt   time.Time
}

// HasSession reports whether the ticket is bound to a live web connection.
func (t Ticket) HasSession() bool {
	return t.SessionID != ""
}

// ActorSystem is the closedBy value used when the relay itself closes a ticket.
const ActorSystem = "System"
