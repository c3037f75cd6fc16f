// Package platform describes the messaging platform the relay mirrors tickets into.
//
// The types here are platform neutral: a Discord adapter lives in the discord
// subpackage and converts them to its own wire format.
package platform

import (
	"context"
	"time"
)

// CloseButtonID identifies the close action attached to the ticket intro message.
const CloseButtonID = "close_ticket"

// ChannelSpec describes a private ticket channel to create.
type ChannelSpec struct {
	Name string
	// ParentID is an optional administrative category the channel is nested under.
	ParentID string
	Topic    string
}

// Channel references a platform channel. The relay never owns it.
type Channel struct {
	ID   string
	Name string
}

// Field is a labelled value rendered inside a structured message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is structured content posted to a channel.
type Message struct {
	Content       string
	Title         string
	Description   string
	Color         int
	AuthorName    string
	AuthorIconURL string
	Fields        []Field
	Footer        string
	Timestamp     time.Time
	// CloseButton attaches the close action to the message.
	CloseButton bool
}

// InboundMessage is a message observed in a platform channel.
type InboundMessage struct {
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorName string
	// FromSelf is set when the relay's own identity authored the message.
	FromSelf  bool
	Content   string
	Timestamp time.Time
}

// CloseAction is a press of the close button.
type CloseAction struct {
	ChannelID string
	ActorName string
}

// EventHandler consumes the platform's inbound event stream.
type EventHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage)
	HandleCloseAction(ctx context.Context, action CloseAction)
	HandleChannelDeleted(ctx context.Context, channelID string)
}
