package relay

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/platform"
)

const (
	maxChannelName    = 100
	maxSubjectSegment = 30

	colorTicket  = 0x5865F2
	colorMessage = 0x43B581

	defaultAvatarURL = "https://cdn.discordapp.com/embed/avatars/0.png"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return nonSlug.ReplaceAllString(strings.ToLower(s), "-")
}

// ChannelName derives the platform channel name from the ticket metadata.
func ChannelName(meta domain.Metadata) string {
	subject := slug(meta.Subject)
	if len(subject) > maxSubjectSegment {
		subject = subject[:maxSubjectSegment]
	}
	name := slug(meta.Name) + "-" + subject
	if len(name) > maxChannelName {
		name = name[:maxChannelName]
	}
	return name
}

func introMessage(t domain.Ticket) platform.Message {
	return platform.Message{
		Title:       fmt.Sprintf("New Support Ticket - #%s", t.ID),
		Description: "A new support ticket has been created",
		Color:       colorTicket,
		Fields: []platform.Field{
			{Name: "Name", Value: orDash(t.Metadata.Name)},
			{Name: "Subject", Value: orDash(t.Metadata.Subject)},
			{Name: "User ID", Value: t.UserID},
		},
		Footer:      "Click the button below or type !close to close this ticket",
		Timestamp:   t.CreatedAt,
		CloseButton: true,
	}
}

func webMessage(userName, text string, at time.Time) platform.Message {
	return platform.Message{
		AuthorName:    orDash(userName),
		AuthorIconURL: defaultAvatarURL,
		Description:   text,
		Color:         colorMessage,
		Timestamp:     at,
	}
}

func closingNotice(delay time.Duration) platform.Message {
	if delay <= 0 {
		return platform.Message{Content: "✅ Ticket closed! Archiving channel..."}
	}
	return platform.Message{
		Content: fmt.Sprintf("✅ Ticket closed! Archiving channel in %d seconds...", int(delay.Round(time.Second)/time.Second)),
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
