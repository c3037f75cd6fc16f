package discord

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/platform"
)

// Adapter exposes the Discord REST client as the relay's platform collaborator.
type Adapter struct {
	client  *Client
	logger  *zap.Logger
	guildID string

	mu    sync.RWMutex
	self  User
	guild string
}

const closeButtonLabel = "Close Ticket"

// NewAdapter wraps client. guildID pins ticket channels to one server; when
// empty the first server the bot belongs to is used.
func NewAdapter(client *Client, guildID string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client:  client,
		logger:  logger.Named("discord"),
		guildID: guildID,
	}
}

// Identify fetches and remembers the bot's own account.
func (a *Adapter) Identify(ctx context.Context) (User, error) {
	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return User{}, err
	}
	a.setSelf(user)
	return user, nil
}

// SelfID returns the bot's user id once known.
func (a *Adapter) SelfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self.ID
}

func (a *Adapter) setSelf(user User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.self = user
}

func (a *Adapter) resolveGuild(ctx context.Context) (string, error) {
	if a.guildID != "" {
		return a.guildID, nil
	}
	a.mu.RLock()
	cached := a.guild
	a.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	guilds, err := a.client.Guilds(ctx)
	if err != nil {
		return "", err
	}
	if len(guilds) == 0 {
		return "", platform.ErrNoGuild
	}
	a.mu.Lock()
	a.guild = guilds[0].ID
	a.mu.Unlock()
	a.logger.Info("using guild", zap.String("guild_id", guilds[0].ID), zap.String("guild_name", guilds[0].Name))
	return guilds[0].ID, nil
}

// CreateChannel creates a private text channel visible only to the bot and
// members with administrative access.
func (a *Adapter) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (platform.Channel, error) {
	guildID, err := a.resolveGuild(ctx)
	if err != nil {
		return platform.Channel{}, err
	}
	selfID := a.SelfID()
	if selfID == "" {
		self, err := a.Identify(ctx)
		if err != nil {
			return platform.Channel{}, err
		}
		selfID = self.ID
	}

	ch, err := a.client.createGuildChannel(ctx, guildID, createChannelRequest{
		Name:     spec.Name,
		Type:     channelTypeGuildText,
		Topic:    spec.Topic,
		ParentID: spec.ParentID,
		PermissionOverwrites: []permissionOverwrite{
			{ID: guildID, Type: overwriteTypeRole, Allow: "0", Deny: bits(permViewChannel)},
			{ID: selfID, Type: overwriteTypeMember, Allow: bits(permViewChannel | permSendMessages | permReadMessageHistory), Deny: "0"},
		},
	})
	if err != nil {
		return platform.Channel{}, err
	}
	return platform.Channel{ID: ch.ID, Name: ch.Name}, nil
}

// ResolveChannel checks that the channel still exists and the bot can see it.
func (a *Adapter) ResolveChannel(ctx context.Context, channelID string) error {
	_, err := a.client.GetChannel(ctx, channelID)
	return err
}

// PostMessage sends msg to the channel as an embed.
func (a *Adapter) PostMessage(ctx context.Context, channelID string, msg platform.Message) error {
	return a.client.createMessage(ctx, channelID, toWire(msg))
}

// DeleteChannel removes the channel, tolerating one that is already gone.
func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	return a.client.DeleteChannel(ctx, channelID)
}

func toWire(msg platform.Message) createMessageRequest {
	req := createMessageRequest{Content: msg.Content}

	if msg.Title != "" || msg.Description != "" || len(msg.Fields) > 0 || msg.AuthorName != "" {
		e := embed{
			Title:       msg.Title,
			Description: msg.Description,
			Color:       msg.Color,
		}
		if msg.AuthorName != "" {
			e.Author = &embedAuthor{Name: msg.AuthorName, IconURL: msg.AuthorIconURL}
		}
		for _, f := range msg.Fields {
			e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if msg.Footer != "" {
			e.Footer = &embedFooter{Text: msg.Footer}
		}
		if !msg.Timestamp.IsZero() {
			e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
		}
		req.Embeds = []embed{e}
	}

	if msg.CloseButton {
		req.Components = []component{{
			Type: componentTypeActionRow,
			Components: []component{{
				Type:     componentTypeButton,
				Style:    buttonStyleDanger,
				Label:    closeButtonLabel,
				CustomID: platform.CloseButtonID,
			}},
		}}
	}
	return req
}

func bits(v int64) string {
	return strconv.FormatInt(v, 10)
}
