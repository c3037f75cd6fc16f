package discord

import "time"

// Gateway intents the relay subscribes to.
const (
	IntentGuilds         = 1 << 0
	IntentGuildMessages  = 1 << 9
	IntentMessageContent = 1 << 15

	defaultIntents = IntentGuilds | IntentGuildMessages | IntentMessageContent
)

// Channel permission bits.
const (
	permViewChannel        = 1 << 10
	permSendMessages       = 1 << 11
	permReadMessageHistory = 1 << 16
)

const (
	channelTypeGuildText = 0

	overwriteTypeRole   = 0
	overwriteTypeMember = 1

	componentTypeActionRow = 1
	componentTypeButton    = 2
	buttonStyleDanger      = 4

	interactionTypeComponent = 3
	// interactionDeferredUpdate acknowledges a component press without a visible reply.
	interactionDeferredUpdate = 6
)

// User is a Discord account.
type User struct {
	ID       string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
}

// DisplayName prefers the global name the way the client renders authors.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Guild is a Discord server.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is the subset of channel fields the relay reads.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	GuildID  string `json:"guild_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Type     int    `json:"type"`
}

type permissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type createChannelRequest struct {
	Name                 string                `json:"name"`
	Type                 int                   `json:"type"`
	Topic                string                `json:"topic,omitempty"`
	ParentID             string                `json:"parent_id,omitempty"`
	PermissionOverwrites []permissionOverwrite `json:"permission_overwrites,omitempty"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []component `json:"components,omitempty"`
}

type createMessageRequest struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []embed     `json:"embeds,omitempty"`
	Components []component `json:"components,omitempty"`
}

type interactionResponse struct {
	Type int `json:"type"`
}

// Message is a MESSAGE_CREATE payload.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Member is a guild member attached to an interaction.
type Member struct {
	Nick string `json:"nick,omitempty"`
	User User   `json:"user"`
}

// Interaction is an INTERACTION_CREATE payload.
type Interaction struct {
	ID        string  `json:"id"`
	Type      int     `json:"type"`
	Token     string  `json:"token"`
	ChannelID string  `json:"channel_id"`
	Member    *Member `json:"member,omitempty"`
	User      *User   `json:"user,omitempty"`
	Data      struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
}

// ActorName returns the display name of whoever triggered the interaction.
func (i Interaction) ActorName() string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		return i.Member.User.DisplayName()
	}
	if i.User != nil {
		return i.User.DisplayName()
	}
	return ""
}
