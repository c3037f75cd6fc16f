package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/platform"
)

func outbound(ticket domain.Ticket, text string) OutboundMessage {
	return OutboundMessage{UserID: ticket.UserID, TicketID: ticket.ID, UserName: "Ada", Text: text}
}

func TestOutboundPostsFormattedMessage(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-1")

	require.NoError(t, h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "hello")))

	posts := h.platform.postsTo(ticket.ChannelID)
	require.Len(t, posts, 2)
	assert.Equal(t, "Ada", posts[1].AuthorName)
	assert.Equal(t, "hello", posts[1].Description)
	assert.False(t, posts[1].Timestamp.IsZero())
	assert.Empty(t, h.notifier.events)
}

func TestOutboundUnknownTicket(t *testing.T) {
	h := newHarness(t)

	err := h.outbound.Route(context.Background(), "sess-1", OutboundMessage{UserID: "user-a", TicketID: "GONE-00000", Text: "hi"})

	assert.ErrorIs(t, err, ErrUnknownTicket)
	got := h.notifier.For("sess-1")
	require.Len(t, got, 2)
	assert.Equal(t, domain.TicketClosedEvent("GONE-00000", domain.ActorSystem), got[0])
	assert.Equal(t, domain.EventSystemMessage, got[1].Name)
}

func TestOutboundRejectsForeignTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-1")

	err := h.outbound.Route(context.Background(), "sess-x", OutboundMessage{UserID: "user-b", TicketID: ticket.ID, Text: "hi"})

	assert.ErrorIs(t, err, ErrUnknownTicket)
	assert.Len(t, h.platform.postsTo(ticket.ChannelID), 1)
	_, ok := h.manager.Store().Get(ticket.ID)
	assert.True(t, ok)
}

func TestOutboundChannelGoneOnPostClosesTicket(t *testing.T) {
	for _, code := range []int{platform.CodeUnknownChannel, platform.CodeMissingAccess} {
		h := newHarness(t)
		ticket := h.create(t, "user-a", "sess-1")
		h.platform.postErr = func(string, platform.Message) error {
			return &platform.Error{Code: code, Status: 404}
		}

		err := h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "hello"))

		require.Error(t, err)
		assert.Equal(t, 1, h.notifier.Count("sess-1", domain.EventTicketClosed))
		assert.Equal(t, 1, h.notifier.Count("sess-1", domain.EventSystemMessage))
		_, ok := h.manager.Store().Get(ticket.ID)
		assert.False(t, ok)
		assert.Empty(t, h.reaper.all())
	}
}

func TestOutboundMissingChannelClosesTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-1")
	h.platform.missing[ticket.ChannelID] = true

	err := h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "hello"))

	require.Error(t, err)
	got := h.notifier.For("sess-1")
	require.Len(t, got, 2)
	assert.Equal(t, domain.TicketClosedEvent(ticket.ID, domain.ActorSystem), got[0])
	assert.Equal(t, domain.SystemMessageEvent(noticeChannelGone), got[1])
	assert.Equal(t, 0, h.manager.Store().Len())
}

func TestOutboundChannelGoneNotifiesDifferentSender(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-bound")
	h.platform.missing[ticket.ChannelID] = true

	_ = h.outbound.Route(context.Background(), "sess-other", outbound(ticket, "hello"))

	assert.Equal(t, 1, h.notifier.Count("sess-bound", domain.EventTicketClosed))
	assert.Equal(t, 1, h.notifier.Count("sess-other", domain.EventTicketClosed))
}

func TestOutboundTransientFailureKeepsTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-1")
	h.platform.postErr = func(string, platform.Message) error {
		return &platform.Error{Status: 500, Message: "Internal Server Error"}
	}

	err := h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "hello"))

	require.Error(t, err)
	got := h.notifier.For("sess-1")
	require.Len(t, got, 1)
	assert.Equal(t, domain.SystemMessageEvent(noticeSendTransient), got[0])
	_, ok := h.manager.Store().Get(ticket.ID)
	assert.True(t, ok)

	h.platform.postErr = nil
	require.NoError(t, h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "retry")))
}

func TestOutboundTransientResolveFailureKeepsTicket(t *testing.T) {
	h := newHarness(t)
	ticket := h.create(t, "user-a", "sess-1")
	h.platform.resolveErr = errors.New("i/o timeout")

	require.Error(t, h.outbound.Route(context.Background(), "sess-1", outbound(ticket, "hello")))

	assert.Equal(t, 0, h.notifier.Count("sess-1", domain.EventTicketClosed))
	assert.Equal(t, 1, h.manager.Store().Len())
}
