package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/observability"
	"github.com/spec-kit/ticket-relay/internal/platform"
)

// InboundRouter relays platform channel activity to the web session owning the channel.
type InboundRouter struct {
	manager       *Manager
	store         *Store
	notifier      SessionNotifier
	closeCommands []string
	metrics       *observability.RelayMetrics
	logger        *zap.Logger
}

var _ platform.EventHandler = (*InboundRouter)(nil)

// NewInboundRouter builds an inbound router on top of the lifecycle manager.
// closeCommands are matched case-insensitively as message prefixes.
func NewInboundRouter(manager *Manager, closeCommands []string) *InboundRouter {
	commands := make([]string, 0, len(closeCommands))
	for _, c := range closeCommands {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			commands = append(commands, c)
		}
	}
	return &InboundRouter{
		manager:       manager,
		store:         manager.store,
		notifier:      manager.notifier,
		closeCommands: commands,
		metrics:       manager.metrics,
		logger:        manager.logger.Named("inbound"),
	}
}

// HandleMessage delivers a channel message to the ticket's live session, or closes
// the ticket when the message is a close directive. Messages authored by the relay
// itself are ignored.
func (r *InboundRouter) HandleMessage(ctx context.Context, msg platform.InboundMessage) {
	if msg.FromSelf {
		r.metrics.RecordMessage(observability.DirectionInbound, observability.OutcomeEcho)
		return
	}

	t, ok := r.store.FindByChannel(msg.ChannelID)
	if !ok {
		r.metrics.RecordMessage(observability.DirectionInbound, observability.OutcomeNoTicket)
		return
	}

	if r.IsCloseDirective(msg.Content) {
		r.logger.Info("close directive received", zap.String("ticket_id", t.ID), zap.String("author", msg.AuthorName))
		r.manager.ArchiveChannel(ctx, msg.ChannelID, msg.AuthorName, TriggerCommand)
		r.metrics.RecordMessage(observability.DirectionInbound, observability.OutcomeClosed)
		return
	}

	if !t.HasSession() {
		r.logger.Debug("no live session, dropping message", zap.String("ticket_id", t.ID))
		r.metrics.RecordMessage(observability.DirectionInbound, observability.OutcomeDropped)
		return
	}

	r.notifier.Notify(t.SessionID, domain.SessionEvent{
		Name: domain.EventMessageFromPlatform,
		Payload: domain.PlatformMessagePayload{
			Author:    msg.AuthorName,
			Message:   msg.Content,
			Timestamp: msg.Timestamp.UnixMilli(),
		},
	})
	r.metrics.RecordMessage(observability.DirectionInbound, observability.OutcomeDelivered)
	r.manager.publish(ctx, messageRelayedEvent(t.ID, msg.AuthorName, observability.DirectionInbound, msg.Content))
}

// HandleCloseAction closes the ticket whose close button was pressed.
func (r *InboundRouter) HandleCloseAction(ctx context.Context, action platform.CloseAction) {
	r.manager.ArchiveChannel(ctx, action.ChannelID, action.ActorName, TriggerButton)
}

// HandleChannelDeleted closes the ticket whose channel was removed on the platform side.
func (r *InboundRouter) HandleChannelDeleted(ctx context.Context, channelID string) {
	t, ok := r.store.FindByChannel(channelID)
	if !ok {
		return
	}
	r.manager.CloseTicket(ctx, t.ID, domain.ActorSystem, TriggerChannelDeleted)
}

// IsCloseDirective reports whether text asks to close the ticket.
func (r *InboundRouter) IsCloseDirective(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, c := range r.closeCommands {
		if strings.HasPrefix(text, c) {
			return true
		}
	}
	return false
}
