package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/observability"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const (
	noticeTicketClosed  = "This ticket has been closed. Please create a new ticket."
	noticeChannelGone   = "This ticket channel no longer exists. Please create a new ticket."
	noticeSendFailed    = "Unable to send message. Ticket may have been closed."
	noticeSendTransient = "Unable to send message. Please try again."
	previewLength       = 120
)

// OutboundMessage is a chat message sent by a web session.
type OutboundMessage struct {
	UserID   string
	TicketID string
	UserName string
	Text     string
}

// OutboundRouter relays web session messages into the ticket's platform channel.
type OutboundRouter struct {
	manager  *Manager
	store    *Store
	platform Platform
	notifier SessionNotifier
	metrics  *observability.RelayMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewOutboundRouter builds an outbound router on top of the lifecycle manager.
func NewOutboundRouter(manager *Manager) *OutboundRouter {
	return &OutboundRouter{
		manager:  manager,
		store:    manager.store,
		platform: manager.platform,
		notifier: manager.notifier,
		metrics:  manager.metrics,
		logger:   manager.logger.Named("outbound"),
		now:      time.Now,
	}
}

// Route posts msg to the ticket's channel. Every failure is reported to the
// sending session; the returned error is informational for the caller.
//
// An unknown ticket is answered as closed. A missing channel or a channel-gone
// post failure closes the ticket. Any other failure leaves the ticket open.
func (r *OutboundRouter) Route(ctx context.Context, sessionID string, msg OutboundMessage) error {
	t, ok := r.store.Get(msg.TicketID)
	if !ok || (msg.UserID != "" && t.UserID != msg.UserID) {
		r.logger.Info("message for unknown ticket", zap.String("ticket_id", msg.TicketID), zap.String("session_id", sessionID))
		r.notifier.Notify(sessionID, domain.TicketClosedEvent(msg.TicketID, domain.ActorSystem))
		r.notifier.Notify(sessionID, domain.SystemMessageEvent(noticeTicketClosed))
		r.metrics.RecordMessage(observability.DirectionOutbound, observability.OutcomeNoTicket)
		return apperrors.NewTicketNotFound(msg.TicketID, ErrUnknownTicket)
	}

	if err := r.platform.ResolveChannel(ctx, t.ChannelID); err != nil {
		return r.fail(ctx, sessionID, t, "resolve_channel", noticeChannelGone, err)
	}

	if err := r.platform.PostMessage(ctx, t.ChannelID, webMessage(msg.UserName, msg.Text, r.now())); err != nil {
		return r.fail(ctx, sessionID, t, "post_message", noticeSendFailed, err)
	}

	r.metrics.RecordMessage(observability.DirectionOutbound, observability.OutcomeDelivered)
	r.manager.publish(ctx, messageRelayedEvent(t.ID, msg.UserName, observability.DirectionOutbound, msg.Text))
	return nil
}

func (r *OutboundRouter) fail(ctx context.Context, sessionID string, t domain.Ticket, op, goneNotice string, err error) error {
	kind := Classify(err)
	r.metrics.RecordPlatformError(op, kind.String())

	if kind != KindChannelGone {
		r.logger.Warn("transient relay failure", zap.String("ticket_id", t.ID), zap.String("op", op), zap.Error(err))
		r.notifier.Notify(sessionID, domain.SystemMessageEvent(noticeSendTransient))
		r.metrics.RecordMessage(observability.DirectionOutbound, observability.OutcomeFailed)
		return fmt.Errorf("%s for ticket %s: %w", op, t.ID, err)
	}

	r.logger.Info("channel gone, closing ticket", zap.String("ticket_id", t.ID), zap.String("op", op), zap.Error(err))
	r.manager.CloseTicket(ctx, t.ID, domain.ActorSystem, TriggerChannelGone)
	// CloseTicket already told the ticket's bound session; tell the sender too if it differs.
	if sessionID != t.SessionID {
		r.notifier.Notify(sessionID, domain.TicketClosedEvent(t.ID, domain.ActorSystem))
	}
	r.notifier.Notify(sessionID, domain.SystemMessageEvent(goneNotice))
	r.metrics.RecordMessage(observability.DirectionOutbound, observability.OutcomeClosed)
	return fmt.Errorf("%s for ticket %s: %w", op, t.ID, err)
}

func messageRelayedEvent(ticketID, actor, direction, body string) events.Event {
	preview := []rune(body)
	if len(preview) > previewLength {
		preview = preview[:previewLength]
	}
	return events.Event{
		Type:     events.EventMessageRelayed,
		TicketID: ticketID,
		Actor:    actor,
		Payload: events.MessageRelayedPayload{
			Direction:   direction,
			BodyPreview: string(preview),
		},
	}
}
