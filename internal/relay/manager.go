package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/observability"
	"github.com/spec-kit/ticket-relay/internal/platform"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// Platform is the messaging platform collaborator.
type Platform interface {
	CreateChannel(ctx context.Context, spec platform.ChannelSpec) (platform.Channel, error)
	// ResolveChannel checks that the channel still exists and is reachable.
	ResolveChannel(ctx context.Context, channelID string) error
	PostMessage(ctx context.Context, channelID string, msg platform.Message) error
	// DeleteChannel removes a channel, tolerating one that is already gone.
	DeleteChannel(ctx context.Context, channelID string) error
}

// SessionNotifier delivers events to a single web connection.
// Events for a session that is no longer connected are dropped.
type SessionNotifier interface {
	Notify(sessionID string, event domain.SessionEvent)
}

// ChannelReaper deletes platform channels after a delay.
type ChannelReaper interface {
	Schedule(channelID string, after time.Duration)
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, domain.SessionEvent) {}

type leaveChannels struct{}

func (leaveChannels) Schedule(string, time.Duration) {}

// CloseTrigger records what caused a ticket to close.
type CloseTrigger string

const (
	TriggerCommand        CloseTrigger = "command"
	TriggerButton         CloseTrigger = "button"
	TriggerChannelGone    CloseTrigger = "channel_gone"
	TriggerChannelDeleted CloseTrigger = "channel_deleted"
)

// ManagerConfig tunes the lifecycle manager.
type ManagerConfig struct {
	// CategoryID optionally nests ticket channels under an administrative category.
	CategoryID    string
	CloseDelay    time.Duration
	CreateTimeout time.Duration
}

// ManagerDependencies bundles collaborators for the lifecycle manager. Platform
// is required. Without a Notifier session events are discarded; without a Reaper
// closed channels are left in place.
type ManagerDependencies struct {
	Store      *Store
	Platform   Platform
	Notifier   SessionNotifier
	Reaper     ChannelReaper
	Dispatcher events.Dispatcher
	Metrics    *observability.RelayMetrics
	Logger     *zap.Logger
}

// CreateRequest describes a ticket creation request from a web session.
type CreateRequest struct {
	UserID    string
	Metadata  domain.Metadata
	SessionID string
}

// Manager creates and closes tickets. It is the only writer of the store's indexes.
type Manager struct {
	cfg        ManagerConfig
	store      *Store
	platform   Platform
	notifier   SessionNotifier
	reaper     ChannelReaper
	dispatcher events.Dispatcher
	metrics    *observability.RelayMetrics
	logger     *zap.Logger

	// creating serializes createTicket per user id.
	creating singleflight.Group

	now   func() time.Time
	newID func(time.Time) string
}

// NewManager constructs the lifecycle manager.
func NewManager(cfg ManagerConfig, deps ManagerDependencies) *Manager {
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 15 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Store
	if store == nil {
		store = NewStore()
	}
	var notifier SessionNotifier = discardNotifier{}
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	var reaper ChannelReaper = leaveChannels{}
	if deps.Reaper != nil {
		reaper = deps.Reaper
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		platform:   deps.Platform,
		notifier:   notifier,
		reaper:     reaper,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("lifecycle"),
		now:        time.Now,
		newID:      NewTicketID,
	}
}

// Store exposes the ticket store for read access.
func (m *Manager) Store() *Store {
	return m.store
}

// CreateTicket returns the user's open ticket, creating it and its channel if none exists.
//
// Concurrent calls for the same user share one creation: all callers get the same
// ticket and the platform sees exactly one channel creation. The requesting session
// becomes the ticket's live session.
func (m *Manager) CreateTicket(ctx context.Context, req CreateRequest) (domain.Ticket, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return domain.Ticket{}, apperrors.NewValidationError("userId required", nil)
	}

	v, err, shared := m.creating.Do(req.UserID, func() (interface{}, error) {
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CreateTimeout)
		defer cancel()
		return m.create(createCtx, req)
	})
	if err != nil {
		return domain.Ticket{}, err
	}

	t := v.(domain.Ticket)
	if req.SessionID != "" && t.SessionID != req.SessionID && m.store.AttachSession(t.ID, req.SessionID) {
		t.SessionID = req.SessionID
	}
	if shared {
		m.logger.Debug("joined in-flight ticket creation", zap.String("user_id", req.UserID), zap.String("ticket_id", t.ID))
	}
	return t, nil
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (domain.Ticket, error) {
	if existing, ok := m.store.FindByUser(req.UserID); ok {
		m.logger.Info("returning existing ticket", zap.String("user_id", req.UserID), zap.String("ticket_id", existing.ID))
		return existing, nil
	}

	now := m.now()
	id := m.newID(now)
	for _, taken := m.store.Get(id); taken; _, taken = m.store.Get(id) {
		id = m.newID(now)
	}

	name := ChannelName(req.Metadata)
	if strings.Trim(name, "-") == "" {
		name = "ticket-" + strings.ToLower(id)
	}
	channel, err := m.platform.CreateChannel(ctx, platform.ChannelSpec{
		Name:     name,
		ParentID: m.cfg.CategoryID,
		Topic:    fmt.Sprintf("Support ticket #%s", id),
	})
	if err != nil {
		m.metrics.RecordPlatformError("create_channel", Classify(err).String())
		m.logger.Error("create channel failed", zap.String("user_id", req.UserID), zap.Error(err))
		return domain.Ticket{}, apperrors.NewPlatformError("failed to create ticket", &PlatformError{Op: "create channel", Err: err})
	}
	if channel.Name != "" {
		name = channel.Name
	}

	t := domain.Ticket{
		ID:          id,
		ChannelID:   channel.ID,
		ChannelName: name,
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}

	if err := m.platform.PostMessage(ctx, channel.ID, introMessage(t)); err != nil {
		m.metrics.RecordPlatformError("post_intro", Classify(err).String())
		m.logger.Error("post ticket intro failed", zap.String("ticket_id", id), zap.String("channel_id", channel.ID), zap.Error(err))
		m.reaper.Schedule(channel.ID, 0)
		return domain.Ticket{}, apperrors.NewPlatformError("failed to create ticket", &PlatformError{Op: "post ticket intro", Err: err})
	}

	if err := m.store.put(t); err != nil {
		m.logger.Error("store ticket failed", zap.String("ticket_id", id), zap.Error(err))
		m.reaper.Schedule(channel.ID, 0)
		return domain.Ticket{}, apperrors.NewInternalError(err)
	}

	m.metrics.TicketCreated()
	m.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: t.ID,
		Actor:    t.UserID,
		Payload: events.TicketCreatedPayload{
			UserID:      t.UserID,
			ChannelID:   t.ChannelID,
			ChannelName: t.ChannelName,
			Subject:     t.Metadata.Subject,
		},
	})
	m.logger.Info("ticket created",
		zap.String("ticket_id", t.ID),
		zap.String("user_id", t.UserID),
		zap.String("channel_id", t.ChannelID))
	return t, nil
}

// CloseTicket closes an open ticket and tells its live session who closed it.
// Closing an unknown or already closed ticket is a no-op and returns false.
func (m *Manager) CloseTicket(ctx context.Context, ticketID, closedBy string, trigger CloseTrigger) (domain.Ticket, bool) {
	t, ok := m.store.remove(ticketID)
	if !ok {
		return domain.Ticket{}, false
	}
	if closedBy == "" {
		closedBy = domain.ActorSystem
	}
	if t.HasSession() {
		m.notifier.Notify(t.SessionID, domain.TicketClosedEvent(t.ID, closedBy))
	}

	m.metrics.TicketClosed(string(trigger))
	m.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: t.ID,
		Actor:    closedBy,
		Payload: events.TicketClosedPayload{
			UserID:    t.UserID,
			ChannelID: t.ChannelID,
			Trigger:   string(trigger),
		},
	})
	m.logger.Info("ticket closed",
		zap.String("ticket_id", t.ID),
		zap.String("closed_by", closedBy),
		zap.String("trigger", string(trigger)))
	return t, true
}

// ArchiveChannel closes the ticket owning channelID, posts the closing notice
// and schedules the channel for deletion after the grace delay.
func (m *Manager) ArchiveChannel(ctx context.Context, channelID, closedBy string, trigger CloseTrigger) bool {
	t, ok := m.store.FindByChannel(channelID)
	if !ok {
		m.logger.Debug("no ticket for channel", zap.String("channel_id", channelID))
		return false
	}
	if _, closed := m.CloseTicket(ctx, t.ID, closedBy, trigger); !closed {
		return false
	}
	if err := m.platform.PostMessage(ctx, channelID, closingNotice(m.cfg.CloseDelay)); err != nil {
		m.metrics.RecordPlatformError("post_closing_notice", Classify(err).String())
		m.logger.Warn("post closing notice failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	m.reaper.Schedule(channelID, m.cfg.CloseDelay)
	return true
}

// Reconnect binds a new web connection to a previously issued ticket.
// It returns false when the ticket is not open or belongs to another user.
func (m *Manager) Reconnect(ticketID, userID, sessionID string) (domain.Ticket, bool) {
	t, ok := m.store.Get(ticketID)
	if !ok || t.UserID != userID {
		return domain.Ticket{}, false
	}
	if !m.store.AttachSession(ticketID, sessionID) {
		return domain.Ticket{}, false
	}
	t.SessionID = sessionID
	m.logger.Info("session reconnected", zap.String("ticket_id", ticketID), zap.String("session_id", sessionID))
	return t, true
}

// Disconnect unbinds a web connection from its ticket. The ticket stays open.
func (m *Manager) Disconnect(ticketID, sessionID string) {
	if ticketID == "" {
		return
	}
	if m.store.DetachSession(ticketID, sessionID) {
		m.logger.Debug("session detached", zap.String("ticket_id", ticketID), zap.String("session_id", sessionID))
	}
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
