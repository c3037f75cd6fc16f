package ws

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/auth"
	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/platform"
	"github.com/spec-kit/ticket-relay/internal/relay"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// Client to server event names.
const (
	EventCreateTicket   = "createTicket"
	EventMessageFromWeb = "messageFromWeb"
	// eventMessageFromWebsite is the name older web clients send.
	eventMessageFromWebsite = "messageFromWebsite"
)

// Envelope is one JSON frame from the browser.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type createTicketData struct {
	UserID      string           `json:"userId"`
	Metadata    *domain.Metadata `json:"metadata"`
	UserDetails *domain.Metadata `json:"userDetails"`
}

type messageFromWebData struct {
	UserID   string `json:"userId"`
	TicketID string `json:"ticketId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

// Connection is the per-socket state. It is only touched by the socket's read loop.
type Connection struct {
	SessionID string
	UserID    string
	TicketID  string
}

// HandlerDependencies bundles collaborators for the socket handler.
type HandlerDependencies struct {
	Manager  *relay.Manager
	Outbound *relay.OutboundRouter
	Hub      *Hub
	Logger   *zap.Logger
	// MessageTimeout bounds the handling of one frame.
	MessageTimeout time.Duration
}

// Handler serves the relay's web socket endpoint.
type Handler struct {
	manager  *relay.Manager
	outbound *relay.OutboundRouter
	hub      *Hub
	logger   *zap.Logger
	timeout  time.Duration
	ctx      context.Context
}

// NewHandler builds the socket handler. ctx scopes every frame's work and is
// cancelled on shutdown.
func NewHandler(ctx context.Context, deps HandlerDependencies) *Handler {
	timeout := deps.MessageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager:  deps.Manager,
		outbound: deps.Outbound,
		hub:      deps.Hub,
		logger:   logger.Named("ws"),
		timeout:  timeout,
		ctx:      ctx,
	}
}

// RequireUpgrade rejects plain HTTP requests to the socket route.
func (h *Handler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return apperrors.NewUpgradeRequired("websocket upgrade required")
	}
	return c.Next()
}

// Serve returns the fiber handler that upgrades and runs a socket.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *Handler) serve(c *websocket.Conn) {
	conn := &Connection{
		SessionID: uuid.NewString(),
		UserID:    strings.TrimSpace(c.Query("userId")),
	}
	if principal, ok := c.Locals(auth.PrincipalKey).(*auth.Principal); ok {
		conn.UserID = principal.UserID
	}

	h.hub.Register(conn.SessionID, c)
	defer func() {
		h.hub.Unregister(conn.SessionID)
		h.manager.Disconnect(conn.TicketID, conn.SessionID)
		h.logger.Info("session disconnected", zap.String("session_id", conn.SessionID), zap.String("user_id", conn.UserID))
	}()
	h.logger.Info("session connected", zap.String("session_id", conn.SessionID), zap.String("user_id", conn.UserID))

	if ticketID := c.Query("ticketId"); ticketID != "" {
		if t, ok := h.manager.Reconnect(ticketID, conn.UserID, conn.SessionID); ok {
			conn.TicketID = t.ID
		}
	}

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("read failed", zap.String("session_id", conn.SessionID), zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.hub.Notify(conn.SessionID, domain.ErrorEvent("invalid message"))
			continue
		}
		h.HandleEnvelope(conn, env)
	}
}

// HandleEnvelope processes one client frame. Panics are recovered and reported
// to the session as an error event.
func (h *Handler) HandleEnvelope(conn *Connection, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic handling frame",
				zap.String("session_id", conn.SessionID),
				zap.String("event", env.Event),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			h.hub.Notify(conn.SessionID, domain.ErrorEvent("internal error"))
		}
	}()

	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	switch env.Event {
	case EventCreateTicket:
		h.createTicket(ctx, conn, env.Data)
	case EventMessageFromWeb, eventMessageFromWebsite:
		h.messageFromWeb(ctx, conn, env.Data)
	default:
		h.hub.Notify(conn.SessionID, domain.ErrorEvent("unknown event: "+env.Event))
	}
}

func (h *Handler) createTicket(ctx context.Context, conn *Connection, raw json.RawMessage) {
	var data createTicketData
	if err := decode(raw, &data); err != nil {
		h.hub.Notify(conn.SessionID, domain.ErrorEvent("invalid createTicket payload"))
		return
	}
	userID := strings.TrimSpace(data.UserID)
	if userID == "" {
		userID = conn.UserID
	}
	if conn.UserID != "" && userID != conn.UserID {
		h.hub.Notify(conn.SessionID, domain.ErrorEvent("userId does not match connection"))
		return
	}

	var meta domain.Metadata
	switch {
	case data.Metadata != nil:
		meta = *data.Metadata
	case data.UserDetails != nil:
		meta = *data.UserDetails
	}

	t, err := h.manager.CreateTicket(ctx, relay.CreateRequest{UserID: userID, Metadata: meta, SessionID: conn.SessionID})
	if err != nil {
		h.logger.Warn("create ticket failed", zap.String("session_id", conn.SessionID), zap.String("user_id", userID), zap.Error(err))
		h.hub.Notify(conn.SessionID, domain.ErrorEvent(createFailureMessage(err)))
		return
	}
	conn.UserID = userID
	conn.TicketID = t.ID
	h.hub.Notify(conn.SessionID, domain.TicketCreatedEvent(t))
}

func (h *Handler) messageFromWeb(ctx context.Context, conn *Connection, raw json.RawMessage) {
	var data messageFromWebData
	if err := decode(raw, &data); err != nil {
		h.hub.Notify(conn.SessionID, domain.ErrorEvent("invalid messageFromWeb payload"))
		return
	}
	if strings.TrimSpace(data.Message) == "" {
		h.hub.Notify(conn.SessionID, domain.ErrorEvent("message required"))
		return
	}
	if data.UserID == "" {
		data.UserID = conn.UserID
	}
	if data.TicketID == "" {
		data.TicketID = conn.TicketID
	}

	err := h.outbound.Route(ctx, conn.SessionID, relay.OutboundMessage{
		UserID:   data.UserID,
		TicketID: data.TicketID,
		UserName: data.UserName,
		Text:     data.Message,
	})
	if err != nil {
		h.logger.Debug("outbound message not relayed", zap.String("session_id", conn.SessionID), zap.Error(err))
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func createFailureMessage(err error) string {
	if errors.Is(err, platform.ErrNoGuild) {
		return "Bot is not in any Discord server"
	}
	var perr *relay.PlatformError
	if errors.As(err, &perr) {
		return "Failed to create ticket: " + perr.Err.Error()
	}
	if apperrors.IsCode(err, apperrors.CodeValidation) {
		return apperrors.ToDomainError(err).Message
	}
	return "Failed to create ticket: " + err.Error()
}
