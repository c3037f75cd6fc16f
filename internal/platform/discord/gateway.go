package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/platform"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Close codes after which reconnecting cannot help.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid api version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

var (
	errReconnectRequested = errors.New("gateway requested reconnect")
	errInvalidSession     = errors.New("gateway invalidated session")
	errHeartbeatTimeout   = errors.New("gateway heartbeat not acknowledged")
)

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      User   `json:"user"`
}

type identifyData struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Properties map[string]string `json:"properties"`
}

// GatewayConfig configures the event stream connection.
type GatewayConfig struct {
	URL     string
	Token   string
	Intents int
	// EventTimeout bounds the handling of one dispatched event.
	EventTimeout time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// Gateway consumes the Discord event stream and feeds it to an EventHandler.
// Events are handled one at a time in arrival order.
type Gateway struct {
	cfg     GatewayConfig
	adapter *Adapter
	handler platform.EventHandler
	logger  *zap.Logger
	dialer  *websocket.Dialer
}

// NewGateway creates a gateway consumer.
func NewGateway(cfg GatewayConfig, adapter *Adapter, handler platform.EventHandler, logger *zap.Logger) *Gateway {
	if cfg.Intents == 0 {
		cfg.Intents = defaultIntents
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 15 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		cfg:     cfg,
		adapter: adapter,
		handler: handler,
		logger:  logger.Named("gateway"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run keeps a gateway session open until ctx is cancelled, reconnecting with
// exponential backoff. It returns an error only when the gateway rejects the
// bot in a way a reconnect cannot fix.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := g.cfg.MinBackoff
	for {
		ready, err := g.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			if reason, fatal := fatalCloseCodes[closeErr.Code]; fatal {
				return fmt.Errorf("gateway closed: %s (%d)", reason, closeErr.Code)
			}
		}
		if ready {
			backoff = g.cfg.MinBackoff
		}

		g.logger.Warn("gateway session ended, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
		}
	}
}

// gatewayConn serializes writes; gorilla connections allow one concurrent writer.
type gatewayConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *gatewayConn) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(gatewayPayload{Op: op, D: raw})
}

// session runs one connection. ready reports whether the session got as far as READY.
func (g *Gateway) session(ctx context.Context) (ready bool, err error) {
	conn, _, err := g.dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial gateway: %w", err)
	}
	gc := &gatewayConn{conn: conn}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return false, fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return false, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return false, fmt.Errorf("decode hello: %w", err)
	}

	hb := &heartbeater{conn: gc, interval: time.Duration(hd.HeartbeatInterval) * time.Millisecond}
	hbErr := make(chan error, 1)
	go func() {
		hbErr <- hb.run(sessionCtx)
		cancel()
	}()

	if err := gc.send(opIdentify, identifyData{
		Token:   g.cfg.Token,
		Intents: g.cfg.Intents,
		Properties: map[string]string{
			"os":      runtime.GOOS,
			"browser": "ticket-relay",
			"device":  "ticket-relay",
		},
	}); err != nil {
		return false, fmt.Errorf("identify: %w", err)
	}

	for {
		var p gatewayPayload
		if err := conn.ReadJSON(&p); err != nil {
			select {
			case hbe := <-hbErr:
				if hbe != nil {
					return ready, hbe
				}
			default:
			}
			return ready, err
		}
		if p.S != nil {
			hb.setSequence(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if p.T == "READY" {
				ready = true
			}
			g.dispatch(ctx, p.T, p.D)
		case opHeartbeat:
			if err := hb.beat(); err != nil {
				return ready, err
			}
		case opHeartbeatAck:
			hb.ack()
		case opReconnect:
			return ready, errReconnectRequested
		case opInvalidSession:
			return ready, errInvalidSession
		}
	}
}

type heartbeater struct {
	conn     *gatewayConn
	interval time.Duration

	mu       sync.Mutex
	seq      *int64
	awaiting bool
}

func (h *heartbeater) setSequence(s int64) {
	h.mu.Lock()
	h.seq = &s
	h.mu.Unlock()
}

func (h *heartbeater) ack() {
	h.mu.Lock()
	h.awaiting = false
	h.mu.Unlock()
}

func (h *heartbeater) beat() error {
	h.mu.Lock()
	seq := h.seq
	h.awaiting = true
	h.mu.Unlock()
	return h.conn.send(opHeartbeat, seq)
}

func (h *heartbeater) run(ctx context.Context) error {
	if h.interval <= 0 {
		h.interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.mu.Lock()
			zombie := h.awaiting
			h.mu.Unlock()
			if zombie {
				return errHeartbeatTimeout
			}
			if err := h.beat(); err != nil {
				return err
			}
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, eventType string, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("panic handling gateway event", zap.String("event", eventType), zap.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.EventTimeout)
	defer cancel()

	switch eventType {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(data, &ready); err != nil {
			g.logger.Warn("decode READY failed", zap.Error(err))
			return
		}
		g.adapter.setSelf(ready.User)
		g.logger.Info("gateway ready", zap.String("user", ready.User.Username), zap.String("session_id", ready.SessionID))

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Warn("decode MESSAGE_CREATE failed", zap.Error(err))
			return
		}
		g.handler.HandleMessage(ctx, platform.InboundMessage{
			ChannelID:  msg.ChannelID,
			MessageID:  msg.ID,
			AuthorID:   msg.Author.ID,
			AuthorName: msg.Author.DisplayName(),
			FromSelf:   msg.Author.ID == g.adapter.SelfID(),
			Content:    msg.Content,
			Timestamp:  msg.Timestamp,
		})

	case "INTERACTION_CREATE":
		var interaction Interaction
		if err := json.Unmarshal(data, &interaction); err != nil {
			g.logger.Warn("decode INTERACTION_CREATE failed", zap.Error(err))
			return
		}
		if interaction.Type != interactionTypeComponent || interaction.Data.CustomID != platform.CloseButtonID {
			return
		}
		if err := g.adapter.client.respondInteraction(ctx, interaction, interactionResponse{Type: interactionDeferredUpdate}); err != nil {
			g.logger.Warn("acknowledge interaction failed", zap.String("channel_id", interaction.ChannelID), zap.Error(err))
		}
		g.handler.HandleCloseAction(ctx, platform.CloseAction{
			ChannelID: interaction.ChannelID,
			ActorName: interaction.ActorName(),
		})

	case "CHANNEL_DELETE":
		var ch Channel
		if err := json.Unmarshal(data, &ch); err != nil {
			g.logger.Warn("decode CHANNEL_DELETE failed", zap.Error(err))
			return
		}
		g.handler.HandleChannelDeleted(ctx, ch.ID)
	}
}
