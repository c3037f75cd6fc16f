// Package ws is the web transport: it carries JSON envelopes between browser
// sessions and the relay.
package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/observability"
)

// DefaultWriteTimeout bounds a single event write to a session.
const DefaultWriteTimeout = 5 * time.Second

// Conn is the write side of a web socket connection.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type session struct {
	mu sync.Mutex
	// closed is set once the connection may no longer be written to.
	closed bool
	conn   Conn
}

// Hub maps session ids to live connections and delivers server events to them.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]*session
	writeTimeout time.Duration
	metrics      *observability.RelayMetrics
	logger       *zap.Logger
}

// NewHub creates an empty hub. A session whose write does not finish within
// writeTimeout is closed and forgotten.
func NewHub(metrics *observability.RelayMetrics, logger *zap.Logger, writeTimeout time.Duration) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		sessions:     make(map[string]*session),
		writeTimeout: writeTimeout,
		metrics:      metrics,
		logger:       logger.Named("hub"),
	}
}

// Register binds a session id to its connection.
func (h *Hub) Register(sessionID string, conn Conn) {
	h.mu.Lock()
	h.sessions[sessionID] = &session{conn: conn}
	h.mu.Unlock()
	h.metrics.SessionOpened()
}

// Unregister forgets a session and waits for any write in progress. No write
// reaches the connection once Unregister returns.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	h.metrics.SessionClosed()
}

// Connected reports whether the session is live.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[sessionID]
	return ok
}

// Notify writes event to the session. Events for unknown sessions are dropped.
// A failed or timed out write closes the connection and evicts the session.
func (h *Hub) Notify(sessionID string, event domain.SessionEvent) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("dropping event for absent session", zap.String("session_id", sessionID), zap.String("event", string(event.Name)))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		h.logger.Debug("dropping event for closed session", zap.String("session_id", sessionID), zap.String("event", string(event.Name)))
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := s.conn.WriteJSON(event); err != nil {
		h.logger.Warn("write to session failed, closing", zap.String("session_id", sessionID), zap.String("event", string(event.Name)), zap.Error(err))
		s.closed = true
		_ = s.conn.Close()
		h.evict(sessionID, s)
	}
}

// evict removes s if it is still the session registered under sessionID.
func (h *Hub) evict(sessionID string, s *session) {
	h.mu.Lock()
	current, ok := h.sessions[sessionID]
	if ok && current == s {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	if ok && current == s {
		h.metrics.SessionClosed()
	}
}
