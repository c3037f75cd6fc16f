package relay

import (
	"errors"
	"sync"

	"github.com/spec-kit/ticket-relay/internal/domain"
)

var (
	errUserHasTicket   = errors.New("user already has an open ticket")
	errChannelAssigned = errors.New("channel already belongs to a ticket")
	errDuplicateTicket = errors.New("ticket id already in use")
	errMissingChannel  = errors.New("ticket has no channel")
)

// Store is the authoritative in-memory record of open tickets.
//
// The primary map and both indexes (user and channel) change together under
// one lock, so a ticket is present in all three or in none. Readers get
// copies and never observe a half-applied write.
type Store struct {
	mu        sync.RWMutex
	tickets   map[string]*domain.Ticket
	byUser    map[string]string
	byChannel map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tickets:   make(map[string]*domain.Ticket),
		byUser:    make(map[string]string),
		byChannel: make(map[string]string),
	}
}

// Get returns the open ticket with the given id.
func (s *Store) Get(ticketID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	return *t, true
}

// FindByChannel returns the ticket owning a platform channel.
func (s *Store) FindByChannel(channelID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChannel[channelID]
	if !ok {
		return domain.Ticket{}, false
	}
	return *s.tickets[id], true
}

// FindByUser returns the user's open ticket.
func (s *Store) FindByUser(userID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return domain.Ticket{}, false
	}
	return *s.tickets[id], true
}

// Len returns the number of open tickets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}

// AttachSession points an open ticket at a new web connection.
// It returns false if the ticket is not open.
func (s *Store) AttachSession(ticketID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return false
	}
	t.SessionID = sessionID
	return true
}

// DetachSession clears the ticket's session only if it still points at sessionID,
// so a late disconnect never unbinds a newer connection.
func (s *Store) DetachSession(ticketID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.SessionID != sessionID {
		return false
	}
	t.SessionID = ""
	return true
}

// put inserts a new ticket and both index entries.
func (s *Store) put(t domain.Ticket) error {
	if t.ChannelID == "" {
		return errMissingChannel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return errDuplicateTicket
	}
	if _, ok := s.byUser[t.UserID]; ok {
		return errUserHasTicket
	}
	if _, ok := s.byChannel[t.ChannelID]; ok {
		return errChannelAssigned
	}
	stored := t
	s.tickets[t.ID] = &stored
	s.byUser[t.UserID] = t.ID
	s.byChannel[t.ChannelID] = t.ID
	return nil
}

// remove evicts a ticket and its index entries, returning what was removed.
// Only one concurrent caller can observe ok == true for a given id.
func (s *Store) remove(ticketID string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false
	}
	delete(s.tickets, ticketID)
	if s.byUser[t.UserID] == ticketID {
		delete(s.byUser, t.UserID)
	}
	if s.byChannel[t.ChannelID] == ticketID {
		delete(s.byChannel, t.ChannelID)
	}
	return *t, true
}
