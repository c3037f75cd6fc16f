package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/platform"
)

type postedMessage struct {
	ChannelID string
	Message   platform.Message
}

type fakePlatform struct {
	mu sync.Mutex

	createCalls int
	created     []platform.ChannelSpec
	posted      []postedMessage
	deleted     []string
	missing     map[string]bool

	createDelay time.Duration
	createErr   error
	postErr     func(channelID string, msg platform.Message) error
	resolveErr  error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{missing: make(map[string]bool)}
}

func (p *fakePlatform) CreateChannel(_ context.Context, spec platform.ChannelSpec) (platform.Channel, error) {
	if p.createDelay > 0 {
		time.Sleep(p.createDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return platform.Channel{}, p.createErr
	}
	p.created = append(p.created, spec)
	return platform.Channel{ID: fmt.Sprintf("chan-%d", p.createCalls), Name: spec.Name}, nil
}

func (p *fakePlatform) ResolveChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolveErr != nil {
		return p.resolveErr
	}
	if p.missing[channelID] {
		return &platform.Error{Code: platform.CodeUnknownChannel, Status: 404, Message: "Unknown Channel"}
	}
	return nil
}

func (p *fakePlatform) PostMessage(_ context.Context, channelID string, msg platform.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		if err := p.postErr(channelID, msg); err != nil {
			return err
		}
	}
	p.posted = append(p.posted, postedMessage{ChannelID: channelID, Message: msg})
	return nil
}

func (p *fakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, channelID)
	return nil
}

func (p *fakePlatform) creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls
}

func (p *fakePlatform) postsTo(channelID string) []platform.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []platform.Message
	for _, m := range p.posted {
		if m.ChannelID == channelID {
			out = append(out, m.Message)
		}
	}
	return out
}

type sessionEvent struct {
	SessionID string
	Event     domain.SessionEvent
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sessionEvent
}

func (n *recordingNotifier) Notify(sessionID string, event domain.SessionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sessionEvent{SessionID: sessionID, Event: event})
}

func (n *recordingNotifier) For(sessionID string) []domain.SessionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.SessionEvent
	for _, e := range n.events {
		if e.SessionID == sessionID {
			out = append(out, e.Event)
		}
	}
	return out
}

func (n *recordingNotifier) Count(sessionID string, name domain.SessionEventName) int {
	count := 0
	for _, e := range n.For(sessionID) {
		if e.Name == name {
			count++
		}
	}
	return count
}

type scheduledDelete struct {
	ChannelID string
	After     time.Duration
}

type fakeReaper struct {
	mu        sync.Mutex
	scheduled []scheduledDelete
}

func (r *fakeReaper) Schedule(channelID string, after time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, scheduledDelete{ChannelID: channelID, After: after})
}

func (r *fakeReaper) all() []scheduledDelete {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduledDelete(nil), r.scheduled...)
}

type harness struct {
	platform *fakePlatform
	notifier *recordingNotifier
	reaper   *fakeReaper
	manager  *Manager
	inbound  *InboundRouter
	outbound *OutboundRouter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		platform: newFakePlatform(),
		notifier: &recordingNotifier{},
		reaper:   &fakeReaper{},
	}
	h.manager = NewManager(ManagerConfig{CategoryID: "cat-1", CloseDelay: 5 * time.Second}, ManagerDependencies{
		Store:    NewStore(),
		Platform: h.platform,
		Notifier: h.notifier,
		Reaper:   h.reaper,
	})
	h.inbound = NewInboundRouter(h.manager, []string{"!close", "!resolve"})
	h.outbound = NewOutboundRouter(h.manager)
	return h
}

func (h *harness) create(t *testing.T, userID, sessionID string) domain.Ticket {
	t.Helper()
	ticket, err := h.manager.CreateTicket(context.Background(), CreateRequest{
		UserID:    userID,
		SessionID: sessionID,
		Metadata:  domain.Metadata{Name: "Ada Lovelace", Subject: "Login broken"},
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}
