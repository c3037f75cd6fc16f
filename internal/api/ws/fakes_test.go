package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/platform"
	"github.com/spec-kit/ticket-relay/internal/relay"
)

type recordingConn struct {
	mu     sync.Mutex
	events []domain.SessionEvent
	err    error
	closed bool
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, v.(domain.SessionEvent))
	return nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) all() []domain.SessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SessionEvent(nil), c.events...)
}

func (c *recordingConn) last() domain.SessionEvent {
	all := c.all()
	if len(all) == 0 {
		return domain.SessionEvent{}
	}
	return all[len(all)-1]
}

type stubPlatform struct {
	mu        sync.Mutex
	channels  int
	posted    map[string][]platform.Message
	createErr error
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{posted: make(map[string][]platform.Message)}
}

func (p *stubPlatform) CreateChannel(_ context.Context, spec platform.ChannelSpec) (platform.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return platform.Channel{}, p.createErr
	}
	p.channels++
	return platform.Channel{ID: fmt.Sprintf("chan-%d", p.channels), Name: spec.Name}, nil
}

func (p *stubPlatform) ResolveChannel(context.Context, string) error { return nil }

func (p *stubPlatform) PostMessage(_ context.Context, channelID string, msg platform.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted[channelID] = append(p.posted[channelID], msg)
	return nil
}

func (p *stubPlatform) DeleteChannel(context.Context, string) error { return nil }

func (p *stubPlatform) postsTo(channelID string) []platform.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Message(nil), p.posted[channelID]...)
}

type noopReaper struct{}

func (noopReaper) Schedule(string, time.Duration) {}

type fixture struct {
	platform *stubPlatform
	hub      *Hub
	manager  *relay.Manager
	inbound  *relay.InboundRouter
	handler  *Handler
}

func newFixture() *fixture {
	f := &fixture{platform: newStubPlatform(), hub: NewHub(nil, nil, 200*time.Millisecond)}
	f.manager = relay.NewManager(relay.ManagerConfig{CloseDelay: time.Second}, relay.ManagerDependencies{
		Platform: f.platform,
		Notifier: f.hub,
		Reaper:   noopReaper{},
	})
	f.inbound = relay.NewInboundRouter(f.manager, []string{"!close"})
	f.handler = NewHandler(context.Background(), HandlerDependencies{
		Manager:  f.manager,
		Outbound: relay.NewOutboundRouter(f.manager),
		Hub:      f.hub,
	})
	return f
}

var errBoom = errors.New("boom")
