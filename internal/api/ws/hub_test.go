package ws

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-relay/internal/domain"
	"github.com/spec-kit/ticket-relay/internal/observability"
)

func TestHubNotifyRegisteredSession(t *testing.T) {
	metrics := observability.NewRelayMetrics(prometheus.NewRegistry())
	hub := NewHub(metrics, nil, time.Second)
	conn := &recordingConn{}

	hub.Register("s-1", conn)
	assert.True(t, hub.Connected("s-1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveSessions))

	hub.Notify("s-1", domain.SystemMessageEvent("hi"))
	hub.Notify("s-2", domain.SystemMessageEvent("dropped"))
	assert.Equal(t, []domain.SessionEvent{domain.SystemMessageEvent("hi")}, conn.all())

	hub.Unregister("s-1")
	hub.Unregister("s-1")
	assert.False(t, hub.Connected("s-1"))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveSessions))

	hub.Notify("s-1", domain.SystemMessageEvent("late"))
	assert.Len(t, conn.all(), 1)
}

func TestHubWriteFailureEvictsSession(t *testing.T) {
	metrics := observability.NewRelayMetrics(prometheus.NewRegistry())
	hub := NewHub(metrics, nil, time.Second)
	conn := &recordingConn{err: errBoom}
	hub.Register("s-1", conn)

	assert.NotPanics(t, func() { hub.Notify("s-1", domain.ErrorEvent("x")) })
	assert.True(t, conn.isClosed())
	assert.False(t, hub.Connected("s-1"))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveSessions))

	hub.Unregister("s-1")
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveSessions))
}

func TestHubEvictKeepsReplacementSession(t *testing.T) {
	hub := NewHub(nil, nil, time.Second)
	failing := &recordingConn{err: errBoom}
	hub.Register("s-1", failing)

	hub.mu.RLock()
	stale := hub.sessions["s-1"]
	hub.mu.RUnlock()

	replacement := &recordingConn{}
	hub.Register("s-1", replacement)
	hub.evict("s-1", stale)

	assert.True(t, hub.Connected("s-1"))
	hub.Notify("s-1", domain.SystemMessageEvent("hi"))
	assert.Len(t, replacement.all(), 1)
}

// releasedConn counts writes that arrive after the transport reclaimed it.
type releasedConn struct {
	recordingConn
	released atomic.Bool
	late     atomic.Int32
}

func (c *releasedConn) WriteJSON(v interface{}) error {
	if c.released.Load() {
		c.late.Add(1)
	}
	return c.recordingConn.WriteJSON(v)
}

func TestHubNoWriteAfterUnregister(t *testing.T) {
	for i := 0; i < 50; i++ {
		hub := NewHub(nil, nil, time.Second)
		conn := &releasedConn{}
		hub.Register("s-1", conn)

		stop := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						hub.Notify("s-1", domain.SystemMessageEvent("tick"))
					}
				}
			}()
		}

		time.Sleep(time.Millisecond)
		hub.Unregister("s-1")
		conn.released.Store(true)
		time.Sleep(time.Millisecond)
		close(stop)
		wg.Wait()

		assert.Zero(t, conn.late.Load(), "write reached a connection after unregister")
	}
}
