package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/persistence"
)

// ErrAuditQueueFull is returned when the audit buffer cannot take another event.
var ErrAuditQueueFull = errors.New("audit queue full")

// AuditSink receives relay lifecycle events.
type AuditSink interface {
	Record(ctx context.Context, event events.Event) error
}

// AuditService copies relay lifecycle events to the configured sinks off the
// relay's hot path. Events are buffered and dropped when the buffer is full.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sinks      []AuditSink
	queue      chan events.Event
	timeout    time.Duration
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, bufferSize int, sinks ...AuditSink) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		sinks:      sinks,
		queue:      make(chan events.Event, bufferSize),
		timeout:    5 * time.Second,
	}
}

// Enabled reports whether any sink is configured.
func (a *AuditService) Enabled() bool {
	return len(a.sinks) > 0
}

// RegisterHandlers subscribes to relay events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil || !a.Enabled() {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.enqueue)
	a.dispatcher.Subscribe(events.EventTicketClosed, a.enqueue)
	a.dispatcher.Subscribe(events.EventMessageRelayed, a.enqueue)
}

func (a *AuditService) enqueue(_ context.Context, event events.Event) error {
	select {
	case a.queue <- event:
		return nil
	default:
		a.logger.Warn("audit queue full, dropping event",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)))
		return ErrAuditQueueFull
	}
}

// Run drains the queue into the sinks until ctx is cancelled.
func (a *AuditService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.queue:
			a.deliver(ctx, event)
		}
	}
}

func (a *AuditService) deliver(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	for _, sink := range a.sinks {
		if err := sink.Record(ctx, event); err != nil {
			a.logger.Warn("audit sink failed",
				zap.String("ticket_id", event.TicketID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// RedisEventSink publishes events as JSON on a Redis pub/sub channel.
type RedisEventSink struct {
	redis   *persistence.Redis
	channel string
}

// NewRedisEventSink creates a sink publishing to channel.
func NewRedisEventSink(redis *persistence.Redis, channel string) *RedisEventSink {
	return &RedisEventSink{redis: redis, channel: channel}
}

// Record publishes the event.
func (s *RedisEventSink) Record(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, s.channel, payload)
}
