package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChannelDeleter removes a platform channel. Deleting a channel that is
// already gone must succeed.
type ChannelDeleter interface {
	DeleteChannel(ctx context.Context, channelID string) error
}

// ChannelReaper deletes ticket channels after a grace delay, decoupled from the
// logical close. A failed deletion is logged and dropped.
type ChannelReaper struct {
	deleter ChannelDeleter
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	running sync.WaitGroup
}

// NewChannelReaper creates a reaper. timeout bounds each delete call.
func NewChannelReaper(deleter ChannelDeleter, logger *zap.Logger, timeout time.Duration) *ChannelReaper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelReaper{
		deleter: deleter,
		logger:  logger.Named("reaper"),
		timeout: timeout,
		pending: make(map[string]*time.Timer),
	}
}

// Schedule deletes channelID after the delay. Scheduling a channel that is
// already pending replaces the earlier deadline.
func (r *ChannelReaper) Schedule(channelID string, after time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.logger.Warn("reaper stopped, not scheduling", zap.String("channel_id", channelID))
		return
	}
	if existing, ok := r.pending[channelID]; ok && existing.Stop() {
		r.running.Done()
	}

	r.running.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		defer r.running.Done()
		r.mu.Lock()
		if r.pending[channelID] == timer {
			delete(r.pending, channelID)
		}
		r.mu.Unlock()
		r.reap(channelID)
	})
	r.pending[channelID] = timer
	r.logger.Debug("channel deletion scheduled", zap.String("channel_id", channelID), zap.Duration("after", after))
}

// Cancel drops a pending deletion. It returns false if none was pending.
func (r *ChannelReaper) Cancel(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer, ok := r.pending[channelID]
	if !ok {
		return false
	}
	delete(r.pending, channelID)
	if timer.Stop() {
		r.running.Done()
		return true
	}
	return false
}

// Pending returns the number of scheduled deletions.
func (r *ChannelReaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop runs pending deletions immediately instead of waiting out their delay,
// then waits for all deletions to finish or ctx to end. Later Schedule calls
// are ignored.
func (r *ChannelReaper) Stop(ctx context.Context) {
	r.mu.Lock()
	r.stopped = true
	flushed := 0
	for id, timer := range r.pending {
		delete(r.pending, id)
		if !timer.Stop() {
			continue
		}
		flushed++
		go func(channelID string) {
			defer r.running.Done()
			r.reapWithin(ctx, channelID)
		}(id)
	}
	r.mu.Unlock()

	if flushed > 0 {
		r.logger.Info("flushing pending deletions", zap.Int("channels", flushed))
	}

	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("reaper stop timed out", zap.Error(ctx.Err()))
	}
}

func (r *ChannelReaper) reap(channelID string) {
	r.reapWithin(context.Background(), channelID)
}

func (r *ChannelReaper) reapWithin(parent context.Context, channelID string) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	if err := r.deleter.DeleteChannel(ctx, channelID); err != nil {
		r.logger.Warn("delete channel failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	r.logger.Info("channel deleted", zap.String("channel_id", channelID))
}
