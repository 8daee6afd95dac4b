// Package realtime turns change-feed events into refetches of the open
// conversation.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"courtside/internal/feed"
	"courtside/internal/observability/metrics"
)

type Options struct {
	// BackoffInitial and BackoffMax bound reconnect delays after a feed error.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Logger         *slog.Logger
}

// Synchronizer owns at most one live subscription. Every Open closes the
// previous one first, even for the same key, so the latest caller's onChange
// is the one that runs.
type Synchronizer struct {
	feed feed.Feed
	opts Options

	mu      sync.Mutex
	current *Subscription
}

func New(f feed.Feed, opts Options) *Synchronizer {
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 250 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer{feed: f, opts: opts}
}

// Subscription refetches through onChange whenever the filter matches an
// insert. Refetches run one at a time; events arriving meanwhile collapse
// into a single follow-up refetch.
type Subscription struct {
	key      string
	filter   feed.Filter
	onChange func(context.Context)
	sync     *Synchronizer

	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *Synchronizer) Open(ctx context.Context, key string, filter feed.Filter, onChange func(context.Context)) (*Subscription, error) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	subCtx, cancel := context.WithCancel(ctx)
	src, err := s.feed.Subscribe(subCtx, filter)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		key:      key,
		filter:   filter,
		onChange: onChange,
		sync:     s,
		ctx:      subCtx,
		cancel:   cancel,
		dirty:    make(chan struct{}, 1),
	}
	metrics.RealtimeSubscriptions.Inc()
	sub.wg.Add(2)
	go sub.pump(src)
	go sub.work()

	s.mu.Lock()
	s.current = sub
	s.mu.Unlock()
	return sub, nil
}

func (sub *Subscription) Key() string { return sub.key }

// Refetch queues a refetch on the subscription's worker, coalescing with any
// already pending.
func (sub *Subscription) Refetch() { sub.markDirty() }

func (sub *Subscription) markDirty() {
	select {
	case sub.dirty <- struct{}{}:
	default:
	}
}

func (sub *Subscription) work() {
	defer sub.wg.Done()
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.dirty:
			if sub.ctx.Err() != nil {
				return
			}
			metrics.RealtimeRefetchesTotal.WithLabelValues(sub.filter.Table).Inc()
			sub.onChange(sub.ctx)
		}
	}
}

// pump forwards feed events and re-subscribes after the feed drops.
func (sub *Subscription) pump(src feed.Subscription) {
	defer sub.wg.Done()
	logger := sub.sync.opts.Logger.With("key", sub.key, "table", sub.filter.Table)
	for {
		for range src.Events() {
			sub.markDirty()
		}
		err := src.Err()
		_ = src.Close()
		if sub.ctx.Err() != nil {
			return
		}
		logger.Warn("change feed subscription ended, reconnecting", "error", err)

		next, ok := sub.reconnect(logger)
		if !ok {
			return
		}
		src = next
		// Events may have been missed while disconnected.
		sub.markDirty()
	}
}

func (sub *Subscription) reconnect(logger *slog.Logger) (feed.Subscription, bool) {
	delay := sub.sync.opts.BackoffInitial
	for attempt := 1; ; attempt++ {
		t := time.NewTimer(delay)
		select {
		case <-sub.ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}

		src, err := sub.sync.feed.Subscribe(sub.ctx, sub.filter)
		if err == nil {
			metrics.RealtimeReconnectsTotal.WithLabelValues("success").Inc()
			logger.Info("change feed reconnected", "attempt", attempt)
			return src, true
		}
		if errors.Is(err, feed.ErrClosed) || sub.ctx.Err() != nil {
			return nil, false
		}
		metrics.RealtimeReconnectsTotal.WithLabelValues("failure").Inc()
		logger.Warn("change feed reconnect failed", "attempt", attempt, "error", err, "retry_in", delay)
		delay = min(delay*2, sub.sync.opts.BackoffMax)
	}
}

// Close stops the subscription and waits until no onChange call is running.
// It must not be called from inside onChange. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.cancel()
		sub.wg.Wait()
		metrics.RealtimeSubscriptions.Dec()

		sub.sync.mu.Lock()
		if sub.sync.current == sub {
			sub.sync.current = nil
		}
		sub.sync.mu.Unlock()
	})
}

// Close tears down the active subscription, if any.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}
