// Package conversation binds an open conversation (direct chat or room) to
// its history and keeps the history current while it is mounted.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"courtside/internal/domain"
	"courtside/internal/feed"
	"courtside/internal/realtime"

	"github.com/google/uuid"
)

var (
	ErrNotReady  = errors.New("conversation needs an identity and an id")
	ErrUnmounted = errors.New("conversation is not mounted")
)

type Config[T any] struct {
	// Key identifies the conversation, e.g. "chat:<id>".
	Key    string
	Filter feed.Filter
	// Load fetches the full history.
	Load func(ctx context.Context) ([]T, error)
	// OnUpdate receives every successfully loaded history.
	OnUpdate func(items []T)
	Logger   *slog.Logger
}

// View holds the history of one conversation. After Unmount returns,
// OnUpdate is never called again.
type View[T any] struct {
	cfg  Config[T]
	sync *realtime.Synchronizer

	mu     sync.Mutex
	state  state
	ctx    context.Context
	cancel context.CancelFunc
	sub    *realtime.Subscription
	items  []T
}

type state int

const (
	idle state = iota
	mounted
	unmounted
)

func New[T any](s *realtime.Synchronizer, cfg Config[T]) *View[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &View[T]{cfg: cfg, sync: s}
}

// Mount loads the history and subscribes to changes. Nothing happens until
// both the identity and the conversation id are known.
func (v *View[T]) Mount(ctx context.Context, id domain.Identity) error {
	if id.IsZero() || v.cfg.Key == "" || v.cfg.Filter.ConversationID == uuid.Nil {
		return ErrNotReady
	}

	v.mu.Lock()
	if v.state != idle {
		v.mu.Unlock()
		return nil
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.state = mounted
	mctx := v.ctx
	v.mu.Unlock()

	if err := v.refresh(mctx); err != nil {
		v.Unmount()
		return err
	}

	sub, err := v.sync.Open(mctx, v.cfg.Key, v.cfg.Filter, func(ctx context.Context) {
		if err := v.refresh(ctx); err != nil && ctx.Err() == nil {
			v.cfg.Logger.Warn("conversation refetch failed", "key", v.cfg.Key, "error", err)
		}
	})
	if err != nil {
		v.Unmount()
		return err
	}

	v.mu.Lock()
	if v.state != mounted {
		v.mu.Unlock()
		sub.Close()
		return ErrUnmounted
	}
	v.sub = sub
	v.mu.Unlock()

	// Inserts between the first load and the subscription produced no event.
	sub.Refetch()
	return nil
}

// Send runs insert and then refetches, so the sender sees its own message
// even when the change feed is slow or down.
func (v *View[T]) Send(ctx context.Context, insert func(ctx context.Context) error) error {
	v.mu.Lock()
	if v.state != mounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	v.mu.Unlock()

	if err := insert(ctx); err != nil {
		return err
	}
	return v.refresh(ctx)
}

// Items returns the last delivered history.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View[T]) refresh(ctx context.Context) error {
	items, err := v.cfg.Load(ctx)
	if err != nil {
		return err
	}
	v.deliver(items)
	return nil
}

func (v *View[T]) deliver(items []T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != mounted {
		return
	}
	v.items = items
	if v.cfg.OnUpdate != nil {
		v.cfg.OnUpdate(items)
	}
}

// Unmount cancels in-flight loads and closes the subscription. Safe to call
// more than once.
func (v *View[T]) Unmount() {
	v.mu.Lock()
	if v.state == unmounted {
		v.mu.Unlock()
		return
	}
	v.state = unmounted
	if v.cancel != nil {
		v.cancel()
	}
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
