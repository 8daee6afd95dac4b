package feed

import (
	"context"
	"sync"
)

// Hub is the in-process feed used with the memory feed mode and in tests.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

func (h *Hub) Subscribe(ctx context.Context, f Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := newSubscription(f, h.remove)
	h.subs[s] = struct{}{}
	s.bind(ctx)
	return s, nil
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Publish fans ev out to matching subscriptions without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.filter.Matches(ev) {
			s.deliver(ev)
		}
	}
}

// Drop ends every live subscription with err, as a lost connection would.
func (h *Hub) Drop(err error) {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscription]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.end(err)
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Drop(ErrClosed)
	return nil
}
