package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"courtside/internal/observability/metrics"

	"github.com/google/uuid"
)

// Factory builds a fresh, uninitialised store.
type Factory func() *Store

// Registry maps opaque client session ids to their stores. Each browser gets
// its own Store; nothing is shared between clients.
type Registry struct {
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
	closed bool
}

func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{factory: factory, ttl: ttl, logger: logger, stores: make(map[string]*Store)}
}

func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.Lock()
	st, ok := r.stores[id]
	r.mu.Unlock()
	if ok {
		st.touch(time.Now())
	}
	return st, ok
}

// Create registers a new store and starts restoring it from refreshToken.
func (r *Registry) Create(ctx context.Context, refreshToken string) (string, *Store) {
	id := uuid.NewString()
	st := r.factory()
	st.Init(ctx, refreshToken)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		st.Close()
		return id, st
	}
	r.stores[id] = st
	metrics.SessionsActive.Inc()
	return id, st
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	st, ok := r.stores[id]
	delete(r.stores, id)
	r.mu.Unlock()
	if ok {
		st.Close()
		metrics.SessionsActive.Dec()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Reap closes stores idle for longer than the registry TTL.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	var expired []*Store
	for id, st := range r.stores {
		if now.Sub(st.idleSince()) > r.ttl {
			expired = append(expired, st)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	for _, st := range expired {
		st.Close()
		metrics.SessionsActive.Dec()
	}
	return len(expired)
}

// Run reaps idle stores every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Reap(now); n > 0 {
				r.logger.Debug("reaped idle sessions", "count", n)
			}
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.closed = true
	r.mu.Unlock()
	for _, st := range stores {
		st.Close()
		metrics.SessionsActive.Dec()
	}
}
