// Package session holds one client's authenticated identity and keeps its
// tokens fresh.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"courtside/internal/auth"
	"courtside/internal/domain"
)

// Provider is the part of the auth service a Store needs.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
}

type Snapshot struct {
	Loading  bool             `json:"loading"`
	Identity *domain.Identity `json:"identity"`
}

func (s Snapshot) Authenticated() bool { return !s.Loading && s.Identity != nil }

type Options struct {
	// RefreshLeeway is how long before expiry the refresh runs.
	RefreshLeeway time.Duration
	// RequestTimeout bounds every call to the auth service.
	RequestTimeout time.Duration
	// RetryInterval spaces refresh retries while the access token is still valid.
	RetryInterval time.Duration
	Logger        *slog.Logger
}

func (o *Options) defaults() {
	if o.RefreshLeeway <= 0 {
		o.RefreshLeeway = time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Store struct {
	provider Provider
	verifier auth.Verifier
	opts     Options
	initOnce sync.Once

	mu        sync.Mutex
	loading   bool
	identity  *domain.Identity
	tokens    *auth.Tokens
	expiresAt time.Time
	ready     chan struct{}
	readyDone bool
	gen       uint64
	timer     *time.Timer
	closed    bool
	lastUsed  time.Time
	listeners map[uint64]chan Snapshot
	nextID    uint64
}

func New(p Provider, v auth.Verifier, opts Options) *Store {
	opts.defaults()
	return &Store{
		provider:  p,
		verifier:  v,
		opts:      opts,
		loading:   true,
		ready:     make(chan struct{}),
		lastUsed:  time.Now(),
		listeners: make(map[uint64]chan Snapshot),
	}
}

// Init starts restoring a persisted session from refreshToken. It returns
// immediately; Ready is closed once the outcome is known. Any failure leaves
// the store logged out. Only the first call has an effect.
func (s *Store) Init(ctx context.Context, refreshToken string) {
	s.initOnce.Do(func() {
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()

		go func() {
			if refreshToken == "" {
				s.resolve(gen, nil, auth.Claims{})
				return
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RequestTimeout)
			defer cancel()
			tokens, claims, err := s.exchange(ctx, refreshToken)
			if err != nil {
				s.opts.Logger.Info("session restore failed, continuing signed out", "error", err)
				s.resolve(gen, nil, auth.Claims{})
				return
			}
			s.resolve(gen, tokens, claims)
		}()
	})
}

func (s *Store) resolve(gen uint64, tokens *auth.Tokens, claims auth.Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.gen != gen {
		// An explicit sign-in or sign-out already decided the state.
		s.markReadyLocked()
		return
	}
	if tokens == nil {
		s.clearLocked()
	} else {
		s.applyLocked(tokens, claims)
	}
}

// SignIn installs freshly issued tokens after verifying the access token.
func (s *Store) SignIn(ctx context.Context, tokens *auth.Tokens) (domain.Identity, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return domain.Identity{}, auth.ErrInvalidToken
	}
	claims, err := s.verifier.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return domain.Identity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Identity{}, errors.New("session closed")
	}
	s.applyLocked(tokens, claims)
	return claims.Identity, nil
}

// SignOut clears the local identity and then tells the auth service. A
// failing remote call does not keep the user signed in.
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	var access string
	if s.tokens != nil {
		access = s.tokens.AccessToken
	}
	s.clearLocked()
	s.mu.Unlock()

	if access == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RequestTimeout)
	defer cancel()
	if err := s.provider.SignOut(ctx, access); err != nil {
		s.opts.Logger.Warn("remote sign-out failed", "error", err)
	}
}

func (s *Store) exchange(ctx context.Context, refreshToken string) (*auth.Tokens, auth.Claims, error) {
	tokens, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, auth.Claims{}, err
	}
	claims, err := s.verifier.Verify(ctx, tokens.AccessToken)
	if err != nil {
		return nil, auth.Claims{}, err
	}
	if claims.ExpiresAt.IsZero() && tokens.ExpiresIn > 0 {
		claims.ExpiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	return tokens, claims, nil
}

func (s *Store) refresh(gen uint64) {
	s.mu.Lock()
	if s.closed || s.gen != gen || s.tokens == nil {
		s.mu.Unlock()
		return
	}
	rt, exp := s.tokens.RefreshToken, s.expiresAt
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	tokens, claims, err := s.exchange(ctx, rt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		return
	}
	if err == nil {
		s.applyLocked(tokens, claims)
		return
	}
	if remaining := time.Until(exp); remaining > 0 {
		s.opts.Logger.Warn("token refresh failed, retrying", "error", err, "expires_in", remaining)
		s.timer = time.AfterFunc(min(s.opts.RetryInterval, remaining), func() { s.refresh(gen) })
		return
	}
	s.opts.Logger.Info("session expired", "error", err)
	s.clearLocked()
}

func (s *Store) applyLocked(tokens *auth.Tokens, claims auth.Claims) {
	id := claims.Identity
	s.identity = &id
	s.tokens = tokens
	s.expiresAt = claims.ExpiresAt
	s.gen++
	s.loading = false
	s.scheduleLocked()
	s.markReadyLocked()
	s.notifyLocked()
}

func (s *Store) clearLocked() {
	s.identity = nil
	s.tokens = nil
	s.expiresAt = time.Time{}
	s.gen++
	s.loading = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.markReadyLocked()
	s.notifyLocked()
}

func (s *Store) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.tokens == nil || s.tokens.RefreshToken == "" || s.expiresAt.IsZero() {
		return
	}
	d := time.Until(s.expiresAt) - s.opts.RefreshLeeway
	if d < 0 {
		d = 0
	}
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.refresh(gen) })
}

func (s *Store) markReadyLocked() {
	if !s.readyDone {
		s.readyDone = true
		close(s.ready)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Loading: s.loading}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	return snap
}

// notifyLocked hands the latest snapshot to every listener, replacing an
// unread older one.
func (s *Store) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.listeners {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving the snapshot after every identity
// change. Call cancel to stop listening.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.listeners[id]; ok {
			delete(s.listeners, id)
			close(c)
		}
	}
}

func (s *Store) Ready() <-chan struct{} { return s.ready }

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading || s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.RefreshToken
}

func (s *Store) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Store) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Close stops the refresh loop and releases listeners. The store reads as
// signed out afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.clearLocked()
	s.closed = true
	for id, ch := range s.listeners {
		delete(s.listeners, id)
		close(ch)
	}
}
