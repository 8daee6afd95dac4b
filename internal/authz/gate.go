// Package authz decides whether a request may reach a route and whether an
// identity may mutate a record.
package authz

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"courtside/internal/domain"
	"courtside/internal/session"
)

type Decision int

const (
	Pending Decision = iota
	Denied
	Allowed
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Denied:
		return "denied"
	default:
		return "allowed"
	}
}

const LoginPath = "/login"

type Gate struct {
	public    map[string]struct{}
	loginPath string
	wait      time.Duration
	logger    *slog.Logger
}

type Option func(*Gate)

// WithWait bounds how long a request waits for a loading session.
func WithWait(d time.Duration) Option { return func(g *Gate) { g.wait = d } }

func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

func NewGate(opts ...Option) *Gate {
	g := &Gate{
		public:    map[string]struct{}{LoginPath: {}, "/signup": {}},
		loginPath: LoginPath,
		wait:      3 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) IsPublic(path string) bool {
	_, ok := g.public[path]
	return ok
}

// Decide maps a session snapshot and a path to a decision. Nothing is
// decided while the session is loading; public paths are never denied.
func (g *Gate) Decide(snap session.Snapshot, path string) Decision {
	if snap.Loading {
		return Pending
	}
	if snap.Identity == nil && !g.IsPublic(path) {
		return Denied
	}
	return Allowed
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := session.FromContext(r.Context())
		snapshot := func() session.Snapshot {
			if st == nil {
				return session.Snapshot{}
			}
			return st.Snapshot()
		}

		d := g.Decide(snapshot(), r.URL.Path)
		if d == Pending {
			timer := time.NewTimer(g.wait)
			select {
			case <-st.Ready():
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
			timer.Stop()
			d = g.Decide(snapshot(), r.URL.Path)
		}

		switch d {
		case Pending:
			w.Header().Set("Retry-After", strconv.Itoa(1))
			http.Error(w, "session is still loading", http.StatusServiceUnavailable)
		case Denied:
			g.logger.Debug("redirecting unauthenticated request", "path", r.URL.Path)
			http.Redirect(w, r, g.loginPath, http.StatusFound)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// CheckOwner fails unless id owns rec. It runs before any write reaches the
// store.
func CheckOwner(id domain.Identity, rec domain.Owned) error {
	if id.IsZero() {
		return domain.ErrUnauthenticated
	}
	if rec == nil || rec.OwnerID() != id.ID {
		return fmt.Errorf("%w: not the owner", domain.ErrForbidden)
	}
	return nil
}
