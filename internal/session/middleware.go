package session

import (
	"context"
	"net/http"
	"time"
)

type ctxKey int

const (
	ctxKeyStore ctxKey = iota
	ctxKeyID
)

type CookieConfig struct {
	// Name carries the opaque session id.
	Name string
	// RefreshName carries the refresh token so a session survives restarts
	// and reaping.
	RefreshName string
	Secure      bool
	MaxAge      time.Duration
}

func (c CookieConfig) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		ck.MaxAge = -1
	} else if maxAge > 0 {
		ck.MaxAge = int(maxAge.Seconds())
	}
	return ck
}

// SetRefreshCookie persists the refresh token; an empty token deletes it.
func (c CookieConfig) SetRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.RefreshName, token, 30*24*time.Hour))
}

// Middleware attaches the caller's Store to the request context, creating
// and restoring one when the session id is unknown.
func (r *Registry) Middleware(cfg CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			var sid, refresh string
			if ck, err := req.Cookie(cfg.Name); err == nil {
				sid = ck.Value
			}
			if ck, err := req.Cookie(cfg.RefreshName); err == nil {
				refresh = ck.Value
			}

			st, ok := r.Get(sid)
			if !ok {
				sid, st = r.Create(req.Context(), refresh)
				http.SetCookie(w, cfg.cookie(cfg.Name, sid, cfg.MaxAge))
			} else if snap := st.Snapshot(); !snap.Loading {
				// Keep the persisted refresh token in step with rotation and
				// expiry.
				if current := st.RefreshToken(); current != refresh {
					cfg.SetRefreshCookie(w, current)
				}
			}

			ctx := context.WithValue(req.Context(), ctxKeyStore, st)
			ctx = context.WithValue(ctx, ctxKeyID, sid)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func WithStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, ctxKeyStore, st)
}

func FromContext(ctx context.Context) *Store {
	st, _ := ctx.Value(ctxKeyStore).(*Store)
	return st
}

// IDFromContext returns the opaque session id of the request.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyID).(string)
	return id
}
