package authz

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtside/internal/domain"
	"courtside/internal/session"

	"github.com/google/uuid"
)

func TestDecide(t *testing.T) {
	id := &domain.Identity{ID: uuid.New()}
	g := NewGate()

	tests := []struct {
		name string
		snap session.Snapshot
		path string
		want Decision
	}{
		{"loading protected", session.Snapshot{Loading: true}, "/posts", Pending},
		{"loading public", session.Snapshot{Loading: true}, "/login", Pending},
		{"anonymous protected", session.Snapshot{}, "/posts", Denied},
		{"anonymous login", session.Snapshot{}, "/login", Allowed},
		{"anonymous signup", session.Snapshot{}, "/signup", Allowed},
		{"signed in protected", session.Snapshot{Identity: id}, "/chats", Allowed},
		{"signed in on login page", session.Snapshot{Identity: id}, "/login", Allowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.Decide(tc.snap, tc.path); got != tc.want {
				t.Fatalf("Decide(%+v, %q) = %v, want %v", tc.snap, tc.path, got, tc.want)
			}
		})
	}
}

func TestMiddlewareRedirectsOnceAndNeverLoops(t *testing.T) {
	g := NewGate()
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	st := session.New(nil, nil, session.Options{})
	st.Init(t.Context(), "")
	<-st.Ready()

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req = req.WithContext(session.WithStore(req.Context(), st))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != LoginPath {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req = httptest.NewRequest(http.MethodGet, rec.Header().Get("Location"), nil)
	req = req.WithContext(session.WithStore(req.Context(), st))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login page must render, got %d", rec.Code)
	}
}

type owned struct{ owner uuid.UUID }

func (o owned) OwnerID() uuid.UUID { return o.owner }

func TestCheckOwner(t *testing.T) {
	me := domain.Identity{ID: uuid.New()}
	if err := CheckOwner(me, owned{me.ID}); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := CheckOwner(me, owned{uuid.New()}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := CheckOwner(domain.Identity{}, owned{me.ID}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestMiddlewareUnresolvedSessionAsksToRetry(t *testing.T) {
	g := NewGate(WithWait(10 * time.Millisecond))
	called := false
	h := g.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	st := session.New(nil, nil, session.Options{}) // never initialised: stays loading
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req = req.WithContext(session.WithStore(req.Context(), st))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("protected handler ran before the session resolved")
	}
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 503 with Retry-After, got %d", rec.Code)
	}
}
