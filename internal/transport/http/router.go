// Package http serves the courtside pages' data over HTTP and websockets.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"courtside/internal/auth"
	"courtside/internal/authz"
	"courtside/internal/domain"
	"courtside/internal/draft"
	"courtside/internal/feed"
	"courtside/internal/geo"
	"courtside/internal/observability/metrics"
	"courtside/internal/observability/middleware"
	"courtside/internal/realtime"
	"courtside/internal/service"
	"courtside/internal/session"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// AuthService is the part of the auth client the handlers call directly.
type AuthService interface {
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Tokens, error)
	SignUp(ctx context.Context, email, password, nickname string) (*auth.SignUpResult, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Tokens, error)
	AuthorizeURL(provider, redirectTo, challenge string) string
}

type Geocoder interface {
	Search(ctx context.Context, q string) ([]geo.Place, error)
	Reverse(ctx context.Context, lat, lng float64) (geo.Place, error)
}

type Deps struct {
	Services *service.Services
	Auth     AuthService
	Sessions *session.Registry
	Cookies  session.CookieConfig
	Gate     *authz.Gate
	Drafts   draft.Store
	Feed     feed.Feed
	Realtime realtime.Options
	Geocoder Geocoder
	Debounce *geo.Debouncer
	// StorageDir is served read-only under /storage/.
	StorageDir string
	// PublicURL is the externally visible base, used for OAuth redirects.
	PublicURL          string
	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Logger             *slog.Logger
}

type handler struct {
	Deps
	logger    *slog.Logger
	postForms *draft.Reconciler[domain.PostInput]
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.RateLimitPerMinute <= 0 {
		d.RateLimitPerMinute = 300
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.Debounce == nil {
		d.Debounce = geo.NewDebouncer(0)
	}
	h := &handler{
		Deps:      d,
		logger:    d.Logger,
		postForms: draft.NewReconciler(d.Drafts, domain.PostInput.IsEmpty, d.Logger),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.WithRequestAndTrace(d.Logger))
	r.Use(middleware.WithMetrics(d.Logger))
	r.Use(httprate.LimitByIP(d.RateLimitPerMinute, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsIfSet(d.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	if d.StorageDir != "" {
		r.Handle("/storage/*", http.StripPrefix("/storage/", noListing(http.FileServer(http.Dir(d.StorageDir)))))
	}

	r.Group(func(r chi.Router) {
		r.Use(d.Sessions.Middleware(d.Cookies))

		// Websockets outlive the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(d.Gate.Middleware)
			r.Get("/chats/{id}/live", h.chatLive)
			r.Get("/rooms/{id}/live", h.roomLive)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(d.RequestTimeout))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", h.login)
				r.Post("/signup", h.signup)
				r.Get("/session", h.sessionState)
				r.Get("/oauth/{provider}", h.oauthStart)
				r.Get("/callback", h.oauthCallback)
				r.With(d.Gate.Middleware).Post("/logout", h.logout)
			})

			r.Group(func(r chi.Router) {
				r.Use(d.Gate.Middleware)

				r.Get("/login", h.sessionState)
				r.Get("/signup", h.sessionState)

				r.Get("/posts", h.listPosts)
				r.Post("/posts", h.createPost)
				r.Get("/posts/new", h.newPostForm)
				r.Put("/posts/new/draft", h.saveNewPostDraft)
				r.Get("/posts/{id}", h.getPost)
				r.Delete("/posts/{id}", h.deletePost)
				r.Get("/posts/{id}/edit", h.editPostForm)
				r.Put("/posts/{id}/edit/draft", h.saveEditPostDraft)
				r.Post("/posts/{id}/edit", h.updatePost)
				r.Post("/posts/{id}/edit/cancel", h.cancelEditPost)
				r.Post("/posts/{id}/apply", h.apply)
				r.Delete("/posts/{id}/apply", h.withdraw)
				r.Get("/posts/{id}/applicants", h.applicants)
				r.Get("/games", h.games)
				r.Get("/map", h.mapMarkers)
				r.Get("/leagues", h.listLeagues)

				r.Get("/profile", h.myProfile)
				r.Put("/profile", h.updateProfile)
				r.Post("/profile/avatar", h.uploadAvatar)
				r.Get("/profile/{id}", h.getProfile)

				r.Get("/chats", h.listChats)
				r.Post("/chats", h.openChat)
				r.Get("/chats/{id}", h.getChat)
				r.Post("/chats/{id}/messages", h.sendChatMessage)

				r.Get("/rooms", h.listRooms)
				r.Post("/rooms", h.createRoom)
				r.Get("/rooms/{id}", h.getRoom)
				r.With(httprate.LimitByIP(10, time.Minute)).Post("/rooms/{id}/join", h.joinRoom)
				r.Post("/rooms/{id}/messages", h.sendRoomMessage)

				r.Get("/geo/search", h.geoSearch)
				r.Get("/geo/reverse", h.geoReverse)
			})
		})
	})
	return r
}

func originsIfSet(in []string) []string {
	out := []string{}
	for _, o := range in {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
