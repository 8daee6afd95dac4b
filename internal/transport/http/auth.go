package http

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"courtside/internal/auth"
	"courtside/internal/domain"
	"courtside/internal/observability/metrics"
	"courtside/internal/observability/middleware"
	"courtside/internal/session"

	"github.com/go-chi/chi/v5"
)

const pkceCookie = "court_pkce"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

type sessionResponse struct {
	session.Snapshot
	ConfirmationRequired bool `json:"confirmationRequired,omitempty"`
}

func (h *handler) sessionState(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	if st == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Snapshot: st.Snapshot()})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, r, domain.Invalid("Email and password are required"))
		return
	}
	tokens, err := h.Auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	metrics.LoginsTotal.WithLabelValues("password", metrics.Result(err)).Inc()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.establish(w, r, tokens, "")
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.writeError(w, r, domain.Invalid("Email and password are required"))
		return
	}
	if strings.TrimSpace(req.Nickname) == "" {
		h.writeError(w, r, domain.Invalid("Nickname is required"))
		return
	}
	res, err := h.Auth.SignUp(r.Context(), req.Email, req.Password, req.Nickname)
	metrics.LoginsTotal.WithLabelValues("signup", metrics.Result(err)).Inc()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Tokens == nil {
		writeJSON(w, http.StatusAccepted, sessionResponse{ConfirmationRequired: true})
		return
	}
	h.establish(w, r, res.Tokens, req.Nickname)
}

// establish installs tokens in the caller's session, persists the refresh
// token and makes sure a profile row exists.
func (h *handler) establish(w http.ResponseWriter, r *http.Request, tokens *auth.Tokens, nickname string) {
	st := session.FromContext(r.Context())
	if st == nil {
		h.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	id, err := st.SignIn(r.Context(), tokens)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cookies.SetRefreshCookie(w, tokens.RefreshToken)

	if nickname == "" {
		if v, ok := tokens.User.UserMetadata["nickname"].(string); ok {
			nickname = v
		}
	}
	if _, err := h.Services.Profiles.Ensure(r.Context(), id, nickname); err != nil {
		middleware.Logger(r.Context(), h.logger).Warn("profile backfill failed", "user_id", id.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, sessionResponse{Snapshot: st.Snapshot()})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if st := session.FromContext(r.Context()); st != nil {
		st.SignOut(r.Context())
	}
	h.Cookies.SetRefreshCookie(w, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(chi.URLParam(r, "provider"))
	if provider == "" {
		h.writeError(w, r, domain.ErrNotFound)
		return
	}
	verifier, challenge, err := newPKCE()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     pkceCookie,
		Value:    verifier,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	redirect := strings.TrimRight(h.PublicURL, "/") + "/auth/callback"
	http.Redirect(w, r, h.Auth.AuthorizeURL(provider, redirect, challenge), http.StatusFound)
}

func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	ck, err := r.Cookie(pkceCookie)
	if code == "" || err != nil || ck.Value == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: pkceCookie, Path: "/auth", MaxAge: -1})

	tokens, err := h.Auth.ExchangeCode(r.Context(), code, ck.Value)
	metrics.LoginsTotal.WithLabelValues("oauth", metrics.Result(err)).Inc()
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Warn("oauth exchange failed", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	st := session.FromContext(r.Context())
	if st == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	id, err := st.SignIn(r.Context(), tokens)
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Warn("oauth token rejected", "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.Cookies.SetRefreshCookie(w, tokens.RefreshToken)
	nickname, _ := tokens.User.UserMetadata["full_name"].(string)
	if _, err := h.Services.Profiles.Ensure(r.Context(), id, nickname); err != nil {
		middleware.Logger(r.Context(), h.logger).Warn("profile backfill failed", "user_id", id.ID, "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func newPKCE() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
