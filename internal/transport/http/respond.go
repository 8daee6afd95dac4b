package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"courtside/internal/auth"
	"courtside/internal/domain"
	"courtside/internal/observability/middleware"
	"courtside/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// classify maps domain errors to statuses. Validation messages reach the
// client verbatim; everything else gets a generic text.
func classify(err error) (int, string) {
	var verr *domain.ValidationError
	var apiErr *auth.APIError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrIncorrectPassword):
		return http.StatusForbidden, "Incorrect password"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "You don't have permission to do that"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "You must be logged in"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusBadGateway, "upload failed"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "auth service unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	log := middleware.Logger(r.Context(), h.logger)
	if status >= 500 {
		log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.Invalid("malformed request body")
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

// identity is the signed-in user of the request, or the zero identity.
func identity(r *http.Request) domain.Identity {
	st := session.FromContext(r.Context())
	if st == nil {
		return domain.Identity{}
	}
	id, _ := st.Identity()
	return id
}
