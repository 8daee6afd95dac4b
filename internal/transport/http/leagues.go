package http

import "net/http"

func (h *handler) listLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.Services.Leagues.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leagues)
}
