package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"courtside/internal/domain"
	"courtside/internal/geo"
	"courtside/internal/session"
)

// debounceKey scopes debouncing to one browser session and operation.
func debounceKey(r *http.Request, op string) string {
	return session.IDFromContext(r.Context()) + ":" + op
}

func (h *handler) geoSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	places, err := geo.Do(r.Context(), h.Debounce, debounceKey(r, "search"), func(ctx context.Context) ([]geo.Place, error) {
		return h.Geocoder.Search(ctx, q)
	})
	if errors.Is(err, geo.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Warn("geocoder search failed", "error", err)
		places = nil
	}
	if places == nil {
		places = []geo.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

// geoReverse falls back to the formatted coordinates when the geocoder
// cannot name the spot.
func (h *handler) geoReverse(w http.ResponseWriter, r *http.Request) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		h.writeError(w, r, domain.Invalid("Coordinates are out of range"))
		return
	}
	place, err := geo.Do(r.Context(), h.Debounce, debounceKey(r, "reverse"), func(ctx context.Context) (geo.Place, error) {
		return h.Geocoder.Reverse(ctx, lat, lng)
	})
	if errors.Is(err, geo.ErrSuperseded) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Warn("geocoder reverse failed", "error", err)
		place = geo.Place{Lat: lat, Lng: lng, Address: geo.CoordLabel(lat, lng)}
	}
	writeJSON(w, http.StatusOK, place)
}
