package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"courtside/internal/observability/logging"
	"courtside/internal/observability/metrics"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
)

func TestRequestIDsAreEchoedAndPropagated(t *testing.T) {
	var seen string
	h := WithRequestAndTrace(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set(HeaderRequestID, "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc123" || rec.Header().Get(HeaderRequestID) != "abc123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(HeaderRequestID))
	}
	if rec.Header().Get(HeaderTraceID) == "" {
		t.Fatal("trace id should be generated")
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(WithMetrics(logging.Discard()))
	r.Get("/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := requests(t, "/posts/{id}", "418")
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/"+id, nil))
	}
	after := requests(t, "/posts/{id}", "418")
	if after-before != 2 {
		t.Fatalf("expected two requests under the route pattern, got %v", after-before)
	}
}

func TestStatusRecorderHijackUnsupported(t *testing.T) {
	sr := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := sr.Hijack(); err == nil {
		t.Fatal("recorder without hijacker should refuse")
	}
}

func requests(t *testing.T, route, status string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, route, status).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
