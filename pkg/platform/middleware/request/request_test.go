package request

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remit/pkg/requestcontext"
)

type recordedLatency struct {
	method, route string
	status        int
}

type latencyRecorder struct{ calls []recordedLatency }

func (l *latencyRecorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	l.calls = append(l.calls, recordedLatency{method, route, status})
}

func TestRequestIDMintsAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRecoveryWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLoggerIncludesStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"request_id":"rid-1"`)
}

func TestLatencyUsesRoutePattern(t *testing.T) {
	rec := &latencyRecorder{}
	r := chi.NewRouter()
	r.Use(Latency(rec))
	r.Get("/transactions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/transactions/0xabc", nil))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, recordedLatency{http.MethodGet, "/transactions/{id}", http.StatusNoContent}, rec.calls[0])
}
