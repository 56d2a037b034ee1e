package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, activeSessions)
	require.NotNil(t, taskDurationSeconds)
	require.NotNil(t, httpRequestsTotal)
}

func TestSessionGaugeTracksAcquireAndRelease(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeSessions)

	IncActiveSessions()
	IncActiveSessions()
	require.InDelta(t, before+2, testutil.ToFloat64(activeSessions), 1e-9)
	DecActiveSessions()
	DecActiveSessions()
	require.InDelta(t, before, testutil.ToFloat64(activeSessions), 1e-9)

	SetQueueDepth(7)
	require.InDelta(t, 7.0, testutil.ToFloat64(queueDepth), 1e-9)
}

func TestObserveTaskRecordsPerOutcome(t *testing.T) {
	Init()
	ObserveTask("found", 1500*time.Millisecond)
	ObserveSessionAcquire(200 * time.Millisecond)

	require.Positive(t, testutil.CollectAndCount(taskDurationSeconds, "exporter_task_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sessionAcquireSeconds, "exporter_session_acquire_seconds"))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/probe-ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/probe-missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	before404 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/probe-ok", "/probe-missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, before200+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 1e-9)
	require.InDelta(t, before404+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 1e-9)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
