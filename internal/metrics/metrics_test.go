package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/entries/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	before := value(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/entries/{id}"))
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	after := value(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/entries/{id}"))
	assert.Equal(t, 2.0, after-before)
}

func TestObserveSync(t *testing.T) {
	okBefore := value(t, syncRunsTotal.WithLabelValues("ok"))
	errBefore := value(t, syncRunsTotal.WithLabelValues("error"))
	addedBefore := value(t, syncEntriesTotal.WithLabelValues("added"))

	ObserveSync(time.Now(), SyncCounts{Added: 3}, nil)
	ObserveSync(time.Now(), SyncCounts{Added: 5}, errors.New("boom"))

	assert.Equal(t, 1.0, value(t, syncRunsTotal.WithLabelValues("ok"))-okBefore)
	assert.Equal(t, 1.0, value(t, syncRunsTotal.WithLabelValues("error"))-errBefore)
	assert.Equal(t, 3.0, value(t, syncEntriesTotal.WithLabelValues("added"))-addedBefore)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	ObserveRemote("ScheduleGetEventVersions", time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "orgcal_remote_request_duration_seconds"))
}
