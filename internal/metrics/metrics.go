// Package metrics holds the Prometheus instruments shared by the HTTP API,
// the remote client and the sync orchestrator.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgcal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgcal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	remoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgcal_remote_request_duration_seconds",
		Help:    "Histogram of remote service call latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action", "outcome"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgcal_sync_runs_total",
		Help: "Total number of sync runs by outcome.",
	}, []string{"outcome"})

	syncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgcal_sync_run_duration_seconds",
		Help:    "Histogram of sync run durations.",
		Buckets: prometheus.DefBuckets,
	})

	syncEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orgcal_sync_entries_total",
		Help: "Entries touched by sync runs, by change kind.",
	}, []string{"change"})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orgcal_sync_last_success_timestamp_seconds",
		Help: "Unix time of the last successful sync run.",
	})
)

// Middleware records request count and latency labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemote records the latency of one remote action.
func ObserveRemote(action string, start time.Time, err error) {
	remoteRequestDuration.WithLabelValues(action, outcome(err)).Observe(time.Since(start).Seconds())
}

// SyncCounts are the per-run change totals.
type SyncCounts struct {
	Added, Modified, Removed, Archived int
}

// ObserveSync records one finished sync run.
func ObserveSync(start time.Time, counts SyncCounts, err error) {
	syncRunsTotal.WithLabelValues(outcome(err)).Inc()
	syncRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return
	}
	lastSuccess.SetToCurrentTime()
	syncEntriesTotal.WithLabelValues("added").Add(float64(counts.Added))
	syncEntriesTotal.WithLabelValues("modified").Add(float64(counts.Modified))
	syncEntriesTotal.WithLabelValues("removed").Add(float64(counts.Removed))
	syncEntriesTotal.WithLabelValues("archived").Add(float64(counts.Archived))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
