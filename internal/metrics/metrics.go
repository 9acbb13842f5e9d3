// Package metrics exposes Prometheus collectors for the HTTP layer and the
// rental jobs.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "doussel",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doussel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "doussel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doussel",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Scheduled job runs by outcome.",
	}, []string{"job", "success"})

	jobItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doussel",
		Subsystem: "jobs",
		Name:      "items_total",
		Help:      "Rows created or notified by scheduled jobs.",
	}, []string{"job"})

	favoritesSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doussel",
		Subsystem: "favorites",
		Name:      "syncs_total",
		Help:      "Favorites sync requests by outcome.",
	}, []string{"outcome"})

	importRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doussel",
		Subsystem: "imports",
		Name:      "rows_total",
		Help:      "Import staging rows by stage.",
	}, []string{"resource_type", "stage"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobRuns,
		jobItems,
		favoritesSyncs,
		importRows,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler is a mux middleware recording request counts and latency
// labelled by route template.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordJob counts one run of a scheduled job and the items it produced.
func RecordJob(job string, items int, err error) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
	if items > 0 {
		jobItems.WithLabelValues(job).Add(float64(items))
	}
}

// RecordFavoritesSync counts a sync by outcome: ok, rate_limited, error.
func RecordFavoritesSync(outcome string) {
	favoritesSyncs.WithLabelValues(outcome).Inc()
}

// RecordImportRows counts rows moving through an import stage.
func RecordImportRows(resourceType, stage string, n int) {
	if n > 0 {
		importRows.WithLabelValues(resourceType, stage).Add(float64(n))
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
