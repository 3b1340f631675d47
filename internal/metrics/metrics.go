// Package metrics provides Prometheus HTTP metrics middleware and the
// board mutation counters.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/util"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	imageAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspo_image_appends_total",
			Help: "Targeted image appends by outcome",
		},
		[]string{"outcome"},
	)

	sectionReplaces = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inspo_section_replaces_total",
			Help: "Structural section replaces applied",
		},
	)

	trackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspo_track_events_total",
			Help: "View and download tracking events recorded",
		},
		[]string{"kind"},
	)
)

// Append outcomes.
const (
	AppendApplied   = "applied"
	AppendDuplicate = "duplicate"
	AppendNotFound  = "not_found"
	AppendFailed    = "error"
)

func ObserveAppend(outcome string) {
	imageAppends.WithLabelValues(outcome).Inc()
}

func ObserveReplace() {
	sectionReplaces.Inc()
}

// ObserveTrack counts one tracking event; kind is board_view, section_view
// or image_download.
func ObserveTrack(kind string) {
	trackEvents.WithLabelValues(kind).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records Prometheus metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		path := RoutePattern(r.URL.Path)
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

var idPrefixes = []string{"brd", "sec", "img"}

// RoutePattern collapses generated ids in a request path to "{id}" so the
// path label stays low-cardinality.
func RoutePattern(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		for _, prefix := range idPrefixes {
			if util.HasPrefix(part, prefix) {
				parts[i] = "{id}"
				break
			}
		}
	}
	return strings.Join(parts, "/")
}
