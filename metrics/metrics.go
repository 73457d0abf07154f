// Package metrics exports Prometheus metrics for session operations and the
// HTTP server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/site"
)

type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	AutoSaves       prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switcher_session_operations_total",
				Help: "Session operations by kind and result",
			},
			[]string{"op", "result"},
		),
		AutoSaves: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switcher_session_autosaves_total",
				Help: "Sessions saved automatically before a switch or reset",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switcher_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switcher_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveOperation implements session.Observer. Domains are not used as a
// label to keep cardinality bounded.
func (m *Metrics) ObserveOperation(_ string, op string, err error) {
	m.Operations.WithLabelValues(op, resultOf(err)).Inc()
}

func (m *Metrics) ObserveAutoSave(string) {
	m.AutoSaves.Inc()
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, session.ErrInvalidName):
		return "invalid"
	case errors.Is(err, session.ErrConflict):
		return "conflict"
	case errors.Is(err, site.ErrNoSite):
		return "no_site"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware records request counts and durations. The route pattern is
// used as the path label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

var _ session.Observer = (*Metrics)(nil)
