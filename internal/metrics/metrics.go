// Package metrics holds the Prometheus collectors for dispatches, gateway
// calls and the HTTP API. They register with the default registry on import.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptnotify_messages_total",
			Help: "Messages processed by bulk dispatch, by outcome",
		},
		[]string{"outcome"},
	)
	GatewayRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptnotify_gateway_retries_total",
			Help: "Gateway sendMessage retries, by reason",
		},
		[]string{"reason"},
	)
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aptnotify_dispatch_duration_seconds",
			Help:    "Wall time of a bulk dispatch",
			Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"template"},
	)
	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aptnotify_history_persist_failures_total",
			Help: "Dispatch records that could not be written to storage",
		},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aptnotify_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aptnotify_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		GatewayRetries,
		DispatchDuration,
		PersistFailures,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(ww.status)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
