// Package telemetry exposes Prometheus collectors for the card service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cardJobsTotal              *prometheus.CounterVec
	cardRenderDurationSeconds  *prometheus.HistogramVec
	cardSourceBytesTotal       *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cardJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogcard_jobs_total",
				Help: "Total number of card jobs processed, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		cardRenderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ogcard_render_duration_seconds",
				Help:    "Histogram of card render latencies, labeled by template.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"template"},
		)

		cardSourceBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogcard_source_bytes_total",
				Help: "Total number of source image bytes acquired, labeled by source type.",
			},
			[]string{"source_type"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ogcard_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter, labeled by tier.",
			},
			[]string{"tier"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveJob increments the job counter for the given platform and status.
func ObserveJob(platform, status string) {
	cardJobsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveRender records the duration of a card render.
func ObserveRender(template string, duration time.Duration) {
	cardRenderDurationSeconds.WithLabelValues(template).Observe(duration.Seconds())
}

// ObserveSourceBytes adds acquired source bytes for a source type.
func ObserveSourceBytes(sourceType string, n int) {
	if n > 0 {
		cardSourceBytesTotal.WithLabelValues(sourceType).Add(float64(n))
	}
}

// ObserveRateLimited increments the rejection counter for a tier.
func ObserveRateLimited(tier string) {
	rateLimitedTotal.WithLabelValues(tier).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
