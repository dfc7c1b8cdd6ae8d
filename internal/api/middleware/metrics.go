package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used when a request has no matching route or names no
// backend service.
const (
	unmatchedRoute = "unmatched"
	noService      = "none"
)

var (
	// route is the chi pattern, never the raw path, so tenant IDs stay out of
	// label values. service is the {serviceName} segment of the per-service
	// database routes and is only recorded for successful responses; the
	// handlers reject unknown names with 4xx.
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tenancy",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Tenancy API requests by route, backend service and status class.",
		},
		[]string{"method", "route", "service", "code"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tenancy",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Tenancy API request latency by route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tenancy",
		Subsystem: "api",
		Name:      "requests_in_flight",
		Help:      "Tenancy API requests currently being served.",
	})
)

// Metrics records request counts and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route, service := routeLabels(r, sw.status)
		apiRequestsTotal.WithLabelValues(r.Method, route, service, codeClass(sw.status)).Inc()
		apiRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeLabels(r *http.Request, status int) (route, service string) {
	route, service = unmatchedRoute, noService
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return route, service
	}
	if p := rctx.RoutePattern(); p != "" {
		route = p
	}
	if s := rctx.URLParam("serviceName"); s != "" && status < http.StatusBadRequest {
		service = s
	}
	return route, service
}

// codeClass collapses a status code to "2xx", "4xx" and so on.
func codeClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
