// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests received.",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)

	// AntiSpamDenials counts anti-spam denials by reason
	// (temporary_block, rate_limit, duplicate, long_message).
	AntiSpamDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antispam_denials_total",
			Help: "Messages denied by the anti-spam checks.",
		},
		[]string{"reason"},
	)

	// ValidationDecisions counts message and feature validation outcomes.
	ValidationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limits_validation_decisions_total",
			Help: "Validation outcomes by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// SubscriptionTransitions counts status corrections applied while resolving subscriptions.
	SubscriptionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription status transitions applied during validation.",
		},
		[]string{"to"},
	)

	// Activations counts subscription activations by tier and provider.
	Activations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Subscription activations by tier and payment provider.",
		},
		[]string{"tier", "provider"},
	)

	// CacheLookups counts entitlement cache hits and misses.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_cache_lookups_total",
			Help: "Entitlement cache lookups by result.",
		},
		[]string{"result"},
	)

	// MaintenanceRemoved counts rows removed or transitioned by the maintenance sweep.
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_rows_total",
			Help: "Rows pruned or transitioned by the maintenance sweep.",
		},
		[]string{"kind"},
	)
)

// Middleware records request counts and latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route pattern keeps label cardinality bounded.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		code := strconv.Itoa(ww.Status())

		httpRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
