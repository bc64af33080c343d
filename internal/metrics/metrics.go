// Package metrics provides Prometheus instrumentation for the scoring service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "antifraud"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts completed scoring runs by recommendation.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Completed scoring runs by recommendation.",
		},
		[]string{"recommendation"},
	)

	// RateLimitedTotal counts runs rejected at admission by limiter scope.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Scoring runs rejected at admission by limiter scope.",
		},
		[]string{"scope"},
	)

	// RuleTriggersTotal counts flags raised by rules and the anomaly scorer.
	RuleTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_triggers_total",
			Help:      "Flags raised by rule and flag.",
		},
		[]string{"rule", "flag"},
	)

	// ScoreDuration observes end-to-end scoring latency.
	ScoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "score_duration_seconds",
		Help:      "Scoring run duration in seconds, admission to completion.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// LookupResultsTotal counts external lookup outcomes by client, source and status.
	LookupResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_results_total",
			Help:      "Lookup results by client, source, and status.",
		},
		[]string{"client", "source", "status"},
	)

	// ProviderTransitionsTotal counts provider breaker state changes.
	ProviderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lookup",
			Name:      "provider_transitions_total",
			Help:      "Provider breaker transitions by provider, from-state, and to-state.",
		},
		[]string{"provider", "from_state", "to_state"},
	)

	// CacheRequestsTotal counts cache reads by cache name and result.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache reads by cache and result (hit, miss, expired).",
		},
		[]string{"cache", "result"},
	)

	// CacheEvictionsTotal counts entries removed by the janitor.
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Expired cache entries removed by cleanup.",
		},
		[]string{"cache"},
	)

	// AlertsTotal counts alert fan-out by result (queued, dropped, delivered, failed).
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert dispatch events by result.",
		},
		[]string{"result"},
	)

	// AlertObservers tracks currently subscribed alert observers.
	AlertObservers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "alert_observers",
		Help:      "Number of subscribed alert observers.",
	})

	// ActiveWebSocketClients tracks connected dashboard clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_clients",
		Help:      "Number of connected alert stream clients.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChecksTotal,
		RateLimitedTotal,
		RuleTriggersTotal,
		ScoreDuration,
		LookupResultsTotal,
		ProviderTransitionsTotal,
		CacheRequestsTotal,
		CacheEvictionsTotal,
		AlertsTotal,
		AlertObservers,
		ActiveWebSocketClients,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(ww.Status())).Inc()
	})
}

func statusBucket(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}
