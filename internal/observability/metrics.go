package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	authEvents      *prometheus.CounterVec
	tokenRejections *prometheus.CounterVec
	mediaCleanups   *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics registers every collector plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dumaterial_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_http_errors_total",
				Help: "Error responses by route, method and error code",
			},
			[]string{"route", "method", "code"},
		),
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_auth_events_total",
				Help: "Signup, login and logout outcomes per realm",
			},
			[]string{"realm", "operation", "outcome"},
		),
		tokenRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_auth_token_rejections_total",
				Help: "Bearer tokens rejected by the realm middleware, by reason",
			},
			[]string{"realm", "reason"},
		),
		mediaCleanups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_media_cleanup_total",
				Help: "Orphaned media delete attempts by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dumaterial_material_cache_lookups_total",
				Help: "Material listing cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordAuthEvent counts an auth operation outcome such as ("admin", "login", "invalid_credentials").
func (m *Metrics) RecordAuthEvent(realm, operation, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(realm, operation, outcome).Inc()
}

// RecordTokenRejected satisfies auth.RejectionRecorder.
func (m *Metrics) RecordTokenRejected(realm, reason string) {
	if m == nil {
		return
	}
	m.tokenRejections.WithLabelValues(realm, reason).Inc()
}

// RecordMediaCleanup counts one orphaned-media delete attempt.
func (m *Metrics) RecordMediaCleanup(_ string, err error) {
	if m == nil {
		return
	}
	outcome := "deleted"
	if err != nil {
		outcome = "failed"
	}
	m.mediaCleanups.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a listing cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
