package observability

import (
	"strconv"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the client runtime.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	restRequests       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	skippedLoads       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// metrics in it. A private registry lets tests call NewMetrics repeatedly.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fintrack_operation_duration_seconds",
				Help:    "Duration of aggregator operations and REST calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_external_errors_total",
				Help: "Total failed calls to the REST backend by resource.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		restRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_rest_requests_total",
				Help: "Total REST backend requests by response status class.",
			},
			[]string{"status"},
		),
		sessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_session_transitions_total",
				Help: "Session state transitions by target state.",
			},
			[]string{"to"},
		),
		skippedLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fintrack_skipped_loads_total",
				Help: "Loads dropped because another one was in flight.",
			},
			[]string{"resource"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRESTRequest counts a backend response by status class ("2xx", "4xx", "5xx")
// or "network" when no response arrived.
func (m *Metrics) IncrRESTRequest(status int) {
	label := "network"
	if status > 0 {
		label = strconv.Itoa(status/100) + "xx"
	}
	m.restRequests.WithLabelValues(label).Inc()
}

// IncrSessionTransition counts a session state change.
func (m *Metrics) IncrSessionTransition(to domain.SessionStatus) {
	m.sessionTransitions.WithLabelValues(string(to)).Inc()
}

// IncrSkippedLoad counts a load dropped by an in-flight guard.
func (m *Metrics) IncrSkippedLoad(resource string) {
	m.skippedLoads.WithLabelValues(resource).Inc()
}

// Snapshot returns the counters exposed by GET /v1/metrics/client.
func (m *Metrics) Snapshot() *domain.ClientMetrics {
	ok := getCounterValue(m.restRequests, "2xx")
	failed := getCounterValue(m.restRequests, "4xx") +
		getCounterValue(m.restRequests, "5xx") +
		getCounterValue(m.restRequests, "network")
	total := ok + failed

	hits := getCounterValue(m.cacheHits, "debt_summary")
	misses := getCounterValue(m.cacheMisses, "debt_summary")

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	transitions := float64(0)
	for _, s := range []domain.SessionStatus{
		domain.SessionCheckingAuth,
		domain.SessionUnauthenticated,
		domain.SessionAuthenticating,
		domain.SessionAuthenticated,
		domain.SessionError,
	} {
		transitions += getCounterValue(m.sessionTransitions, string(s))
	}

	return &domain.ClientMetrics{
		TotalRequests:      int64(total),
		ErrorRate:          errorRate,
		CacheHitRate:       cacheHitRate,
		SkippedLoads:       int64(getCounterValue(m.skippedLoads, "transactions")),
		SessionTransitions: int64(transitions),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
