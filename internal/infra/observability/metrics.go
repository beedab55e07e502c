package observability

import (
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	roleReconciles     *prometheus.CounterVec
	mirrorFailures     *prometheus.CounterVec
	syncFatal          *prometheus.CounterVec
	seedRuns           *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		sessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_transitions_total",
				Help: "Session state machine transitions by target state.",
			},
			[]string{"state"},
		),
		roleReconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_role_reconciliations_total",
				Help: "Agency profile corrections by outcome.",
			},
			[]string{"outcome"},
		),
		mirrorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_mirror_partial_failures_total",
				Help: "Mirror writes that failed after the primary write succeeded.",
			},
			[]string{"op"},
		),
		syncFatal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_sync_fatal_failures_total",
				Help: "Calendar deletes that failed on one side.",
			},
			[]string{"side"},
		),
		seedRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_seed_runs_total",
				Help: "Template seeding runs by collection.",
			},
			[]string{"collection"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_active_sessions",
				Help: "Browser sessions currently held in memory.",
			},
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

func (m *Metrics) IncrSessionTransition(state domain.SessionState) {
	m.sessionTransitions.WithLabelValues(state.String()).Inc()
}

// IncrRoleReconcile counts agency profile corrections ("corrected" or "failed").
func (m *Metrics) IncrRoleReconcile(outcome string) {
	m.roleReconciles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrMirrorFailure(op string) {
	m.mirrorFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrSyncFatal(side string) {
	m.syncFatal.WithLabelValues(side).Inc()
}

func (m *Metrics) IncrSeedRun(collection string) {
	m.seedRuns.WithLabelValues(collection).Inc()
}

// SetActiveSessions reports the number of live session controllers.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// GetSyncSnapshot returns the counters behind GET /v1/metrics/sync.
func (m *Metrics) GetSyncSnapshot() *domain.SyncMetrics {
	hits := getCounterValue(m.cacheHits, "tenant")
	misses := getCounterValue(m.cacheMisses, "tenant")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.SyncMetrics{
		MirrorPartialFailures: getCounterValue(m.mirrorFailures, "create") + getCounterValue(m.mirrorFailures, "update"),
		SyncFatalFailures:     getCounterValue(m.syncFatal, domain.SidePrimary) + getCounterValue(m.syncFatal, domain.SideMirror),
		SeedRuns:              sumCounter(m.seedRuns),
		RoleCorrections:       getCounterValue(m.roleReconciles, "corrected"),
		RoleCorrectionErrors:  getCounterValue(m.roleReconciles, "failed"),
		TenantCacheHitRate:    hitRate,
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

// sumCounter adds every label combination of a CounterVec.
func sumCounter(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
