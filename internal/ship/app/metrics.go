package app

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestration activity.
type Metrics struct {
	phaseDuration  *prometheus.HistogramVec
	phaseFailures  *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	agentOutcomes  *prometheus.CounterVec
	fixPasses      prometheus.Counter
	sessionsActive prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Collectors are created once so repeated
// orchestrator construction (tests, embedded use) does not panic on
// duplicate registration.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Pass a fresh registry in tests that need isolated collectors. Registration
// errors other than AlreadyRegistered panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each pipeline phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase", "status"},
	)
	phaseFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "phase_failures_total",
			Help:      "Pipeline phase executions that failed.",
		},
		[]string{"phase", "kind"},
	)
	agentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "agent_duration_seconds",
			Help:      "Duration of each Code-phase agent task.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)
	agentOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "agent_outcomes_total",
			Help:      "Terminal statuses reached by agent tasks.",
		},
		[]string{"agent", "status"},
	)
	fixPasses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "fix_passes_total",
			Help:      "Auto-fix repair passes executed.",
		},
	)
	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ship",
			Subsystem: "orchestrator",
			Name:      "sessions_active",
			Help:      "Sessions currently executing.",
		},
	)

	collectors := []prometheus.Collector{phaseDuration, phaseFailures, agentDuration, agentOutcomes, fixPasses, sessionsActive}
	for i, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch i {
			case 0:
				phaseDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case 1:
				phaseFailures = already.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				agentDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case 3:
				agentOutcomes = already.ExistingCollector.(*prometheus.CounterVec)
			case 4:
				fixPasses = already.ExistingCollector.(prometheus.Counter)
			case 5:
				sessionsActive = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}

	return &Metrics{
		phaseDuration:  phaseDuration,
		phaseFailures:  phaseFailures,
		agentDuration:  agentDuration,
		agentOutcomes:  agentOutcomes,
		fixPasses:      fixPasses,
		sessionsActive: sessionsActive,
	}
}

// ObservePhase records one phase execution.
func (m *Metrics) ObservePhase(phase, status string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// IncPhaseFailure counts a failed phase with its error kind.
func (m *Metrics) IncPhaseFailure(phase, kind string) {
	if m == nil || m.phaseFailures == nil {
		return
	}
	m.phaseFailures.WithLabelValues(phase, kind).Inc()
}

// ObserveAgent records one agent task execution.
func (m *Metrics) ObserveAgent(agent string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.agentDuration != nil {
		m.agentDuration.WithLabelValues(agent).Observe(duration.Seconds())
	}
	if m.agentOutcomes != nil {
		m.agentOutcomes.WithLabelValues(agent, status).Inc()
	}
}

// IncFixPass counts one auto-fix repair pass.
func (m *Metrics) IncFixPass() {
	if m == nil || m.fixPasses == nil {
		return
	}
	m.fixPasses.Inc()
}

// IncActiveSessions marks a session execution as started.
func (m *Metrics) IncActiveSessions() {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Inc()
}

// DecActiveSessions marks a session execution as finished.
func (m *Metrics) DecActiveSessions() {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Dec()
}
