// Package metrics exposes Prometheus collectors for the assessment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

const namespace = "profilescan"

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	submissions         *prometheus.CounterVec
	stageDuration       *prometheus.HistogramVec
	narrativeCalls      *prometheus.CounterVec
	insightsDegraded    *prometheus.CounterVec
	invariantViolations prometheus.Counter
}

// MustNewMetrics registers the collectors with reg and panics on conflicting registrations. Collectors that are
// already registered are reused so that several pipelines can share one registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assessment",
				Name:      "submissions_total",
				Help:      "Submissions by assessment type and outcome.",
			},
			[]string{"assessment_type", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "assessment",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		narrativeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "insights",
				Name:      "narrative_calls_total",
				Help:      "Narrative generator attempts by outcome.",
			},
			[]string{"outcome"},
		),
		insightsDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "insights",
				Name:      "degraded_total",
				Help:      "Insights served from the static fallback.",
			},
			[]string{"assessment_type"},
		),
		invariantViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assessment",
				Name:      "invariant_violations_total",
				Help:      "Internal consistency failures. Any increase is a bug.",
			},
		),
	}

	m.submissions = register(reg, m.submissions)
	m.stageDuration = register(reg, m.stageDuration)
	m.narrativeCalls = register(reg, m.narrativeCalls)
	m.insightsDegraded = register(reg, m.insightsDegraded)
	m.invariantViolations = register(reg, m.invariantViolations)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint // returned unwrapped
			if existing, sameType := already.ExistingCollector.(C); sameType {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (m *Metrics) ObserveSubmission(assessmentType string, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(assessmentType, outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *Metrics) ObserveNarrativeCall(outcome string) {
	if m == nil {
		return
	}
	m.narrativeCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncInsightsDegraded(assessmentType string) {
	if m == nil {
		return
	}
	m.insightsDegraded.WithLabelValues(assessmentType).Inc()
}

func (m *Metrics) IncInvariantViolation() {
	if m == nil {
		return
	}
	m.invariantViolations.Inc()
}
