package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveSubmission("attachment_style", "finalized")
	m.ObserveSubmission("attachment_style", "finalized")
	m.ObserveStage("score", 5*time.Millisecond)
	m.ObserveNarrativeCall("transient")
	m.IncInsightsDegraded("attachment_style")
	m.IncInvariantViolation()

	require.InDelta(t, 2, testutil.ToFloat64(m.submissions.WithLabelValues("attachment_style", "finalized")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.narrativeCalls.WithLabelValues("transient")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.invariantViolations), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))

	// A second pipeline sharing the registry reuses the collectors.
	again := MustNewMetrics(reg)
	again.IncInsightsDegraded("attachment_style")
	require.InDelta(t, 2, testutil.ToFloat64(m.insightsDegraded.WithLabelValues("attachment_style")), 0)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveSubmission("attachment_style", "finalized")
		m.ObserveStage("score", time.Second)
		m.ObserveNarrativeCall("success")
		m.IncInsightsDegraded("attachment_style")
		m.IncInvariantViolation()
	})
}
