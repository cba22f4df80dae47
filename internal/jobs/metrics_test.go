package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:integrity").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_total", map[string]string{"job": "ledger:integrity", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, reg, "ledger_jobs_failures_total", map[string]string{"job": "ledger:integrity"}))
}

func TestAddFindingsIgnoresEmpty(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddFindings("unbalanced_vouchers", 0)
	m.AddFindings("unbalanced_vouchers", 2)
	require.Equal(t, 2.0, counterValue(t, reg, "ledger_integrity_findings_total", map[string]string{"check": "unbalanced_vouchers"}))

	var nilMetrics *Metrics
	nilMetrics.AddFindings("stock_drift", 3)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
