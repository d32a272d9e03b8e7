package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun(StatusOK, "", 3*time.Millisecond, 4)
	m.ObserveRun(StatusOK, "", time.Millisecond, 2)
	m.ObserveRun(StatusFailed, "input_validation", time.Millisecond, 0)

	families := gather(t, reg)

	runs := families["allocator_runs_total"]
	require.NotNil(t, runs)
	counts := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		counts[labelValue(metric, "status")+"/"+labelValue(metric, "kind")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ok/": 2, "failed/input_validation": 1}, counts)

	duration := families["allocator_run_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(3), duration.GetSampleCount())

	days := families["allocator_allocation_days"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), days.GetSampleCount())
	assert.Equal(t, 6.0, days.GetSampleSum())
}

func TestObserveRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRejected("input_validation")

	families := gather(t, reg)
	runs := families["allocator_runs_total"].GetMetric()
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, labelValue(runs[0], "status"))
	assert.Equal(t, 1.0, runs[0].GetCounter().GetValue())
	assert.Equal(t, uint64(0), families["allocator_run_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestObserveBatchAndTrack(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBatch(3, 2*time.Second)
	done := m.Track()

	families := gather(t, reg)
	assert.Equal(t, 1.0, families["allocator_runs_in_flight"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 3.0, families["allocator_batch_size"].GetMetric()[0].GetHistogram().GetSampleSum())
	assert.Equal(t, 2.0, families["allocator_batch_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleSum())

	done()
	families = gather(t, reg)
	assert.Equal(t, 0.0, families["allocator_runs_in_flight"].GetMetric()[0].GetGauge().GetValue())
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
