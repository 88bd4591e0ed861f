package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveenergy/playertester/pkg/types"
)

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)
	sink := e.Sink("run-1")

	sink.RegisterEvent(types.LabelBufferSize, 1.5)
	sink.RegisterEvent(types.LabelBufferSize, 2.5)

	assert.Equal(t, 2.5, testutil.ToFloat64(e.sampleValue.WithLabelValues("run-1", "bufferSize")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.samplesTotal.WithLabelValues("run-1", "bufferSize")))

	e.Forget("run-1")
	assert.Zero(t, testutil.CollectAndCount(e.sampleValue))
}

func TestExporterObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)

	e.ObserveRun(types.Result{Reason: types.FinishTimeout, Duration: 5 * time.Second})
	e.ObserveRun(types.Result{Reason: types.FinishTimeout, Duration: 5 * time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(e.runsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(e.runDuration))

	var m dto.Metric
	require.NoError(t, e.runDuration.Write(&m))
	require.NotNil(t, m.Histogram)
	assert.Equal(t, uint64(2), m.Histogram.GetSampleCount())
	assert.Equal(t, 10.0, m.Histogram.GetSampleSum())
}

func TestExporterGather(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)
	e.Sink("run-2").RegisterEvent(types.LabelVideoBitrate, 2e6)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	mf := byName["playertester_sample_value"]
	require.NotNil(t, mf)
	assert.Equal(t, dto.MetricType_GAUGE, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)
	labels := map[string]string{}
	for _, lp := range mf.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, map[string]string{"run": "run-2", "label": "videoBitrate"}, labels)
	assert.Equal(t, 2e6, mf.GetMetric()[0].GetGauge().GetValue())
}
