package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/saveenergy/playertester/pkg/types"
)

// Exporter owns the harness's Prometheus collectors.
type Exporter struct {
	sampleValue  *prometheus.GaugeVec
	samplesTotal *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

var runDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600}

func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)
	return &Exporter{
		sampleValue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "playertester",
				Name:      "sample_value",
				Help:      "Most recent telemetry value per run and label",
			},
			[]string{"run", "label"},
		),
		samplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playertester",
				Name:      "samples_total",
				Help:      "Telemetry samples received per run and label",
			},
			[]string{"run", "label"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playertester",
				Name:      "runs_total",
				Help:      "Finished scenario runs by finish reason",
			},
			[]string{"reason"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "playertester",
				Name:      "run_duration_seconds",
				Help:      "Wall time of finished scenario runs",
				Buckets:   runDurationBuckets,
			},
		),
	}
}

// Sink returns a sink that exports samples labeled with runID.
func (e *Exporter) Sink(runID string) *PrometheusSink {
	return &PrometheusSink{exporter: e, runID: runID}
}

// ObserveRun records a finished run.
func (e *Exporter) ObserveRun(res types.Result) {
	e.runsTotal.WithLabelValues(string(res.Reason)).Inc()
	e.runDuration.Observe(res.Duration.Seconds())
}

// Forget drops the per-run series once a run is no longer interesting.
func (e *Exporter) Forget(runID string) {
	for _, l := range types.Labels {
		e.sampleValue.DeleteLabelValues(runID, string(l))
		e.samplesTotal.DeleteLabelValues(runID, string(l))
	}
}

type PrometheusSink struct {
	exporter *Exporter
	runID    string
}

func (s *PrometheusSink) RegisterEvent(label types.Label, value float64) {
	s.exporter.sampleValue.WithLabelValues(s.runID, string(label)).Set(value)
	s.exporter.samplesTotal.WithLabelValues(s.runID, string(label)).Inc()
}
