package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the stages of a run.
type PipelineMetrics struct {
	StageTotal    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	OptimalSNR    *prometheus.GaugeVec
	CurrentStage  *prometheus.GaugeVec
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		StageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_pipeline_stage_total",
			Help: "Completed pipeline stages partitioned by status.",
		}, []string{"stage", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwpe_pipeline_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: stageBuckets,
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_pipeline_stage_errors_total",
			Help: "Pipeline stage failures partitioned by error category.",
		}, []string{"stage", "error_type"}),
		OptimalSNR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gwpe_injection_optimal_snr",
			Help: "Optimal signal-to-noise ratio of the injected signal per detector.",
		}, []string{"detector"}),
		CurrentStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gwpe_pipeline_current_stage",
			Help: "1 for the stage currently running, 0 otherwise.",
		}, []string{"stage"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// SetStage marks stage as running and every other known stage as idle.
func (m *PipelineMetrics) SetStage(stage string, stages []string) {
	for _, s := range stages {
		value := 0.0
		if s == stage {
			value = 1
		}
		m.CurrentStage.WithLabelValues(s).Set(value)
	}
}

// SetOptimalSNR records the injection SNR of a detector.
func (m *PipelineMetrics) SetOptimalSNR(detector string, snr float64) {
	m.OptimalSNR.WithLabelValues(detector).Set(snr)
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.StageTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.StageDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.StageErrors.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.StageTotal.Describe(ch)
	m.StageDuration.Describe(ch)
	m.StageErrors.Describe(ch)
	m.OptimalSNR.Describe(ch)
	m.CurrentStage.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.StageTotal.Collect(ch)
	m.StageDuration.Collect(ch)
	m.StageErrors.Collect(ch)
	m.OptimalSNR.Collect(ch)
	m.CurrentStage.Collect(ch)
}
