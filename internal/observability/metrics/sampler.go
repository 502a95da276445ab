package metrics

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// SamplerMetrics tracks nested sampling progress.
type SamplerMetrics struct {
	Iterations         prometheus.Counter
	LikelihoodCalls    prometheus.Counter
	LikelihoodDuration prometheus.Histogram
	LogEvidence        prometheus.Gauge
	DeltaLogEvidence   prometheus.Gauge
	LogLikelihoodMin   prometheus.Gauge
	Efficiency         prometheus.Gauge
	EffectiveSamples   prometheus.Gauge
	ProposalScale      prometheus.Gauge
	ActiveWorkers      prometheus.Gauge
	StuckWalks         prometheus.Counter
	Checkpoints        *prometheus.CounterVec
	Errors             *prometheus.CounterVec
	Operations         *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

// NewSamplerMetrics creates and registers the sampler collectors.
func NewSamplerMetrics(registry *prometheus.Registry) (*SamplerMetrics, error) {
	m := &SamplerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sampler metrics: %w", err)
	}
	return m, nil
}

func (m *SamplerMetrics) initMetrics() {
	m.Iterations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gwpe_sampler_iterations_total",
		Help: "Dead points accumulated by the nested sampler.",
	})
	m.LikelihoodCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gwpe_sampler_likelihood_calls_total",
		Help: "Likelihood evaluations performed by the nested sampler.",
	})
	m.LikelihoodDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gwpe_sampler_likelihood_duration_seconds",
		Help:    "Time taken by a single likelihood evaluation.",
		Buckets: likelihoodBuckets,
	})
	m.LogEvidence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_log_evidence",
		Help: "Current estimate of the log evidence.",
	})
	m.DeltaLogEvidence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_delta_log_evidence",
		Help: "Estimated log evidence remaining in the live points.",
	})
	m.LogLikelihoodMin = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_log_likelihood_threshold",
		Help: "Log likelihood of the most recent dead point.",
	})
	m.Efficiency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_efficiency",
		Help: "Dead points per likelihood call.",
	})
	m.EffectiveSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_effective_samples",
		Help: "Kish effective sample size of the weighted dead points.",
	})
	m.ProposalScale = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_proposal_scale",
		Help: "Current random-walk proposal scale.",
	})
	m.ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gwpe_sampler_active_workers",
		Help: "Proposal goroutines currently running.",
	})
	m.StuckWalks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gwpe_sampler_stuck_walks_total",
		Help: "Random walks that accepted no move and returned their start point.",
	})
	m.Checkpoints = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwpe_sampler_checkpoints_total",
		Help: "Checkpoint writes partitioned by status.",
	}, []string{"status"})
	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwpe_sampler_errors_total",
		Help: "Sampler errors partitioned by operation and type.",
	}, []string{"operation", "error_type"})
	m.Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gwpe_sampler_operations_total",
		Help: "Sampler operations partitioned by status.",
	}, []string{"operation", "status"})
	m.OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gwpe_sampler_operation_duration_seconds",
		Help:    "Duration of sampler operations.",
		Buckets: stageBuckets,
	}, []string{"operation"})
}

// ObserveLikelihood counts one evaluation and its latency.
func (m *SamplerMetrics) ObserveLikelihood(seconds float64) {
	m.LikelihoodCalls.Inc()
	m.LikelihoodDuration.Observe(seconds)
}

// UpdateProgress publishes the state after an iteration batch.
func (m *SamplerMetrics) UpdateProgress(iterations int, logZ, deltaLogZ, logLMin, efficiency, ess, scale float64) {
	m.Iterations.Add(float64(iterations))
	m.LogEvidence.Set(finiteOrZero(logZ))
	m.DeltaLogEvidence.Set(finiteOrZero(deltaLogZ))
	m.LogLikelihoodMin.Set(finiteOrZero(logLMin))
	m.Efficiency.Set(efficiency)
	m.EffectiveSamples.Set(ess)
	m.ProposalScale.Set(scale)
}

// RecordCheckpoint counts a checkpoint write.
func (m *SamplerMetrics) RecordCheckpoint(err error) {
	if err != nil {
		m.Checkpoints.WithLabelValues(StatusError).Inc()
		return
	}
	m.Checkpoints.WithLabelValues(StatusSuccess).Inc()
}

// RecordOperation implements Recorder.
func (m *SamplerMetrics) RecordOperation(operation, status string) {
	m.Operations.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *SamplerMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *SamplerMetrics) RecordError(operation, errorType string) {
	m.Errors.WithLabelValues(operation, errorType).Inc()
}

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// Describe implements the prometheus.Collector interface.
func (m *SamplerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Iterations.Desc()
	ch <- m.LikelihoodCalls.Desc()
	m.LikelihoodDuration.Describe(ch)
	ch <- m.LogEvidence.Desc()
	ch <- m.DeltaLogEvidence.Desc()
	ch <- m.LogLikelihoodMin.Desc()
	ch <- m.Efficiency.Desc()
	ch <- m.EffectiveSamples.Desc()
	ch <- m.ProposalScale.Desc()
	ch <- m.ActiveWorkers.Desc()
	ch <- m.StuckWalks.Desc()
	m.Checkpoints.Describe(ch)
	m.Errors.Describe(ch)
	m.Operations.Describe(ch)
	m.OperationDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SamplerMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Iterations
	ch <- m.LikelihoodCalls
	m.LikelihoodDuration.Collect(ch)
	ch <- m.LogEvidence
	ch <- m.DeltaLogEvidence
	ch <- m.LogLikelihoodMin
	ch <- m.Efficiency
	ch <- m.EffectiveSamples
	ch <- m.ProposalScale
	ch <- m.ActiveWorkers
	ch <- m.StuckWalks
	m.Checkpoints.Collect(ch)
	m.Errors.Collect(ch)
	m.Operations.Collect(ch)
	m.OperationDuration.Collect(ch)
}
