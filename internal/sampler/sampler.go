// Package sampler implements a static nested sampler over the unit
// hypercube. Live points are replaced in order of increasing likelihood by
// constrained random walks proposed concurrently by a bounded worker pool.
// Every proposal draws from its own PCG stream derived from the run seed, so
// a run is reproducible regardless of goroutine scheduling and can be
// resumed from a checkpoint.
package sampler

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
)

// Stop reasons reported in Output.StopReason.
const (
	StopDeltaLogZ  = "dlogz"
	StopNEffective = "n_effective"
	StopMaxIter    = "maxiter"
	StopMaxCall    = "maxcall"
)

const (
	// maxInitAttempts bounds the draws spent finding one initial live point
	// with finite likelihood.
	maxInitAttempts = 10000
	// maxWalkFactor bounds a random walk to this many times Walks steps
	// while it waits for its first accepted move.
	maxWalkFactor = 50
	// targetAcceptance is the acceptance fraction the proposal scale adapts to.
	targetAcceptance = 0.5
	// DefaultQueueSize is the number of proposals per batch when
	// Config.QueueSize is 0.
	DefaultQueueSize = 64
	// progressInterval rate limits progress log lines.
	progressInterval = 30 * time.Second
)

// Problem is the target explored by the sampler. LogLikelihood receives a
// point of the unit hypercube and must be safe for concurrent use.
type Problem struct {
	Names         []string
	Periodic      []bool
	Reflective    []bool
	LogLikelihood func(u []float64) float64
}

// Dim returns the number of sampled dimensions.
func (p Problem) Dim() int { return len(p.Names) }

// Likelihood is the part of the likelihood the sampler needs.
type Likelihood interface {
	LogLikelihoodRatio(p params.Parameters) float64
}

// NewProblem couples a prior with a likelihood. Points that violate a
// constraint prior have zero likelihood.
func NewProblem(priors *prior.Dict, like Likelihood) Problem {
	return Problem{
		Names:      priors.SampledKeys(),
		Periodic:   priors.Periodic(),
		Reflective: priors.Reflective(),
		LogLikelihood: func(u []float64) float64 {
			p := priors.Rescale(u)
			if !priors.ConstraintsSatisfied(p) {
				return math.Inf(-1)
			}
			return like.LogLikelihoodRatio(p)
		},
	}
}

// Progress is a snapshot published after every batch of replacements.
type Progress struct {
	Iteration        int
	NCall            int
	LogZ             float64
	DeltaLogZ        float64
	LogLMin          float64
	Efficiency       float64
	EffectiveSamples float64
	Scale            float64
	Elapsed          time.Duration
}

// Config holds sampler settings.
type Config struct {
	Nlive      int
	Walks      int
	NPool      int // concurrent walks
	QueueSize  int // proposals per batch, 0 means DefaultQueueSize
	Dlogz      float64
	NEffective int // 0 disables the effective sample size stop
	MaxIter    int // 0 means unlimited
	MaxCall    int // 0 means unlimited
	Seed       uint64

	// CheckpointFile is written every CheckpointInterval of wall time and
	// when the run is cancelled. Empty disables checkpointing.
	CheckpointFile     string
	CheckpointInterval time.Duration
	Resume             bool

	Metrics  *metrics.SamplerMetrics
	Progress func(Progress)
	Logger   logger.Logger
}

// Sampler runs nested sampling on a Problem.
type Sampler struct {
	problem Problem
	cfg     Config
	log     logger.Logger
	limiter *rate.Limiter

	// stuckLimiter rate limits the duplicated live point warning.
	stuckLimiter *rate.Limiter
}

// New validates the configuration and returns a sampler.
func New(problem Problem, cfg Config) (*Sampler, error) {
	d := problem.Dim()
	switch {
	case d == 0:
		return nil, configError("no parameters to sample, every prior is fixed").Build()
	case problem.LogLikelihood == nil:
		return nil, configError("problem has no likelihood").Build()
	case len(problem.Periodic) != d || len(problem.Reflective) != d:
		return nil, configError("boundary flags do not match the number of parameters").Build()
	case cfg.Nlive < 2:
		return nil, configError("nlive must be at least 2").Context("nlive", cfg.Nlive).Build()
	case cfg.Walks < 1:
		return nil, configError("walks must be at least 1").Context("walks", cfg.Walks).Build()
	case cfg.NPool < 1:
		return nil, configError("npool must be at least 1").Context("npool", cfg.NPool).Build()
	case cfg.QueueSize < 0:
		return nil, configError("queue size must not be negative").Context("queue_size", cfg.QueueSize).Build()
	case !(cfg.Dlogz > 0):
		return nil, configError("dlogz must be positive").Context("dlogz", cfg.Dlogz).Build()
	}

	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Sampler{
		problem:      problem,
		cfg:          cfg,
		log:          log.Module("sampler"),
		limiter:      rate.NewLimiter(rate.Every(progressInterval), 1),
		stuckLimiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}, nil
}

// QueueSize returns the number of proposals drawn per batch.
func (s *Sampler) QueueSize() int { return s.cfg.QueueSize }

func configError(msg string) *errors.ErrorBuilder {
	return errors.Newf("%s", msg).
		Category(errors.CategoryConfiguration).
		Component("sampler")
}

// Run samples until a stopping criterion is met or ctx is cancelled. On
// cancellation a checkpoint is written and the context error is returned.
func (s *Sampler) Run(ctx context.Context) (*Output, error) {
	started := time.Now()

	st, err := s.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	elapsedBefore := st.elapsed()
	lastCheckpoint := time.Now()

	s.log.Info("starting nested sampling",
		logger.Int("ndim", s.problem.Dim()),
		logger.Int("nlive", s.cfg.Nlive),
		logger.Int("walks", s.cfg.Walks),
		logger.Int("npool", s.cfg.NPool),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Float64("dlogz", s.cfg.Dlogz),
		logger.Int("n_effective", s.cfg.NEffective),
		logger.Int("iteration", st.Iteration))

	var reason string
	for {
		st.ElapsedSeconds = (elapsedBefore + time.Since(started)).Seconds()
		if reason = s.stopReason(st); reason != "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, s.interrupted(st, err)
		}

		batch, err := s.propose(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.interrupted(st, ctx.Err())
			}
			return nil, err
		}
		before := st.Iteration
		s.consume(st, batch)
		s.report(st, st.Iteration-before)

		if s.cfg.CheckpointFile != "" && s.cfg.CheckpointInterval > 0 &&
			time.Since(lastCheckpoint) >= s.cfg.CheckpointInterval {
			st.ElapsedSeconds = (elapsedBefore + time.Since(started)).Seconds()
			if err := s.checkpoint(st); err != nil {
				return nil, err
			}
			lastCheckpoint = time.Now()
		}
	}

	if s.cfg.CheckpointFile != "" {
		if err := s.checkpoint(st); err != nil {
			return nil, err
		}
	}
	out := st.finalize(s.problem.Names, s.cfg.Nlive)
	out.StopReason = reason
	out.SamplingTime = st.elapsed()

	s.log.Info("nested sampling finished",
		logger.String("stop_reason", reason),
		logger.Int("iterations", out.Iterations),
		logger.Int("likelihood_calls", out.NCall),
		logger.Float64("log_evidence", out.LogZ),
		logger.Float64("log_evidence_err", out.LogZErr),
		logger.Float64("information", out.Information),
		logger.Duration("sampling_time", out.SamplingTime))
	return out, nil
}

// stopReason returns the first satisfied stopping criterion, or "".
func (s *Sampler) stopReason(st *state) string {
	switch {
	case s.cfg.MaxIter > 0 && st.Iteration >= s.cfg.MaxIter:
		return StopMaxIter
	case s.cfg.MaxCall > 0 && st.NCall >= s.cfg.MaxCall:
		return StopMaxCall
	case s.cfg.NEffective > 0 && st.effectiveSamples() >= float64(s.cfg.NEffective):
		return StopNEffective
	case st.Iteration > 0 && st.deltaLogZ(s.cfg.Nlive) < s.cfg.Dlogz:
		return StopDeltaLogZ
	}
	return ""
}

func (s *Sampler) interrupted(st *state, cause error) error {
	s.log.Warn("nested sampling interrupted",
		logger.Int("iteration", st.Iteration),
		logger.Int("likelihood_calls", st.NCall))
	err := errors.New(cause).
		Category(errors.CategoryCancellation).
		Component("sampler").
		Context("iteration", st.Iteration).
		Build()
	if s.cfg.CheckpointFile != "" {
		if cpErr := s.checkpoint(st); cpErr != nil {
			return errors.Join(err, cpErr)
		}
	}
	return err
}

func (s *Sampler) report(st *state, newDead int) {
	p := Progress{
		Iteration:        st.Iteration,
		NCall:            st.NCall,
		LogZ:             float64(st.LogZ),
		DeltaLogZ:        st.deltaLogZ(s.cfg.Nlive),
		LogLMin:          st.worstLogL(),
		Efficiency:       st.efficiency(),
		EffectiveSamples: st.effectiveSamples(),
		Scale:            st.Scale,
		Elapsed:          st.elapsed(),
	}

	if m := s.cfg.Metrics; m != nil {
		m.UpdateProgress(newDead, p.LogZ, p.DeltaLogZ, p.LogLMin, p.Efficiency, p.EffectiveSamples, p.Scale)
	}
	if s.cfg.Progress != nil {
		s.cfg.Progress(p)
	}
	if s.limiter.Allow() {
		s.log.Info("sampling progress",
			logger.Int("iteration", p.Iteration),
			logger.Int("likelihood_calls", p.NCall),
			logger.Float64("log_evidence", p.LogZ),
			logger.Float64("delta_log_evidence", p.DeltaLogZ),
			logger.Float64("efficiency", p.Efficiency),
			logger.Float64("scale", p.Scale))
	}
}
