package sampler

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
)

// initStream offsets the PCG streams of initial live points from the
// proposal streams, which count up from zero.
const initStream uint64 = 1 << 63

// covarianceJitter keeps the proposal covariance positive definite when
// live points collapse onto a lower dimensional set.
const covarianceJitter = 1e-12

// proposal is the outcome of one constrained random walk.
type proposal struct {
	point   point
	calls   int
	accepts int
	rejects int
}

// evaluate calls the likelihood and records its latency. NaN counts as zero
// likelihood.
func (s *Sampler) evaluate(u []float64) float64 {
	start := time.Now()
	logL := s.problem.LogLikelihood(u)
	if m := s.cfg.Metrics; m != nil {
		m.ObserveLikelihood(time.Since(start).Seconds())
	}
	if math.IsNaN(logL) {
		return math.Inf(-1)
	}
	return logL
}

// loadOrInit resumes from the checkpoint when allowed and present, otherwise
// draws fresh live points.
func (s *Sampler) loadOrInit(ctx context.Context) (*state, error) {
	if s.cfg.Resume && s.cfg.CheckpointFile != "" {
		st, err := loadCheckpoint(s.cfg.CheckpointFile)
		switch {
		case err == nil:
			if err := s.compatible(st); err != nil {
				return nil, err
			}
			s.log.Info("resuming from checkpoint",
				logger.String("path", s.cfg.CheckpointFile),
				logger.Int("iteration", st.Iteration),
				logger.Int("likelihood_calls", st.NCall))
			return st, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	return s.initialLive(ctx)
}

// initialLive draws nlive points uniformly from the unit hypercube, keeping
// only points with finite likelihood.
func (s *Sampler) initialLive(ctx context.Context) (*state, error) {
	d := s.problem.Dim()
	live := make([]point, s.cfg.Nlive)
	calls := make([]int, s.cfg.Nlive)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NPool)
	for i := range live {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(s.cfg.Seed, initStream+uint64(i)))
			for attempt := 1; attempt <= maxInitAttempts; attempt++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				u := make([]float64, d)
				for j := range u {
					u[j] = rng.Float64()
				}
				if logL := s.evaluate(u); !math.IsInf(logL, -1) {
					live[i] = point{U: u, LogL: logL}
					calls[i] = attempt
					return nil
				}
			}
			return errors.Newf("no point with finite likelihood after %d prior draws", maxInitAttempts).
				Category(errors.CategorySampler).
				Component("sampler").
				Context("live_point", i).
				Build()
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(ctx.Err()).
				Category(errors.CategoryCancellation).
				Component("sampler").
				Context("operation", "initial_live_points").
				Build()
		}
		return nil, err
	}

	var ncall int
	for _, c := range calls {
		ncall += c
	}
	return newState(s.cfg.Seed, s.problem.Names, s.cfg.Nlive, live, ncall), nil
}

// propose runs QueueSize random walks, NPool at a time, all constrained by
// the current worst live point. Proposal k of the run always uses PCG
// stream k, so the batch does not depend on NPool.
func (s *Sampler) propose(ctx context.Context, st *state) ([]proposal, error) {
	worst := st.worst()
	threshold := st.Live[worst].LogL
	axes := proposalAxes(st.Live, s.problem.Dim())
	live := st.Live
	scale := st.Scale

	n := s.cfg.QueueSize
	out := make([]proposal, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NPool)
	for k := range n {
		stream := st.NextProposal + uint64(k)
		g.Go(func() error {
			if m := s.cfg.Metrics; m != nil {
				m.ActiveWorkers.Inc()
				defer m.ActiveWorkers.Dec()
			}
			rng := rand.New(rand.NewPCG(st.Seed, stream))
			// Start from any live point other than the one being replaced.
			start := rng.IntN(len(live) - 1)
			if start >= worst {
				start++
			}
			p, err := s.walk(gctx, rng, live[start], threshold, axes, scale)
			out[k] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	st.NextProposal += uint64(n)
	return out, nil
}

// consume replaces the worst live point with each proposal in order, as
// long as the proposal still beats the rising threshold. A walk that never
// moved returns its starting live point, which then enters the live set twice.
func (s *Sampler) consume(st *state, batch []proposal) {
	var accepts, rejects, stuck, duplicated int
	for _, p := range batch {
		st.NCall += p.calls
		accepts += p.accepts
		rejects += p.rejects
		if p.accepts == 0 {
			stuck++
		}
		if s.cfg.MaxIter > 0 && st.Iteration >= s.cfg.MaxIter {
			continue
		}
		idx := st.worst()
		if p.point.LogL > st.Live[idx].LogL {
			st.kill(idx, p.point)
			if p.accepts == 0 {
				duplicated++
			}
		}
	}
	st.Scale = adaptScale(st.Scale, accepts, rejects, s.problem.Dim())

	if stuck == 0 {
		return
	}
	if m := s.cfg.Metrics; m != nil {
		m.StuckWalks.Add(float64(stuck))
	}
	if duplicated > 0 && s.stuckLimiter.Allow() {
		s.log.Warn("random walk accepted no moves, live point duplicated",
			logger.Int("stuck_walks", stuck),
			logger.Int("duplicated", duplicated),
			logger.Int("iteration", st.Iteration),
			logger.Float64("scale", st.Scale))
	}
}

// adaptScale nudges the proposal scale towards the target acceptance.
func adaptScale(scale float64, accepts, rejects, dim int) float64 {
	if accepts+rejects == 0 {
		return scale
	}
	facc := float64(accepts) / float64(accepts+rejects)
	norm := math.Max(targetAcceptance, 1-targetAcceptance) * float64(dim)
	return scale * math.Exp((facc-targetAcceptance)/norm)
}

// walk performs a random walk from start that only moves to points with
// likelihood above threshold. It takes at least Walks steps and keeps
// going until one move is accepted, up to maxWalkFactor times Walks.
func (s *Sampler) walk(ctx context.Context, rng *rand.Rand, start point, threshold float64, axes [][]float64, scale float64) (proposal, error) {
	d := len(start.U)
	cur := point{U: slices.Clone(start.U), LogL: start.LogL}
	trial := make([]float64, d)
	z := make([]float64, d)

	var p proposal
	maxSteps := s.cfg.Walks * maxWalkFactor
	for step := 0; step < maxSteps && (step < s.cfg.Walks || p.accepts == 0); step++ {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		unitBall(rng, z)
		for i := range d {
			var delta float64
			for j := 0; j <= i; j++ {
				delta += axes[i][j] * z[j]
			}
			trial[i] = cur.U[i] + scale*delta
		}
		if !s.applyBoundaries(trial) {
			p.rejects++
			continue
		}

		logL := s.evaluate(trial)
		p.calls++
		if logL > threshold {
			copy(cur.U, trial)
			cur.LogL = logL
			p.accepts++
		} else {
			p.rejects++
		}
	}
	p.point = cur
	return p, nil
}

// applyBoundaries wraps periodic coordinates and reflects reflective ones
// back into the unit interval. It reports whether u lies inside the cube.
func (s *Sampler) applyBoundaries(u []float64) bool {
	for i, x := range u {
		switch {
		case s.problem.Periodic[i]:
			x -= math.Floor(x)
		case s.problem.Reflective[i]:
			if x < 0 {
				x = -x
			}
			if x > 1 {
				x = 2 - x
			}
		}
		if x < 0 || x > 1 {
			return false
		}
		u[i] = x
	}
	return true
}

// unitBall fills z with a point drawn uniformly from the unit ball.
func unitBall(rng *rand.Rand, z []float64) {
	var norm float64
	for i := range z {
		z[i] = rng.NormFloat64()
		norm += z[i] * z[i]
	}
	norm = math.Sqrt(norm)
	r := math.Pow(rng.Float64(), 1/float64(len(z)))
	for i := range z {
		z[i] *= r / norm
	}
}

// proposalAxes returns the lower Cholesky factor of the live point
// covariance as rows. It falls back to a diagonal when the covariance is
// not positive definite.
func proposalAxes(live []point, dim int) [][]float64 {
	data := make([]float64, 0, len(live)*dim)
	for _, p := range live {
		data = append(data, p.U...)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, mat.NewDense(len(live), dim, data), nil)
	for i := range dim {
		cov.SetSym(i, i, cov.At(i, i)+covarianceJitter)
	}

	axes := make([][]float64, dim)
	for i := range axes {
		axes[i] = make([]float64, dim)
	}

	var chol mat.Cholesky
	if !chol.Factorize(&cov) {
		for i := range dim {
			axes[i][i] = math.Sqrt(math.Max(cov.At(i, i), covarianceJitter))
		}
		return axes
	}
	var l mat.TriDense
	chol.LTo(&l)
	for i := range dim {
		for j := 0; j <= i; j++ {
			axes[i][j] = l.At(i, j)
		}
	}
	return axes
}
