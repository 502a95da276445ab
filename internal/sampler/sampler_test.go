package sampler

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
)

// gaussianProblem is a normalised Gaussian of width sigma centred in the
// unit cube. Its evidence is 1 up to the negligible mass outside the cube.
func gaussianProblem(dim int, sigma float64) Problem {
	names := make([]string, dim)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	norm := math.Log(sigma * math.Sqrt(2*math.Pi))
	return Problem{
		Names:      names,
		Periodic:   make([]bool, dim),
		Reflective: make([]bool, dim),
		LogLikelihood: func(u []float64) float64 {
			var logL float64
			for _, x := range u {
				r := (x - 0.5) / sigma
				logL += -0.5*r*r - norm
			}
			return logL
		},
	}
}

func testConfig() Config {
	return Config{
		Nlive: 200,
		Walks: 20,
		NPool:     4,
		QueueSize: 4,
		Dlogz:     0.1,
		Seed:      42,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Problem, *Config)
	}{
		{"no parameters", func(p *Problem, _ *Config) { p.Names = nil; p.Periodic = nil; p.Reflective = nil }},
		{"no likelihood", func(p *Problem, _ *Config) { p.LogLikelihood = nil }},
		{"boundary length", func(p *Problem, _ *Config) { p.Periodic = []bool{true} }},
		{"nlive", func(_ *Problem, c *Config) { c.Nlive = 1 }},
		{"walks", func(_ *Problem, c *Config) { c.Walks = 0 }},
		{"npool", func(_ *Problem, c *Config) { c.NPool = 0 }},
		{"queue size", func(_ *Problem, c *Config) { c.QueueSize = -1 }},
		{"dlogz", func(_ *Problem, c *Config) { c.Dlogz = 0 }},
		{"dlogz nan", func(_ *Problem, c *Config) { c.Dlogz = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := gaussianProblem(2, 0.1)
			cfg := testConfig()
			tt.mutate(&p, &cfg)
			_, err := New(p, cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestGaussianEvidence(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(gaussianProblem(2, 0.1), testConfig())
	require.NoError(t, err)

	out, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, StopDeltaLogZ, out.StopReason)
	assert.InDelta(t, 0, out.LogZ, 0.5, "log evidence %g ± %g", out.LogZ, out.LogZErr)
	assert.Positive(t, out.LogZErr)
	assert.Positive(t, out.Information)
	assert.Len(t, out.Samples, out.Iterations+200)
	assert.Greater(t, out.NCall, out.Iterations)

	weights := out.Weights()
	var total, meanA, meanB float64
	for i, w := range weights {
		total += w
		meanA += w * out.Samples[i][0]
		meanB += w * out.Samples[i][1]
	}
	assert.InDelta(t, 1, total, 1e-9)
	assert.InDelta(t, 0.5, meanA, 0.02)
	assert.InDelta(t, 0.5, meanB, 0.02)

	// Dead points are replaced in order of increasing likelihood.
	for i := 1; i < out.Iterations; i++ {
		require.GreaterOrEqual(t, out.LogL[i], out.LogL[i-1])
	}
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Nlive = 50
	cfg.MaxIter = 300

	run := func() *Output {
		s, err := New(gaussianProblem(3, 0.2), cfg)
		require.NoError(t, err)
		out, err := s.Run(t.Context())
		require.NoError(t, err)
		return out
	}

	first, second := run(), run()
	assert.Equal(t, first.LogZ, second.LogZ)
	assert.Equal(t, first.NCall, second.NCall)
	assert.Equal(t, first.Samples, second.Samples)
}

func TestMaxIterStops(t *testing.T) {
	cfg := testConfig()
	cfg.Nlive = 30
	cfg.MaxIter = 50

	s, err := New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)
	out, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, StopMaxIter, out.StopReason)
	assert.Equal(t, 50, out.Iterations)
}

func TestNEffectiveStops(t *testing.T) {
	cfg := testConfig()
	cfg.Nlive = 100
	cfg.NEffective = 20

	s, err := New(gaussianProblem(2, 0.05), cfg)
	require.NoError(t, err)
	out, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, StopNEffective, out.StopReason)
	assert.GreaterOrEqual(t, out.EffectiveSamples, 20.0)
}

func TestResultsIndependentOfPoolSize(t *testing.T) {
	t.Parallel()

	run := func(npool int) *Output {
		cfg := testConfig()
		cfg.Nlive = 50
		cfg.MaxIter = 300
		cfg.NPool = npool
		cfg.QueueSize = 8
		s, err := New(gaussianProblem(3, 0.2), cfg)
		require.NoError(t, err)
		out, err := s.Run(t.Context())
		require.NoError(t, err)
		return out
	}

	serial, pooled := run(1), run(4)
	assert.Equal(t, serial.Iterations, pooled.Iterations)
	assert.Equal(t, serial.NCall, pooled.NCall)
	assert.Equal(t, serial.Samples, pooled.Samples)
	assert.InDelta(t, serial.LogZ, pooled.LogZ, 0)
}

func TestDefaultQueueSize(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.QueueSize = 0
	s, err := New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueSize, s.cfg.QueueSize)
}

func TestCheckpointResumeMatchesUninterruptedRun(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Nlive = 40
	cfg.Walks = 10
	cfg.NPool = 1
	// One proposal per batch so the first run stops on a batch boundary.
	cfg.QueueSize = 1
	cfg.CheckpointFile = filepath.Join(dir, "run_checkpoint.json")
	cfg.Resume = true

	straight := cfg
	straight.CheckpointFile = ""
	straight.MaxIter = 200
	s, err := New(gaussianProblem(2, 0.1), straight)
	require.NoError(t, err)
	want, err := s.Run(t.Context())
	require.NoError(t, err)

	first := cfg
	first.MaxIter = 100
	s, err = New(gaussianProblem(2, 0.1), first)
	require.NoError(t, err)
	_, err = s.Run(t.Context())
	require.NoError(t, err)
	require.FileExists(t, cfg.CheckpointFile)

	second := cfg
	second.MaxIter = 200
	s, err = New(gaussianProblem(2, 0.1), second)
	require.NoError(t, err)
	got, err := s.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, want.Iterations, got.Iterations)
	assert.Equal(t, want.NCall, got.NCall)
	assert.Equal(t, want.Samples, got.Samples)
	assert.InDelta(t, want.LogZ, got.LogZ, 1e-12)
}

func TestCancellationWritesCheckpoint(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := testConfig()
	cfg.Nlive = 40
	cfg.Walks = 10
	cfg.NPool = 2
	cfg.CheckpointFile = filepath.Join(dir, "run_checkpoint.json")
	cfg.Resume = true

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	problem := gaussianProblem(2, 0.1)
	inner := problem.LogLikelihood
	var calls atomic.Int64
	problem.LogLikelihood = func(u []float64) float64 {
		if calls.Add(1) == 600 {
			cancel()
		}
		return inner(u)
	}

	s, err := New(problem, cfg)
	require.NoError(t, err)
	_, err = s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))

	st, err := loadCheckpoint(cfg.CheckpointFile)
	require.NoError(t, err)
	assert.Positive(t, st.Iteration)
	assert.Len(t, st.Live, cfg.Nlive)

	// Resuming picks up where the interrupted run stopped.
	cfg.MaxIter = st.Iteration + 10
	s, err = New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)
	out, err := s.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, st.Iteration+10, out.Iterations)
}

func TestResumeRejectsForeignCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Nlive = 20
	cfg.MaxIter = 10
	cfg.CheckpointFile = filepath.Join(dir, "run_checkpoint.json")
	cfg.Resume = true

	s, err := New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)
	_, err = s.Run(t.Context())
	require.NoError(t, err)

	cfg.Seed++
	s, err = New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)
	_, err = s.Run(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCheckpoint))
	assert.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestCheckpointWriteFailureRecordsTiming(t *testing.T) {
	t.Parallel()
	blocker := filepath.Join(t.TempDir(), "plain-file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	m, err := metrics.NewSamplerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.CheckpointFile = filepath.Join(blocker, "run_checkpoint.json")
	cfg.Metrics = m
	s, err := New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)

	st := newState(cfg.Seed, s.problem.Names, 1, []point{{U: []float64{0.5, 0.5}}}, 0)
	err = s.checkpoint(st)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCheckpoint))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	ctx := ee.GetContext()
	assert.Equal(t, "write_checkpoint", ctx["operation"])
	assert.Contains(t, ctx, "duration_ms")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Checkpoints.WithLabelValues(metrics.StatusError)), 0)
}

func TestCorruptCheckpointFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad_checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := loadCheckpoint(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCheckpoint))

	_, err = loadCheckpoint(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnsatisfiablePriorFails(t *testing.T) {
	t.Parallel()
	p := gaussianProblem(1, 0.1)
	p.LogLikelihood = func([]float64) float64 { return math.Inf(-1) }
	cfg := testConfig()
	cfg.Nlive = 2
	cfg.NPool = 1

	s, err := New(p, cfg)
	require.NoError(t, err)
	_, err = s.Run(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySampler))
}

func TestWalkWithoutAcceptedMoveIsCounted(t *testing.T) {
	t.Parallel()
	m, err := metrics.NewSamplerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Walks = 3
	cfg.Metrics = m
	s, err := New(gaussianProblem(2, 0.1), cfg)
	require.NoError(t, err)

	centre := []float64{0.5, 0.5}
	start := point{U: centre, LogL: s.problem.LogLikelihood(centre)}
	axes := [][]float64{{1, 0}, {0, 1}}
	rng := rand.New(rand.NewPCG(1, 2))

	// Nothing beats an infinite threshold, so the walk runs to its step cap.
	p, err := s.walk(t.Context(), rng, start, math.Inf(1), axes, 0.1)
	require.NoError(t, err)
	assert.Zero(t, p.accepts)
	assert.Equal(t, cfg.Walks*maxWalkFactor, p.rejects)
	assert.Equal(t, start.U, p.point.U)

	live := []point{{U: []float64{0.1, 0.1}, LogL: -10}, {U: []float64{0.4, 0.4}, LogL: -1}, start}
	st := newState(cfg.Seed, s.problem.Names, len(live), live, 0)
	s.consume(st, []proposal{p})
	assert.Equal(t, 1, st.Iteration)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.StuckWalks), 0)

	var copies int
	for _, lp := range st.Live {
		if slices.Equal(lp.U, centre) {
			copies++
		}
	}
	assert.Equal(t, 2, copies)
}

func TestApplyBoundaries(t *testing.T) {
	t.Parallel()
	s := &Sampler{problem: Problem{
		Names:      []string{"plain", "periodic", "reflective"},
		Periodic:   []bool{false, true, false},
		Reflective: []bool{false, false, true},
	}}

	tests := []struct {
		name string
		in   []float64
		want []float64
		ok   bool
	}{
		{"inside", []float64{0.2, 0.3, 0.4}, []float64{0.2, 0.3, 0.4}, true},
		{"wrap above", []float64{0.2, 1.25, 0.4}, []float64{0.2, 0.25, 0.4}, true},
		{"wrap below", []float64{0.2, -0.25, 0.4}, []float64{0.2, 0.75, 0.4}, true},
		{"reflect above", []float64{0.2, 0.3, 1.1}, []float64{0.2, 0.3, 0.9}, true},
		{"reflect below", []float64{0.2, 0.3, -0.1}, []float64{0.2, 0.3, 0.1}, true},
		{"plain outside", []float64{1.2, 0.3, 0.4}, nil, false},
		{"reflect too far", []float64{0.2, 0.3, 2.5}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := slices.Clone(tt.in)
			ok := s.applyBoundaries(u)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDeltaSlice(t, tt.want, u, 1e-12)
			}
		})
	}
}

func TestAdaptScale(t *testing.T) {
	t.Parallel()
	assert.Greater(t, adaptScale(1, 9, 1, 2), 1.0)
	assert.Less(t, adaptScale(1, 1, 9, 2), 1.0)
	assert.InDelta(t, 1.0, adaptScale(1, 5, 5, 2), 1e-12)
	assert.InDelta(t, 1.0, adaptScale(1, 0, 0, 2), 0)
}

func TestUnitBallStaysInside(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))
	z := make([]float64, 5)
	for range 1000 {
		unitBall(rng, z)
		var r2 float64
		for _, v := range z {
			r2 += v * v
		}
		require.LessOrEqual(t, r2, 1.0)
	}
}

func TestProposalAxesDegenerateLiveSet(t *testing.T) {
	t.Parallel()
	live := make([]point, 10)
	for i := range live {
		live[i] = point{U: []float64{0.5, 0.5}}
	}
	axes := proposalAxes(live, 2)
	for i := range axes {
		for _, v := range axes[i] {
			assert.False(t, math.IsNaN(v))
		}
	}
	assert.Positive(t, axes[0][0])
	assert.Positive(t, axes[1][1])
}

func TestEqualWeightIndices(t *testing.T) {
	t.Parallel()
	out := &Output{LogWt: []float64{math.Log(0.7), math.Log(0.2), math.Log(0.1), math.Inf(-1)}}
	out.Samples = make([][]float64, len(out.LogWt))

	// Systematic resampling over 4 slots with these weights.
	idx := out.EqualWeightIndices(rand.New(rand.NewPCG(7, 7)))
	require.Len(t, idx, 4)
	counts := map[int]int{}
	for _, i := range idx {
		counts[i]++
	}
	assert.Zero(t, counts[3])
	assert.GreaterOrEqual(t, counts[0], 2)
}

func TestLogValueJSON(t *testing.T) {
	t.Parallel()
	in := struct {
		A logValue `json:"a"`
		B logValue `json:"b"`
	}{A: logValue(math.Inf(-1)), B: -12.25}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"-inf","b":-12.25}`, string(data))

	var out struct {
		A logValue `json:"a"`
		B logValue `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, math.IsInf(float64(out.A), -1))
	assert.InDelta(t, -12.25, float64(out.B), 0)
}

type fakeLikelihood struct{}

func (fakeLikelihood) LogLikelihoodRatio(p params.Parameters) float64 {
	return -p["chirp_mass"]
}

func TestNewProblemFromPriors(t *testing.T) {
	t.Parallel()
	mc, err := prior.NewUniform("chirp_mass", 1, 2, prior.BoundaryNone)
	require.NoError(t, err)
	q, err := prior.NewUniform("mass_ratio", 0.2, 1, prior.BoundaryNone)
	require.NoError(t, err)
	psi, err := prior.NewUniform("psi", 0, math.Pi, prior.BoundaryPeriodic)
	require.NoError(t, err)
	m1, err := prior.NewConstraint("mass_1", 1, 3)
	require.NoError(t, err)

	priors, err := prior.NewDict(
		[]prior.Prior{mc, q, psi, prior.NewDeltaFunction("ra", 5.445)},
		[]*prior.Constraint{m1},
	)
	require.NoError(t, err)

	problem := NewProblem(priors, fakeLikelihood{})
	assert.Equal(t, []string{"chirp_mass", "mass_ratio", "psi"}, problem.Names)
	assert.Equal(t, []bool{false, false, true}, problem.Periodic)

	// chirp_mass = 1, mass_ratio = 1 gives m1 = 1.149.
	assert.InDelta(t, -1, problem.LogLikelihood([]float64{0, 1, 0.5}), 1e-12)
	// chirp_mass = 2, mass_ratio = 0.2 gives m1 = 5.44.
	assert.True(t, math.IsInf(problem.LogLikelihood([]float64{1, 0, 0.5}), -1))

	// Each fixed parameter removes one sampled dimension.
	fixed := NewProblem(priors.WithFixed("psi", 1.0), fakeLikelihood{})
	assert.Equal(t, problem.Dim()-1, fixed.Dim())
}
