package likelihood

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
	"github.com/tphakala/gwpe/internal/waveform"
)

const (
	testDuration = 8.0
	testRate     = 2048.0
	testTrigger  = float64(conf.DefaultTriggerTime)
)

type fixture struct {
	network    *detector.Network
	gen        *waveform.Generator
	injection  params.Parameters
	injections []detector.Injection
}

func newFixture(t *testing.T, zeroNoise bool) *fixture {
	t.Helper()

	curve, err := detector.AnalyticNoiseCurve("aligo", 10, 4096, 400)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "aligo.txt")
	require.NoError(t, detector.WriteNoiseCurve(path, curve))

	gen, err := waveform.NewGenerator(waveform.Config{
		Duration:           testDuration,
		SamplingFrequency:  testRate,
		Approximant:        conf.DefaultApproximant,
		ReferenceFrequency: 20,
		MinimumFrequency:   20,
	})
	require.NoError(t, err)

	network, err := detector.BuildNetwork(
		[]detector.Spec{{Name: "H1", PSDFile: path}, {Name: "L1", PSDFile: path}, {Name: "V1", PSDFile: path}},
		detector.DataConfig{
			SamplingFrequency: testRate,
			Duration:          testDuration,
			StartTime:         testTrigger + 2 - testDuration,
			MinimumFrequency:  20,
			ZeroNoise:         zeroNoise,
		},
		rand.NewPCG(conf.DefaultSeed, 0), nil)
	require.NoError(t, err)

	injection := params.Parameters(conf.DefaultInjection())
	injections, err := network.InjectSignal(gen, injection)
	require.NoError(t, err)

	return &fixture{network: network, gen: gen, injection: injection, injections: injections}
}

func (f *fixture) optimalSNRSquared() float64 {
	var sum float64
	for _, inj := range f.injections {
		sum += inj.OptimalSNR * inj.OptimalSNR
	}
	return sum
}

func defaultPriors(t *testing.T) *prior.Dict {
	t.Helper()
	d, err := prior.FromSpecs(conf.DefaultPriors())
	require.NoError(t, err)
	return d
}

func TestLogI0(t *testing.T) {
	t.Parallel()

	tests := []struct{ x, want float64 }{
		{0, 0},
		{0.5, 0.0615497192},
		{1, 0.2359143585},
		{3.75, 2.2103542120},
		{5, 3.3046817758},
		{20, 17.5896104283},
		{50, 47.1275755019},
		{1000, 995.6273088898},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, logI0(tt.x), 1e-6*math.Max(1, tt.want), "x=%g", tt.x)
		assert.InDelta(t, logI0(tt.x), logI0(-tt.x), 0)
	}
}

func TestNewRejectsMissingPrior(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	// The default table has no phase prior; it is only complete with phase
	// marginalisation enabled.
	_, err := New(f.network, f.gen, defaultPriors(t), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLikelihood))
	assert.Contains(t, err.Error(), params.Phase)

	specs := conf.DefaultPriors()
	delete(specs, params.ThetaJN)
	priors, err := prior.FromSpecs(specs)
	require.NoError(t, err)
	_, err = New(f.network, f.gen, priors, Options{PhaseMarginalization: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), params.ThetaJN)

	l, err := New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.NoError(t, err)
	assert.Contains(t, l.RequiredParameters(), params.GeocentTime)
}

func TestNewRejectsGridMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	gen, err := waveform.NewGenerator(waveform.Config{
		Duration: 4, SamplingFrequency: testRate, Approximant: "TaylorF2", MinimumFrequency: 20,
	})
	require.NoError(t, err)
	_, err = New(f.network, gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.Error(t, err)
}

func TestMarginalisedParametersArePinned(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	specs := conf.DefaultPriors()
	specs[params.Phase] = conf.PriorSpec{Type: "uniform", Minimum: 0, Maximum: 2 * math.Pi, Boundary: "periodic"}
	priors, err := prior.FromSpecs(specs)
	require.NoError(t, err)

	plain, err := New(f.network, f.gen, priors, Options{})
	require.NoError(t, err)
	marg, err := New(f.network, f.gen, priors, Options{PhaseMarginalization: true})
	require.NoError(t, err)

	assert.Equal(t, plain.Priors().Dim()-1, marg.Priors().Dim())
	assert.Contains(t, plain.Priors().SampledKeys(), params.Phase)
	assert.NotContains(t, marg.Priors().SampledKeys(), params.Phase)
	assert.InDelta(t, 0, marg.Priors().FixedValues()[params.Phase], 0)
}

func TestInjectionBeatsDistantSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	l, err := New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.NoError(t, err)

	atInjection := l.LogLikelihood(f.injection)
	far := f.injection.Clone()
	far[params.LuminosityDistance] = 5000
	atFar := l.LogLikelihood(far)

	assert.False(t, math.IsInf(atInjection, 0) || math.IsNaN(atInjection))
	assert.False(t, math.IsInf(atFar, 0) || math.IsNaN(atFar))
	assert.Greater(t, atInjection, atFar)
	assert.InDelta(t, l.NoiseLogLikelihood()+l.LogLikelihoodRatio(f.injection), atInjection, 1e-9*math.Abs(atInjection))
}

func TestZeroNoiseRatioIsHalfOptimalSNR(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	specs := conf.DefaultPriors()
	specs[params.Phase] = conf.PriorSpec{Type: "uniform", Minimum: 0, Maximum: 2 * math.Pi}
	priors, err := prior.FromSpecs(specs)
	require.NoError(t, err)

	rho2 := f.optimalSNRSquared()
	require.Greater(t, rho2, 100.0)

	l, err := New(f.network, f.gen, priors, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5*rho2, l.LogLikelihoodRatio(f.injection), 1e-6*rho2)
	assert.InDelta(t, -0.5*rho2, l.NoiseLogLikelihood(), 1e-6*rho2)
	assert.InDelta(t, 0, l.LogLikelihood(f.injection), 1e-6*rho2)

	marg, err := New(f.network, f.gen, priors, Options{PhaseMarginalization: true})
	require.NoError(t, err)
	want := logI0(rho2) - 0.5*rho2
	assert.InDelta(t, want, marg.LogLikelihoodRatio(f.injection), 1e-6*rho2)

	// The marginalised value does not depend on the phase argument
	shifted := f.injection.Clone()
	shifted[params.Phase] = 0.3
	assert.InDelta(t, marg.LogLikelihoodRatio(f.injection), marg.LogLikelihoodRatio(shifted), 1e-9*rho2)
}

func TestDistanceMarginalisation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	l, err := New(f.network, f.gen, defaultPriors(t), Options{
		PhaseMarginalization:    true,
		DistanceMarginalization: true,
		DistanceGridSize:        200,
	})
	require.NoError(t, err)
	assert.NotContains(t, l.Priors().SampledKeys(), params.LuminosityDistance)

	atInjection := l.LogLikelihoodRatio(f.injection)
	wrong := f.injection.Clone()
	wrong[params.ChirpMass] = 1.45
	atWrong := l.LogLikelihoodRatio(wrong)

	assert.False(t, math.IsInf(atInjection, 0))
	assert.Greater(t, atInjection, atWrong)

	// Distance is ignored once marginalised
	far := f.injection.Clone()
	far[params.LuminosityDistance] = 5000
	assert.InDelta(t, atInjection, l.LogLikelihoodRatio(far), 1e-9*math.Abs(atInjection))
}

func TestTimeMarginalisation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	specs := conf.DefaultPriors()
	specs[params.GeocentTime] = conf.PriorSpec{Type: "uniform", Minimum: testTrigger - 0.1, Maximum: testTrigger + 0.1}
	priors, err := prior.FromSpecs(specs)
	require.NoError(t, err)

	l, err := New(f.network, f.gen, priors, Options{PhaseMarginalization: true, TimeMarginalization: true})
	require.NoError(t, err)
	assert.InDelta(t, testTrigger-0.1, l.Priors().FixedValues()[params.GeocentTime], 0)
	assert.NotContains(t, l.Priors().SampledKeys(), params.GeocentTime)

	atInjection := l.LogLikelihoodRatio(f.injection)
	wrong := f.injection.Clone()
	wrong[params.ChirpMass] = 1.45
	atWrong := l.LogLikelihoodRatio(wrong)
	assert.False(t, math.IsInf(atInjection, 0) || math.IsNaN(atInjection))
	assert.Greater(t, atInjection, atWrong)

	// Fixing geocent_time leaves nothing to marginalise over
	_, err = New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true, TimeMarginalization: true})
	require.Error(t, err)

	// A time prior outside the segment is rejected
	specs[params.GeocentTime] = conf.PriorSpec{Type: "uniform", Minimum: testTrigger, Maximum: testTrigger + 10}
	priors, err = prior.FromSpecs(specs)
	require.NoError(t, err)
	_, err = New(f.network, f.gen, priors, Options{PhaseMarginalization: true, TimeMarginalization: true})
	require.Error(t, err)

	// A prior spanning the whole segment covers every circular shift once
	start := f.network.StartTime()
	specs[params.GeocentTime] = conf.PriorSpec{Type: "uniform", Minimum: start, Maximum: start + testDuration}
	priors, err = prior.FromSpecs(specs)
	require.NoError(t, err)
	full, err := New(f.network, f.gen, priors, Options{PhaseMarginalization: true, TimeMarginalization: true})
	require.NoError(t, err)
	assert.Len(t, full.timeOffsets, int(testRate*testDuration))
	assert.Equal(t, int(testRate*testDuration)-1, full.timeOffsets[len(full.timeOffsets)-1])
	var overFull float64
	require.NotPanics(t, func() { overFull = full.LogLikelihoodRatio(f.injection) })
	assert.False(t, math.IsInf(overFull, 0) || math.IsNaN(overFull))
}

func TestTimeMarginalisationMatchesDirectSum(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	specs := conf.DefaultPriors()
	specs[params.GeocentTime] = conf.PriorSpec{Type: "uniform", Minimum: testTrigger - 0.002, Maximum: testTrigger + 0.002}
	priors, err := prior.FromSpecs(specs)
	require.NoError(t, err)
	l, err := New(f.network, f.gen, priors, Options{PhaseMarginalization: true, TimeMarginalization: true})
	require.NoError(t, err)
	require.NotEmpty(t, l.timeOffsets)

	// <d, h shifted by j samples> summed bin by bin
	p := f.injection.Merge(l.pinned)
	pol, err := f.gen.FrequencyDomainStrain(p)
	require.NoError(t, err)
	n := float64(l.nSamples)
	resp := make([]complex128, l.band.Length)
	dh := make([]complex128, len(l.timeOffsets))
	var hh float64
	for _, d := range l.ifos {
		d.ifo.ResponseInto(pol, l.band, f.gen.Frequencies(), p, resp)
		hh += detector.SquaredNorm(resp, d.weights)
		for m, j := range l.timeOffsets {
			for i, w := range d.weights {
				if w == 0 {
					continue
				}
				k := float64(l.band.Start + i)
				shift := cmplx.Exp(complex(0, -2*math.Pi*k*float64(j)/n))
				dh[m] += complex(w, 0) * cmplx.Conj(d.data[i]) * resp[i] * shift
			}
		}
	}
	terms := make([]float64, len(dh))
	for m := range dh {
		terms[m] = logI0(cmplx.Abs(dh[m])) - 0.5*hh + l.timeLogW[m]
	}
	want := floats.LogSumExp(terms)
	got := l.LogLikelihoodRatio(f.injection)
	assert.InDelta(t, want, got, 1e-8*math.Max(1, math.Abs(want)))

	// Same sum from the unmarginalised likelihood at each grid time. The
	// antenna pattern drifts slightly with Earth rotation, hence the looser bound.
	phaseOnly, err := New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.NoError(t, err)
	ref := l.pinned[params.GeocentTime]
	for m, j := range l.timeOffsets {
		q := f.injection.Clone()
		q[params.GeocentTime] = ref + float64(j)/testRate
		terms[m] = phaseOnly.LogLikelihoodRatio(q) + l.timeLogW[m]
	}
	assert.InDelta(t, want, floats.LogSumExp(terms), 1e-3*math.Max(1, math.Abs(want)))
}

func TestInvalidParametersGiveNegativeInfinity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	l, err := New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.NoError(t, err)

	bad := f.injection.Clone()
	bad[params.MassRatio] = 2
	assert.True(t, math.IsInf(l.LogLikelihoodRatio(bad), -1))
}

func TestConcurrentEvaluationIsConsistent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	l, err := New(f.network, f.gen, defaultPriors(t), Options{PhaseMarginalization: true})
	require.NoError(t, err)

	want := l.LogLikelihood(f.injection)
	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Go(func() {
			results[i] = l.LogLikelihood(f.injection)
		})
	}
	wg.Wait()
	for _, got := range results {
		assert.InDelta(t, want, got, 0)
	}
}
