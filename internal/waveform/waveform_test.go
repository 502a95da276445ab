package waveform

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
)

func injection() params.Parameters {
	return params.Parameters{
		params.ChirpMass:          1.43,
		params.MassRatio:          0.833,
		params.A1:                 0,
		params.A2:                 0,
		params.Tilt1:              0,
		params.Tilt2:              0,
		params.Phi12:              0,
		params.PhiJL:              0,
		params.LuminosityDistance: 100,
		params.ThetaJN:            0.1,
		params.Phase:              1.3,
	}
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		Duration:           8,
		SamplingFrequency:  4096,
		Approximant:        "TaylorF2ThreePointFivePN",
		ReferenceFrequency: 20,
		MinimumFrequency:   20,
	})
	require.NoError(t, err)
	return g
}

func TestNewGeneratorRejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown approximant", Config{Duration: 4, SamplingFrequency: 4096, Approximant: "IMRPhenomZ", MinimumFrequency: 20}},
		{"non-integer samples", Config{Duration: 0.3, SamplingFrequency: 4096, Approximant: "TaylorF2", MinimumFrequency: 20}},
		{"minimum above nyquist", Config{Duration: 4, SamplingFrequency: 4096, Approximant: "TaylorF2", MinimumFrequency: 3000}},
		{"zero duration", Config{Duration: 0, SamplingFrequency: 4096, Approximant: "TaylorF2", MinimumFrequency: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewGenerator(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestBandCoversMinimumToNyquist(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	band := g.Band()

	assert.Equal(t, 160, band.Start) // 20 Hz * 8 s
	assert.Equal(t, 16384+1-160, band.Length)
	assert.Len(t, g.Frequencies(), 16385)
	assert.InDelta(t, 2048, band.MaxFrequency, 0)
	assert.InDelta(t, 20, g.Config().ReferenceFrequency, 0)
}

func TestStrainZeroAboveISCO(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	pol, err := g.FrequencyDomainStrain(injection())
	require.NoError(t, err)

	m1, m2 := params.ComponentMasses(1.43, 0.833)
	fisco := ISCOFrequency(m1 + m2)
	assert.InDelta(t, 1331.8, fisco, 0.5)

	freqs := g.Frequencies()
	band := g.Band()
	for i := range pol.Plus {
		f := freqs[band.Start+i]
		if f > fisco {
			assert.Zero(t, pol.Plus[i], "f=%g", f)
			assert.Zero(t, pol.Cross[i], "f=%g", f)
		} else {
			assert.NotZero(t, pol.Plus[i], "f=%g", f)
		}
	}
}

func TestPolarizationRelation(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	p := injection()
	pol, err := g.FrequencyDomainStrain(p)
	require.NoError(t, err)

	cosi := math.Cos(p[params.ThetaJN])
	ratio := complex(0, -cosi/(0.5*(1+cosi*cosi)))
	for _, i := range []int{0, 100, 5000} {
		assert.InDelta(t, 0, cmplx.Abs(pol.Cross[i]-ratio*pol.Plus[i]), 1e-12*cmplx.Abs(pol.Plus[i]))
	}
}

func TestAmplitudeScalesInverselyWithDistance(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	near := injection()
	far := injection()
	far[params.LuminosityDistance] = 400

	a, err := g.FrequencyDomainStrain(near)
	require.NoError(t, err)
	b, err := g.FrequencyDomainStrain(far)
	require.NoError(t, err)

	for _, i := range []int{0, 1000, 8000} {
		assert.InDelta(t, 4, cmplx.Abs(a.Plus[i])/cmplx.Abs(b.Plus[i]), 1e-9)
	}
}

func TestPhaseShiftIsGlobal(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	p := injection()
	shifted := injection()
	delta := 0.4
	shifted[params.Phase] += delta

	a, err := g.FrequencyDomainStrain(p)
	require.NoError(t, err)
	b, err := g.FrequencyDomainStrain(shifted)
	require.NoError(t, err)

	want := cmplx.Exp(complex(0, 2*delta))
	for _, i := range []int{0, 2000, 9000} {
		assert.InDelta(t, 0, cmplx.Abs(b.Plus[i]-want*a.Plus[i]), 1e-9*cmplx.Abs(a.Plus[i]))
	}
}

func TestStationaryPhaseTimeBeforeMerger(t *testing.T) {
	t.Parallel()

	m1, m2 := params.ComponentMasses(1.43, 0.833)
	pn := newPNCoefficients(m1, m2, 0, 0)

	timeAt := func(f float64) float64 {
		h := 1e-4
		return (pn.phase(f+h) - pn.phase(f-h)) / (2 * h) / (2 * math.Pi)
	}

	// A 1.43 Msun chirp mass binary spends about two minutes above 20 Hz
	assert.InDelta(t, -123.2, timeAt(20), 0.5)
	assert.InDelta(t, -1.668, timeAt(100), 0.01)
	assert.Less(t, timeAt(20), timeAt(30))
}

func TestAlignedSpinChangesPhase(t *testing.T) {
	t.Parallel()

	m1, m2 := params.ComponentMasses(1.43, 0.833)
	noSpin := newPNCoefficients(m1, m2, 0, 0)
	spin := newPNCoefficients(m1, m2, 0.05, 0.05)

	assert.NotEqual(t, noSpin.phase(50), spin.phase(50))
	assert.Greater(t, spin.c[3], noSpin.c[3])
}

func TestStrainRejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)

	p := injection()
	p[params.MassRatio] = 1.5
	_, err := g.FrequencyDomainStrain(p)
	require.Error(t, err)

	p = injection()
	delete(p, params.ChirpMass)
	_, err = g.FrequencyDomainStrain(p)
	require.Error(t, err)

	err = g.StrainInto(injection(), NewPolarizations(3))
	require.Error(t, err)
}

func TestParametersListsSourceNames(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(t)
	names := g.Parameters()
	assert.Contains(t, names, params.ChirpMass)
	assert.Contains(t, names, params.Phase)
	assert.NotContains(t, names, params.RA)
	assert.IsIncreasing(t, names)
}
