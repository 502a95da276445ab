// Package likelihood evaluates the Whittle likelihood of detector data
// given a compact binary signal, with optional analytic marginalisation
// over phase, coalescence time and luminosity distance.
package likelihood

import (
	"math"
	"math/cmplx"
	"slices"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
	"github.com/tphakala/gwpe/internal/waveform"
)

// Options selects the analytic marginalisations.
type Options struct {
	PhaseMarginalization    bool
	TimeMarginalization     bool
	DistanceMarginalization bool
	// DistanceGridSize is the number of distance samples used when
	// marginalising over luminosity distance.
	DistanceGridSize int
}

const defaultDistanceGridSize = 400

// ifoData caches what a detector contributes to every evaluation.
type ifoData struct {
	ifo     *detector.Interferometer
	data    []complex128
	weights []float64
}

// workspace holds per-evaluation buffers.
type workspace struct {
	pol      *waveform.Polarizations
	response []complex128
	series   []complex128 // time marginalisation input, full length
	fft      *fourier.CmplxFFT
}

// GravitationalWaveTransient is the likelihood of a transient signal in a
// detector network. It holds no mutable state after construction and is
// safe for concurrent use.
type GravitationalWaveTransient struct {
	network  *detector.Network
	gen      *waveform.Generator
	priors   *prior.Dict
	opts     Options
	band     waveform.Band
	ifos     []ifoData
	required []string

	// pinned holds the reference values substituted for marginalised parameters.
	pinned params.Parameters

	noiseLogL float64

	// time marginalisation
	nSamples    int
	timeOffsets []int     // sample offsets from the reference time
	timeLogW    []float64 // log prior weight per offset

	// distance marginalisation
	distanceRatios []float64 // reference distance / grid distance
	distanceLogW   []float64

	pool sync.Pool
}

// New binds a network, waveform generator and prior dictionary. It fails
// when a parameter the waveform or projection needs is neither in the prior
// nor marginalised, or when a marginalised parameter has no usable prior.
func New(network *detector.Network, gen *waveform.Generator, priors *prior.Dict, opts Options) (*GravitationalWaveTransient, error) {
	cfg := gen.Config()
	if cfg.Duration != network.Duration() || cfg.SamplingFrequency != network.SamplingFrequency() {
		return nil, errors.Newf("waveform grid (%g s at %g Hz) does not match network data (%g s at %g Hz)",
			cfg.Duration, cfg.SamplingFrequency, network.Duration(), network.SamplingFrequency()).
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}
	if opts.DistanceGridSize <= 0 {
		opts.DistanceGridSize = defaultDistanceGridSize
	}

	l := &GravitationalWaveTransient{
		network: network,
		gen:     gen,
		opts:    opts,
		band:    gen.Band(),
		pinned:  make(params.Parameters),
	}

	l.required = append(gen.Parameters(), params.ExtrinsicNames...)
	slices.Sort(l.required)
	l.required = slices.Compact(l.required)

	marginalised := map[string]bool{
		params.Phase:              opts.PhaseMarginalization,
		params.GeocentTime:        opts.TimeMarginalization,
		params.LuminosityDistance: opts.DistanceMarginalization,
	}
	var missing []string
	for _, name := range l.required {
		if !priors.Has(name) && !marginalised[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Newf("parameters %v have no prior and are not marginalised", missing).
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Context("missing", missing).
			Build()
	}

	pinned := priors
	if opts.PhaseMarginalization {
		l.pinned[params.Phase] = 0
		pinned = pinned.WithFixed(params.Phase, 0)
	}
	if opts.TimeMarginalization {
		ref, err := l.setupTime(priors)
		if err != nil {
			return nil, err
		}
		pinned = pinned.WithFixed(params.GeocentTime, ref)
	}
	if opts.DistanceMarginalization {
		ref, err := l.setupDistance(priors)
		if err != nil {
			return nil, err
		}
		pinned = pinned.WithFixed(params.LuminosityDistance, ref)
	}
	l.priors = pinned

	for _, ifo := range network.Interferometers() {
		d := ifoData{
			ifo:     ifo,
			data:    ifo.Data(l.band),
			weights: ifo.Weights(l.band),
		}
		l.noiseLogL -= 0.5 * detector.SquaredNorm(d.data, d.weights)
		l.ifos = append(l.ifos, d)
	}

	l.pool.New = func() any {
		ws := &workspace{
			pol:      waveform.NewPolarizations(l.band.Length),
			response: make([]complex128, l.band.Length),
		}
		if l.opts.TimeMarginalization {
			ws.series = make([]complex128, l.nSamples)
			ws.fft = fourier.NewCmplxFFT(l.nSamples)
		}
		return ws
	}
	return l, nil
}

func (l *GravitationalWaveTransient) setupTime(priors *prior.Dict) (float64, error) {
	p, ok := priors.Get(params.GeocentTime)
	if !ok || p.IsFixed() {
		return 0, errors.Newf("time marginalisation needs a bounded geocent_time prior").
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}
	fs := l.network.SamplingFrequency()
	start, end := l.network.StartTime(), l.network.StartTime()+l.network.Duration()
	if p.Minimum() < start || p.Maximum() > end {
		return 0, errors.Newf("geocent_time prior [%g, %g] exceeds the data segment [%g, %g]", p.Minimum(), p.Maximum(), start, end).
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}

	ref := p.Minimum()
	l.pinned[params.GeocentTime] = ref
	l.nSamples = int(math.Round(fs * l.network.Duration()))

	// Shifts are circular, so offset nSamples would alias offset 0.
	steps := min(int(math.Floor((p.Maximum()-ref)*fs)), l.nSamples-1)
	for j := 0; j <= steps; j++ {
		lp := p.LnProb(ref + float64(j)/fs)
		if math.IsInf(lp, -1) {
			continue
		}
		l.timeOffsets = append(l.timeOffsets, j)
		l.timeLogW = append(l.timeLogW, lp)
	}
	if len(l.timeOffsets) == 0 {
		return 0, errors.Newf("geocent_time prior has no support on the sample grid").
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}
	normalise(l.timeLogW)
	return ref, nil
}

func (l *GravitationalWaveTransient) setupDistance(priors *prior.Dict) (float64, error) {
	p, ok := priors.Get(params.LuminosityDistance)
	if !ok || p.IsFixed() {
		return 0, errors.Newf("distance marginalisation needs a bounded luminosity_distance prior").
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}

	ref := p.Rescale(0.5)
	l.pinned[params.LuminosityDistance] = ref

	n := l.opts.DistanceGridSize
	lo := math.Max(p.Minimum(), p.Maximum()*1e-3)
	step := (p.Maximum() - lo) / float64(n-1)
	for j := range n {
		d := lo + float64(j)*step
		lp := p.LnProb(d)
		if math.IsInf(lp, -1) {
			continue
		}
		l.distanceRatios = append(l.distanceRatios, ref/d)
		l.distanceLogW = append(l.distanceLogW, lp)
	}
	if len(l.distanceRatios) == 0 {
		return 0, errors.Newf("luminosity_distance prior has no support on the marginalisation grid").
			Category(errors.CategoryLikelihood).
			Component("likelihood").
			Build()
	}
	normalise(l.distanceLogW)
	return ref, nil
}

// normalise shifts log weights so that they sum to one.
func normalise(logW []float64) {
	if len(logW) == 0 {
		return
	}
	total := floats.LogSumExp(logW)
	for i := range logW {
		logW[i] -= total
	}
}

// Priors returns the prior with every marginalised parameter pinned to its
// reference value. Its sampled keys are the dimensions the sampler explores.
func (l *GravitationalWaveTransient) Priors() *prior.Dict { return l.priors }

// RequiredParameters lists what the waveform and projection consume.
func (l *GravitationalWaveTransient) RequiredParameters() []string {
	return slices.Clone(l.required)
}

// Options returns the marginalisation settings.
func (l *GravitationalWaveTransient) Options() Options { return l.opts }

// NoiseLogLikelihood is the log likelihood of the data under the noise-only
// hypothesis, up to the usual normalisation constant.
func (l *GravitationalWaveTransient) NoiseLogLikelihood() float64 { return l.noiseLogL }

// LogLikelihood returns NoiseLogLikelihood plus LogLikelihoodRatio.
func (l *GravitationalWaveTransient) LogLikelihood(p params.Parameters) float64 {
	return l.noiseLogL + l.LogLikelihoodRatio(p)
}

// LogLikelihoodRatio returns the log likelihood ratio of signal to noise,
// marginalised as configured. Invalid parameters give -Inf.
func (l *GravitationalWaveTransient) LogLikelihoodRatio(p params.Parameters) float64 {
	if len(l.pinned) > 0 {
		p = p.Merge(l.pinned)
	}

	ws := l.pool.Get().(*workspace)
	defer l.pool.Put(ws)

	if err := l.gen.StrainInto(p, ws.pol); err != nil {
		return math.Inf(-1)
	}

	if ws.series != nil {
		clear(ws.series)
	}
	freqs := l.gen.Frequencies()
	var (
		hh float64
		dh complex128
	)
	for _, d := range l.ifos {
		d.ifo.ResponseInto(ws.pol, l.band, freqs, p, ws.response)
		hh += detector.SquaredNorm(ws.response, d.weights)
		if ws.series == nil {
			dh += detector.InnerProduct(d.data, ws.response, d.weights)
			continue
		}
		for i, w := range d.weights {
			if w == 0 {
				continue
			}
			ws.series[l.band.Start+i] += complex(w, 0) * cmplx.Conj(d.data[i]) * ws.response[i]
		}
	}

	switch {
	case l.opts.TimeMarginalization:
		return l.timeMarginalised(ws, hh)
	case l.opts.DistanceMarginalization:
		return l.distanceMarginalised(dh, hh)
	default:
		return l.overlap(dh) - 0.5*hh
	}
}

// overlap is Re<d,h>, or ln I0(|<d,h>|) when phase is marginalised.
func (l *GravitationalWaveTransient) overlap(dh complex128) float64 {
	if l.opts.PhaseMarginalization {
		return logI0(cmplx.Abs(dh))
	}
	return real(dh)
}

func (l *GravitationalWaveTransient) distanceMarginalised(dh complex128, hh float64) float64 {
	terms := make([]float64, len(l.distanceRatios))
	for j, r := range l.distanceRatios {
		terms[j] = l.overlap(dh*complex(r, 0)) - 0.5*hh*r*r + l.distanceLogW[j]
	}
	return floats.LogSumExp(terms)
}

func (l *GravitationalWaveTransient) timeMarginalised(ws *workspace, hh float64) float64 {
	// z_j = Σ_k c_k e^{-2πi jk/N} is <d,h> with h delayed by j samples
	z := ws.fft.Coefficients(nil, ws.series)

	if !l.opts.DistanceMarginalization {
		terms := make([]float64, len(l.timeOffsets))
		for i, j := range l.timeOffsets {
			terms[i] = l.overlap(z[j]) - 0.5*hh + l.timeLogW[i]
		}
		return floats.LogSumExp(terms)
	}

	perDistance := make([]float64, len(l.timeOffsets))
	terms := make([]float64, len(l.distanceRatios))
	for k, r := range l.distanceRatios {
		for i, j := range l.timeOffsets {
			perDistance[i] = l.overlap(z[j]*complex(r, 0)) + l.timeLogW[i]
		}
		terms[k] = floats.LogSumExp(perDistance) - 0.5*hh*r*r + l.distanceLogW[k]
	}
	return floats.LogSumExp(terms)
}
