// Package waveform generates frequency-domain gravitational-wave polarisations
// for compact binary inspirals.
package waveform

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
)

// approximants maps accepted approximant names to models.
var approximants = map[string]model{
	"taylorf2":                 taylorF2{},
	"taylorf2threepointfivepn": taylorF2{},
}

// Approximants returns the accepted approximant names, sorted.
func Approximants() []string {
	names := []string{"TaylorF2", "TaylorF2ThreePointFivePN"}
	slices.Sort(names)
	return names
}

type model interface {
	name() string
	strain(freqs []float64, band Band, fref float64, p params.Parameters, pol *Polarizations) error
}

// intrinsicNames are the source parameters a waveform call consumes.
// phi_12 and phi_jl belong to the precessing parameterisation and are
// accepted for every model even when it only uses aligned components.
var intrinsicNames = []string{
	params.ChirpMass, params.MassRatio,
	params.A1, params.A2, params.Tilt1, params.Tilt2, params.Phi12, params.PhiJL,
	params.LuminosityDistance, params.ThetaJN, params.Phase,
}

// Band is the contiguous range of frequency bins the generator fills.
type Band struct {
	Start        int // index of the first bin
	Length       int
	MinFrequency float64
	MaxFrequency float64
}

// Polarizations holds h+ and hx over the generator band.
// Index i corresponds to frequency bin Band.Start+i.
type Polarizations struct {
	Plus  []complex128
	Cross []complex128
}

// NewPolarizations allocates buffers for n bins.
func NewPolarizations(n int) *Polarizations {
	return &Polarizations{
		Plus:  make([]complex128, n),
		Cross: make([]complex128, n),
	}
}

// Config holds the settings bound into a Generator.
type Config struct {
	Duration           float64
	SamplingFrequency  float64
	Approximant        string
	ReferenceFrequency float64
	MinimumFrequency   float64
	MaximumFrequency   float64 // 0 means Nyquist
}

// Generator evaluates a waveform model on the frequency grid of a data segment.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	cfg         Config
	model       model
	frequencies []float64
	band        Band
}

// NewGenerator validates cfg and precomputes the frequency grid.
func NewGenerator(cfg Config) (*Generator, error) {
	m, ok := approximants[strings.ToLower(cfg.Approximant)]
	if !ok {
		return nil, errors.Newf("unknown waveform approximant %q, expected one of %v", cfg.Approximant, Approximants()).
			Category(errors.CategoryConfiguration).
			Component("waveform").
			Build()
	}
	if cfg.Duration <= 0 || cfg.SamplingFrequency <= 0 {
		return nil, errors.Newf("duration and sampling frequency must be positive, got %g s and %g Hz", cfg.Duration, cfg.SamplingFrequency).
			Category(errors.CategoryConfiguration).
			Component("waveform").
			Build()
	}

	n := cfg.Duration * cfg.SamplingFrequency
	if n != math.Trunc(n) {
		return nil, errors.Newf("duration * sampling frequency must be an integer, got %g", n).
			Category(errors.CategoryConfiguration).
			Component("waveform").
			Build()
	}

	nyquist := cfg.SamplingFrequency / 2
	if cfg.MaximumFrequency == 0 || cfg.MaximumFrequency > nyquist {
		cfg.MaximumFrequency = nyquist
	}
	if cfg.MinimumFrequency <= 0 || cfg.MinimumFrequency >= cfg.MaximumFrequency {
		return nil, errors.Newf("minimum frequency must lie in (0, %g), got %g", cfg.MaximumFrequency, cfg.MinimumFrequency).
			Category(errors.CategoryConfiguration).
			Component("waveform").
			Build()
	}
	if cfg.ReferenceFrequency <= 0 {
		cfg.ReferenceFrequency = cfg.MinimumFrequency
	}

	freqs := FrequencyArray(cfg.SamplingFrequency, cfg.Duration)
	df := 1 / cfg.Duration
	start := int(math.Ceil(cfg.MinimumFrequency/df - 1e-9))
	stop := min(int(math.Floor(cfg.MaximumFrequency/df+1e-9)), len(freqs)-1)

	return &Generator{
		cfg:         cfg,
		model:       m,
		frequencies: freqs,
		band: Band{
			Start:        start,
			Length:       stop - start + 1,
			MinFrequency: cfg.MinimumFrequency,
			MaxFrequency: cfg.MaximumFrequency,
		},
	}, nil
}

// FrequencyArray returns the n/2+1 one-sided frequencies of a segment.
func FrequencyArray(samplingFrequency, duration float64) []float64 {
	n := int(math.Round(samplingFrequency * duration))
	freqs := make([]float64, n/2+1)
	for i := range freqs {
		freqs[i] = float64(i) / duration
	}
	return freqs
}

// Config returns the generator settings with defaults resolved.
func (g *Generator) Config() Config { return g.cfg }

// Frequencies returns the full one-sided frequency grid. Callers must not modify it.
func (g *Generator) Frequencies() []float64 { return g.frequencies }

// Band returns the bins filled by FrequencyDomainStrain.
func (g *Generator) Band() Band { return g.band }

// Approximant returns the canonical model name.
func (g *Generator) Approximant() string { return g.model.name() }

// Parameters returns the source parameters consumed by the generator, sorted.
func (g *Generator) Parameters() []string {
	names := slices.Clone(intrinsicNames)
	slices.Sort(names)
	return names
}

// FrequencyDomainStrain returns newly allocated polarisations over the band.
func (g *Generator) FrequencyDomainStrain(p params.Parameters) (*Polarizations, error) {
	pol := NewPolarizations(g.band.Length)
	if err := g.StrainInto(p, pol); err != nil {
		return nil, err
	}
	return pol, nil
}

// StrainInto fills pol, which must hold Band().Length bins.
func (g *Generator) StrainInto(p params.Parameters, pol *Polarizations) error {
	if len(pol.Plus) != g.band.Length || len(pol.Cross) != g.band.Length {
		return fmt.Errorf("polarization buffers hold %d bins, generator band has %d", len(pol.Plus), g.band.Length)
	}
	if missing := params.Missing(p, []string{params.ChirpMass, params.MassRatio, params.LuminosityDistance}); len(missing) > 0 {
		return errors.Newf("waveform parameters missing: %v", missing).
			Category(errors.CategoryWaveform).
			Component("waveform").
			Build()
	}
	return g.model.strain(g.frequencies, g.band, g.cfg.ReferenceFrequency, p, pol)
}
