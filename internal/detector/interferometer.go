package detector

import (
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/waveform"
)

// Interferometer is a detector with its noise model and data segment.
type Interferometer struct {
	Name             string
	Geometry         Geometry
	PSD              *PowerSpectralDensity
	MinimumFrequency float64
	MaximumFrequency float64
	Strain           *StrainData

	site    site
	psdGrid []float64
}

// NewInterferometer builds a known detector with the given noise model and
// analysis band. fmax of 0 means Nyquist once strain data is set.
func NewInterferometer(name string, psd *PowerSpectralDensity, fmin, fmax float64) (*Interferometer, error) {
	g, err := LookupGeometry(name)
	if err != nil {
		return nil, err
	}
	if psd == nil {
		return nil, errors.Newf("detector %s has no power spectral density", g.Name).
			Category(errors.CategoryDetector).
			Component("detector").
			Build()
	}
	return &Interferometer{
		Name:             g.Name,
		Geometry:         g,
		PSD:              psd,
		MinimumFrequency: fmin,
		MaximumFrequency: fmax,
		site:             newSite(g),
	}, nil
}

func (ifo *Interferometer) newStrain(samplingFrequency, duration, startTime float64) (*StrainData, error) {
	s, err := NewStrainData(samplingFrequency, duration, startTime, ifo.MinimumFrequency, ifo.MaximumFrequency)
	if err != nil {
		return nil, err
	}
	if !ifo.PSD.Covers(s.MinimumFrequency, s.MaximumFrequency) {
		return nil, errors.Newf("%s noise curve covers [%g, %g] Hz but the analysis band is [%g, %g] Hz",
			ifo.Name, ifo.PSD.MinimumFrequency(), ifo.PSD.MaximumFrequency(), s.MinimumFrequency, s.MaximumFrequency).
			Category(errors.CategoryDetector).
			Component("detector").
			Context("detector", ifo.Name).
			Build()
	}
	ifo.psdGrid = ifo.PSD.OnGrid(s.Frequencies)
	return s, nil
}

// SetStrainDataFromPSD fills the segment with coloured Gaussian noise drawn
// from src. Each bin gets independent real and imaginary parts with standard
// deviation ½√T·ASD(f); DC and Nyquist are real, bins outside the noise
// curve are zero.
func (ifo *Interferometer) SetStrainDataFromPSD(src rand.Source, samplingFrequency, duration, startTime float64) error {
	s, err := ifo.newStrain(samplingFrequency, duration, startTime)
	if err != nil {
		return err
	}

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	scale := 0.5 * math.Sqrt(duration)
	last := len(s.FrequencyDomain) - 1
	for i := range s.FrequencyDomain {
		re, im := norm.Rand(), norm.Rand()
		psd := ifo.psdGrid[i]
		if math.IsInf(psd, 1) {
			continue
		}
		sigma := scale * math.Sqrt(psd)
		if i == 0 || i == last {
			im = 0
		}
		s.FrequencyDomain[i] = complex(sigma*re, sigma*im)
	}
	ifo.Strain = s
	return nil
}

// SetStrainDataZeroNoise sets an all-zero segment.
func (ifo *Interferometer) SetStrainDataZeroNoise(samplingFrequency, duration, startTime float64) error {
	s, err := ifo.newStrain(samplingFrequency, duration, startTime)
	if err != nil {
		return err
	}
	ifo.Strain = s
	return nil
}

// PSDArray returns the PSD on the strain frequency grid. Callers must not
// modify it.
func (ifo *Interferometer) PSDArray() []float64 { return ifo.psdGrid }

// ASDArray returns the amplitude spectral density on the strain grid.
func (ifo *Interferometer) ASDArray() []float64 {
	out := make([]float64, len(ifo.psdGrid))
	for i, p := range ifo.psdGrid {
		out[i] = math.Sqrt(p)
	}
	return out
}

// Weights returns 4Δf/S(f) over the generator band, zero outside the
// detector's analysis band.
func (ifo *Interferometer) Weights(band waveform.Band) []float64 {
	w := make([]float64, band.Length)
	df := ifo.Strain.DeltaF()
	for i := range w {
		k := band.Start + i
		if k >= len(ifo.psdGrid) || !ifo.Strain.InBand(k) {
			continue
		}
		if psd := ifo.psdGrid[k]; !math.IsInf(psd, 1) {
			w[i] = 4 * df / psd
		}
	}
	return w
}

// Data returns the strain bins covered by band.
func (ifo *Interferometer) Data(band waveform.Band) []complex128 {
	return ifo.Strain.FrequencyDomain[band.Start : band.Start+band.Length]
}

// ResponseInto projects polarizations onto the detector, writing the
// observed strain over the band into out. The signal is shifted to arrive
// at geocent_time plus the geocentre-to-detector delay.
func (ifo *Interferometer) ResponseInto(pol *waveform.Polarizations, band waveform.Band, freqs []float64, p params.Parameters, out []complex128) {
	ra, dec, psi, tgeo := p[params.RA], p[params.Dec], p[params.Psi], p[params.GeocentTime]
	fPlus, fCross := ifo.antennaPattern(ra, dec, tgeo, psi)
	dt := tgeo + ifo.TimeDelayFromGeocenter(ra, dec, tgeo) - ifo.Strain.StartTime

	cp, cc := complex(fPlus, 0), complex(fCross, 0)
	for i := range out {
		h := cp*pol.Plus[i] + cc*pol.Cross[i]
		if h == 0 {
			out[i] = 0
			continue
		}
		sin, cos := math.Sincos(-2 * math.Pi * freqs[band.Start+i] * dt)
		out[i] = h * complex(cos, sin)
	}
}

// InnerProduct returns Σ w a* b.
func InnerProduct(a, b []complex128, weights []float64) complex128 {
	var sum complex128
	for i, w := range weights {
		if w == 0 {
			continue
		}
		sum += complex(w, 0) * cmplx.Conj(a[i]) * b[i]
	}
	return sum
}

// SquaredNorm returns Σ w |a|².
func SquaredNorm(a []complex128, weights []float64) float64 {
	var sum float64
	for i, w := range weights {
		if w == 0 {
			continue
		}
		re, im := real(a[i]), imag(a[i])
		sum += w * (re*re + im*im)
	}
	return sum
}

// Injection reports the signal added to one detector.
type Injection struct {
	Detector         string
	OptimalSNR       float64
	MatchedFilterSNR complex128
}

func (ifo *Interferometer) checkGenerator(gen *waveform.Generator) error {
	if ifo.Strain == nil {
		return errors.Newf("detector %s has no strain data", ifo.Name).
			Category(errors.CategoryDetector).
			Component("detector").
			Build()
	}
	cfg := gen.Config()
	if cfg.Duration != ifo.Strain.Duration || cfg.SamplingFrequency != ifo.Strain.SamplingFrequency {
		return errors.Newf("waveform grid (%g s at %g Hz) does not match %s data (%g s at %g Hz)",
			cfg.Duration, cfg.SamplingFrequency, ifo.Name, ifo.Strain.Duration, ifo.Strain.SamplingFrequency).
			Category(errors.CategoryValidation).
			Component("detector").
			Build()
	}
	return nil
}

// InjectSignal adds the projected waveform to the stored strain in place.
func (ifo *Interferometer) InjectSignal(gen *waveform.Generator, p params.Parameters) (Injection, error) {
	if err := ifo.checkGenerator(gen); err != nil {
		return Injection{}, err
	}
	if missing := params.Missing(p, params.ExtrinsicNames); len(missing) > 0 {
		return Injection{}, errors.Newf("injection parameters missing: %v", missing).
			Category(errors.CategoryInjection).
			Component("detector").
			Build()
	}
	pol, err := gen.FrequencyDomainStrain(p)
	if err != nil {
		return Injection{}, errors.New(err).
			Category(errors.CategoryInjection).
			Component("detector").
			Context("detector", ifo.Name).
			Build()
	}

	band := gen.Band()
	signal := make([]complex128, band.Length)
	ifo.ResponseInto(pol, band, gen.Frequencies(), p, signal)

	data := ifo.Data(band)
	for i, h := range signal {
		data[i] += h
	}

	weights := ifo.Weights(band)
	inj := Injection{Detector: ifo.Name}
	if hh := SquaredNorm(signal, weights); hh > 0 {
		inj.OptimalSNR = math.Sqrt(hh)
		inj.MatchedFilterSNR = InnerProduct(signal, data, weights) / complex(inj.OptimalSNR, 0)
	}
	return inj, nil
}
