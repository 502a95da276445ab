package detector

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/gwpe/internal/errors"
)

// StrainData is a detector data segment held in the frequency domain with
// the continuous Fourier convention h(f) = Δt Σ x_k e^{-2πi f t_k}.
type StrainData struct {
	SamplingFrequency float64
	Duration          float64
	StartTime         float64
	MinimumFrequency  float64
	MaximumFrequency  float64
	Frequencies       []float64
	FrequencyDomain   []complex128
}

// NewStrainData allocates an all-zero segment. The number of samples must be
// an even integer and the analysis band must fit below Nyquist.
func NewStrainData(samplingFrequency, duration, startTime, fmin, fmax float64) (*StrainData, error) {
	if !(samplingFrequency > 0) || !(duration > 0) {
		return nil, errors.Newf("sampling frequency and duration must be positive, got %g Hz and %g s", samplingFrequency, duration).
			Category(errors.CategoryValidation).
			Component("detector").
			Build()
	}
	n := samplingFrequency * duration
	if n != math.Trunc(n) || int(n)%2 != 0 {
		return nil, errors.Newf("sampling_frequency * duration must be an even integer, got %g", n).
			Category(errors.CategoryValidation).
			Component("detector").
			Context("sampling_frequency", samplingFrequency).
			Context("duration", duration).
			Build()
	}
	nyquist := samplingFrequency / 2
	if fmax <= 0 || fmax > nyquist {
		fmax = nyquist
	}
	if fmin < 0 || fmin >= fmax {
		return nil, errors.Newf("minimum frequency %g must lie in [0, %g)", fmin, fmax).
			Category(errors.CategoryValidation).
			Component("detector").
			Build()
	}

	bins := int(n)/2 + 1
	freqs := make([]float64, bins)
	for i := range freqs {
		freqs[i] = float64(i) / duration
	}
	return &StrainData{
		SamplingFrequency: samplingFrequency,
		Duration:          duration,
		StartTime:         startTime,
		MinimumFrequency:  fmin,
		MaximumFrequency:  fmax,
		Frequencies:       freqs,
		FrequencyDomain:   make([]complex128, bins),
	}, nil
}

// NumSamples is the length of the time series.
func (s *StrainData) NumSamples() int {
	return int(math.Round(s.SamplingFrequency * s.Duration))
}

// DeltaF is the frequency resolution.
func (s *StrainData) DeltaF() float64 { return 1 / s.Duration }

// InBand reports whether bin i lies in [MinimumFrequency, MaximumFrequency].
func (s *StrainData) InBand(i int) bool {
	f := s.Frequencies[i]
	return f >= s.MinimumFrequency && f <= s.MaximumFrequency
}

// Aligned reports whether two segments share start time, duration and rate.
func (s *StrainData) Aligned(other *StrainData) bool {
	return s.StartTime == other.StartTime &&
		s.Duration == other.Duration &&
		s.SamplingFrequency == other.SamplingFrequency
}

// fftPool caches real FFT plans by length. Plans are not safe for
// concurrent use, so each caller takes its own.
var fftPool sync.Map // map[int]*sync.Pool

func getFFT(n int) *fourier.FFT {
	p, _ := fftPool.LoadOrStore(n, &sync.Pool{New: func() any { return fourier.NewFFT(n) }})
	return p.(*sync.Pool).Get().(*fourier.FFT)
}

func putFFT(n int, fft *fourier.FFT) {
	if p, ok := fftPool.Load(n); ok {
		p.(*sync.Pool).Put(fft)
	}
}

// TimeDomain returns the inverse transform of the frequency-domain strain.
func (s *StrainData) TimeDomain() []float64 {
	n := s.NumSamples()
	fft := getFFT(n)
	defer putFFT(n, fft)

	out := fft.Sequence(nil, s.FrequencyDomain)
	scale := s.SamplingFrequency / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// TukeyWindow returns a tapered cosine window with taper fraction alpha.
// alpha <= 0 gives a rectangular window, alpha >= 1 a Hann window.
func TukeyWindow(n int, alpha float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	if alpha <= 0 || n < 2 {
		return w
	}
	alpha = math.Min(alpha, 1)
	width := alpha * float64(n-1) / 2
	for i := range n {
		x := float64(i)
		switch {
		case x < width:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(x/width-1)))
		case x > float64(n-1)-width:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*((x-float64(n-1))/width+1)))
		}
	}
	return w
}
