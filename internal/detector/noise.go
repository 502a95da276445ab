package detector

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/patrickmn/go-cache"
	"gonum.org/v1/gonum/interp"

	"github.com/tphakala/gwpe/internal/atomicfile"
	"github.com/tphakala/gwpe/internal/errors"
)

// NoiseCurve is an amplitude spectral density sampled on a strictly
// increasing frequency grid.
type NoiseCurve struct {
	Source      string
	Frequencies []float64
	ASD         []float64
}

// curveCache holds parsed noise curves keyed by absolute path. Curves never
// expire because the files are read once per process.
var curveCache = cache.New(cache.NoExpiration, 0)

// LoadNoiseCurve reads a two-column (frequency, ASD) text file. Results are
// cached, so detectors sharing a file share one parsed curve.
func LoadNoiseCurve(path string) (*NoiseCurve, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("detector").
			FileContext(path, 0).
			Build()
	}
	if cached, found := curveCache.Get(abs); found {
		if curve, ok := cached.(*NoiseCurve); ok {
			return curve, nil
		}
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("detector").
			Context("operation", "open_noise_curve").
			FileContext(abs, 0).
			Build()
	}
	defer f.Close()

	curve, err := ParseNoiseCurve(f, abs)
	if err != nil {
		return nil, err
	}
	curveCache.Set(abs, curve, cache.NoExpiration)
	return curve, nil
}

// ResetNoiseCurveCache drops every cached curve.
func ResetNoiseCurveCache() {
	curveCache.Flush()
}

// ParseNoiseCurve parses whitespace- or comma-separated (frequency, ASD)
// rows. Blank lines and lines starting with '#' or '%' are skipped.
func ParseNoiseCurve(r io.Reader, source string) (*NoiseCurve, error) {
	curve := &NoiseCurve{Source: source}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	parseErr := func(format string, args ...any) error {
		return errors.Newf("%s:%d: "+format, append([]any{source, lineNo}, args...)...).
			Category(errors.CategoryFileParsing).
			Component("detector").
			Context("source", source).
			Context("line", lineNo).
			Build()
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 2 {
			return nil, parseErr("expected two columns, got %d", len(fields))
		}
		freq, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, parseErr("invalid frequency %q", fields[0])
		}
		asd, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, parseErr("invalid amplitude spectral density %q", fields[1])
		}
		if math.IsNaN(freq) || math.IsInf(freq, 0) || freq < 0 {
			return nil, parseErr("frequency must be finite and non-negative, got %g", freq)
		}
		if !(asd > 0) || math.IsInf(asd, 0) {
			return nil, parseErr("amplitude spectral density must be finite and positive, got %g", asd)
		}
		if n := len(curve.Frequencies); n > 0 && freq <= curve.Frequencies[n-1] {
			return nil, parseErr("frequencies must be strictly increasing, %g follows %g", freq, curve.Frequencies[n-1])
		}
		curve.Frequencies = append(curve.Frequencies, freq)
		curve.ASD = append(curve.ASD, asd)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("detector").
			Context("source", source).
			Build()
	}
	if len(curve.Frequencies) < 2 {
		return nil, errors.Newf("noise curve %s has %d rows, need at least 2", source, len(curve.Frequencies)).
			Category(errors.CategoryFileParsing).
			Component("detector").
			Context("source", source).
			Build()
	}
	return curve, nil
}

// WriteNoiseCurve writes a curve as two-column text.
func WriteNoiseCurve(path string, curve *NoiseCurve) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# frequency [Hz]  ASD [1/sqrt(Hz)]\n")
	for i, f := range curve.Frequencies {
		fmt.Fprintf(&b, "%.10e %.10e\n", f, curve.ASD[i])
	}
	if err := atomicfile.Write(path, []byte(b.String()), 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Component("detector").
			FileContext(path, 0).
			Build()
	}
	return nil
}

// PowerSpectralDensity is PSD = ASD² on the curve grid, linearly
// interpolated in between and infinite outside the covered range.
type PowerSpectralDensity struct {
	Frequencies []float64
	Values      []float64
	fit         interp.PiecewiseLinear
}

// NewPowerSpectralDensity squares the curve element-wise.
func NewPowerSpectralDensity(curve *NoiseCurve) (*PowerSpectralDensity, error) {
	psd := &PowerSpectralDensity{
		Frequencies: slices.Clone(curve.Frequencies),
		Values:      make([]float64, len(curve.ASD)),
	}
	for i, a := range curve.ASD {
		psd.Values[i] = a * a
	}
	if err := psd.fit.Fit(psd.Frequencies, psd.Values); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Component("detector").
			Context("source", curve.Source).
			Build()
	}
	return psd, nil
}

// MinimumFrequency is the lowest frequency covered by the curve.
func (p *PowerSpectralDensity) MinimumFrequency() float64 { return p.Frequencies[0] }

// MaximumFrequency is the highest frequency covered by the curve.
func (p *PowerSpectralDensity) MaximumFrequency() float64 {
	return p.Frequencies[len(p.Frequencies)-1]
}

// At returns the PSD at f, or +Inf outside the curve.
func (p *PowerSpectralDensity) At(f float64) float64 {
	if f < p.MinimumFrequency() || f > p.MaximumFrequency() {
		return math.Inf(1)
	}
	return p.fit.Predict(f)
}

// ASDAt returns the amplitude spectral density at f.
func (p *PowerSpectralDensity) ASDAt(f float64) float64 {
	return math.Sqrt(p.At(f))
}

// OnGrid evaluates the PSD at each frequency.
func (p *PowerSpectralDensity) OnGrid(freqs []float64) []float64 {
	out := make([]float64, len(freqs))
	for i, f := range freqs {
		out[i] = p.At(f)
	}
	return out
}

// Covers reports whether the curve spans [fmin, fmax].
func (p *PowerSpectralDensity) Covers(fmin, fmax float64) bool {
	return p.MinimumFrequency() <= fmin && p.MaximumFrequency() >= fmax
}
