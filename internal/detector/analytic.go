package detector

import (
	"math"
	"slices"
	"strings"

	"github.com/tphakala/gwpe/internal/errors"
)

// Analytic design-sensitivity fits, PSD in 1/Hz.
var analyticPSDs = map[string]func(f float64) float64{
	// Advanced LIGO zero-detuned high-power fit
	"aligo": func(f float64) float64 {
		x := f / 215
		x2 := x * x
		return 1e-49 * (math.Pow(x, -4.14) - 5/x2 + 111*(1-x2+x2*x2/2)/(1+x2/2))
	},
	// Advanced Virgo design fit
	"avirgo": func(f float64) float64 {
		x := math.Log(f / 300)
		return 1.25e-47 * (0.07*math.Exp(-0.142-1.437*x+0.407*x*x) +
			3.10*math.Exp(-0.466-1.043*x-0.548*x*x) +
			0.40*math.Exp(-0.304+2.896*x-0.293*x*x) +
			0.09*math.Exp(1.466+3.722*x-0.984*x*x))
	},
}

// AnalyticCurves returns the names accepted by AnalyticNoiseCurve.
func AnalyticCurves() []string {
	names := make([]string, 0, len(analyticPSDs))
	for name := range analyticPSDs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AnalyticNoiseCurve samples a design-sensitivity fit on n logarithmically
// spaced frequencies in [fmin, fmax].
func AnalyticNoiseCurve(name string, fmin, fmax float64, n int) (*NoiseCurve, error) {
	psd, ok := analyticPSDs[strings.ToLower(name)]
	if !ok {
		return nil, errors.Newf("unknown analytic noise curve %q, expected one of %v", name, AnalyticCurves()).
			Category(errors.CategoryConfiguration).
			Component("detector").
			Build()
	}
	if !(fmin > 0) || fmax <= fmin || n < 2 {
		return nil, errors.Newf("invalid analytic curve range [%g, %g] with %d points", fmin, fmax, n).
			Category(errors.CategoryValidation).
			Component("detector").
			Build()
	}

	curve := &NoiseCurve{
		Source:      "analytic:" + strings.ToLower(name),
		Frequencies: make([]float64, n),
		ASD:         make([]float64, n),
	}
	step := math.Log(fmax/fmin) / float64(n-1)
	for i := range n {
		f := fmin * math.Exp(step*float64(i))
		if i == n-1 {
			f = fmax
		}
		curve.Frequencies[i] = f
		curve.ASD[i] = math.Sqrt(psd(f))
	}
	return curve, nil
}
