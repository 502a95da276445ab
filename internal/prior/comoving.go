package prior

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/interp"

	"github.com/tphakala/gwpe/internal/cosmology"
	"github.com/tphakala/gwpe/internal/errors"
)

const comovingGridSize = 1000

// UniformComovingVolume is a luminosity-distance prior for sources spread
// uniformly in comoving volume under a flat ΛCDM cosmology.
type UniformComovingVolume struct {
	base
	Cosmology cosmology.FlatLambdaCDM

	norm    float64
	density interp.PiecewiseLinear
	inverse interp.PiecewiseLinear
}

// NewUniformComovingVolume tabulates the density and its inverse CDF on
// [minimum, maximum] Mpc using Planck15.
func NewUniformComovingVolume(name string, minimum, maximum float64, boundary Boundary) (*UniformComovingVolume, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	if minimum < 0 {
		return nil, errors.Newf("prior %s: luminosity distance minimum must be non-negative, got %g", name, minimum).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}

	c := cosmology.Planck15
	grid, err := cosmology.NewDistanceGrid(c, maximum, comovingGridSize)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryPrior).
			Component("prior").
			Context("parameter", name).
			Build()
	}

	p := &UniformComovingVolume{base: base{name, minimum, maximum, boundary}, Cosmology: c}
	if err := p.density.Fit(grid.Distances, grid.VolumeDensity); err != nil {
		return nil, err
	}

	distances := make([]float64, comovingGridSize)
	cdf := make([]float64, comovingGridSize)
	step := (maximum - minimum) / float64(comovingGridSize-1)
	prev := 0.0
	for i := range distances {
		d := minimum + float64(i)*step
		if i == comovingGridSize-1 {
			d = maximum
		}
		distances[i] = d
		pdf := p.density.Predict(d)
		if i > 0 {
			cdf[i] = cdf[i-1] + 0.5*(prev+pdf)*(d-distances[i-1])
		}
		prev = pdf
	}
	p.norm = cdf[len(cdf)-1]
	if !(p.norm > 0) {
		return nil, errors.Newf("prior %s: comoving volume between %g and %g Mpc is empty", name, minimum, maximum).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}
	for i := range cdf {
		cdf[i] /= p.norm
	}
	if err := p.inverse.Fit(cdf, distances); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryPrior).
			Component("prior").
			Context("parameter", name).
			Build()
	}
	return p, nil
}

func (p *UniformComovingVolume) Rescale(u float64) float64 {
	return p.inverse.Predict(u)
}

func (p *UniformComovingVolume) LnProb(x float64) float64 {
	if !inSupport(x, p.minimum, p.maximum) {
		return math.Inf(-1)
	}
	return math.Log(p.density.Predict(x) / p.norm)
}

func (p *UniformComovingVolume) Sample(rng *rand.Rand) float64 { return p.Rescale(rng.Float64()) }
