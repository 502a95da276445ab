// Package prior implements one-dimensional priors over source parameters and
// the joint prior dictionary sampled by the nested sampler.
package prior

import (
	"math"
	"math/rand/v2"

	"github.com/tphakala/gwpe/internal/errors"
)

// Boundary describes how a sampler treats the edges of a prior.
type Boundary string

const (
	BoundaryNone       Boundary = ""
	BoundaryPeriodic   Boundary = "periodic"
	BoundaryReflective Boundary = "reflective"
)

// Prior is a one-dimensional distribution with bounded support.
type Prior interface {
	Name() string
	Minimum() float64
	Maximum() float64
	Boundary() Boundary
	// Rescale maps u in [0, 1] through the inverse CDF.
	Rescale(u float64) float64
	LnProb(x float64) float64
	Sample(rng *rand.Rand) float64
	IsFixed() bool
}

func boundsError(name string, minimum, maximum float64) error {
	return errors.Newf("prior %s: minimum %g must be below maximum %g", name, minimum, maximum).
		Category(errors.CategoryPrior).
		Component("prior").
		Context("parameter", name).
		Build()
}

func checkBounds(name string, minimum, maximum float64) error {
	if math.IsNaN(minimum) || math.IsNaN(maximum) || minimum >= maximum {
		return boundsError(name, minimum, maximum)
	}
	return nil
}

func inSupport(x, minimum, maximum float64) bool {
	return x >= minimum && x <= maximum
}

// base carries the fields common to continuous priors.
type base struct {
	name     string
	minimum  float64
	maximum  float64
	boundary Boundary
}

func (b base) Name() string       { return b.name }
func (b base) Minimum() float64   { return b.minimum }
func (b base) Maximum() float64   { return b.maximum }
func (b base) Boundary() Boundary { return b.boundary }
func (b base) IsFixed() bool      { return false }

// DeltaFunction fixes a parameter at Peak.
type DeltaFunction struct {
	name string
	Peak float64
}

// NewDeltaFunction returns a point-mass prior.
func NewDeltaFunction(name string, peak float64) *DeltaFunction {
	return &DeltaFunction{name: name, Peak: peak}
}

func (d *DeltaFunction) Name() string            { return d.name }
func (d *DeltaFunction) Minimum() float64        { return d.Peak }
func (d *DeltaFunction) Maximum() float64        { return d.Peak }
func (d *DeltaFunction) Boundary() Boundary      { return BoundaryNone }
func (d *DeltaFunction) Rescale(float64) float64 { return d.Peak }
func (d *DeltaFunction) Sample(*rand.Rand) float64 {
	return d.Peak
}
func (d *DeltaFunction) IsFixed() bool { return true }

func (d *DeltaFunction) LnProb(x float64) float64 {
	if x == d.Peak {
		return 0
	}
	return math.Inf(-1)
}

// Uniform is flat on [minimum, maximum].
type Uniform struct{ base }

// NewUniform validates bounds and returns a uniform prior.
func NewUniform(name string, minimum, maximum float64, boundary Boundary) (*Uniform, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	return &Uniform{base{name, minimum, maximum, boundary}}, nil
}

func (p *Uniform) Rescale(u float64) float64 {
	return p.minimum + u*(p.maximum-p.minimum)
}

func (p *Uniform) LnProb(x float64) float64 {
	if !inSupport(x, p.minimum, p.maximum) {
		return math.Inf(-1)
	}
	return -math.Log(p.maximum - p.minimum)
}

func (p *Uniform) Sample(rng *rand.Rand) float64 { return p.Rescale(rng.Float64()) }

// Sine has density proportional to sin(x) on a sub-interval of [0, π].
type Sine struct{ base }

// NewSine returns a sine prior, typical for inclination angles.
func NewSine(name string, minimum, maximum float64, boundary Boundary) (*Sine, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	if minimum < 0 || maximum > math.Pi {
		return nil, errors.Newf("prior %s: sine bounds [%g, %g] must lie within [0, π]", name, minimum, maximum).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}
	return &Sine{base{name, minimum, maximum, boundary}}, nil
}

func (p *Sine) Rescale(u float64) float64 {
	cmin, cmax := math.Cos(p.minimum), math.Cos(p.maximum)
	return math.Acos(cmin - u*(cmin-cmax))
}

func (p *Sine) LnProb(x float64) float64 {
	if !inSupport(x, p.minimum, p.maximum) {
		return math.Inf(-1)
	}
	return math.Log(math.Sin(x) / (math.Cos(p.minimum) - math.Cos(p.maximum)))
}

func (p *Sine) Sample(rng *rand.Rand) float64 { return p.Rescale(rng.Float64()) }

// Cosine has density proportional to cos(x) on a sub-interval of [-π/2, π/2].
type Cosine struct{ base }

// NewCosine returns a cosine prior, typical for declination.
func NewCosine(name string, minimum, maximum float64, boundary Boundary) (*Cosine, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	if minimum < -math.Pi/2 || maximum > math.Pi/2 {
		return nil, errors.Newf("prior %s: cosine bounds [%g, %g] must lie within [-π/2, π/2]", name, minimum, maximum).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}
	return &Cosine{base{name, minimum, maximum, boundary}}, nil
}

func (p *Cosine) Rescale(u float64) float64 {
	smin, smax := math.Sin(p.minimum), math.Sin(p.maximum)
	return math.Asin(smin + u*(smax-smin))
}

func (p *Cosine) LnProb(x float64) float64 {
	if !inSupport(x, p.minimum, p.maximum) {
		return math.Inf(-1)
	}
	return math.Log(math.Cos(x) / (math.Sin(p.maximum) - math.Sin(p.minimum)))
}

func (p *Cosine) Sample(rng *rand.Rand) float64 { return p.Rescale(rng.Float64()) }

// PowerLaw has density proportional to x^Alpha.
type PowerLaw struct {
	base
	Alpha float64
}

// NewPowerLaw returns a power-law prior. The support must be non-negative
// and exclude zero when Alpha <= -1.
func NewPowerLaw(name string, alpha, minimum, maximum float64, boundary Boundary) (*PowerLaw, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	if minimum < 0 || (alpha <= -1 && minimum == 0) {
		return nil, errors.Newf("prior %s: power law with alpha %g is not normalisable on [%g, %g]", name, alpha, minimum, maximum).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}
	return &PowerLaw{base: base{name, minimum, maximum, boundary}, Alpha: alpha}, nil
}

func (p *PowerLaw) Rescale(u float64) float64 {
	if p.Alpha == -1 {
		return p.minimum * math.Pow(p.maximum/p.minimum, u)
	}
	a1 := p.Alpha + 1
	lo, hi := math.Pow(p.minimum, a1), math.Pow(p.maximum, a1)
	return math.Pow(lo+u*(hi-lo), 1/a1)
}

func (p *PowerLaw) LnProb(x float64) float64 {
	if !inSupport(x, p.minimum, p.maximum) {
		return math.Inf(-1)
	}
	if p.Alpha == -1 {
		return -math.Log(x) - math.Log(math.Log(p.maximum/p.minimum))
	}
	a1 := p.Alpha + 1
	norm := (math.Pow(p.maximum, a1) - math.Pow(p.minimum, a1)) / a1
	return p.Alpha*math.Log(x) - math.Log(norm)
}

func (p *PowerLaw) Sample(rng *rand.Rand) float64 { return p.Rescale(rng.Float64()) }

// Constraint restricts a derived quantity to the open interval
// (minimum, maximum). It is never sampled.
type Constraint struct {
	name    string
	minimum float64
	maximum float64
}

// NewConstraint validates bounds and returns a constraint.
func NewConstraint(name string, minimum, maximum float64) (*Constraint, error) {
	if err := checkBounds(name, minimum, maximum); err != nil {
		return nil, err
	}
	return &Constraint{name: name, minimum: minimum, maximum: maximum}, nil
}

func (c *Constraint) Name() string     { return c.name }
func (c *Constraint) Minimum() float64 { return c.minimum }
func (c *Constraint) Maximum() float64 { return c.maximum }

// Satisfied reports whether x lies strictly inside the bounds.
func (c *Constraint) Satisfied(x float64) bool {
	return x > c.minimum && x < c.maximum
}
