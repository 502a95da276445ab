package prior

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
)

// maxRejections bounds the attempts Sample makes to satisfy constraints.
const maxRejections = 100000

// derivedNames are the quantities a constraint may refer to in addition to
// the prior keys themselves.
var derivedNames = []string{
	params.Mass1, params.Mass2, params.TotalMass, params.SymmetricMassRatio,
	params.ChirpMass, params.MassRatio,
}

// Dict is an immutable joint prior over named parameters.
type Dict struct {
	priors      map[string]Prior
	constraints map[string]*Constraint
	keys        []string
	sampled     []string
	fixed       params.Parameters
}

// NewDict assembles priors and constraints. Names must be unique across both
// and every constraint must refer to a prior key or a derived mass parameter.
func NewDict(priors []Prior, constraints []*Constraint) (*Dict, error) {
	d := &Dict{
		priors:      make(map[string]Prior, len(priors)),
		constraints: make(map[string]*Constraint, len(constraints)),
		fixed:       make(params.Parameters),
	}
	for _, p := range priors {
		if _, dup := d.priors[p.Name()]; dup {
			return nil, duplicateError(p.Name())
		}
		d.priors[p.Name()] = p
		d.keys = append(d.keys, p.Name())
		if p.IsFixed() {
			d.fixed[p.Name()] = p.Rescale(0)
		} else {
			d.sampled = append(d.sampled, p.Name())
		}
	}
	for _, c := range constraints {
		if _, dup := d.priors[c.Name()]; dup {
			return nil, duplicateError(c.Name())
		}
		if _, dup := d.constraints[c.Name()]; dup {
			return nil, duplicateError(c.Name())
		}
		if !slices.Contains(derivedNames, c.Name()) {
			return nil, errors.Newf("constraint %s does not name a derivable parameter, expected one of %v", c.Name(), derivedNames).
				Category(errors.CategoryPrior).
				Component("prior").
				Build()
		}
		d.constraints[c.Name()] = c
	}
	slices.Sort(d.keys)
	slices.Sort(d.sampled)
	return d, nil
}

func duplicateError(name string) error {
	return errors.Newf("prior %s defined twice", name).
		Category(errors.CategoryPrior).
		Component("prior").
		Build()
}

// Keys returns every prior name, fixed and sampled, sorted.
func (d *Dict) Keys() []string { return slices.Clone(d.keys) }

// SampledKeys returns the names of non-fixed priors, sorted. The order
// defines the sampler's parameter vector.
func (d *Dict) SampledKeys() []string { return slices.Clone(d.sampled) }

// Dim is the number of sampled parameters.
func (d *Dict) Dim() int { return len(d.sampled) }

// ConstraintKeys returns the constrained names, sorted.
func (d *Dict) ConstraintKeys() []string {
	keys := make([]string, 0, len(d.constraints))
	for name := range d.constraints {
		keys = append(keys, name)
	}
	slices.Sort(keys)
	return keys
}

// FixedValues returns the values of the delta-function priors.
func (d *Dict) FixedValues() params.Parameters { return d.fixed.Clone() }

// Get returns the prior for name.
func (d *Dict) Get(name string) (Prior, bool) {
	p, ok := d.priors[name]
	return p, ok
}

// Constraint returns the constraint on name.
func (d *Dict) Constraint(name string) (*Constraint, bool) {
	c, ok := d.constraints[name]
	return c, ok
}

// Has reports whether name has a prior.
func (d *Dict) Has(name string) bool {
	_, ok := d.priors[name]
	return ok
}

// Periodic reports, per sampled dimension, whether the prior wraps.
func (d *Dict) Periodic() []bool {
	out := make([]bool, len(d.sampled))
	for i, name := range d.sampled {
		out[i] = d.priors[name].Boundary() == BoundaryPeriodic
	}
	return out
}

// Reflective reports, per sampled dimension, whether the prior reflects.
func (d *Dict) Reflective() []bool {
	out := make([]bool, len(d.sampled))
	for i, name := range d.sampled {
		out[i] = d.priors[name].Boundary() == BoundaryReflective
	}
	return out
}

// Rescale maps a point of the unit hypercube, ordered as SampledKeys, to
// parameters. Fixed values are included.
func (d *Dict) Rescale(u []float64) params.Parameters {
	if len(u) != len(d.sampled) {
		panic(fmt.Sprintf("prior: Rescale got %d coordinates for %d sampled parameters", len(u), len(d.sampled)))
	}
	out := make(params.Parameters, len(d.keys))
	for name, v := range d.fixed {
		out[name] = v
	}
	for i, name := range d.sampled {
		out[name] = d.priors[name].Rescale(u[i])
	}
	return out
}

// Vector returns the sampled values of p in SampledKeys order.
func (d *Dict) Vector(p params.Parameters) []float64 {
	out := make([]float64, len(d.sampled))
	for i, name := range d.sampled {
		out[i] = p[name]
	}
	return out
}

// ConstraintsSatisfied evaluates every constraint on p and its derived
// mass parameters.
func (d *Dict) ConstraintsSatisfied(p params.Parameters) bool {
	if len(d.constraints) == 0 {
		return true
	}
	derived := params.GenerateMassParameters(p)
	for name, c := range d.constraints {
		v, ok := derived[name]
		if !ok || !c.Satisfied(v) {
			return false
		}
	}
	return true
}

// LnProb sums the log densities of the sampled parameters, or returns -Inf
// outside the support or when a constraint fails.
func (d *Dict) LnProb(p params.Parameters) float64 {
	var sum float64
	for _, name := range d.sampled {
		v, ok := p[name]
		if !ok {
			return math.Inf(-1)
		}
		sum += d.priors[name].LnProb(v)
		if math.IsInf(sum, -1) {
			return sum
		}
	}
	if !d.ConstraintsSatisfied(p) {
		return math.Inf(-1)
	}
	return sum
}

// Sample draws from the joint prior by rejection against the constraints.
func (d *Dict) Sample(rng *rand.Rand) (params.Parameters, error) {
	for range maxRejections {
		out := d.fixed.Clone()
		for _, name := range d.sampled {
			out[name] = d.priors[name].Sample(rng)
		}
		if d.ConstraintsSatisfied(out) {
			return out, nil
		}
	}
	return nil, errors.Newf("no prior sample satisfied the constraints after %d draws", maxRejections).
		Category(errors.CategoryPrior).
		Component("prior").
		Build()
}

// WithFixed returns a copy where name is pinned at value.
func (d *Dict) WithFixed(name string, value float64) *Dict {
	priors := make([]Prior, 0, len(d.priors)+1)
	for _, key := range d.keys {
		if key != name {
			priors = append(priors, d.priors[key])
		}
	}
	priors = append(priors, NewDeltaFunction(name, value))

	constraints := make([]*Constraint, 0, len(d.constraints))
	for _, key := range d.ConstraintKeys() {
		if key != name {
			constraints = append(constraints, d.constraints[key])
		}
	}

	out, err := NewDict(priors, constraints)
	if err != nil {
		// Inputs already passed NewDict with the same names.
		panic(err)
	}
	return out
}

// CheckInjection verifies that an injection provides every prior key, lies
// inside each sampled prior's support and satisfies every constraint.
func (d *Dict) CheckInjection(p params.Parameters) error {
	if missing := params.Missing(p, d.keys); len(missing) > 0 {
		return errors.Newf("injection is missing prior parameters %v", missing).
			Category(errors.CategoryPrior).
			Component("prior").
			Build()
	}
	for _, name := range d.sampled {
		if math.IsInf(d.priors[name].LnProb(p[name]), -1) {
			pr := d.priors[name]
			return errors.Newf("injected %s = %g lies outside its prior [%g, %g]", name, p[name], pr.Minimum(), pr.Maximum()).
				Category(errors.CategoryPrior).
				Component("prior").
				ParameterContext(name, p[name]).
				Build()
		}
	}

	derived := params.GenerateMassParameters(p)
	for _, name := range d.ConstraintKeys() {
		c := d.constraints[name]
		if v := derived[name]; !c.Satisfied(v) {
			return errors.Newf("injected %s = %g violates constraint (%g, %g)", name, v, c.Minimum(), c.Maximum()).
				Category(errors.CategoryPrior).
				Component("prior").
				ParameterContext(name, v).
				Build()
		}
	}
	return nil
}
