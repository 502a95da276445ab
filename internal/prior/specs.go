package prior

import (
	"slices"
	"strings"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
)

// FromSpecs builds a Dict from the configuration prior table. Unknown types
// or boundaries and inconsistent bounds are errors.
func FromSpecs(specs map[string]conf.PriorSpec) (*Dict, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		priors      []Prior
		constraints []*Constraint
		errs        []error
	)
	for _, name := range names {
		spec := specs[name]
		boundary, err := parseBoundary(name, spec.Boundary)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var p Prior
		switch strings.ToLower(spec.Type) {
		case "delta", "deltafunction", "fixed":
			p = NewDeltaFunction(name, spec.Peak)
		case "uniform":
			p, err = NewUniform(name, spec.Minimum, spec.Maximum, boundary)
		case "sine":
			p, err = NewSine(name, spec.Minimum, spec.Maximum, boundary)
		case "cosine":
			p, err = NewCosine(name, spec.Minimum, spec.Maximum, boundary)
		case "powerlaw":
			p, err = NewPowerLaw(name, spec.Alpha, spec.Minimum, spec.Maximum, boundary)
		case "comovingvolume", "uniformcomovingvolume":
			p, err = NewUniformComovingVolume(name, spec.Minimum, spec.Maximum, boundary)
		case "constraint":
			var c *Constraint
			if c, err = NewConstraint(name, spec.Minimum, spec.Maximum); err == nil {
				constraints = append(constraints, c)
			}
		default:
			err = errors.Newf("prior %s: unknown type %q", name, spec.Type).
				Category(errors.CategoryConfiguration).
				Component("prior").
				Build()
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p != nil {
			priors = append(priors, p)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewDict(priors, constraints)
}

func parseBoundary(name, s string) (Boundary, error) {
	switch b := Boundary(strings.ToLower(s)); b {
	case BoundaryNone, BoundaryPeriodic, BoundaryReflective:
		return b, nil
	default:
		return BoundaryNone, errors.Newf("prior %s: unknown boundary %q", name, s).
			Category(errors.CategoryConfiguration).
			Component("prior").
			Build()
	}
}
