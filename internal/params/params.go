// Package params holds named source parameters of a compact binary and the
// conversions between its mass and spin parameterisations.
package params

import (
	"maps"
	"math"
	"slices"
)

// Canonical parameter names shared by the injection, the priors and the likelihood.
const (
	ChirpMass          = "chirp_mass"
	MassRatio          = "mass_ratio"
	Mass1              = "mass_1"
	Mass2              = "mass_2"
	TotalMass          = "total_mass"
	SymmetricMassRatio = "symmetric_mass_ratio"
	A1                 = "a_1"
	A2                 = "a_2"
	Tilt1              = "tilt_1"
	Tilt2              = "tilt_2"
	Phi12              = "phi_12"
	PhiJL              = "phi_jl"
	LuminosityDistance = "luminosity_distance"
	ThetaJN            = "theta_jn"
	Psi                = "psi"
	Phase              = "phase"
	RA                 = "ra"
	Dec                = "dec"
	GeocentTime        = "geocent_time"
	Chi1               = "chi_1"
	Chi2               = "chi_2"
)

// SourceNames lists the fifteen parameters that fully describe an injected
// precessing binary in the chirp-mass parameterisation.
var SourceNames = []string{
	ChirpMass, MassRatio, A1, A2, Tilt1, Tilt2, Phi12, PhiJL,
	LuminosityDistance, ThetaJN, Psi, Phase, RA, Dec, GeocentTime,
}

// ExtrinsicNames are the parameters consumed by the detector projection.
var ExtrinsicNames = []string{RA, Dec, Psi, GeocentTime}

// Parameters maps parameter names to values.
type Parameters map[string]float64

// Clone returns an independent copy.
func (p Parameters) Clone() Parameters {
	return maps.Clone(p)
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Get returns the value for name and whether it was present.
func (p Parameters) Get(name string) (float64, bool) {
	v, ok := p[name]
	return v, ok
}

// Merge returns a copy of p overlaid with other.
func (p Parameters) Merge(other Parameters) Parameters {
	out := make(Parameters, len(p)+len(other))
	maps.Copy(out, p)
	maps.Copy(out, other)
	return out
}

// ComponentMasses converts chirp mass and mass ratio (q = m2/m1 <= 1) into
// the primary and secondary masses.
func ComponentMasses(chirpMass, massRatio float64) (m1, m2 float64) {
	m1 = chirpMass * math.Pow(1+massRatio, 0.2) / math.Pow(massRatio, 0.6)
	return m1, massRatio * m1
}

// ChirpMassAndRatio converts component masses into chirp mass and mass ratio.
func ChirpMassAndRatio(m1, m2 float64) (chirpMass, massRatio float64) {
	if m2 > m1 {
		m1, m2 = m2, m1
	}
	chirpMass = math.Pow(m1*m2, 0.6) / math.Pow(m1+m2, 0.2)
	return chirpMass, m2 / m1
}

// SymmetricRatio returns eta = m1 m2 / (m1 + m2)^2.
func SymmetricRatio(m1, m2 float64) float64 {
	total := m1 + m2
	return m1 * m2 / (total * total)
}

// GenerateMassParameters returns a copy of p with every mass parameter
// derivable from whichever pair (chirp mass and ratio, or component masses) is present.
func GenerateMassParameters(p Parameters) Parameters {
	out := p.Clone()

	mc, hasMc := p[ChirpMass]
	q, hasQ := p[MassRatio]
	m1, hasM1 := p[Mass1]
	m2, hasM2 := p[Mass2]

	switch {
	case hasMc && hasQ:
		m1, m2 = ComponentMasses(mc, q)
		out[Mass1], out[Mass2] = m1, m2
	case hasM1 && hasM2:
		mc, q = ChirpMassAndRatio(m1, m2)
		out[ChirpMass], out[MassRatio] = mc, q
	default:
		return out
	}

	out[TotalMass] = m1 + m2
	out[SymmetricMassRatio] = SymmetricRatio(m1, m2)
	return out
}

// AlignedSpins projects the spin magnitudes onto the orbital angular momentum.
// Missing tilts count as zero.
func AlignedSpins(p Parameters) (chi1, chi2 float64) {
	return p[A1] * math.Cos(p[Tilt1]), p[A2] * math.Cos(p[Tilt2])
}

// Missing returns the names from required that are absent in p, sorted.
func Missing(p Parameters, required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := p[name]; !ok {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)
	return missing
}
