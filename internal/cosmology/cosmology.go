// Package cosmology implements flat Lambda-CDM distance measures used by the
// volume-weighted distance prior.
package cosmology

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/interp"
)

// SpeedOfLightKmS is c in km/s.
const SpeedOfLightKmS = 299792.458

// quadraturePoints per integration interval
const quadraturePoints = 64

// FlatLambdaCDM is a spatially flat cosmology with matter and a cosmological constant.
type FlatLambdaCDM struct {
	Name string
	H0   float64 // km/s/Mpc
	Om0  float64 // matter density today
}

// Planck15 matches the Planck 2015 (TT,TE,EE+lowP+lensing+ext) parameters.
var Planck15 = FlatLambdaCDM{Name: "Planck15", H0: 67.74, Om0: 0.3075}

// HubbleDistance returns c/H0 in Mpc.
func (c FlatLambdaCDM) HubbleDistance() float64 {
	return SpeedOfLightKmS / c.H0
}

// E returns H(z)/H0.
func (c FlatLambdaCDM) E(z float64) float64 {
	zp1 := 1 + z
	return math.Sqrt(c.Om0*zp1*zp1*zp1 + (1 - c.Om0))
}

func (c FlatLambdaCDM) inverseE(z float64) float64 {
	return 1 / c.E(z)
}

// ComovingDistance returns the line-of-sight comoving distance to z in Mpc.
func (c FlatLambdaCDM) ComovingDistance(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return c.HubbleDistance() * quad.Fixed(c.inverseE, 0, z, quadraturePoints, nil, 0)
}

// LuminosityDistance returns the luminosity distance to z in Mpc.
func (c FlatLambdaCDM) LuminosityDistance(z float64) float64 {
	return (1 + z) * c.ComovingDistance(z)
}

// DifferentialComovingVolume returns dV_c/dz per steradian in Mpc^3.
func (c FlatLambdaCDM) DifferentialComovingVolume(z float64) float64 {
	dc := c.ComovingDistance(z)
	return c.HubbleDistance() * dc * dc / c.E(z)
}

// RedshiftAt returns the redshift whose luminosity distance is d Mpc, by bisection.
func (c FlatLambdaCDM) RedshiftAt(d float64) (float64, error) {
	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("luminosity distance must be finite and non-negative, got %g", d)
	}
	if d == 0 {
		return 0, nil
	}

	lo, hi := 0.0, 1.0
	for c.LuminosityDistance(hi) < d {
		hi *= 2
		if hi > 1e4 {
			return 0, fmt.Errorf("luminosity distance %g Mpc is beyond z=1e4", d)
		}
	}
	for range 100 {
		mid := 0.5 * (lo + hi)
		if c.LuminosityDistance(mid) < d {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-12*hi {
			break
		}
	}
	return 0.5 * (lo + hi), nil
}

// DistanceGrid tabulates redshift, luminosity distance and the comoving-volume
// density on a uniform redshift grid.
type DistanceGrid struct {
	Redshifts []float64
	Distances []float64 // luminosity distance, Mpc
	// VolumeDensity is dV_c/dd_L per steradian, the density of a source population
	// uniform in comoving volume with respect to luminosity distance.
	VolumeDensity []float64

	toRedshift interp.PiecewiseLinear
}

// NewDistanceGrid builds a grid of n points covering luminosity distances up to maxDistance.
func NewDistanceGrid(c FlatLambdaCDM, maxDistance float64, n int) (*DistanceGrid, error) {
	if n < 2 {
		return nil, fmt.Errorf("distance grid needs at least 2 points, got %d", n)
	}
	if maxDistance <= 0 {
		return nil, fmt.Errorf("maximum distance must be positive, got %g", maxDistance)
	}

	zmax, err := c.RedshiftAt(maxDistance)
	if err != nil {
		return nil, err
	}

	g := &DistanceGrid{
		Redshifts:     make([]float64, n),
		Distances:     make([]float64, n),
		VolumeDensity: make([]float64, n),
	}

	dh := c.HubbleDistance()
	dz := zmax / float64(n-1)
	comoving := 0.0
	for i := range n {
		z := float64(i) * dz
		if i == n-1 {
			z = zmax
		}
		if i > 0 {
			comoving += dh * quad.Fixed(c.inverseE, g.Redshifts[i-1], z, 8, nil, 0)
		}
		g.Redshifts[i] = z
		g.Distances[i] = (1 + z) * comoving

		// dd_L/dz = D_C + (1+z) D_H / E(z)
		ez := c.E(z)
		dDLdz := comoving + (1+z)*dh/ez
		g.VolumeDensity[i] = dh * comoving * comoving / ez / dDLdz
	}

	if err := g.toRedshift.Fit(g.Distances, g.Redshifts); err != nil {
		return nil, err
	}
	return g, nil
}

// Redshift interpolates the redshift at luminosity distance d.
func (g *DistanceGrid) Redshift(d float64) float64 {
	return g.toRedshift.Predict(d)
}
