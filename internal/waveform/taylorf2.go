package waveform

import (
	"fmt"
	"math"

	"github.com/tphakala/gwpe/internal/params"
)

// Physical constants in SI-derived units
const (
	solarMassSeconds = 4.925490947641267e-06 // G Msun / c^3
	megaparsecMeters = 3.085677581491367e22
	speedOfLight     = 299792458.0
	eulerGamma       = 0.5772156649015329
)

// pnCoefficients holds the TaylorF2 phasing series for one binary.
// Terms carrying log(v) are stored separately.
type pnCoefficients struct {
	pre   float64 // 3 / (128 eta)
	c     [8]float64
	log5  float64
	log6  float64
	total float64 // total mass, seconds
}

func newPNCoefficients(m1, m2, chi1, chi2 float64) pnCoefficients {
	mtot := m1 + m2
	eta := m1 * m2 / (mtot * mtot)
	x1, x2 := m1/mtot, m2/mtot
	pi2 := math.Pi * math.Pi

	// 1.5PN spin-orbit and 2PN spin-spin terms for spins aligned with L
	beta := (113.0/12.0*x1*x1+25.0/4.0*eta)*chi1 + (113.0/12.0*x2*x2+25.0/4.0*eta)*chi2
	sigma := eta * 79.0 / 8.0 * chi1 * chi2

	var pn pnCoefficients
	pn.pre = 3 / (128 * eta)
	pn.total = mtot * solarMassSeconds

	pn.c[0] = 1
	pn.c[2] = 3715.0/756.0 + 55.0/9.0*eta
	pn.c[3] = 4*beta - 16*math.Pi
	pn.c[4] = 15293365.0/508032.0 + 27145.0/504.0*eta + 3085.0/72.0*eta*eta - 10*sigma

	c5 := math.Pi * (38645.0/756.0 - 65.0/9.0*eta)
	pn.c[5] = c5 * (1 + 3*math.Log(math.Sqrt(6)))
	pn.log5 = 3 * c5

	pn.c[6] = 11583231236531.0/4694215680.0 - 640.0/3.0*pi2 - 6848.0/21.0*eulerGamma -
		6848.0/21.0*math.Log(4) +
		(-15737765635.0/3048192.0+2255.0/12.0*pi2)*eta +
		76055.0/1728.0*eta*eta - 127825.0/1296.0*eta*eta*eta
	pn.log6 = -6848.0 / 21.0

	pn.c[7] = math.Pi * (77096675.0/254016.0 + 378515.0/1512.0*eta - 74045.0/756.0*eta*eta)
	return pn
}

// phase returns the post-Newtonian phase at frequency f (Hz), without the
// coalescence time and phase terms.
func (pn *pnCoefficients) phase(f float64) float64 {
	v := math.Cbrt(math.Pi * pn.total * f)
	logv := math.Log(v)
	v2 := v * v
	v3 := v2 * v
	v4 := v3 * v
	v5 := v4 * v
	v6 := v5 * v
	v7 := v6 * v

	series := pn.c[0] +
		pn.c[2]*v2 +
		pn.c[3]*v3 +
		pn.c[4]*v4 +
		(pn.c[5]+pn.log5*logv)*v5 +
		(pn.c[6]+pn.log6*logv)*v6 +
		pn.c[7]*v7
	return pn.pre * series / v5
}

// ISCOFrequency returns the gravitational-wave frequency at the innermost
// stable circular orbit of a Schwarzschild black hole of the total mass.
func ISCOFrequency(totalMass float64) float64 {
	return 1 / (math.Pow(6, 1.5) * math.Pi * totalMass * solarMassSeconds)
}

// taylorF2 is the frequency-domain stationary-phase inspiral model.
type taylorF2 struct{}

func (taylorF2) name() string { return "TaylorF2" }

func (taylorF2) strain(freqs []float64, band Band, fref float64, p params.Parameters, pol *Polarizations) error {
	mc, q := p[params.ChirpMass], p[params.MassRatio]
	if !(mc > 0) || !(q > 0) || q > 1 {
		return fmt.Errorf("chirp_mass must be positive and mass_ratio in (0, 1], got %g and %g", mc, q)
	}
	distance := p[params.LuminosityDistance]
	if !(distance > 0) {
		return fmt.Errorf("luminosity_distance must be positive, got %g", distance)
	}

	m1, m2 := params.ComponentMasses(mc, q)
	chi1, chi2 := params.AlignedSpins(p)
	pn := newPNCoefficients(m1, m2, chi1, chi2)

	fmax := math.Min(band.MaxFrequency, ISCOFrequency(m1+m2))
	phiRef := pn.phase(fref)

	// Newtonian amplitude: sqrt(5/24) pi^(-2/3) Mc^(5/6) / D, times f^(-7/6)
	mcSec := mc * solarMassSeconds
	distSec := distance * megaparsecMeters / speedOfLight
	amp0 := math.Sqrt(5.0/24.0) * math.Pow(math.Pi, -2.0/3.0) * math.Pow(mcSec, 5.0/6.0) / distSec

	cosi := math.Cos(p[params.ThetaJN])
	plusFactor := 0.5 * (1 + cosi*cosi)
	crossFactor := cosi
	phase0 := 2*p[params.Phase] + math.Pi/4

	for i := range pol.Plus {
		f := freqs[band.Start+i]
		if f < band.MinFrequency || f > fmax {
			pol.Plus[i], pol.Cross[i] = 0, 0
			continue
		}
		amp := amp0 * math.Pow(f, -7.0/6.0)
		psi := pn.phase(f) - phiRef - phase0
		sin, cos := math.Sincos(psi)
		h := complex(amp*cos, -amp*sin)
		pol.Plus[i] = complex(plusFactor, 0) * h
		pol.Cross[i] = complex(0, -crossFactor) * h
	}
	return nil
}
