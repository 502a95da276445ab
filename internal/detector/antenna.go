package detector

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const speedOfLight = 299792458.0

// Polarization mode names accepted by AntennaResponse.
const (
	ModePlus  = "plus"
	ModeCross = "cross"
)

// gpsLeapSeconds lists the GPS times at which a UTC leap second was inserted.
var gpsLeapSeconds = []float64{
	46828800, 78364801, 109900802, 173059203, 252028804, 315187205,
	346723206, 393984007, 425520008, 457056009, 504489610, 551750411,
	599184012, 820108813, 914803214, 1025136015, 1119744016, 1167264017,
}

func leapSecondsAt(gpsTime float64) float64 {
	n := 0
	for _, t := range gpsLeapSeconds {
		if gpsTime >= t {
			n++
		}
	}
	return float64(n)
}

// GreenwichMeanSiderealTime returns the GMST in radians, in [0, 2π), at a
// GPS time using the IAU 1982 expression.
func GreenwichMeanSiderealTime(gpsTime float64) float64 {
	const (
		gpsEpochJD   = 2444244.5
		j2000JD      = 2451545.0
		secondsInDay = 86400.0
	)

	utc := gpsTime - leapSecondsAt(gpsTime)
	jd := gpsEpochJD + utc/secondsInDay
	t := (jd - j2000JD) / 36525

	seconds := 67310.54841 + (876600*3600+8640184.812866)*t + 0.093104*t*t - 6.2e-6*t*t*t
	seconds = math.Mod(seconds, secondsInDay)
	if seconds < 0 {
		seconds += secondsInDay
	}
	return seconds * 2 * math.Pi / secondsInDay
}

// skyFrame returns the two unit vectors orthogonal to the propagation
// direction and the direction towards the source, in Earth-fixed coordinates.
func skyFrame(ra, dec, gpsTime float64) (u, v, omega [3]float64) {
	phi := ra - GreenwichMeanSiderealTime(gpsTime)
	theta := math.Pi/2 - dec
	sinPhi, cosPhi := math.Sincos(phi)
	sinTheta, cosTheta := math.Sincos(theta)

	u = [3]float64{cosPhi * cosTheta, cosTheta * sinPhi, -sinTheta}
	v = [3]float64{-sinPhi, cosPhi, 0}
	omega = [3]float64{sinTheta * cosPhi, sinTheta * sinPhi, cosTheta}
	return u, v, omega
}

// polarizationTensors returns e+ and ex for a source at (ra, dec) with
// polarization angle psi.
func polarizationTensors(ra, dec, gpsTime, psi float64) (plus, cross *mat.Dense) {
	u, v, _ := skyFrame(ra, dec, gpsTime)
	sinPsi, cosPsi := math.Sincos(psi)

	var m, n [3]float64
	for i := range 3 {
		m[i] = -u[i]*sinPsi - v[i]*cosPsi
		n[i] = -u[i]*cosPsi + v[i]*sinPsi
	}

	plus = mat.NewDense(3, 3, nil)
	cross = mat.NewDense(3, 3, nil)
	for i := range 3 {
		for j := range 3 {
			plus.Set(i, j, m[i]*m[j]-n[i]*n[j])
			cross.Set(i, j, m[i]*n[j]+n[i]*m[j])
		}
	}
	return plus, cross
}

// contract returns sum_ij D_ij P_ij.
func contract(d *mat.SymDense, p *mat.Dense) float64 {
	var sum float64
	for i := range 3 {
		for j := range 3 {
			sum += d.At(i, j) * p.At(i, j)
		}
	}
	return sum
}

// AntennaResponse returns the detector response to a unit-amplitude wave in
// the given polarization mode. Unknown modes return zero.
func (ifo *Interferometer) AntennaResponse(ra, dec, gpsTime, psi float64, mode string) float64 {
	plus, cross := polarizationTensors(ra, dec, gpsTime, psi)
	switch mode {
	case ModePlus:
		return contract(ifo.site.tensor, plus)
	case ModeCross:
		return contract(ifo.site.tensor, cross)
	default:
		return 0
	}
}

// antennaPattern returns both responses with a single tensor evaluation.
func (ifo *Interferometer) antennaPattern(ra, dec, gpsTime, psi float64) (fPlus, fCross float64) {
	plus, cross := polarizationTensors(ra, dec, gpsTime, psi)
	return contract(ifo.site.tensor, plus), contract(ifo.site.tensor, cross)
}

// TimeDelayFromGeocenter returns the arrival time at the detector minus the
// arrival time at the geocentre for a source at (ra, dec).
func (ifo *Interferometer) TimeDelayFromGeocenter(ra, dec, gpsTime float64) float64 {
	_, _, omega := skyFrame(ra, dec, gpsTime)
	var dot float64
	for i := range 3 {
		dot -= omega[i] * ifo.site.vertex[i]
	}
	return dot / speedOfLight
}
