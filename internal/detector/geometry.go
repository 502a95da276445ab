// Package detector models ground-based interferometers: their geometry,
// antenna response, noise curves and strain data, and the network used to
// inject and evaluate signals.
package detector

import (
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/gwpe/internal/errors"
)

// WGS-84 ellipsoid
const (
	earthSemiMajorAxis = 6378137.0
	earthSemiMinorAxis = 6356752.314
)

// Geometry describes an interferometer site. Angles are in degrees, arm
// azimuths are measured North of East, elevation and arm length in metres
// and kilometres respectively.
type Geometry struct {
	Name        string
	Latitude    float64
	Longitude   float64
	Elevation   float64
	XArmAzimuth float64
	YArmAzimuth float64
	XArmTilt    float64 // radians
	YArmTilt    float64 // radians
	Length      float64
}

// ErrUnknownDetector is wrapped by errors for detector names without a
// known geometry.
var ErrUnknownDetector = errors.NewStd("unknown detector")

var knownGeometries = map[string]Geometry{
	"H1": {
		Name: "H1", Latitude: 46.45514666666667, Longitude: -119.4076571666667, Elevation: 142.554,
		XArmAzimuth: 125.9994, YArmAzimuth: 215.9994, XArmTilt: -6.195e-4, YArmTilt: 1.25e-5, Length: 4,
	},
	"L1": {
		Name: "L1", Latitude: 30.56289433333333, Longitude: -90.7742404, Elevation: -6.574,
		XArmAzimuth: 197.7165, YArmAzimuth: 287.7165, XArmTilt: -3.121e-4, YArmTilt: -6.107e-4, Length: 4,
	},
	"V1": {
		Name: "V1", Latitude: 43.6314144, Longitude: 10.5044966, Elevation: 51.884,
		XArmAzimuth: 70.5674, YArmAzimuth: 340.5674, Length: 3,
	},
	"K1": {
		Name: "K1", Latitude: 36.41, Longitude: 137.3, Elevation: 414.181,
		XArmAzimuth: 15.3963, YArmAzimuth: 105.3963, Length: 3,
	},
	"G1": {
		Name: "G1", Latitude: 52.246, Longitude: 9.808, Elevation: 114.425,
		XArmAzimuth: 115.9431, YArmAzimuth: 21.6117, Length: 0.6,
	},
}

// KnownDetectors returns the names with built-in geometry, sorted.
func KnownDetectors() []string {
	names := make([]string, 0, len(knownGeometries))
	for name := range knownGeometries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupGeometry returns the geometry of a known detector. Names are
// matched case-insensitively.
func LookupGeometry(name string) (Geometry, error) {
	g, ok := knownGeometries[strings.ToUpper(name)]
	if !ok {
		return Geometry{}, errors.Newf("%w %q, expected one of %v", ErrUnknownDetector, name, KnownDetectors()).
			Category(errors.CategoryConfiguration).
			Component("detector").
			Context("detector", name).
			Build()
	}
	return g, nil
}

// site holds the Earth-fixed quantities derived from a Geometry.
type site struct {
	vertex [3]float64
	tensor *mat.SymDense
}

func newSite(g Geometry) site {
	lat := g.Latitude * math.Pi / 180
	lon := g.Longitude * math.Pi / 180

	a2 := earthSemiMajorAxis * earthSemiMajorAxis
	b2 := earthSemiMinorAxis * earthSemiMinorAxis
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	radius := a2 / math.Sqrt(a2*cosLat*cosLat+b2*sinLat*sinLat)

	vertex := [3]float64{
		(radius + g.Elevation) * cosLat * cosLon,
		(radius + g.Elevation) * cosLat * sinLon,
		(b2/a2*radius + g.Elevation) * sinLat,
	}

	eLong := mat.NewVecDense(3, []float64{-sinLon, cosLon, 0})
	eLat := mat.NewVecDense(3, []float64{-sinLat * cosLon, -sinLat * sinLon, cosLat})
	eUp := mat.NewVecDense(3, []float64{cosLat * cosLon, cosLat * sinLon, sinLat})

	arm := func(azimuthDeg, tilt float64) *mat.VecDense {
		az := azimuthDeg * math.Pi / 180
		v := mat.NewVecDense(3, nil)
		v.AddScaledVec(v, math.Cos(tilt)*math.Cos(az), eLong)
		v.AddScaledVec(v, math.Cos(tilt)*math.Sin(az), eLat)
		v.AddScaledVec(v, math.Sin(tilt), eUp)
		return v
	}
	x := arm(g.XArmAzimuth, g.XArmTilt)
	y := arm(g.YArmAzimuth, g.YArmTilt)

	// D = (x x^T - y y^T) / 2
	tensor := mat.NewSymDense(3, nil)
	tensor.SymRankOne(tensor, 0.5, x)
	tensor.SymRankOne(tensor, -0.5, y)

	return site{vertex: vertex, tensor: tensor}
}
