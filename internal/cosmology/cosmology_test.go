package cosmology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanck15Distances(t *testing.T) {
	t.Parallel()

	// Low-redshift limit: d_L ~ c z / H0
	z := 1e-4
	assert.InEpsilon(t, SpeedOfLightKmS*z/Planck15.H0, Planck15.LuminosityDistance(z), 1e-3)

	// z = 0.1 with H0 = 67.74 and Om0 = 0.3075 gives about 475 Mpc
	assert.InDelta(t, 475.39, Planck15.LuminosityDistance(0.1), 0.05)
	assert.Zero(t, Planck15.ComovingDistance(0))
}

func TestRedshiftAtInvertsLuminosityDistance(t *testing.T) {
	t.Parallel()

	for _, d := range []float64{1, 100, 500, 5000} {
		z, err := Planck15.RedshiftAt(d)
		require.NoError(t, err)
		assert.InEpsilon(t, d, Planck15.LuminosityDistance(z), 1e-8)
	}

	_, err := Planck15.RedshiftAt(-1)
	require.Error(t, err)
	_, err = Planck15.RedshiftAt(math.NaN())
	require.Error(t, err)
}

func TestDistanceGrid(t *testing.T) {
	t.Parallel()

	g, err := NewDistanceGrid(Planck15, 500, 200)
	require.NoError(t, err)

	require.Len(t, g.Distances, 200)
	assert.Zero(t, g.Distances[0])
	assert.InEpsilon(t, 500, g.Distances[199], 1e-6)

	for i := 1; i < len(g.Distances); i++ {
		assert.Greater(t, g.Distances[i], g.Distances[i-1])
		assert.Positive(t, g.VolumeDensity[i])
	}

	// Near the origin the density is close to d^2
	assert.InEpsilon(t, g.Distances[1]*g.Distances[1], g.VolumeDensity[1], 0.05)

	z, err := Planck15.RedshiftAt(250)
	require.NoError(t, err)
	assert.InDelta(t, z, g.Redshift(250), 1e-4)
}

func TestDistanceGridRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewDistanceGrid(Planck15, 0, 10)
	require.Error(t, err)
	_, err = NewDistanceGrid(Planck15, 100, 1)
	require.Error(t, err)
}
