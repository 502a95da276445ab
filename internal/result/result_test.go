package result

import (
	"bytes"
	"encoding/csv"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/prior"
	"github.com/tphakala/gwpe/internal/sampler"
)

func testPriors(t *testing.T) *prior.Dict {
	t.Helper()
	mc, err := prior.NewUniform(params.ChirpMass, 1, 2, prior.BoundaryNone)
	require.NoError(t, err)
	q, err := prior.NewUniform(params.MassRatio, 0.5, 1, prior.BoundaryNone)
	require.NoError(t, err)
	d, err := prior.NewDict([]prior.Prior{mc, q, prior.NewDeltaFunction(params.RA, 5.445)}, nil)
	require.NoError(t, err)
	return d
}

// testOutput builds a sampler output whose weights grow with the first
// coordinate.
func testOutput() *sampler.Output {
	n := 50
	out := &sampler.Output{
		Names:        []string{params.ChirpMass, params.MassRatio},
		Samples:      make([][]float64, n),
		LogL:         make([]float64, n),
		LogWt:        make([]float64, n),
		LogVol:       make([]float64, n),
		LogZ:         -3.5,
		LogZErr:      0.12,
		Information:  1.7,
		Iterations:   40,
		NCall:        12345,
		Nlive:        10,
		StopReason:   sampler.StopDeltaLogZ,
		SamplingTime: 90 * time.Second,
	}
	for i := range n {
		u := float64(i) / float64(n)
		out.Samples[i] = []float64{u, 0.5}
		out.LogL[i] = -10 + 10*u
		out.LogWt[i] = out.LogL[i] - float64(i)/10
		out.LogVol[i] = -float64(i) / 10
	}
	return out
}

func testMeta(outdir string) Meta {
	return Meta{
		Label:   "run",
		Outdir:  outdir,
		Version: "test",
		Sampler: SamplerInfo{Name: "dynesty", Nlive: 10, Walks: 5, NPool: 2, Dlogz: 0.1, Seed: 7},
		Injection: params.Parameters{
			params.ChirpMass: 1.5,
			params.MassRatio: 0.75,
			params.RA:        5.445,
		},
		Injections:       []InjectionSNR{{Detector: "H1", OptimalSNR: 12.5, MatchedFilterSNR: 12.1}},
		LogNoiseEvidence: -1000,
	}
}

func TestNewFromSamplerOutput(t *testing.T) {
	t.Parallel()
	out := testOutput()
	r := New(testMeta(t.TempDir()), out, testPriors(t))

	assert.NotEmpty(t, r.RunID)
	assert.InDelta(t, -3.5, r.LogBayesFactor, 0)
	assert.InDelta(t, -1003.5, r.LogEvidence, 1e-12)
	assert.Equal(t, sampler.StopDeltaLogZ, r.Sampler.StopReason)
	assert.Equal(t, params.Parameters{params.RA: 5.445}, r.FixedParameters)
	assert.InDelta(t, 90, r.SamplingTimeSeconds, 1e-9)

	// Nested samples are in physical units.
	assert.InDelta(t, 1.0, r.NestedSamples[params.ChirpMass][0], 1e-12)
	assert.InDelta(t, 0.75, r.NestedSamples[params.MassRatio][0], 1e-12)
	var total float64
	for _, w := range r.NestedSamples[ColumnWeight] {
		total += w
	}
	assert.InDelta(t, 1, total, 1e-9)

	// The posterior carries fixed and derived parameters.
	assert.Equal(t, len(out.Samples), r.PosteriorSize())
	for _, col := range []string{params.Mass1, params.Mass2, params.TotalMass, params.RA, ColumnLogLikelihood, ColumnLogPrior} {
		assert.Contains(t, r.Posterior, col)
	}
	for i := range r.PosteriorSize() {
		assert.InDelta(t, r.Posterior[params.Mass1][i]+r.Posterior[params.Mass2][i], r.Posterior[params.TotalMass][i], 1e-9)
	}
}

func TestPosteriorIsReproducible(t *testing.T) {
	t.Parallel()
	a := New(testMeta(t.TempDir()), testOutput(), testPriors(t))
	b := New(testMeta(t.TempDir()), testOutput(), testPriors(t))
	assert.Empty(t, cmp.Diff(a.Posterior, b.Posterior))
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	r := New(testMeta(t.TempDir()), testOutput(), testPriors(t))
	require.NoError(t, r.Save())
	assert.FileExists(t, filepath.Join(r.Outdir, "run_result.json"))

	loaded, err := Load(r.Path())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(r, loaded))
}

func TestSaveRejectsNonFiniteEvidence(t *testing.T) {
	t.Parallel()
	r := New(testMeta(t.TempDir()), testOutput(), testPriors(t))
	r.LogEvidence = math.Inf(-1)
	err := r.Save()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryResult))
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent_result.json"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryResult))
}

func TestSummary(t *testing.T) {
	t.Parallel()
	r := &Result{
		InjectionParameters: params.Parameters{"x": 5},
		Posterior: map[string][]float64{
			"x":                 {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			ColumnLogLikelihood: {0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	}
	summary := r.Summary()
	require.Len(t, summary, 1)
	s := summary[0]
	assert.Equal(t, "x", s.Name)
	assert.InDelta(t, 5, s.Median, 0)
	assert.InDelta(t, 1, s.Lower, 0)
	assert.InDelta(t, 10, s.Upper, 0)
	assert.InDelta(t, 5.5, s.Mean, 1e-12)
	assert.True(t, s.HasTruth)
}

func TestWritePosteriorCSV(t *testing.T) {
	t.Parallel()
	r := &Result{Posterior: map[string][]float64{
		"b": {1.5, 2.5},
		"a": {0.25, 0.75},
	}}
	var buf bytes.Buffer
	require.NoError(t, r.WritePosteriorCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"0.25", "1.5"}, {"0.75", "2.5"}}, records)
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()
	r := New(testMeta(t.TempDir()), testOutput(), testPriors(t))
	var buf bytes.Buffer
	require.NoError(t, r.WriteSummary(&buf))

	text := buf.String()
	assert.Contains(t, text, "likelihood calls:   12,345")
	assert.Contains(t, text, "H1: optimal SNR 12.50")
	assert.True(t, strings.Contains(text, params.ChirpMass))
}
