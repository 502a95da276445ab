package diagnostics

import (
	"encoding/csv"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/waveform"
)

const (
	testTrigger  = 1264069376.0
	testRate     = 1024.0
	testDuration = 4.0
)

func testNetwork(t *testing.T, zeroNoise bool) (*detector.Network, *waveform.Generator) {
	t.Helper()
	curve, err := detector.AnalyticNoiseCurve("aligo", 10, 4096, 500)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "aligo.txt")
	require.NoError(t, detector.WriteNoiseCurve(path, curve))

	network, err := detector.BuildNetwork(
		[]detector.Spec{{Name: "H1", PSDFile: path}, {Name: "L1", PSDFile: path}},
		detector.DataConfig{
			SamplingFrequency: testRate,
			Duration:          testDuration,
			StartTime:         testTrigger - 2,
			MinimumFrequency:  20,
			ZeroNoise:         zeroNoise,
		},
		rand.NewPCG(1, 2), nil)
	require.NoError(t, err)

	gen, err := waveform.NewGenerator(waveform.Config{
		Duration: testDuration, SamplingFrequency: testRate, Approximant: "TaylorF2", MinimumFrequency: 20,
	})
	require.NoError(t, err)
	return network, gen
}

func injection() params.Parameters {
	return params.Parameters{
		params.ChirpMass:          1.43,
		params.MassRatio:          0.833,
		params.A1:                 0,
		params.A2:                 0,
		params.LuminosityDistance: 100,
		params.ThetaJN:            0.1,
		params.Psi:                2.659,
		params.Phase:              1.3,
		params.RA:                 5.445,
		params.Dec:                0,
		params.GeocentTime:        testTrigger,
	}
}

func TestWriteNetworkCreatesFiles(t *testing.T) {
	t.Parallel()
	network, gen := testNetwork(t, false)
	_, err := network.InjectSignal(gen, injection())
	require.NoError(t, err)

	outdir := filepath.Join(t.TempDir(), "nested", "outdir")
	files, err := WriteNetwork(network, Options{Outdir: outdir, Label: "run", Generator: gen, Injection: injection()}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		DataFilename(outdir, "run", "H1"), WhitenedFilename(outdir, "run", "H1"),
		DataFilename(outdir, "run", "L1"), WhitenedFilename(outdir, "run", "L1"),
	}, files)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestFrequencyDataCSV(t *testing.T) {
	t.Parallel()
	network, gen := testNetwork(t, true)
	_, err := network.InjectSignal(gen, injection())
	require.NoError(t, err)
	h1 := network.Interferometers()[0]

	outdir := t.TempDir()
	_, err = WriteDetector(h1, Options{Outdir: outdir, Label: "run", Generator: gen, Injection: injection()})
	require.NoError(t, err)

	f, err := os.Open(DataFilename(outdir, "run", "H1"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"frequency", "data_abs", "signal_abs", "asd"}, records[0])
	// Bins from 20 Hz to Nyquist inclusive.
	assert.Len(t, records[1:], int((testRate/2-20)*testDuration)+1)

	first, err := strconv.ParseFloat(records[1][0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 20, first, 1e-9)

	// In zero noise the data is the signal.
	for _, row := range records[1:] {
		d, err := strconv.ParseFloat(row[1], 64)
		require.NoError(t, err)
		h, err := strconv.ParseFloat(row[2], 64)
		require.NoError(t, err)
		assert.InDelta(t, h, d, 1e-9*math.Max(h, 1e-30))
	}
}

func TestFrequencyDataWithoutInjection(t *testing.T) {
	t.Parallel()
	network, _ := testNetwork(t, false)
	outdir := t.TempDir()
	_, err := WriteDetector(network.Interferometers()[0], Options{Outdir: outdir, Label: "noise"})
	require.NoError(t, err)

	f, err := os.Open(DataFilename(outdir, "noise", "H1"))
	require.NoError(t, err)
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency", "data_abs", "asd"}, header)
}

func TestWhitenedWAV(t *testing.T) {
	t.Parallel()
	network, gen := testNetwork(t, false)
	outdir := t.TempDir()
	_, err := WriteDetector(network.Interferometers()[1], Options{Outdir: outdir, Label: "run", Generator: gen})
	require.NoError(t, err)

	f, err := os.Open(WhitenedFilename(outdir, "run", "L1"))
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, int(testRate), buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, uint16(32), dec.BitDepth)
	assert.Len(t, buf.Data, int(testRate*testDuration))

	var peak int
	for _, x := range buf.Data {
		peak = max(peak, x, -x)
	}
	assert.InDelta(t, wavHeadroom*math.MaxInt32, peak, 2)
}

func TestWhitenedNoiseHasZeroMean(t *testing.T) {
	t.Parallel()
	network, _ := testNetwork(t, false)
	series, err := Whiten(network.Interferometers()[0], 0)
	require.NoError(t, err)
	require.Len(t, series, int(testRate*testDuration))

	var sum float64
	for _, x := range series {
		sum += x
	}
	// Whitened noise has no DC component once the band excludes 0 Hz.
	assert.InDelta(t, 0, sum/float64(len(series)), 1e-6)
}

func TestWhitenTapersRollOff(t *testing.T) {
	t.Parallel()
	network, _ := testNetwork(t, false)
	h1 := network.Interferometers()[0]

	plain, err := Whiten(h1, 0)
	require.NoError(t, err)
	tapered, err := Whiten(h1, 0.5)
	require.NoError(t, err)
	require.Len(t, tapered, len(plain))

	n := len(plain)
	edge := int(0.5 * testRate)
	assert.InDelta(t, 0, tapered[0], 1e-15)
	assert.InDelta(t, 0, tapered[n-1], 1e-15)
	assert.LessOrEqual(t, math.Abs(tapered[edge/4]), math.Abs(plain[edge/4]))
	// Outside the roll-off the series is untouched.
	for _, i := range []int{edge + 1, n / 2, n - edge - 2} {
		assert.InDelta(t, plain[i], tapered[i], 1e-12*math.Abs(plain[i]))
	}
}

func TestWriteDetectorWithoutStrain(t *testing.T) {
	t.Parallel()
	curve, err := detector.AnalyticNoiseCurve("aligo", 10, 4096, 100)
	require.NoError(t, err)
	psd, err := detector.NewPowerSpectralDensity(curve)
	require.NoError(t, err)
	ifo, err := detector.NewInterferometer("H1", psd, 20, 0)
	require.NoError(t, err)

	_, err = WriteDetector(ifo, Options{Outdir: t.TempDir(), Label: "x"})
	require.Error(t, err)
}
