// Package diagnostics writes per-detector data products next to the run
// results: the frequency-domain data with the injected signal and noise
// level, and a whitened time series that can be listened to.
package diagnostics

import (
	"encoding/csv"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/gwpe/internal/detector"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/waveform"
)

const (
	wavBitDepth    = 32
	wavNumChannels = 1
	// wavHeadroom keeps the loudest whitened sample below full scale.
	wavHeadroom = 0.9
)

// Options selects where files go and which signal is overlaid.
type Options struct {
	Outdir    string
	Label     string
	Generator *waveform.Generator
	Injection params.Parameters // nil skips the |h(f)| column
	RollOff   float64           // taper at each end of the whitened series, seconds
}

// DataFilename returns <outdir>/<label>_<IFO>_frequency_domain_data.csv.
func DataFilename(outdir, label, ifo string) string {
	return filepath.Join(outdir, label+"_"+ifo+"_frequency_domain_data.csv")
}

// WhitenedFilename returns <outdir>/<label>_<IFO>_whitened.wav.
func WhitenedFilename(outdir, label, ifo string) string {
	return filepath.Join(outdir, label+"_"+ifo+"_whitened.wav")
}

// WriteNetwork writes the data products of every detector and returns the
// paths written.
func WriteNetwork(network *detector.Network, opts Options, log logger.Logger) ([]string, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module("diagnostics")
	if err := os.MkdirAll(opts.Outdir, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Component("diagnostics").
			Context("outdir", opts.Outdir).
			Build()
	}

	var files []string
	for _, ifo := range network.Interferometers() {
		written, err := WriteDetector(ifo, opts)
		if err != nil {
			return files, err
		}
		log.Debug("detector data written",
			logger.String("detector", ifo.Name),
			logger.String("data", written[0]),
			logger.String("whitened", written[1]))
		files = append(files, written...)
	}
	return files, nil
}

// WriteDetector writes the CSV and the whitened WAV of one detector.
func WriteDetector(ifo *detector.Interferometer, opts Options) ([]string, error) {
	if ifo.Strain == nil {
		return nil, errors.Newf("detector %s has no strain data", ifo.Name).
			Category(errors.CategoryDetector).
			Component("diagnostics").
			Build()
	}
	signal, err := signalAmplitude(ifo, opts)
	if err != nil {
		return nil, err
	}

	dataPath := DataFilename(opts.Outdir, opts.Label, ifo.Name)
	if err := writeFrequencyData(dataPath, ifo, signal); err != nil {
		return nil, fileError(err, dataPath)
	}
	wavPath := WhitenedFilename(opts.Outdir, opts.Label, ifo.Name)
	if err := writeWhitened(wavPath, ifo, opts.RollOff); err != nil {
		return nil, fileError(err, wavPath)
	}
	return []string{dataPath, wavPath}, nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Category(errors.CategoryFileIO).
		Component("diagnostics").
		FileContext(path, 0).
		Build()
}

// signalAmplitude returns |h(f)| on the full strain grid, or nil when no
// injection is given.
func signalAmplitude(ifo *detector.Interferometer, opts Options) ([]float64, error) {
	if opts.Injection == nil || opts.Generator == nil {
		return nil, nil
	}
	pol, err := opts.Generator.FrequencyDomainStrain(opts.Injection)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryWaveform).
			Component("diagnostics").
			Context("detector", ifo.Name).
			Build()
	}
	band := opts.Generator.Band()
	response := make([]complex128, band.Length)
	ifo.ResponseInto(pol, band, opts.Generator.Frequencies(), opts.Injection, response)

	amp := make([]float64, len(ifo.Strain.Frequencies))
	for i, h := range response {
		if k := band.Start + i; k < len(amp) {
			amp[k] = cmplx.Abs(h)
		}
	}
	return amp, nil
}

// writeFrequencyData writes the in-band bins as frequency, |d|, |h|, ASD.
func writeFrequencyData(path string, ifo *detector.Interferometer, signal []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"frequency", "data_abs"}
	if signal != nil {
		header = append(header, "signal_abs")
	}
	header = append(header, "asd")
	if err := w.Write(header); err != nil {
		return err
	}

	asd := ifo.ASDArray()
	format := func(v float64) string { return strconv.FormatFloat(v, 'e', 10, 64) }
	for i, freq := range ifo.Strain.Frequencies {
		if !ifo.Strain.InBand(i) {
			continue
		}
		row := []string{format(freq), format(cmplx.Abs(ifo.Strain.FrequencyDomain[i]))}
		if signal != nil {
			row = append(row, format(signal[i]))
		}
		row = append(row, format(asd[i]))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// Whiten returns the band-limited time series of d(f)/ASD(f). Bins outside
// the analysis band or where the noise curve is undefined are zeroed. The
// first and last rollOff seconds are tapered with a Tukey window.
func Whiten(ifo *detector.Interferometer, rollOff float64) ([]float64, error) {
	s := ifo.Strain
	white, err := detector.NewStrainData(s.SamplingFrequency, s.Duration, s.StartTime, s.MinimumFrequency, s.MaximumFrequency)
	if err != nil {
		return nil, err
	}
	asd := ifo.ASDArray()
	for i, d := range s.FrequencyDomain {
		if !s.InBand(i) || !(asd[i] > 0) || math.IsInf(asd[i], 1) {
			continue
		}
		white.FrequencyDomain[i] = d / complex(asd[i], 0)
	}
	series := white.TimeDomain()
	window := detector.TukeyWindow(len(series), 2*rollOff/s.Duration)
	for i := range series {
		series[i] *= window[i]
	}
	return series, nil
}

// writeWhitened writes the whitened series as 32-bit PCM at the data
// sampling rate, normalised to the loudest sample.
func writeWhitened(path string, ifo *detector.Interferometer, rollOff float64) error {
	series, err := Whiten(ifo, rollOff)
	if err != nil {
		return err
	}
	var peak float64
	for _, x := range series {
		peak = math.Max(peak, math.Abs(x))
	}
	scale := 0.0
	if peak > 0 {
		scale = wavHeadroom * math.MaxInt32 / peak
	}
	data := make([]int, len(series))
	for i, x := range series {
		data[i] = int(math.Round(x * scale))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rate := int(ifo.Strain.SamplingFrequency)
	enc := wav.NewEncoder(f, rate, wavBitDepth, wavNumChannels, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: rate, NumChannels: wavNumChannels},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
