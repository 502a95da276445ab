package detector

import (
	"math/rand/v2"

	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/params"
	"github.com/tphakala/gwpe/internal/waveform"
)

// Network is an ordered set of detectors whose data segments are aligned.
type Network struct {
	ifos []*Interferometer
}

// NewNetwork checks that names are unique and that every detector holds
// strain data with the same start time, duration and sampling frequency.
func NewNetwork(ifos ...*Interferometer) (*Network, error) {
	if len(ifos) == 0 {
		return nil, errors.Newf("detector network is empty").
			Category(errors.CategoryConfiguration).
			Component("detector").
			Build()
	}
	seen := make(map[string]struct{}, len(ifos))
	for _, ifo := range ifos {
		if _, dup := seen[ifo.Name]; dup {
			return nil, errors.Newf("detector %s listed twice", ifo.Name).
				Category(errors.CategoryConfiguration).
				Component("detector").
				Build()
		}
		seen[ifo.Name] = struct{}{}

		if ifo.Strain == nil {
			return nil, errors.Newf("detector %s has no strain data", ifo.Name).
				Category(errors.CategoryDetector).
				Component("detector").
				Build()
		}
		if !ifo.Strain.Aligned(ifos[0].Strain) {
			return nil, errors.Newf("detector %s data (start %g, %g s at %g Hz) is not aligned with %s (start %g, %g s at %g Hz)",
				ifo.Name, ifo.Strain.StartTime, ifo.Strain.Duration, ifo.Strain.SamplingFrequency,
				ifos[0].Name, ifos[0].Strain.StartTime, ifos[0].Strain.Duration, ifos[0].Strain.SamplingFrequency).
				Category(errors.CategoryValidation).
				Component("detector").
				Build()
		}
	}
	return &Network{ifos: ifos}, nil
}

// Interferometers returns the detectors in order.
func (n *Network) Interferometers() []*Interferometer { return n.ifos }

// Names returns the detector names in order.
func (n *Network) Names() []string {
	names := make([]string, len(n.ifos))
	for i, ifo := range n.ifos {
		names[i] = ifo.Name
	}
	return names
}

// StartTime is the shared segment start.
func (n *Network) StartTime() float64 { return n.ifos[0].Strain.StartTime }

// Duration is the shared segment length.
func (n *Network) Duration() float64 { return n.ifos[0].Strain.Duration }

// SamplingFrequency is the shared sampling rate.
func (n *Network) SamplingFrequency() float64 { return n.ifos[0].Strain.SamplingFrequency }

// InjectSignal injects the same source into every detector.
func (n *Network) InjectSignal(gen *waveform.Generator, p params.Parameters) ([]Injection, error) {
	out := make([]Injection, 0, len(n.ifos))
	for _, ifo := range n.ifos {
		inj, err := ifo.InjectSignal(gen, p)
		if err != nil {
			return nil, err
		}
		out = append(out, inj)
	}
	return out, nil
}

// Spec names a detector and the noise curve file it uses.
type Spec struct {
	Name    string
	PSDFile string
}

// DataConfig describes the shared data segment.
type DataConfig struct {
	SamplingFrequency float64
	Duration          float64
	StartTime         float64
	MinimumFrequency  float64
	MaximumFrequency  float64
	ZeroNoise         bool
}

// BuildNetwork loads each detector's noise curve and simulates its data.
// Noise is drawn from src in detector order.
func BuildNetwork(specs []Spec, cfg DataConfig, src rand.Source, log logger.Logger) (*Network, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	ifos := make([]*Interferometer, 0, len(specs))
	for _, spec := range specs {
		curve, err := LoadNoiseCurve(spec.PSDFile)
		if err != nil {
			return nil, err
		}
		psd, err := NewPowerSpectralDensity(curve)
		if err != nil {
			return nil, err
		}
		ifo, err := NewInterferometer(spec.Name, psd, cfg.MinimumFrequency, cfg.MaximumFrequency)
		if err != nil {
			return nil, err
		}
		if cfg.ZeroNoise {
			err = ifo.SetStrainDataZeroNoise(cfg.SamplingFrequency, cfg.Duration, cfg.StartTime)
		} else {
			err = ifo.SetStrainDataFromPSD(src, cfg.SamplingFrequency, cfg.Duration, cfg.StartTime)
		}
		if err != nil {
			return nil, err
		}
		log.Info("detector ready",
			logger.String("detector", ifo.Name),
			logger.String("noise_curve", curve.Source),
			logger.Float64("minimum_frequency", ifo.Strain.MinimumFrequency),
			logger.Float64("maximum_frequency", ifo.Strain.MaximumFrequency),
			logger.Bool("zero_noise", cfg.ZeroNoise))
		ifos = append(ifos, ifo)
	}
	return NewNetwork(ifos...)
}
