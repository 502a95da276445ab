// conf/validate.go contains validation logic for the configuration settings
package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	collect := func(errs ...error) {
		for _, err := range errs {
			if err != nil {
				ve.Errors = append(ve.Errors, err.Error())
			}
		}
	}

	collect(validateMainSettings(&settings.Main))
	collect(validateDataSettings(&settings.Data)...)
	collect(validateWaveformSettings(&settings.Waveform))
	collect(validateDetectorSettings(settings.Detectors)...)
	collect(validateSamplerSettings(&settings.Sampler)...)
	collect(validateLikelihoodSettings(&settings.Likelihood))
	collect(validateDatabaseSettings(&settings.Output.Database))
	collect(validateUploadSettings(&settings.Upload))
	collect(validateMQTTSettings(&settings.Notification.MQTT))

	if len(settings.Injection) == 0 {
		collect(fmt.Errorf("injection parameters must not be empty"))
	}
	for name, value := range settings.Injection {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			collect(fmt.Errorf("injection parameter %s must be finite", name))
		}
	}
	if len(settings.Priors) == 0 {
		collect(fmt.Errorf("prior table must not be empty"))
	}

	if len(ve.Errors) > 0 {
		slices.Sort(ve.Errors)
		return ve
	}
	return nil
}

func validateMainSettings(m *MainSettings) error {
	if strings.TrimSpace(m.Label) == "" {
		return fmt.Errorf("main.label must not be empty")
	}
	if strings.TrimSpace(m.Outdir) == "" {
		return fmt.Errorf("main.outdir must not be empty")
	}
	if strings.ContainsAny(m.Label, `/\`) {
		return fmt.Errorf("main.label must not contain path separators")
	}
	return nil
}

func validateDataSettings(d *DataSettings) []error {
	var errs []error
	if d.SamplingFrequency <= 0 {
		errs = append(errs, fmt.Errorf("data.samplingfrequency must be positive, got %g", d.SamplingFrequency))
	}
	if d.Duration <= 0 {
		errs = append(errs, fmt.Errorf("data.duration must be positive, got %g", d.Duration))
	}
	if d.SamplingFrequency > 0 && d.Duration > 0 {
		n := d.SamplingFrequency * d.Duration
		if n != math.Trunc(n) {
			errs = append(errs, fmt.Errorf("data.duration * data.samplingfrequency must be an integer, got %g", n))
		}
	}
	nyquist := d.SamplingFrequency / 2
	if d.MinimumFrequency < 0 || (nyquist > 0 && d.MinimumFrequency >= nyquist) {
		errs = append(errs, fmt.Errorf("data.minimumfrequency must lie in [0, %g), got %g", nyquist, d.MinimumFrequency))
	}
	if d.MaximumFrequency != 0 && (d.MaximumFrequency <= d.MinimumFrequency || d.MaximumFrequency > nyquist) {
		errs = append(errs, fmt.Errorf("data.maximumfrequency must lie in (minimumfrequency, %g], got %g", nyquist, d.MaximumFrequency))
	}
	if d.RollOff < 0 || (d.Duration > 0 && 2*d.RollOff > d.Duration) {
		errs = append(errs, fmt.Errorf("data.rolloff must lie in [0, duration/2], got %g", d.RollOff))
	}
	if d.PostTriggerTime < 0 || (d.Duration > 0 && d.PostTriggerTime >= d.Duration) {
		errs = append(errs, fmt.Errorf("data.posttriggertime must lie in [0, duration), got %g", d.PostTriggerTime))
	}
	return errs
}

func validateWaveformSettings(w *WaveformSettings) error {
	if w.Approximant == "" {
		return fmt.Errorf("waveform.approximant must not be empty")
	}
	if w.ReferenceFrequency <= 0 {
		return fmt.Errorf("waveform.referencefrequency must be positive, got %g", w.ReferenceFrequency)
	}
	return nil
}

func validateDetectorSettings(detectors []DetectorSettings) []error {
	if len(detectors) == 0 {
		return []error{fmt.Errorf("at least one detector must be configured")}
	}
	var errs []error
	seen := make(map[string]bool, len(detectors))
	for i, d := range detectors {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("detectors[%d].name must not be empty", i))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("detector %s configured more than once", d.Name))
		}
		seen[d.Name] = true
		if d.PSDFile == "" {
			errs = append(errs, fmt.Errorf("detector %s has no psdfile", d.Name))
		}
	}
	return errs
}

func validateSamplerSettings(s *SamplerSettings) []error {
	var errs []error
	if s.Nlive < 2 {
		errs = append(errs, fmt.Errorf("sampler.nlive must be at least 2, got %d", s.Nlive))
	}
	if s.Dlogz <= 0 {
		errs = append(errs, fmt.Errorf("sampler.dlogz must be positive, got %g", s.Dlogz))
	}
	if s.Walks < 1 {
		errs = append(errs, fmt.Errorf("sampler.walks must be at least 1, got %d", s.Walks))
	}
	if s.NPool < 0 {
		errs = append(errs, fmt.Errorf("sampler.npool must not be negative, got %d", s.NPool))
	}
	if s.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("sampler.queuesize must not be negative, got %d", s.QueueSize))
	}
	if s.CheckpointDeltaT < 0 {
		errs = append(errs, fmt.Errorf("sampler.checkpointdeltat must not be negative, got %g", s.CheckpointDeltaT))
	}
	if s.NEffective < 0 || s.MaxIter < 0 || s.MaxCall < 0 {
		errs = append(errs, fmt.Errorf("sampler.neffective, maxiter and maxcall must not be negative"))
	}
	return errs
}

func validateLikelihoodSettings(l *LikelihoodSettings) error {
	if l.DistanceMarginalization && l.DistanceGridSize < 2 {
		return fmt.Errorf("likelihood.distancegridsize must be at least 2 when distance marginalization is enabled")
	}
	return nil
}

func validateDatabaseSettings(db *DatabaseSettings) error {
	if !db.Enabled {
		return nil
	}
	switch db.Type {
	case "sqlite":
		if db.Path == "" {
			return fmt.Errorf("output.database.path is required for sqlite")
		}
	case "mysql":
		if db.Host == "" || db.Database == "" {
			return fmt.Errorf("output.database.host and database are required for mysql")
		}
	default:
		return fmt.Errorf("output.database.type must be sqlite or mysql, got %q", db.Type)
	}
	return nil
}

func validateUploadSettings(u *UploadSettings) error {
	if !u.Enabled {
		return nil
	}
	if u.Type != "ftp" && u.Type != "sftp" {
		return fmt.Errorf("upload.type must be ftp or sftp, got %q", u.Type)
	}
	if u.Host == "" {
		return fmt.Errorf("upload.host is required when upload is enabled")
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if m.Enabled && (m.Broker == "" || m.Topic == "") {
		return fmt.Errorf("notification.mqtt.broker and topic are required when mqtt is enabled")
	}
	return nil
}
