// config.go: settings for a gwpe run and the functions to load and save them.
package conf

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/gwpe/internal/atomicfile"
	"github.com/tphakala/gwpe/internal/errors"
)

//go:embed config.yaml
var defaultConfigYAML []byte

// EnvPrefix is the prefix for environment variable overrides, e.g. GWPE_SAMPLER_NPOOL.
const EnvPrefix = "GWPE"

// Settings is the complete configuration of one inference run.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main         MainSettings         `mapstructure:"main" yaml:"main"`
	Injection    map[string]float64   `mapstructure:"injection" yaml:"injection"`
	Data         DataSettings         `mapstructure:"data" yaml:"data"`
	Waveform     WaveformSettings     `mapstructure:"waveform" yaml:"waveform"`
	Detectors    []DetectorSettings   `mapstructure:"detectors" yaml:"detectors"`
	Priors       map[string]PriorSpec `mapstructure:"priors" yaml:"priors"`
	Likelihood   LikelihoodSettings   `mapstructure:"likelihood" yaml:"likelihood"`
	Sampler      SamplerSettings      `mapstructure:"sampler" yaml:"sampler"`
	Output       OutputSettings       `mapstructure:"output" yaml:"output"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	Upload       UploadSettings       `mapstructure:"upload" yaml:"upload"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Server       ServerSettings       `mapstructure:"server" yaml:"server"`
}

// MainSettings identifies the run and its output location.
type MainSettings struct {
	Outdir   string `mapstructure:"outdir" yaml:"outdir"`     // run output directory, created if absent
	Label    string `mapstructure:"label" yaml:"label"`       // prefix for every output file
	LogLevel string `mapstructure:"loglevel" yaml:"loglevel"` // trace, debug, info, warn, error
	LogFile  bool   `mapstructure:"logfile" yaml:"logfile"`   // also log to <outdir>/<label>.log
	Seed     uint64 `mapstructure:"seed" yaml:"seed"`         // master seed for noise and sampler
	Timezone string `mapstructure:"timezone" yaml:"timezone"` // log timestamps
}

// DataSettings describes the simulated strain segment shared by every detector.
type DataSettings struct {
	SamplingFrequency float64 `mapstructure:"samplingfrequency" yaml:"samplingfrequency"` // Hz
	Duration          float64 `mapstructure:"duration" yaml:"duration"`                   // seconds
	TriggerTime       float64 `mapstructure:"triggertime" yaml:"triggertime"`             // GPS seconds
	PostTriggerTime   float64 `mapstructure:"posttriggertime" yaml:"posttriggertime"`     // seconds of data after the trigger
	MinimumFrequency  float64 `mapstructure:"minimumfrequency" yaml:"minimumfrequency"`   // Hz
	MaximumFrequency  float64 `mapstructure:"maximumfrequency" yaml:"maximumfrequency"`   // Hz, 0 means Nyquist
	RollOff           float64 `mapstructure:"rolloff" yaml:"rolloff"`                     // Tukey window roll-off, seconds
	ZeroNoise         bool    `mapstructure:"zeronoise" yaml:"zeronoise"`                 // inject into zero noise
}

// StartTime returns the GPS start of the segment.
func (d DataSettings) StartTime() float64 {
	return d.TriggerTime + d.PostTriggerTime - d.Duration
}

// WaveformSettings selects the source model.
type WaveformSettings struct {
	Approximant        string  `mapstructure:"approximant" yaml:"approximant"`
	ReferenceFrequency float64 `mapstructure:"referencefrequency" yaml:"referencefrequency"`
}

// DetectorSettings names one interferometer and its noise curve.
type DetectorSettings struct {
	Name    string `mapstructure:"name" yaml:"name"`
	PSDFile string `mapstructure:"psdfile" yaml:"psdfile"` // two-column frequency, ASD text file
}

// PriorSpec is one row of the prior table.
type PriorSpec struct {
	Type     string  `mapstructure:"type" yaml:"type"` // delta, uniform, sine, cosine, powerlaw, comovingvolume, constraint
	Peak     float64 `mapstructure:"peak" yaml:"peak,omitempty"`
	Minimum  float64 `mapstructure:"minimum" yaml:"minimum,omitempty"`
	Maximum  float64 `mapstructure:"maximum" yaml:"maximum,omitempty"`
	Alpha    float64 `mapstructure:"alpha" yaml:"alpha,omitempty"`       // power-law index
	Boundary string  `mapstructure:"boundary" yaml:"boundary,omitempty"` // "", periodic, reflective
}

// LikelihoodSettings selects the analytic marginalisations.
type LikelihoodSettings struct {
	PhaseMarginalization    bool `mapstructure:"phasemarginalization" yaml:"phasemarginalization"`
	TimeMarginalization     bool `mapstructure:"timemarginalization" yaml:"timemarginalization"`
	DistanceMarginalization bool `mapstructure:"distancemarginalization" yaml:"distancemarginalization"`
	DistanceGridSize        int  `mapstructure:"distancegridsize" yaml:"distancegridsize"`
}

// SamplerSettings configures the nested sampler.
type SamplerSettings struct {
	Name             string  `mapstructure:"name" yaml:"name"`
	Nlive            int     `mapstructure:"nlive" yaml:"nlive"`
	Dlogz            float64 `mapstructure:"dlogz" yaml:"dlogz"`
	Walks            int     `mapstructure:"walks" yaml:"walks"`
	NPool            int     `mapstructure:"npool" yaml:"npool"`                       // 0 picks a worker count from the host CPU
	QueueSize        int     `mapstructure:"queuesize" yaml:"queuesize"`               // proposals per batch, independent of npool
	CheckpointDeltaT float64 `mapstructure:"checkpointdeltat" yaml:"checkpointdeltat"` // seconds of wall time
	NEffective       int     `mapstructure:"neffective" yaml:"neffective"`             // 0 disables the effective sample size stop
	MaxIter          int     `mapstructure:"maxiter" yaml:"maxiter"`
	MaxCall          int     `mapstructure:"maxcall" yaml:"maxcall"`
	Resume           bool    `mapstructure:"resume" yaml:"resume"`
}

// OutputSettings controls diagnostic artefacts and result storage.
type OutputSettings struct {
	Diagnostics bool             `mapstructure:"diagnostics" yaml:"diagnostics"` // write per-detector data files
	Database    DatabaseSettings `mapstructure:"database" yaml:"database"`
}

// DatabaseSettings configures optional run storage.
type DatabaseSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Type     string `mapstructure:"type" yaml:"type"` // sqlite or mysql
	Path     string `mapstructure:"path" yaml:"path"` // sqlite file
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// NotificationSettings configures run-completion notices.
type NotificationSettings struct {
	URLs []string     `mapstructure:"urls" yaml:"urls"` // shoutrrr service URLs
	MQTT MQTTSettings `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTSettings configures the MQTT completion topic.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// UploadSettings configures copying run artefacts to remote storage.
type UploadSettings struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Type       string `mapstructure:"type" yaml:"type"` // ftp or sftp
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	KeyFile    string `mapstructure:"keyfile" yaml:"keyfile"`
	KnownHosts string `mapstructure:"knownhosts" yaml:"knownhosts"`
	RemotePath string `mapstructure:"remotepath" yaml:"remotepath"`
	TimeoutSec int    `mapstructure:"timeoutsec" yaml:"timeoutsec"`
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerSettings configures the optional status server.
type ServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads settings through the global viper instance. Flags bound with
// viper.BindPFlags by the command layer take precedence over the file.
func Load() (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper())
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// LoadFrom reads settings through the given viper instance. When no config
// file is found the embedded defaults are used.
func LoadFrom(v *viper.Viper) (*Settings, error) {
	if err := initViper(v); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	// A priors block replaces the whole default table.
	if !v.IsSet("priors") {
		settings.Priors = DefaultPriors()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "validate-config").
			Build()
	}

	return settings, nil
}

// initViper sets defaults and reads the config file, falling back to the embedded one.
func initViper(v *viper.Viper) error {
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultConfig(v)

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return v.MergeConfig(bytes.NewReader(defaultConfigYAML))
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// GetSettings returns the settings loaded by the last Load call
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() []byte {
	return bytes.Clone(defaultConfigYAML)
}

// SaveYAMLConfig writes the settings to configPath atomically.
// It does not preserve comments or structure of an existing file.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	if err := atomicfile.Write(configPath, yamlData, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(configPath, int64(len(yamlData))).
			Build()
	}
	return nil
}
