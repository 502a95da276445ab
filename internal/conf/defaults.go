// conf/defaults.go default values for settings
package conf

import (
	"math"

	"github.com/spf13/viper"
)

// Default run identity and data segment
const (
	DefaultOutdir            = "bibly_5.445_0_followup_trueloc"
	DefaultLabel             = "bilby_5.445_0_followup_trueloc"
	DefaultTriggerTime       = 1264069376
	DefaultSamplingFrequency = 4096
	DefaultDuration          = 320
	DefaultApproximant       = "TaylorF2ThreePointFivePN"
	DefaultReferenceFreq     = 20
	DefaultMinimumFrequency  = 20
	DefaultRollOff           = 0.4
	DefaultSeed              = 88170235
)

// DefaultInjection returns the injected source parameters.
func DefaultInjection() map[string]float64 {
	return map[string]float64{
		"chirp_mass":          1.43,
		"mass_ratio":          0.833,
		"a_1":                 0,
		"a_2":                 0,
		"tilt_1":              0,
		"tilt_2":              0,
		"phi_12":              0,
		"phi_jl":              0,
		"luminosity_distance": 100,
		"theta_jn":            0.1,
		"psi":                 2.659,
		"phase":               1.3,
		"ra":                  5.445,
		"dec":                 0,
		"geocent_time":        DefaultTriggerTime,
	}
}

// DefaultPriors returns the prior table of the follow-up run.
func DefaultPriors() map[string]PriorSpec {
	return map[string]PriorSpec{
		"chirp_mass":          {Type: "uniform", Minimum: 1.40, Maximum: 1.46},
		"mass_ratio":          {Type: "uniform", Minimum: 0.25, Maximum: 1},
		"mass_1":              {Type: "constraint", Minimum: 1, Maximum: 3},
		"mass_2":              {Type: "constraint", Minimum: 1, Maximum: 3},
		"a_1":                 {Type: "uniform", Minimum: 0, Maximum: 0.05},
		"a_2":                 {Type: "uniform", Minimum: 0, Maximum: 0.05},
		"tilt_1":              {Type: "delta", Peak: 0},
		"tilt_2":              {Type: "delta", Peak: 0},
		"phi_12":              {Type: "delta", Peak: 0},
		"phi_jl":              {Type: "uniform", Minimum: 0, Maximum: 2 * math.Pi, Boundary: "periodic"},
		"luminosity_distance": {Type: "comovingvolume", Minimum: 0, Maximum: 500},
		"theta_jn":            {Type: "sine", Minimum: 0, Maximum: math.Pi},
		"psi":                 {Type: "uniform", Minimum: 0, Maximum: math.Pi, Boundary: "periodic"},
		"ra":                  {Type: "delta", Peak: 5.445},
		"dec":                 {Type: "delta", Peak: 0},
		"geocent_time":        {Type: "delta", Peak: DefaultTriggerTime},
	}
}

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.outdir", DefaultOutdir)
	v.SetDefault("main.label", DefaultLabel)
	v.SetDefault("main.loglevel", "info")
	v.SetDefault("main.logfile", true)
	v.SetDefault("main.seed", DefaultSeed)
	v.SetDefault("main.timezone", "Local")

	v.SetDefault("injection", DefaultInjection())

	v.SetDefault("data.samplingfrequency", DefaultSamplingFrequency)
	v.SetDefault("data.duration", DefaultDuration)
	v.SetDefault("data.triggertime", DefaultTriggerTime)
	v.SetDefault("data.posttriggertime", 0)
	v.SetDefault("data.minimumfrequency", DefaultMinimumFrequency)
	v.SetDefault("data.maximumfrequency", 0)
	v.SetDefault("data.rolloff", DefaultRollOff)
	v.SetDefault("data.zeronoise", false)

	v.SetDefault("waveform.approximant", DefaultApproximant)
	v.SetDefault("waveform.referencefrequency", DefaultReferenceFreq)

	v.SetDefault("detectors", []map[string]any{
		{"name": "H1", "psdfile": "aligo_O4high_extrapolated.txt"},
		{"name": "L1", "psdfile": "aligo_O4high_extrapolated.txt"},
		{"name": "V1", "psdfile": "avirgo_O4high_NEW.txt"},
	})

	// No default for the prior table: a priors block in the file replaces
	// the table as a whole and LoadFrom falls back to DefaultPriors.

	v.SetDefault("likelihood.phasemarginalization", true)
	v.SetDefault("likelihood.timemarginalization", false)
	v.SetDefault("likelihood.distancemarginalization", false)
	v.SetDefault("likelihood.distancegridsize", 400)

	v.SetDefault("sampler.name", "dynesty")
	v.SetDefault("sampler.nlive", 1000)
	v.SetDefault("sampler.dlogz", 0.1)
	v.SetDefault("sampler.walks", 100)
	v.SetDefault("sampler.npool", 64)
	v.SetDefault("sampler.queuesize", 64)
	v.SetDefault("sampler.checkpointdeltat", 15000)
	v.SetDefault("sampler.neffective", 1000)
	v.SetDefault("sampler.maxiter", 0)
	v.SetDefault("sampler.maxcall", 0)
	v.SetDefault("sampler.resume", true)

	v.SetDefault("output.diagnostics", true)
	v.SetDefault("output.database.enabled", false)
	v.SetDefault("output.database.type", "sqlite")
	v.SetDefault("output.database.path", "gwpe.db")
	v.SetDefault("output.database.port", 3306)

	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.mqtt.enabled", false)
	v.SetDefault("notification.mqtt.topic", "gwpe/runs")

	v.SetDefault("upload.enabled", false)
	v.SetDefault("upload.type", "sftp")
	v.SetDefault("upload.port", 22)
	v.SetDefault("upload.timeoutsec", 30)

	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen", "127.0.0.1:9099")
}
