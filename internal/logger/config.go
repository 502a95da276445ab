package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level" mapstructure:"default_level"` // default level for all modules
	Timezone     string            `yaml:"timezone" json:"timezone" mapstructure:"timezone"`                // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput    `yaml:"console" json:"console" mapstructure:"console"`                   // console output configuration
	FileOutput   *FileOutput       `yaml:"file_output" json:"file_output" mapstructure:"file_output"`       // file output configuration
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels" mapstructure:"module_levels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output uses a human-readable text format.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// FileOutput represents file logging configuration.
// File output uses JSON with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// Default values for logging configuration
const (
	DefaultLogLevel       = "info"
	DefaultConsoleEnabled = true
)

// applyConfigDefaults fills nil outputs so a partial config still logs somewhere
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.DefaultLevel
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Level == "" {
		cfg.FileOutput.Level = cfg.DefaultLevel
	}
}
