// Package app holds the state shared by the gwpe commands: build metadata,
// the loaded settings and the process-wide logger.
package app

import (
	"io"
	"os"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/gwpe/internal/buildinfo"
	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
)

// Context holds the overall application state.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings

	// Console receives human-readable log output, os.Stderr by default so
	// that command output on stdout stays machine readable.
	Console io.Writer

	mu   sync.Mutex
	logs *logger.CentralLogger
}

// NewContext creates a Context for the given build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build, Console: os.Stderr}
}

// LoadSettings reads the configuration through the global viper instance.
// An explicit configFile replaces the search of the default locations.
func (c *Context) LoadSettings(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	}
	settings, err := conf.Load()
	if err != nil {
		return err
	}
	c.Settings = settings
	return nil
}

// Logger returns the root logger, creating it on first use. With withFile
// set, and main.logfile enabled, records are also written as JSON to
// <outdir>/<label>.log.
func (c *Context) Logger(withFile bool) (logger.Logger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logs != nil {
		return c.logs.Module("gwpe"), nil
	}
	if c.Settings == nil {
		return nil, errors.Newf("settings are not loaded").
			Category(errors.CategoryState).
			Component("app").
			Build()
	}

	level := c.Settings.Main.LogLevel
	if c.Settings.Debug {
		level = string(logger.LogLevelDebug)
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     c.Settings.Main.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if withFile && c.Settings.Main.LogFile {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    c.Settings.OutputPath(".log"),
			Level:   level,
		}
	}

	console := c.Console
	if console == nil {
		console = os.Stderr
	}
	cl, err := logger.NewCentralLoggerWithConsole(cfg, console)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("app").
			Build()
	}
	logger.SetGlobal(cl)
	c.logs = cl
	return cl.Module("gwpe"), nil
}

// Close flushes and closes the log file, if any.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logs == nil {
		return nil
	}
	err := c.logs.Close()
	c.logs = nil
	return err
}
