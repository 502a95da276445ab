// Package logger provides module-aware structured logging built on log/slog.
//
// A CentralLogger owns the output handlers (human-readable text on the console,
// JSON in the run log file) and hands out module-scoped Logger values:
//
//	central, err := logger.NewCentralLogger(&logger.LoggingConfig{
//	    DefaultLevel: "info",
//	    Console:      &logger.ConsoleOutput{Enabled: true, Level: "info"},
//	    FileOutput:   &logger.FileOutput{Enabled: true, Path: "outdir/label.log", Level: "debug"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("sampler")
//	log.Info("Calling sampler", logger.Int("nlive", 1000), logger.Float64("dlogz", 0.1))
//
// Module loggers nest ("pipeline.injection") and accumulate fields with With.
// All implementations are safe for concurrent use.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned with unique.Make so repeated keys share one allocation.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field.
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates an unsigned 64-bit integer field.
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a float field. Values with magnitude of at least one are
// rounded to three decimals in the output; smaller values are kept as is
// so strain amplitudes and tolerances stay readable.
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field. The key is always "error".
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field rendered as a human-readable string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}

// Strings creates a field holding a list of strings.
func Strings(key string, values []string) Field {
	return Field{Key: internKey(key), Value: values}
}

// Any creates a field for arbitrary values.
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
