package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/gwpe/internal/errors"
)

const (
	// traceLevelValue is slog.Level for TRACE level (below Debug which is -4)
	traceLevelValue = slog.Level(-8)

	// floatPrecisionRatio rounds floats to 3 decimal places in log output
	floatPrecisionRatio = 1000.0

	logFilePermissions = 0o600
	logDirPermissions  = 0o755
)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the global CentralLogger instance.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the global CentralLogger instance, creating a console-only
// logger at info level when none has been set.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger != nil {
		return globalLogger
	}

	globalLogger = &CentralLogger{
		config: &LoggingConfig{
			DefaultLevel: DefaultLogLevel,
			Console:      &ConsoleOutput{Enabled: true, Level: DefaultLogLevel},
		},
		timezone:     time.Local,
		moduleLevels: make(map[string]slog.Level),
		baseHandler:  newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
	}
	return globalLogger
}

type loggerContextKey struct{ name string }

// TraceIDKey is the context key for trace IDs. Use WithTraceID() to set values.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID returns a new context with the trace ID set
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CentralLogger manages module-aware logging with console and file routing
type CentralLogger struct {
	config       *LoggingConfig
	timezone     *time.Location
	baseHandler  slog.Handler
	fileWriter   *bufferedFile
	moduleLevels map[string]slog.Level
	mu           sync.RWMutex
}

// NewCentralLogger creates a centralized logger writing to stdout
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	return NewCentralLoggerWithConsole(cfg, os.Stdout)
}

// NewCentralLoggerWithConsole creates a centralized logger whose console
// output goes to the given writer.
func NewCentralLoggerWithConsole(cfg *LoggingConfig, console io.Writer) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	var tz *time.Location
	switch cfg.Timezone {
	case "", "Local":
		tz = time.Local
	default:
		var err error
		tz, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
	}

	cl := &CentralLogger{
		config:       cfg,
		timezone:     tz,
		moduleLevels: make(map[string]slog.Level),
	}
	for module, levelStr := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(levelStr)
	}

	var handlers []slog.Handler
	if cfg.Console.Enabled {
		handlers = append(handlers, newTextHandler(console, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		writer, err := openBufferedFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create log writer: %w", err)
		}
		cl.fileWriter = writer
		handlers = append(handlers, slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.FileOutput.Level),
		}))
	}

	switch len(handlers) {
	case 0:
		cl.baseHandler = newTextHandler(console, parseLogLevel(cfg.DefaultLevel), tz)
	case 1:
		cl.baseHandler = handlers[0]
	default:
		cl.baseHandler = newFanoutHandler(handlers...)
	}

	return cl, nil
}

// Module returns a logger scoped to a specific module
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}

	return &moduleLogger{
		module:  name,
		logger:  slog.New(cl.baseHandler),
		level:   level,
		flusher: cl,
	}
}

// Close flushes and closes the log file
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.fileWriter == nil {
		return nil
	}
	err := cl.fileWriter.Close()
	cl.fileWriter = nil
	return err
}

// Flush writes buffered file output to the OS
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if cl.fileWriter == nil {
		return nil
	}
	return cl.fileWriter.Flush()
}

// bufferedFile is a mutex-guarded bufio.Writer over an append-only file
type bufferedFile struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

func openBufferedFile(path string) (*bufferedFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, err
	}
	return &bufferedFile{file: f, buf: bufio.NewWriter(f)}, nil
}

func (b *bufferedFile) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufferedFile) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Flush()
}

func (b *bufferedFile) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.buf.Flush(), b.file.Sync(), b.file.Close())
}

// parseLogLevel converts string level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "trace":
		return traceLevelValue
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// moduleLogger implements Logger for a specific module
type moduleLogger struct {
	module  string
	logger  *slog.Logger
	level   slog.Level
	fields  []Field
	flusher interface{ Flush() error }
}

// Module creates a sub-module logger with its own copy of fields
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	return &moduleLogger{
		module:  m.module + "." + name,
		logger:  m.logger,
		level:   m.level,
		fields:  slices.Clone(m.fields),
		flusher: m.flusher,
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) {
	if m == nil || m.level > traceLevelValue {
		return
	}
	m.log(traceLevelValue, msg, fields...)
}

func (m *moduleLogger) Debug(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelDebug {
		return
	}
	m.log(slog.LevelDebug, msg, fields...)
}

func (m *moduleLogger) Info(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelInfo {
		return
	}
	m.log(slog.LevelInfo, msg, fields...)
}

func (m *moduleLogger) Warn(msg string, fields ...Field) {
	if m == nil || m.level > slog.LevelWarn {
		return
	}
	m.log(slog.LevelWarn, msg, fields...)
}

func (m *moduleLogger) Error(msg string, fields ...Field) {
	if m == nil {
		return
	}
	m.log(slog.LevelError, msg, fields...)
}

// Log logs a message with explicit level
func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	if m == nil {
		return
	}
	lvl := parseLogLevel(string(level))
	if lvl < m.level {
		return
	}
	m.log(lvl, msg, fields...)
}

// With returns a new logger with accumulated fields
func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return &moduleLogger{
		module:  m.module,
		logger:  m.logger,
		level:   m.level,
		fields:  slices.Concat(m.fields, fields),
		flusher: m.flusher,
	}
}

// WithContext returns a logger carrying the context's trace ID, if any
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if ctx == nil {
		return m
	}
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok || traceID == "" {
		return m
	}
	return m.With(String(traceIDKey, traceID))
}

func (m *moduleLogger) Flush() error {
	if m == nil || m.flusher == nil {
		return nil
	}
	return m.flusher.Flush()
}

func (m *moduleLogger) log(level slog.Level, msg string, fields ...Field) {
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for i := range m.fields {
		attrs = append(attrs, fieldToAttr(m.fields[i]))
	}
	for i := range fields {
		attrs = append(attrs, fieldToAttr(fields[i]))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func roundFloat(val float64) float64 {
	if math.Abs(val) < 1 || math.IsInf(val, 0) || math.IsNaN(val) {
		return val
	}
	return math.Round(val*floatPrecisionRatio) / floatPrecisionRatio
}

// fieldToAttr converts Field to slog.Attr
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, roundFloat(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

// NewDiscardLogger returns a Logger that drops everything, for tests
func NewDiscardLogger() Logger {
	return &moduleLogger{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		level:  slog.LevelError + 1,
	}
}
