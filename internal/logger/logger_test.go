package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/logger"
)

func newTestLogger(t *testing.T, level string, file string) (*logger.CentralLogger, *bytes.Buffer) {
	t.Helper()

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if file != "" {
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: file, Level: level}
	}

	var console bytes.Buffer
	cl, err := logger.NewCentralLoggerWithConsole(cfg, &console)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, &console
}

func TestConsoleOutputIncludesModuleAndFields(t *testing.T) {
	t.Parallel()

	cl, console := newTestLogger(t, "info", "")
	log := cl.Module("pipeline")

	log.Info("Finished Injecting signal", logger.String("detector", "H1"), logger.Float64("snr", 12.34567))

	out := console.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[pipeline]")
	assert.Contains(t, out, "Finished Injecting signal")
	assert.Contains(t, out, "detector=H1")
	assert.Contains(t, out, "snr=12.346")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		logFunc   func(l logger.Logger)
		wantEmpty bool
	}{
		{"debug suppressed at info", "info", func(l logger.Logger) { l.Debug("hidden") }, true},
		{"info shown at info", "info", func(l logger.Logger) { l.Info("shown") }, false},
		{"warn suppressed at error", "error", func(l logger.Logger) { l.Warn("hidden") }, true},
		{"trace shown at trace", "trace", func(l logger.Logger) { l.Trace("shown") }, false},
		{"explicit level respects filter", "warn", func(l logger.Logger) { l.Log(logger.LogLevelInfo, "hidden") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cl, console := newTestLogger(t, tt.level, "")
			tt.logFunc(cl.Module("test"))
			assert.Equal(t, tt.wantEmpty, console.Len() == 0, "output: %q", console.String())
		})
	}
}

func TestNestedModuleAndWith(t *testing.T) {
	t.Parallel()

	cl, console := newTestLogger(t, "debug", "")
	log := cl.Module("pipeline").Module("injection").With(logger.String("label", "run"))

	log.Debug("projecting")

	out := console.String()
	assert.Contains(t, out, "[pipeline.injection]")
	assert.Contains(t, out, "label=run")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	cl, console := newTestLogger(t, "info", "")
	ctx := logger.WithTraceID(context.Background(), "abc-123")

	cl.Module("cmd").WithContext(ctx).Info("start")

	assert.Contains(t, console.String(), "trace_id=abc-123")
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "run.log")
	cl, _ := newTestLogger(t, "info", path)

	cl.Module("sampler").Info("Calling sampler",
		logger.Int("nlive", 1000),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(nil))
	require.NoError(t, cl.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "Calling sampler", entry["msg"])
	assert.Equal(t, "sampler", entry["module"])
	assert.InDelta(t, 1000, entry["nlive"], 0)
	assert.Equal(t, "1.5s", entry["elapsed"])
}

func TestNilConfigRejected(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestInvalidTimezoneRejected(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestDiscardLoggerIsSilent(t *testing.T) {
	t.Parallel()

	log := logger.NewDiscardLogger()
	log.Info("nothing")
	log.Error("still nothing")
	assert.NoError(t, log.Flush())
}
