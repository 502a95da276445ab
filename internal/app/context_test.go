package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/buildinfo"
	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
)

func testContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	c := NewContext(buildinfo.NewContext("test", "", "abc"))
	c.Console = &console
	c.Settings = &conf.Settings{Main: conf.MainSettings{
		Outdir:   filepath.Join(t.TempDir(), "out"),
		Label:    "run",
		LogLevel: "info",
		LogFile:  true,
		Timezone: "UTC",
	}}
	t.Cleanup(func() { _ = c.Close() })
	return c, &console
}

func TestLoggerRequiresSettings(t *testing.T) {
	t.Parallel()
	c := NewContext(buildinfo.NewContext("", "", ""))
	_, err := c.Logger(false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestLoggerWritesRunLogFile(t *testing.T) {
	t.Parallel()
	c, console := testContext(t)

	log, err := c.Logger(true)
	require.NoError(t, err)
	log.Info("Finished Injecting signal", logger.String("detector", "H1"))
	require.NoError(t, c.Close())

	assert.Contains(t, console.String(), "Finished Injecting signal")

	data, err := os.ReadFile(c.Settings.OutputPath(".log"))
	require.NoError(t, err)
	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "Finished Injecting signal", record["msg"])
}

func TestLoggerWithoutFile(t *testing.T) {
	t.Parallel()
	c, _ := testContext(t)

	log, err := c.Logger(false)
	require.NoError(t, err)
	log.Info("hello")
	assert.NoFileExists(t, c.Settings.OutputPath(".log"))
}

func TestDebugRaisesVerbosity(t *testing.T) {
	t.Parallel()
	c, console := testContext(t)
	c.Settings.Debug = true

	log, err := c.Logger(false)
	require.NoError(t, err)
	log.Debug("debug line")
	assert.Contains(t, console.String(), "debug line")
}
