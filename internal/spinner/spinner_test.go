package spinner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateOverwritesLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewSpinner(&buf)

	s.Update("iter 10")
	first := buf.String()
	assert.True(t, strings.HasPrefix(first, "\033[?25l\r⣀⣀ iter 10"))

	buf.Reset()
	s.Update("it 2")
	// The shorter second line is padded to cover the first.
	assert.Equal(t, "\033[?25l\r⣄⣀ it 2"+strings.Repeat(" ", 3), buf.String())
}

func TestFramesWrap(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewSpinner(&buf)
	for range len(s.frames) {
		s.Update("x")
	}
	assert.Equal(t, 0, s.index)
}

func TestCleanupShowsCursor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewSpinner(&buf)
	s.Update("status")
	buf.Reset()

	s.Cleanup()
	assert.True(t, strings.HasSuffix(buf.String(), "\033[?25h"))
	assert.Equal(t, 0, s.width)
}
