// Package spinner renders a single updating status line on a terminal.
package spinner

import (
	"fmt"
	"io"
	"sync"
	"unicode/utf8"
)

// Spinner struct holds the spinner state
type Spinner struct {
	mu     sync.Mutex
	out    io.Writer
	frames []string
	index  int
	width  int
}

// NewSpinner creates a new spinner writing to out
func NewSpinner(out io.Writer) *Spinner {
	// Braille arrow sequence
	return &Spinner{
		out: out,
		frames: []string{
			"⣀⣀ ", "⣄⣀ ", "⣤⣀ ", "⣦⣄ ", "⣶⣤ ", "⣿⣦ ", "⣿⣷ ", "⣿⣿ ",
			"⣿⣿ ", "⣷⣿ ", "⣦⣿ ", "⣤⣷ ", "⣄⣦ ", "⣀⣤ ", "⣀⣄ ", "⣀⣀ ",
		},
	}
}

// Update advances the spinner to the next frame and prints it followed by
// status, overwriting the previous line.
func (s *Spinner) Update(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := s.frames[s.index] + status
	n := utf8.RuneCountInString(line)
	pad := s.width - n
	s.width = n

	// Hide cursor while the line is live
	fmt.Fprint(s.out, "\033[?25l\r", line)
	if pad > 0 {
		fmt.Fprintf(s.out, "%*s", pad, "")
	}

	s.index++
	if s.index >= len(s.frames) {
		s.index = 0
	}
}

// Cleanup clears the status line and shows the cursor
func (s *Spinner) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\r%*s\r", s.width, "")
	fmt.Fprint(s.out, "\033[?25h")
	s.width = 0
}
