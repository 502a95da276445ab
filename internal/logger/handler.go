package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// textHandler renders records as "LEVEL [module] message key=value ..." lines.
// Timestamps are printed in the configured timezone.
type textHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	timezone *time.Location
	attrs    []slog.Attr
	group    string
}

func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return &textHandler{mu: &sync.Mutex{}, w: w, level: level, timezone: tz}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	if !r.Time.IsZero() {
		buf.WriteString(r.Time.In(h.timezone).Format("15:04:05"))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "%-5s ", levelName(r.Level))

	var module string
	rest := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	collect := func(a slog.Attr) bool {
		if a.Key == moduleKey {
			module = a.Value.String()
			return true
		}
		rest = append(rest, a)
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if module != "" {
		buf.WriteString("[" + module + "] ")
	}
	buf.WriteString(r.Message)

	for _, a := range rest {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		val := a.Value.Resolve().String()
		if strings.ContainsAny(val, " \t\"=") {
			val = fmt.Sprintf("%q", val)
		}
		buf.WriteString(" " + key + "=" + val)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

func levelName(level slog.Level) string {
	if level <= traceLevelValue {
		return "TRACE"
	}
	return level.String()
}

// fanoutHandler duplicates every record to each wrapped handler
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
