// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with file paths scrubbed
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubPaths(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		title := generateErrorTitle(ee)

		scope.SetTag("error_title", title)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubPaths(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle builds "<Component> <Category> Error" for grouping
func generateErrorTitle(ee *EnhancedError) string {
	var parts []string
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, titleCase(c))
	}
	if ee.Category != "" {
		parts = append(parts, titleCase(strings.ReplaceAll(string(ee.Category), "-", " "))+" Error")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// getErrorLevel maps explicit priority, then category, to a Sentry level
func getErrorLevel(ee *EnhancedError) sentry.Level {
	switch ee.Priority {
	case PriorityCritical:
		return sentry.LevelFatal
	case PriorityHigh:
		return sentry.LevelError
	case PriorityLow:
		return sentry.LevelInfo
	}

	switch ee.Category {
	case CategoryConfiguration, CategoryValidation, CategoryPrior:
		return sentry.LevelWarning
	case CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	telemetryMu             sync.RWMutex
	globalTelemetryReporter TelemetryReporter
)

// SetTelemetryReporter installs the reporter used by Build. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current reporter, if any
func GetTelemetryReporter() TelemetryReporter {
	telemetryMu.RLock()
	defer telemetryMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter == nil || !reporter.IsEnabled() {
		return
	}
	reporter.ReportError(ee)
}

var pathPattern = regexp.MustCompile(`(/[^/\s]+)+/([^/\s]+)`)

// scrubPaths keeps only the base name of absolute paths
func scrubPaths(message string) string {
	return pathPattern.ReplaceAllString(message, ".../$2")
}
