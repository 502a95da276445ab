// Package telemetry provides opt-in error reporting to Sentry. Events are
// stripped of host identity and credentials before they leave the process.
package telemetry

import (
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/privacy"
)

// FlushTimeout bounds how long Shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

var (
	mu          sync.Mutex
	initialized bool
)

// Options tune Init. Transport replaces the HTTP transport, which tests
// use to capture events.
type Options struct {
	Version     string
	Environment string
	Transport   sentry.Transport
}

// Init starts Sentry when settings enable it and hooks it into the errors
// package so that every built error is reported. It is a no-op when
// telemetry is disabled.
func Init(settings conf.TelemetrySettings, opts Options, log logger.Logger) error {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	log = log.Module("telemetry")
	if !settings.Enabled {
		log.Debug("error telemetry disabled")
		return nil
	}
	if settings.DSN == "" && opts.Transport == nil {
		return errors.Newf("telemetry is enabled but no DSN is configured").
			Category(errors.CategoryConfiguration).
			Component("telemetry").
			Build()
	}
	if opts.Environment == "" {
		opts.Environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Transport:        opts.Transport,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      opts.Environment,
		ServerName:       "",
		Release:          "gwpe@" + opts.Version,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(privacy.WrapError(err)).
			Category(errors.CategoryConfiguration).
			Component("telemetry").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":    "gwpe",
			"version": opts.Version,
		})
	})

	mu.Lock()
	initialized = true
	mu.Unlock()
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("error telemetry enabled", logger.String("environment", opts.Environment))
	return nil
}

// Enabled reports whether Init started Sentry.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return initialized
}

// Shutdown detaches the reporter and flushes queued events.
func Shutdown() {
	mu.Lock()
	wasInitialized := initialized
	initialized = false
	mu.Unlock()
	if !wasInitialized {
		return
	}
	errors.SetTelemetryReporter(nil)
	sentry.Flush(FlushTimeout)
}

// applyPrivacyFilters removes host identity and credentials from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
