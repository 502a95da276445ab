package notification

import (
	"context"
	"time"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/logger"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/result"
)

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 15 * time.Second

// Service fans notifications out to every provider.
type Service struct {
	providers []Provider
	metrics   *metrics.NotificationMetrics
	log       logger.Logger
}

// NewService builds the providers enabled in settings. It returns a service
// with no providers when nothing is configured.
func NewService(settings conf.NotificationSettings, clientID string, m *metrics.NotificationMetrics, log logger.Logger) (*Service, error) {
	var providers []Provider
	if len(settings.URLs) > 0 {
		p, err := NewShoutrrrProvider(settings.URLs, DefaultTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if settings.MQTT.Enabled {
		p, err := NewMQTTProvider(settings.MQTT, clientID, DefaultTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewServiceWithProviders(providers, m, log), nil
}

// NewServiceWithProviders builds a service from ready providers.
func NewServiceWithProviders(providers []Provider, m *metrics.NotificationMetrics, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Service{providers: providers, metrics: m, log: log.Module("notification")}
}

// Enabled reports whether any provider is configured.
func (s *Service) Enabled() bool { return len(s.providers) > 0 }

// NotifyRunComplete announces a finished run.
func (s *Service) NotifyRunComplete(ctx context.Context, r *result.Result) error {
	return s.Send(ctx, RunComplete(r))
}

// NotifyRunFailed announces a failed run.
func (s *Service) NotifyRunFailed(ctx context.Context, label string, cause error) error {
	return s.Send(ctx, RunFailed(label, cause))
}

// Send delivers n through every provider and joins their errors. A failing
// provider does not stop the others.
func (s *Service) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, p := range s.providers {
		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		err := p.Send(sendCtx, n)
		cancel()

		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			errs = append(errs, err)
			s.log.Warn("notification failed",
				logger.String("provider", p.Name()),
				logger.String("type", string(n.Type)),
				logger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError(p.Name(), errorType(err))
			}
		} else {
			s.log.Info("notification sent",
				logger.String("provider", p.Name()),
				logger.String("type", string(n.Type)),
				logger.String("label", n.Label))
		}
		if s.metrics != nil {
			s.metrics.RecordDelivery(p.Name(), status, time.Since(start))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Category(errors.CategoryNotify).
		Component("notification").
		Context("type", string(n.Type)).
		Build()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.IsCategory(err, errors.CategoryNetwork):
		return "network"
	default:
		return "other"
	}
}
