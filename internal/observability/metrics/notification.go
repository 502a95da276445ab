package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks run-completion notifications and artefact uploads.
type NotificationMetrics struct {
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	deliveryErrors   *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	uploadBytesTotal *prometheus.CounterVec
}

// NewNotificationMetrics creates and registers the notification collectors.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_notification_deliveries_total",
			Help: "Notification deliveries partitioned by provider and status.",
		}, []string{"provider", "status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwpe_notification_delivery_duration_seconds",
			Help:    "Time taken to deliver a notification.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		deliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_notification_errors_total",
			Help: "Notification errors partitioned by provider and category.",
		}, []string{"provider", "error_type"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_upload_files_total",
			Help: "Uploaded files partitioned by protocol and status.",
		}, []string{"protocol", "status"}),
		uploadBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_upload_bytes_total",
			Help: "Bytes uploaded partitioned by protocol.",
		}, []string{"protocol"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordDelivery records one delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider, status string, duration time.Duration) {
	m.deliveriesTotal.WithLabelValues(provider, status).Inc()
	m.deliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordUpload records one uploaded file.
func (m *NotificationMetrics) RecordUpload(protocol string, bytes int64, err error) {
	if err != nil {
		m.uploadsTotal.WithLabelValues(protocol, StatusError).Inc()
		return
	}
	m.uploadsTotal.WithLabelValues(protocol, StatusSuccess).Inc()
	m.uploadBytesTotal.WithLabelValues(protocol).Add(float64(bytes))
}

// RecordOperation implements Recorder.
func (m *NotificationMetrics) RecordOperation(operation, status string) {
	m.deliveriesTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *NotificationMetrics) RecordDuration(operation string, seconds float64) {
	m.deliveryDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *NotificationMetrics) RecordError(operation, errorType string) {
	m.deliveryErrors.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.deliveriesTotal.Describe(ch)
	m.deliveryDuration.Describe(ch)
	m.deliveryErrors.Describe(ch)
	m.uploadsTotal.Describe(ch)
	m.uploadBytesTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.deliveriesTotal.Collect(ch)
	m.deliveryDuration.Collect(ch)
	m.deliveryErrors.Collect(ch)
	m.uploadsTotal.Collect(ch)
	m.uploadBytesTotal.Collect(ch)
}
