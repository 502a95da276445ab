// Package metrics provides custom Prometheus metrics for the gwpe pipeline.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors so tests can
// substitute an in-memory implementation.
type Recorder interface {
	// RecordOperation records an operation with its status ("success", "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	RecordError(operation, errorType string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

// NewNoOpRecorder returns a recorder that does nothing.
func NewNoOpRecorder() *NoOpRecorder { return &NoOpRecorder{} }

func (NoOpRecorder) RecordOperation(operation, status string)         {}
func (NoOpRecorder) RecordDuration(operation string, seconds float64) {}
func (NoOpRecorder) RecordError(operation, errorType string)          {}
