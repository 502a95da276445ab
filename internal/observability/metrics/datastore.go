package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations.
type DatastoreMetrics struct {
	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec
	rowsWrittenTotal       *prometheus.CounterVec
}

// NewDatastoreMetrics creates and registers the datastore collectors.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		dbOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_db_operations_total",
			Help: "Database operations partitioned by operation, table and status.",
		}, []string{"operation", "table", "status"}),
		dbOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwpe_db_operation_duration_seconds",
			Help:    "Duration of database operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "table"}),
		dbOperationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_db_operation_errors_total",
			Help: "Database operation errors partitioned by type.",
		}, []string{"operation", "table", "error_type"}),
		rowsWrittenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwpe_db_rows_written_total",
			Help: "Rows inserted per table.",
		}, []string{"table"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

// RecordRowsWritten adds n inserted rows for table.
func (m *DatastoreMetrics) RecordRowsWritten(table string, n int) {
	m.rowsWrittenTotal.WithLabelValues(table).Add(float64(n))
}

// parseTableFromOperation splits "save_runs" style operation names into the
// verb and the table.
func parseTableFromOperation(operation string) (op, table string) {
	if i := strings.Index(operation, "_"); i > 0 {
		return operation[:i], operation[i+1:]
	}
	return operation, "unknown"
}

// RecordOperation implements Recorder.
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	op, table := parseTableFromOperation(operation)
	m.dbOperationsTotal.WithLabelValues(op, table, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	op, table := parseTableFromOperation(operation)
	m.dbOperationDuration.WithLabelValues(op, table).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	op, table := parseTableFromOperation(operation)
	m.dbOperationErrorsTotal.WithLabelValues(op, table, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dbOperationsTotal.Describe(ch)
	m.dbOperationDuration.Describe(ch)
	m.dbOperationErrorsTotal.Describe(ch)
	m.rowsWrittenTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dbOperationsTotal.Collect(ch)
	m.dbOperationDuration.Collect(ch)
	m.dbOperationErrorsTotal.Collect(ch)
	m.rowsWrittenTotal.Collect(ch)
}
