package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ShutdownTimeout bounds graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second

// Buckets for likelihood evaluation latency: 100µs to ~6.5s.
var likelihoodBuckets = prometheus.ExponentialBuckets(0.0001, 2, 17)

// Buckets for pipeline stages and I/O: 10ms to ~40min.
var stageBuckets = prometheus.ExponentialBuckets(0.01, 4, 10)
