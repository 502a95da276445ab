package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently.
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if err != nil {
				t.Errorf("NewMetrics failed: %v", err)
				return
			}
			if m.registry == nil || m.Sampler == nil || m.Pipeline == nil ||
				m.Datastore == nil || m.Notification == nil {
				t.Error("metrics has nil collectors")
			}
		})
	}
	wg.Wait()
}

func TestConcurrentRecording(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				m.Sampler.ObserveLikelihood(0.001)
			}
		})
	}
	wg.Wait()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "gwpe_sampler_likelihood_calls_total 800"))
	assert.Contains(t, string(body), "go_goroutines")
}
