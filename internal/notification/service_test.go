package notification

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/gwpe/internal/conf"
	gwerrors "github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/observability/metrics"
	"github.com/tphakala/gwpe/internal/result"
)

type recordingProvider struct {
	name string
	err  error

	mu   sync.Mutex
	sent []*Notification
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Send(_ context.Context, n *Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return p.err
}

func testResult() *result.Result {
	return &result.Result{
		RunID:               "abc",
		Label:               "GW150914",
		LogBayesFactor:      42.1,
		LogEvidence:         -1000,
		LogEvidenceErr:      0.15,
		NumLikelihoodCalls:  123456,
		SamplingTimeSeconds: 3725,
		Posterior:           map[string][]float64{"chirp_mass": {1, 2, 3}},
	}
}

func TestRunCompleteMessage(t *testing.T) {
	t.Parallel()
	n := RunComplete(testResult())
	assert.Equal(t, TypeRunComplete, n.Type)
	assert.Equal(t, "gwpe run GW150914 finished", n.Title)
	assert.Equal(t, "ln BF = 42.10 +/- 0.15, 3 posterior samples, 123456 likelihood calls in 1h2m5s", n.Message)
	require.NotNil(t, n.LogBayesFactor)
	assert.InDelta(t, 42.1, *n.LogBayesFactor, 0)
}

func TestRunCompleteOmitsNonFinite(t *testing.T) {
	t.Parallel()
	r := testResult()
	r.LogEvidence = math.Inf(-1)
	n := RunComplete(r)
	assert.Nil(t, n.LogEvidence)

	// The payload must stay encodable.
	_, err := json.Marshal(n)
	require.NoError(t, err)
}

func TestServiceFansOut(t *testing.T) {
	t.Parallel()
	ok := &recordingProvider{name: "ok"}
	failing := &recordingProvider{name: "failing", err: errors.New("boom")}
	m, err := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	svc := NewServiceWithProviders([]Provider{failing, ok}, m, nil)
	assert.True(t, svc.Enabled())

	err = svc.NotifyRunComplete(context.Background(), testResult())
	require.Error(t, err)
	assert.True(t, gwerrors.IsCategory(err, gwerrors.CategoryNotify))
	assert.Len(t, ok.sent, 1, "a failing provider must not block the others")
	assert.Len(t, failing.sent, 1)

	expected := `
# HELP gwpe_notification_deliveries_total Notification deliveries partitioned by provider and status.
# TYPE gwpe_notification_deliveries_total counter
gwpe_notification_deliveries_total{provider="failing",status="error"} 1
gwpe_notification_deliveries_total{provider="ok",status="success"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "gwpe_notification_deliveries_total"))
}

func TestServiceRunFailed(t *testing.T) {
	t.Parallel()
	p := &recordingProvider{name: "p"}
	svc := NewServiceWithProviders([]Provider{p}, nil, nil)
	require.NoError(t, svc.NotifyRunFailed(context.Background(), "run", errors.New("likelihood is NaN")))
	require.Len(t, p.sent, 1)
	assert.Equal(t, TypeRunFailed, p.sent[0].Type)
	assert.Equal(t, "likelihood is NaN", p.sent[0].Error)
}

func TestNewServiceWithoutProviders(t *testing.T) {
	t.Parallel()
	svc, err := NewService(conf.NotificationSettings{}, "gwpe", nil, nil)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Send(context.Background(), RunFailed("x", errors.New("y"))))
}

func TestShoutrrrProvider(t *testing.T) {
	t.Parallel()
	_, err := NewShoutrrrProvider(nil, time.Second)
	require.Error(t, err)

	_, err = NewShoutrrrProvider([]string{"nosuchservice://token@host"}, time.Second)
	require.Error(t, err)

	p, err := NewShoutrrrProvider([]string{"logger://"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "shoutrrr", p.Name())
	assert.NoError(t, p.Send(context.Background(), RunComplete(testResult())))
}

func TestMQTTProviderValidation(t *testing.T) {
	t.Parallel()
	_, err := NewMQTTProvider(conf.MQTTSettings{Enabled: true}, "gwpe", 0)
	require.Error(t, err)

	p, err := NewMQTTProvider(conf.MQTTSettings{Enabled: true, Broker: "tcp://localhost:1883", Topic: "gwpe/runs"}, "gwpe", 0)
	require.NoError(t, err)
	assert.Equal(t, "gwpe/runs/GW150914/run_complete", p.Topic(RunComplete(testResult())))
}

func TestMQTTProviderUnreachableBroker(t *testing.T) {
	t.Parallel()
	p, err := NewMQTTProvider(conf.MQTTSettings{
		Enabled:  true,
		Broker:   "tcp://127.0.0.1:1",
		Topic:    "gwpe/runs",
		Username: "user",
		Password: "secret",
	}, "gwpe-test", 2*time.Second)
	require.NoError(t, err)

	err = p.Send(context.Background(), RunComplete(testResult()))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestNewServiceRejectsIncompleteMQTT(t *testing.T) {
	t.Parallel()
	_, err := NewService(conf.NotificationSettings{MQTT: conf.MQTTSettings{Enabled: true}}, "gwpe", nil, nil)
	require.Error(t, err)
	assert.True(t, gwerrors.IsCategory(err, gwerrors.CategoryConfiguration))
}
