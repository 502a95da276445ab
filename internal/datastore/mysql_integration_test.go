//go:build integration

package datastore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/logger"
)

func startMySQL(t *testing.T) conf.DatabaseSettings {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("gwpe"),
		tcmysql.WithUsername("gwpe"),
		tcmysql.WithPassword("gwpe"),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return conf.DatabaseSettings{
		Enabled:  true,
		Type:     "mysql",
		Host:     host,
		Port:     p,
		Username: "gwpe",
		Password: "gwpe",
		Database: "gwpe",
	}
}

func TestMySQLStoreRoundTrip(t *testing.T) {
	settings := startMySQL(t)

	store, err := Open(settings, logger.NewDiscardLogger(), nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	r := testResult("mysql", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	id, err := store.SaveResult(ctx, r)
	require.NoError(t, err)

	run, err := store.GetRun(ctx, "mysql")
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Len(t, run.Summaries, 2)

	posterior, err := store.Posterior(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, r.Posterior, posterior)
}
