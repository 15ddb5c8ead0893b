package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDHCP(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	m, err := metrics.NewDHCP(metrics.DefaultNamespace, reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.ObserveMessage(ctx, "discover", time.Millisecond)
	m.ObserveMessage(ctx, "discover", time.Millisecond)
	m.ObserveMessage(ctx, "request", time.Millisecond)
	m.IncReplies(ctx, "offer")
	m.IncDropped(ctx, dhcpsvc.DropReasonParse)
	m.IncQuarantined(ctx)
	m.SetBindings(ctx, 42)

	n, err := promtestutil.GatherAndCount(reg, "adguard_dhcp_server_messages_total")
	require.NoError(t, err)

	assert.Equal(t, 2, n)

	n, err = promtestutil.GatherAndCount(reg)
	require.NoError(t, err)

	// Two message types, two histograms, and one series of every other
	// collector.
	assert.Equal(t, 8, n)

	t.Run("duplicate", func(t *testing.T) {
		_, err = metrics.NewDHCP(metrics.DefaultNamespace, reg)
		assert.Error(t, err)
	})

	t.Run("other_namespace", func(t *testing.T) {
		_, err = metrics.NewDHCP("other", reg)
		assert.NoError(t, err)
	})
}
