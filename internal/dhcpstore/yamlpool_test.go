package dhcpstore_test

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpstore"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPoolData is the contents of the pool file used in tests.
const testPoolData = `entries:
  - start: 0.0.0.0
    name: defaults
    params: "dflt=3600:dnsv=192.168.0.1"
  - start: 192.168.0.10
    end: 192.168.0.20
    name: office
`

func TestYAMLPool_Read(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPoolData), 0o644))

	p, err := dhcpstore.NewYAMLPool(&dhcpstore.YAMLPoolConfig{
		Logger: testLogger,
		Path:   path,
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, p.Start(ctx))
	testutil.CleanupAndRequireSuccess(t, func() (err error) { return p.Stop(ctx) })

	entries, err := p.Read(ctx)
	require.NoError(t, err)

	want := []*dhcpsvc.PoolEntry{{
		Start:  netip.IPv4Unspecified(),
		Name:   "defaults",
		Params: "dflt=3600:dnsv=192.168.0.1",
	}, {
		Start: netip.MustParseAddr("192.168.0.10"),
		End:   netip.MustParseAddr("192.168.0.20"),
		Name:  "office",
	}}
	assert.Equal(t, want, entries)
}

func TestYAMLPool_Read_errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		data       string
		wantErrMsg string
	}{{
		name:       "no_name",
		data:       "entries:\n  - start: 192.168.0.10\n",
		wantErrMsg: "entries: at index 0: name: empty value",
	}, {
		name:       "bad_address",
		data:       "entries:\n  - start: 192.168.0\n    name: bad\n",
		wantErrMsg: "decoding",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "pool.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.data), 0o644))

			p, err := dhcpstore.NewYAMLPool(&dhcpstore.YAMLPoolConfig{
				Logger: testLogger,
				Path:   path,
			})
			require.NoError(t, err)

			_, err = p.Read(testutil.ContextWithTimeout(t, testTimeout))
			require.Error(t, err)

			assert.ErrorContains(t, err, tc.wantErrMsg)
		})
	}
}

func TestYAMLPool_watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPoolData), 0o644))

	w := newTestWatcher()
	p, err := dhcpstore.NewYAMLPool(&dhcpstore.YAMLPoolConfig{
		Logger:  testLogger,
		Watcher: w,
		Path:    path,
	})
	require.NoError(t, err)

	addedCh := make(chan *dhcpsvc.PoolEntry, 2)
	p.SetAdder(&testAdder{
		onAddResource: func(_ context.Context, e *dhcpsvc.PoolEntry) (n int, err error) {
			addedCh <- e

			return 1, nil
		},
	})

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, p.Start(ctx))
	testutil.CleanupAndRequireSuccess(t, func() (err error) { return p.Stop(ctx) })

	_, err = p.Read(ctx)
	require.NoError(t, err)

	const newData = testPoolData + `  - start: 192.168.0.50
    name: printer
    params: "clid=\"1:0x020000000050\""
`
	require.NoError(t, os.WriteFile(path, []byte(newData), 0o644))

	testutil.RequireSend(t, w.events, aghos.Event{Name: path}, testTimeout)

	got, ok := testutil.RequireReceive(t, addedCh, testTimeout)
	require.True(t, ok)

	assert.Equal(t, "printer", got.Name)
	assert.Equal(t, `clid="1:0x020000000050"`, got.Params)
	assert.Equal(t, netip.MustParseAddr("192.168.0.50"), got.Start)

	// The same entries are not added twice.
	testutil.RequireSend(t, w.events, aghos.Event{Name: path}, testTimeout)
	require.NoError(t, p.Stop(ctx))

	assert.Empty(t, addedCh)
}
