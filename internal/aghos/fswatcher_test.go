package aghos_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testSettleDelay is the settle delay for tests.
const testSettleDelay = 50 * time.Millisecond

func TestOSWritesWatcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tracked := filepath.Join(dir, "pool.yaml")

	err := os.WriteFile(tracked, []byte("entries: []\n"), 0o600)
	require.NoError(t, err)

	w, err := aghos.NewOSWritesWatcher(&aghos.OSWritesWatcherConfig{
		Logger:      slogutil.NewDiscardLogger(),
		SettleDelay: testSettleDelay,
	})
	require.NoError(t, err)

	err = w.Add(tracked)
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	err = w.Start(ctx)
	require.NoError(t, err)

	testutil.CleanupAndRequireSuccess(t, func() (err error) {
		return w.Shutdown(testutil.ContextWithTimeout(t, testTimeout))
	})

	err = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600)
	require.NoError(t, err)

	for _, data := range []string{
		"entries: [{name: a}]\n",
		"entries: [{name: a}, {name: b}]\n",
	} {
		err = os.WriteFile(tracked, []byte(data), 0o600)
		require.NoError(t, err)
	}

	e, ok := testutil.RequireReceive(t, w.Events(), testTimeout)
	require.True(t, ok)

	assert.Equal(t, tracked, e.Name)

	t.Run("absent", func(t *testing.T) {
		addErr := w.Add(filepath.Join(dir, "absent.yaml"))
		require.ErrorIs(t, addErr, os.ErrNotExist)
	})
}
