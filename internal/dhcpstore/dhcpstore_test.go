package dhcpstore_test

import (
	"context"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testLogger is the common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// testRecords are the lease records used in tests.
const testRecords = `1:0x020000000001:192.168.0.0:1:0x020000000001:"infinity":first` + "\n" +
	`1:0x020000000002:192.168.0.0:1:0x020000000002:"":second` + "\n"

// testWatcher is an [aghos.FSWatcher] for tests.
type testWatcher struct {
	events    chan aghos.Event
	closeOnce *sync.Once
}

// newTestWatcher returns a new *testWatcher.
func newTestWatcher() (w *testWatcher) {
	return &testWatcher{
		events:    make(chan aghos.Event),
		closeOnce: &sync.Once{},
	}
}

// type check
var _ aghos.FSWatcher = (*testWatcher)(nil)

// Start implements the [aghos.FSWatcher] interface for *testWatcher.
func (w *testWatcher) Start(_ context.Context) (err error) { return nil }

// Shutdown implements the [aghos.FSWatcher] interface for *testWatcher.
func (w *testWatcher) Shutdown(_ context.Context) (err error) {
	w.closeOnce.Do(func() { close(w.events) })

	return nil
}

// Events implements the [aghos.FSWatcher] interface for *testWatcher.
func (w *testWatcher) Events() (e <-chan aghos.Event) { return w.events }

// Add implements the [aghos.FSWatcher] interface for *testWatcher.
func (w *testWatcher) Add(_ string) (err error) { return nil }

// testAdder is a [dhcpstore.ResourceAdder] for tests.
type testAdder struct {
	onAddResource func(ctx context.Context, e *dhcpsvc.PoolEntry) (n int, err error)
}

// AddResource implements the [dhcpstore.ResourceAdder] interface for
// *testAdder.
func (a *testAdder) AddResource(ctx context.Context, e *dhcpsvc.PoolEntry) (n int, err error) {
	return a.onAddResource(ctx, e)
}
