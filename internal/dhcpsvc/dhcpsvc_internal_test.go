package dhcpsvc

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testSubnet is the subnet of the clients in tests.
var testSubnet = netip.MustParsePrefix("192.168.0.0/24")

// testHW is the hardware address of the client in tests.
var testHW = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

// newTestCID returns the identifier of a client with the hardware address
// ending with last on testSubnet.
func newTestCID(last byte) (cid ClientID) {
	return ClientID{
		ID:     []byte{0x02, 0x00, 0x00, 0x00, 0x00, last},
		Subnet: testSubnet,
		Type:   1,
	}
}

// testAddressChecker is an [addressChecker] for tests.
type testAddressChecker struct {
	// onIsAvailable is called on every probe.
	onIsAvailable func(ip netip.Addr) (ok bool)
}

// type check
var _ addressChecker = (*testAddressChecker)(nil)

// IsAvailable implements the [addressChecker] interface for
// *testAddressChecker.
func (c *testAddressChecker) IsAvailable(_ context.Context, ip netip.Addr) (ok bool, err error) {
	return c.onIsAvailable(ip), nil
}

// newInternalServer returns a server with the entries, which isn't started.
func newInternalServer(tb testing.TB, entries ...*PoolEntry) (srv *DHCPServer) {
	tb.Helper()

	conf := &Config{
		Interfaces: map[string]*InterfaceConfig{
			"eth0": {
				Address: netip.MustParsePrefix("192.168.0.1/24"),
			},
		},
		Logger: slogutil.NewDiscardLogger(),
		Clock: &faketime.Clock{
			OnNow: func() (now time.Time) { return time.Unix(1000, 0) },
		},
		Metrics:        EmptyMetrics{},
		Pool:           entries,
		OfferHold:      DefaultOfferHold,
		GCInterval:     DefaultGCInterval,
		BindingCeiling: DefaultBindingCeiling,
		MaxMessageSize: dhcpmsg.MinMessageLen,
		Enabled:        true,
	}
	require.NoError(tb, conf.Validate())

	srv, err := New(testutil.ContextWithTimeout(tb, testTimeout), conf)
	require.NoError(tb, err)

	return srv
}

// resourceByIP returns the entry with the address and its handle.
func resourceByIP(tb testing.TB, srv *DHCPServer, ip string) (r *Resource, h resourceHandle) {
	tb.Helper()

	h, ok := srv.idx.byIP.find(netip.MustParseAddr(ip))
	require.True(tb, ok)

	return srv.pool.get(h), h
}

// memoryStorage is a [BindingStorage] keeping the records in memory.
type memoryStorage struct {
	data []byte
}

// type check
var _ BindingStorage = (*memoryStorage)(nil)

// Start implements the [BindingStorage] interface for *memoryStorage.
func (s *memoryStorage) Start(_ context.Context) (err error) { return nil }

// Stop implements the [BindingStorage] interface for *memoryStorage.
func (s *memoryStorage) Stop(_ context.Context) (err error) { return nil }

// Clear implements the [BindingStorage] interface for *memoryStorage.
func (s *memoryStorage) Clear(_ context.Context) (err error) {
	s.data = nil

	return nil
}

// Write implements the [BindingStorage] interface for *memoryStorage.
func (s *memoryStorage) Write(_ context.Context, p []byte) (err error) {
	s.data = append(s.data, p...)

	return nil
}

// Read implements the [BindingStorage] interface for *memoryStorage.
func (s *memoryStorage) Read(_ context.Context) (data []byte, err error) {
	return s.data, nil
}
