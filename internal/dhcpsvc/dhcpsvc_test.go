package dhcpsvc_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/testutil/faketime"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// testTimeout is a common timeout for tests and contexts.
const testTimeout time.Duration = 10 * time.Second

// testIfaceName is the name of the served interface in tests.
const testIfaceName = "eth0"

// discardLog is a logger to discard test output.
var discardLog = slogutil.NewDiscardLogger()

// Common addresses for tests.
var (
	testIfaceAddr = netip.MustParsePrefix("192.168.0.1/24")
	testBcast     = netip.MustParseAddrPort("255.255.255.255:68")

	testHWAddr      = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testHWAddrOther = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// testStart is the initial time of the test clocks.
var testStart = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// testClock is a clock for tests, which can be moved forward.
type testClock struct {
	*faketime.Clock

	now time.Time
}

// newTestClock returns a new *testClock set to testStart.
func newTestClock() (c *testClock) {
	c = &testClock{
		now: testStart,
	}
	c.Clock = &faketime.Clock{
		OnNow: func() (now time.Time) { return c.now },
	}

	return c
}

// advance moves the clock forward by d.
func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// newTestConfig returns a valid configuration serving testIfaceName with the
// pool entries.
func newTestConfig(clock *testClock, entries ...*dhcpsvc.PoolEntry) (conf *dhcpsvc.Config) {
	return &dhcpsvc.Config{
		Interfaces: map[string]*dhcpsvc.InterfaceConfig{
			testIfaceName: {
				Address: testIfaceAddr,
			},
		},
		Logger:         discardLog,
		Clock:          clock,
		Metrics:        dhcpsvc.EmptyMetrics{},
		Pool:           entries,
		OfferHold:      dhcpsvc.DefaultOfferHold,
		GCInterval:     dhcpsvc.DefaultGCInterval,
		BindingCeiling: dhcpsvc.DefaultBindingCeiling,
		MaxMessageSize: dhcpmsg.MinMessageLen,
		Enabled:        true,
	}
}

// newTestServer creates and starts a new server with conf.  The server is
// shut down on cleanup.
func newTestServer(tb testing.TB, conf *dhcpsvc.Config) (srv *dhcpsvc.DHCPServer) {
	tb.Helper()

	require.NoError(tb, conf.Validate())

	ctx := testutil.ContextWithTimeout(tb, testTimeout)
	srv, err := dhcpsvc.New(ctx, conf)
	require.NoError(tb, err)

	require.NoError(tb, srv.Start(ctx))
	testutil.CleanupAndRequireSuccess(tb, func() (err error) {
		return srv.Shutdown(context.Background())
	})

	return srv
}

// testOption is an option of a test request.
type testOption struct {
	data []byte
	code layers.DHCPOpt
}

// newTestMessage returns a request from the client with hw.
func newTestMessage(hw net.HardwareAddr) (m *dhcpmsg.Message) {
	m = &dhcpmsg.Message{
		Op:     layers.DHCPOpRequest,
		XID:    0x1234,
		CIAddr: netip.IPv4Unspecified(),
		YIAddr: netip.IPv4Unspecified(),
		SIAddr: netip.IPv4Unspecified(),
		GIAddr: netip.IPv4Unspecified(),
	}
	m.SetHWAddr(uint8(layers.LinkTypeEthernet), hw)

	return m
}

// encode returns the wire form of m with the message type and opts.  typ is
// not inserted if it's unspecified.
func encode(tb testing.TB, m *dhcpmsg.Message, typ layers.DHCPMsgType, opts ...testOption) (data []byte) {
	tb.Helper()

	b := dhcpmsg.NewBuilder(&dhcpmsg.BuilderConfig{
		MaxMessageSize: dhcpmsg.MinMessageLen,
	})

	if typ != layers.DHCPMsgTypeUnspecified {
		require.NoError(tb, b.Insert(layers.DHCPOptMessageType, []byte{byte(typ)}))
	}

	for _, o := range opts {
		require.NoError(tb, b.Insert(o.code, o.data))
	}

	return b.Bytes(m)
}

// handle passes data to srv as received on testIfaceName and returns the
// parsed reply, if any.
func handle(tb testing.TB, srv *dhcpsvc.DHCPServer, data []byte) (out *dhcpsvc.Outbound, resp *dhcpmsg.Message) {
	tb.Helper()

	ctx := testutil.ContextWithTimeout(tb, testTimeout)
	out = srv.HandleMessage(ctx, data, &dhcpsvc.Inbound{
		Interface: testIfaceName,
		Src:       netip.MustParseAddrPort("0.0.0.0:68"),
	})
	if out == nil {
		return nil, nil
	}

	resp, err := dhcpmsg.Parse(out.Data)
	require.NoError(tb, err)

	return out, resp
}

// requireType checks the message type of resp.
func requireType(tb testing.TB, want layers.DHCPMsgType, resp *dhcpmsg.Message) {
	tb.Helper()

	require.NotNil(tb, resp)

	typ, ok := resp.Type()
	require.True(tb, ok)
	require.Equal(tb, want, typ)
}

// optIP returns the option holding an IPv4 address.
func optIP(ip netip.Addr) (o testOption) {
	return testOption{
		code: layers.DHCPOptRequestIP,
		data: ip.AsSlice(),
	}
}

// optServerID returns the server identifier option.
func optServerID(ip netip.Addr) (o testOption) {
	return testOption{
		code: layers.DHCPOptServerID,
		data: ip.AsSlice(),
	}
}

// optPRL returns the parameter request list option.
func optPRL(codes ...layers.DHCPOpt) (o testOption) {
	o.code = layers.DHCPOptParamsRequest
	for _, c := range codes {
		o.data = append(o.data, byte(c))
	}

	return o
}

// acquire performs the DISCOVER-REQUEST exchange for the client with hw and
// returns the acknowledged address.
func acquire(tb testing.TB, srv *dhcpsvc.DHCPServer, hw net.HardwareAddr) (ip netip.Addr) {
	tb.Helper()

	_, offer := handle(tb, srv, encode(tb, newTestMessage(hw), layers.DHCPMsgTypeDiscover))
	requireType(tb, layers.DHCPMsgTypeOffer, offer)

	req := encode(
		tb,
		newTestMessage(hw),
		layers.DHCPMsgTypeRequest,
		optIP(offer.YIAddr),
		optServerID(testIfaceAddr.Addr()),
	)
	_, ack := handle(tb, srv, req)
	requireType(tb, layers.DHCPMsgTypeAck, ack)
	require.Equal(tb, offer.YIAddr, ack.YIAddr)

	return ack.YIAddr
}

// testBindingStorage is a [dhcpsvc.BindingStorage] keeping the records in
// memory.
type testBindingStorage struct {
	// onWrite is called on every write.  It may be nil.
	onWrite func() (err error)

	data []byte
}

// type check
var _ dhcpsvc.BindingStorage = (*testBindingStorage)(nil)

// Start implements the [dhcpsvc.BindingStorage] interface for
// *testBindingStorage.
func (s *testBindingStorage) Start(_ context.Context) (err error) { return nil }

// Stop implements the [dhcpsvc.BindingStorage] interface for
// *testBindingStorage.
func (s *testBindingStorage) Stop(_ context.Context) (err error) { return nil }

// Clear implements the [dhcpsvc.BindingStorage] interface for
// *testBindingStorage.
func (s *testBindingStorage) Clear(_ context.Context) (err error) {
	s.data = nil

	return nil
}

// Write implements the [dhcpsvc.BindingStorage] interface for
// *testBindingStorage.
func (s *testBindingStorage) Write(_ context.Context, p []byte) (err error) {
	if s.onWrite != nil {
		if err = s.onWrite(); err != nil {
			return err
		}
	}

	s.data = append(s.data, p...)

	return nil
}

// Read implements the [dhcpsvc.BindingStorage] interface for
// *testBindingStorage.
func (s *testBindingStorage) Read(_ context.Context) (data []byte, err error) {
	return s.data, nil
}
