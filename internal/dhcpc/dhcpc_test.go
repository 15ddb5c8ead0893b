package dhcpc_test

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 2 * time.Second

// testHWAddr is the hardware address of the client in tests.
var testHWAddr = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

// testServerID is the address of the server in tests.
var testServerID = netip.MustParseAddr("192.168.0.1")

// Common addresses for tests.
var (
	testIP      = netip.MustParseAddr("192.168.0.10")
	testIPOther = netip.MustParseAddr("192.168.0.11")
)

// testTransport is a [dhcpc.Transport] which passes the sent messages to a
// function and delivers the replies it returns.
type testTransport struct {
	// onSend is called with every sent message.  It's called from the
	// goroutine running the client.
	onSend func(data []byte) (replies [][]byte)

	// replies are the messages to be received.
	replies chan []byte

	// mu protects sent.
	mu *sync.Mutex

	// sent are all the sent messages.
	sent [][]byte
}

// newTestTransport returns a new *testTransport.
func newTestTransport(onSend func(data []byte) (replies [][]byte)) (t *testTransport) {
	return &testTransport{
		onSend:  onSend,
		replies: make(chan []byte, 16),
		mu:      &sync.Mutex{},
	}
}

// type check
var _ dhcpc.Transport = (*testTransport)(nil)

// Send implements the [dhcpc.Transport] interface for *testTransport.
func (t *testTransport) Send(_ context.Context, data []byte) (err error) {
	t.mu.Lock()
	t.sent = append(t.sent, data)
	t.mu.Unlock()

	for _, r := range t.onSend(data) {
		t.replies <- r
	}

	return nil
}

// Receive implements the [dhcpc.Transport] interface for *testTransport.
func (t *testTransport) Receive(ctx context.Context) (data []byte, err error) {
	select {
	case data = <-t.replies:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sentTypes returns the types of the sent messages.
func (t *testTransport) sentTypes(tb require.TestingT) (types []layers.DHCPMsgType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, data := range t.sent {
		m := parse(tb, data)
		typ, _ := m.Type()
		types = append(types, typ)
	}

	return types
}

// testProber is a [dhcpc.AddressProber] for tests.
type testProber struct {
	onProbe func(ip netip.Addr) (inUse bool)
}

// type check
var _ dhcpc.AddressProber = (*testProber)(nil)

// Probe implements the [dhcpc.AddressProber] interface for *testProber.
func (p *testProber) Probe(_ context.Context, ip netip.Addr) (inUse bool, err error) {
	return p.onProbe(ip), nil
}

// newTestConfig returns a valid configuration with short timeouts.
func newTestConfig(tr dhcpc.Transport) (conf *dhcpc.Config) {
	conf = dhcpc.NewDefaultConfig()
	conf.Logger = slogutil.NewDiscardLogger()
	conf.Transport = tr
	conf.HWAddr = testHWAddr
	conf.Hostname = "test-host"
	conf.StartDelayMin = 0
	conf.StartDelayMax = 0
	conf.BackoffMin = 5 * time.Millisecond
	conf.BackoffMax = 20 * time.Millisecond
	conf.CollectTimeout = 50 * time.Millisecond
	conf.Retries = 2

	return conf
}

// parse parses the message from data.
func parse(tb require.TestingT, data []byte) (m *dhcpmsg.Message) {
	m, err := dhcpmsg.Parse(data)
	require.NoError(tb, err)

	return m
}

// msgType returns the type of the message in data.
func msgType(tb require.TestingT, data []byte) (typ layers.DHCPMsgType) {
	typ, _ = parse(tb, data).Type()

	return typ
}

// newReply returns the reply of the type to the request in data.  If typ is
// unspecified, the reply is a BOOTP one.  lease isn't sent if it's zero.
func newReply(
	tb require.TestingT,
	data []byte,
	typ layers.DHCPMsgType,
	yiaddr netip.Addr,
	lease uint32,
) (reply []byte) {
	resp := dhcpmsg.NewReply(parse(tb, data))
	resp.YIAddr = yiaddr

	if typ == layers.DHCPMsgTypeUnspecified {
		return dhcpmsg.NewBOOTPBuilder().Bytes(resp)
	}

	b := dhcpmsg.NewBuilder(&dhcpmsg.BuilderConfig{
		MaxMessageSize: dhcpmsg.MinMessageLen,
	})
	require.NoError(tb, b.Insert(layers.DHCPOptMessageType, []byte{byte(typ)}))
	require.NoError(tb, b.Insert(layers.DHCPOptServerID, testServerID.AsSlice()))
	if lease > 0 {
		require.NoError(tb, b.Insert(layers.DHCPOptLeaseTime, dhcpmsg.Uint32(lease)))
	}

	return b.Bytes(resp)
}
