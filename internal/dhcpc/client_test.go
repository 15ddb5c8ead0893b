package dhcpc_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a started DHCP server serving eth0 with the entry.
func newTestServer(tb testing.TB, entry *dhcpsvc.PoolEntry) (srv *dhcpsvc.DHCPServer) {
	tb.Helper()

	conf := &dhcpsvc.Config{
		Interfaces: map[string]*dhcpsvc.InterfaceConfig{
			"eth0": {
				Address: netip.MustParsePrefix("192.168.0.1/24"),
			},
		},
		Logger:         slogutil.NewDiscardLogger(),
		Clock:          timeutil.SystemClock{},
		Metrics:        dhcpsvc.EmptyMetrics{},
		Pool:           []*dhcpsvc.PoolEntry{entry},
		OfferHold:      dhcpsvc.DefaultOfferHold,
		GCInterval:     dhcpsvc.DefaultGCInterval,
		BindingCeiling: dhcpsvc.DefaultBindingCeiling,
		MaxMessageSize: dhcpmsg.MinMessageLen,
		Enabled:        true,
	}
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

// serverTransport returns a transport passing the messages to srv.
func serverTransport(srv *dhcpsvc.DHCPServer) (tr *testTransport) {
	return newTestTransport(func(data []byte) (replies [][]byte) {
		out := srv.HandleMessage(context.Background(), data, &dhcpsvc.Inbound{
			Interface: "eth0",
			Src:       netip.MustParseAddrPort("0.0.0.0:68"),
		})
		if out == nil {
			return nil
		}

		return [][]byte{out.Data}
	})
}

func TestClient_Run_server(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &dhcpsvc.PoolEntry{
		Start:  testIP,
		End:    testIPOther,
		Name:   "office",
		Params: "dflt=3600:rout=192.168.0.1:dnsv=192.168.0.53",
	})

	t.Run("bind", func(t *testing.T) {
		tr := serverTransport(srv)

		l, err := dhcpc.New(newTestConfig(tr)).Run(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		assert.Equal(t, testIP, l.IP)
		assert.Equal(t, testServerID, l.ServerID)
		assert.Equal(t, netip.MustParseAddr("255.255.255.0"), l.SubnetMask)
		assert.Equal(t, uint32(3600), l.Duration)
		assert.False(t, l.IsBOOTP)

		dns, ok := l.Options.Get(layers.DHCPOptDNS)
		require.True(t, ok)

		assert.Equal(t, []byte{192, 168, 0, 53}, dns)

		wantTypes := []layers.DHCPMsgType{layers.DHCPMsgTypeDiscover, layers.DHCPMsgTypeRequest}
		assert.Equal(t, wantTypes, tr.sentTypes(t))

		sl, ok := srv.LeaseByIP(testIP)
		require.True(t, ok)

		assert.Equal(t, testHWAddr, sl.HWAddr)
		assert.True(t, sl.IsComplete)
	})

	t.Run("inform", func(t *testing.T) {
		tr := serverTransport(srv)
		conf := newTestConfig(tr)
		conf.InformAddr = testIPOther
		conf.HWAddr = []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

		l, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		assert.Equal(t, testIPOther, l.IP)
		assert.Zero(t, l.Duration)

		_, ok := l.Options.Get(layers.DHCPOptLeaseTime)
		assert.False(t, ok)

		router, ok := l.Options.Get(layers.DHCPOptRouter)
		require.True(t, ok)

		assert.Equal(t, []byte{192, 168, 0, 1}, router)

		assert.Equal(t, []layers.DHCPMsgType{layers.DHCPMsgTypeInform}, tr.sentTypes(t))

		sent := parse(t, tr.sent[0])
		assert.Equal(t, testIPOther, sent.CIAddr)
	})
}

func TestClient_Run_selection(t *testing.T) {
	t.Parallel()

	bootpIP := netip.MustParseAddr("192.168.0.20")
	shortIP := netip.MustParseAddr("192.168.0.30")

	var requested netip.Addr
	tr := newTestTransport(func(data []byte) (replies [][]byte) {
		pt := testutil.PanicT{}

		switch msgType(pt, data) {
		case layers.DHCPMsgTypeDiscover:
			return [][]byte{
				newReply(pt, data, layers.DHCPMsgTypeUnspecified, bootpIP, 0),
				newReply(pt, data, layers.DHCPMsgTypeOffer, testIP, 600),
				newReply(pt, data, layers.DHCPMsgTypeOffer, shortIP, 30),
				newReply(pt, data, layers.DHCPMsgTypeOffer, testIPOther, 7200),
			}
		case layers.DHCPMsgTypeRequest:
			requested, _ = parse(pt, data).RequestedIP()

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeAck, requested, 7200)}
		default:
			return nil
		}
	})

	l, err := dhcpc.New(newTestConfig(tr)).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIPOther, requested)
	assert.Equal(t, testIPOther, l.IP)
	assert.Equal(t, uint32(7200), l.Duration)
}

func TestClient_Run_bootp(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(func(data []byte) (replies [][]byte) {
		return [][]byte{newReply(testutil.PanicT{}, data, layers.DHCPMsgTypeUnspecified, testIP, 0)}
	})

	l, err := dhcpc.New(newTestConfig(tr)).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIP, l.IP)
	assert.True(t, l.IsBOOTP)
	assert.Equal(t, dhcpmsg.Infinity, l.Duration)

	// BOOTP replies are accepted without a request.
	assert.Equal(t, []layers.DHCPMsgType{layers.DHCPMsgTypeDiscover}, tr.sentTypes(t))
}

func TestClient_Run_nak(t *testing.T) {
	t.Parallel()

	var naked bool
	tr := newTestTransport(func(data []byte) (replies [][]byte) {
		pt := testutil.PanicT{}

		switch msgType(pt, data) {
		case layers.DHCPMsgTypeDiscover:
			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeOffer, testIP, 600)}
		case layers.DHCPMsgTypeRequest:
			if !naked {
				naked = true

				return [][]byte{newReply(pt, data, layers.DHCPMsgTypeNak, netip.IPv4Unspecified(), 0)}
			}

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeAck, testIP, 600)}
		default:
			return nil
		}
	})

	l, err := dhcpc.New(newTestConfig(tr)).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIP, l.IP)

	wantTypes := []layers.DHCPMsgType{
		layers.DHCPMsgTypeDiscover,
		layers.DHCPMsgTypeRequest,
		layers.DHCPMsgTypeDiscover,
		layers.DHCPMsgTypeRequest,
	}
	assert.Equal(t, wantTypes, tr.sentTypes(t))
}

func TestClient_Run_decline(t *testing.T) {
	t.Parallel()

	var offers int
	tr := newTestTransport(func(data []byte) (replies [][]byte) {
		pt := testutil.PanicT{}

		switch msgType(pt, data) {
		case layers.DHCPMsgTypeDiscover:
			ip := testIP
			if offers > 0 {
				ip = testIPOther
			}

			offers++

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeOffer, ip, 600)}
		case layers.DHCPMsgTypeRequest:
			ip, _ := parse(pt, data).RequestedIP()

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeAck, ip, 600)}
		default:
			return nil
		}
	})

	// The address becomes busy after the offer has been checked.
	var probes int
	conf := newTestConfig(tr)
	conf.Prober = &testProber{
		onProbe: func(ip netip.Addr) (inUse bool) {
			probes++

			return ip == testIP && probes > 1
		},
	}

	l, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIPOther, l.IP)

	wantTypes := []layers.DHCPMsgType{
		layers.DHCPMsgTypeDiscover,
		layers.DHCPMsgTypeRequest,
		layers.DHCPMsgTypeDecline,
		layers.DHCPMsgTypeDiscover,
		layers.DHCPMsgTypeRequest,
	}
	require.Equal(t, wantTypes, tr.sentTypes(t))

	decline := parse(t, tr.sent[2])
	declined, ok := decline.RequestedIP()
	require.True(t, ok)

	assert.Equal(t, testIP, declined)

	serverID, ok := decline.ServerID()
	require.True(t, ok)

	assert.Equal(t, testServerID, serverID)
}

func TestClient_Run_legacyFallback(t *testing.T) {
	t.Parallel()

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()

		tr := newTestTransport(func(data []byte) (replies [][]byte) {
			if len(data) < dhcpmsg.MinMessageLen {
				// Pretend the server only understands padded messages.
				return nil
			}

			pt := testutil.PanicT{}
			switch msgType(pt, data) {
			case layers.DHCPMsgTypeDiscover:
				return [][]byte{newReply(pt, data, layers.DHCPMsgTypeOffer, testIP, 600)}
			case layers.DHCPMsgTypeRequest:
				return [][]byte{newReply(pt, data, layers.DHCPMsgTypeAck, testIP, 600)}
			default:
				return nil
			}
		})

		conf := newTestConfig(tr)
		l, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
		require.NoError(t, err)

		assert.Equal(t, testIP, l.IP)

		var short, padded int
		for _, data := range tr.sent {
			if len(data) < dhcpmsg.MinMessageLen {
				short++
			} else {
				padded++
			}
		}

		assert.Equal(t, conf.Retries+1, short)
		assert.Equal(t, 2, padded)
	})

	t.Run("no_offer", func(t *testing.T) {
		t.Parallel()

		tr := newTestTransport(func(_ []byte) (replies [][]byte) { return nil })

		conf := newTestConfig(tr)
		_, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
		require.ErrorIs(t, err, dhcpc.ErrNoOffer)

		assert.Len(t, tr.sent, 2*(conf.Retries+1))
	})
}

func TestClient_Run_requestRetries(t *testing.T) {
	t.Parallel()

	var discovers int
	tr := newTestTransport(func(data []byte) (replies [][]byte) {
		pt := testutil.PanicT{}

		switch msgType(pt, data) {
		case layers.DHCPMsgTypeDiscover:
			discovers++

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeOffer, testIP, 600)}
		case layers.DHCPMsgTypeRequest:
			if discovers == 1 {
				// The first exchange is never acknowledged.
				return nil
			}

			return [][]byte{newReply(pt, data, layers.DHCPMsgTypeAck, testIP, 600)}
		default:
			return nil
		}
	})

	conf := newTestConfig(tr)
	l, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIP, l.IP)
	assert.Equal(t, 2, discovers)

	types := tr.sentTypes(t)
	require.Len(t, types, 1+(conf.Retries+2)+1+1)

	for _, typ := range types[1 : 1+conf.Retries+2] {
		assert.Equal(t, layers.DHCPMsgTypeRequest, typ)
	}
}

func TestClient_Run_informNoReply(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(func(_ []byte) (replies [][]byte) { return nil })

	conf := newTestConfig(tr)
	conf.InformAddr = testIP

	l, err := dhcpc.New(conf).Run(testutil.ContextWithTimeout(t, testTimeout))
	require.NoError(t, err)

	assert.Equal(t, testIP, l.IP)
	assert.Empty(t, l.Options)
	assert.Len(t, tr.sent, conf.Retries+2)
}

func TestClient_Run_canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(testutil.ContextWithTimeout(t, testTimeout))
	tr := newTestTransport(func(_ []byte) (replies [][]byte) {
		cancel()

		return nil
	})

	_, err := dhcpc.New(newTestConfig(tr)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
