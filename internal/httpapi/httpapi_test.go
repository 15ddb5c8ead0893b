package httpapi_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/httpapi"
	"github.com/AdguardTeam/AdGuardDHCP/internal/metrics"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// testExpiry is the lease expiry for tests.
var testExpiry = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// testDHCP is a [dhcpsvc.Interface] for tests.
type testDHCP struct {
	dhcpsvc.Empty

	onLeases      func() (ls []*dhcpsvc.Lease)
	onLeaseByIP   func(ip netip.Addr) (l *dhcpsvc.Lease, ok bool)
	onAddResource func(ctx context.Context, e *dhcpsvc.PoolEntry) (n int, err error)
}

// type check
var _ dhcpsvc.Interface = (*testDHCP)(nil)

// Leases implements the [dhcpsvc.Interface] interface for *testDHCP.
func (d *testDHCP) Leases() (ls []*dhcpsvc.Lease) {
	return d.onLeases()
}

// LeaseByIP implements the [dhcpsvc.Interface] interface for *testDHCP.
func (d *testDHCP) LeaseByIP(ip netip.Addr) (l *dhcpsvc.Lease, ok bool) {
	return d.onLeaseByIP(ip)
}

// AddResource implements the [dhcpsvc.Interface] interface for *testDHCP.
func (d *testDHCP) AddResource(ctx context.Context, e *dhcpsvc.PoolEntry) (n int, err error) {
	return d.onAddResource(ctx, e)
}

// newTestDHCP returns a *testDHCP all methods of which panic.
func newTestDHCP() (d *testDHCP) {
	return &testDHCP{
		onLeases: func() (ls []*dhcpsvc.Lease) { panic("not implemented") },
		onLeaseByIP: func(_ netip.Addr) (l *dhcpsvc.Lease, ok bool) {
			panic("not implemented")
		},
		onAddResource: func(_ context.Context, _ *dhcpsvc.PoolEntry) (n int, err error) {
			panic("not implemented")
		},
	}
}

// newTestLease returns a complete lease for the n-th address of the test
// network.
func newTestLease(n byte) (l *dhcpsvc.Lease) {
	return &dhcpsvc.Lease{
		IP:       netip.AddrFrom4([4]byte{192, 168, 0, n}),
		Expiry:   testExpiry,
		HWAddr:   net.HardwareAddr{0x00, 0x01, 0x02, 0x03, 0x04, n},
		ClientID: dhcpsvc.ClientID{Type: 1, ID: []byte{0x00, 0x01, 0x02, 0x03, 0x04, n}},
		Resource: fmt.Sprintf("host-%d", n),

		IsComplete: true,
	}
}

// newTestServer returns a test HTTP server for a new HTTP API service with
// d and gatherer.
func newTestServer(
	t *testing.T,
	d dhcpsvc.Interface,
	gatherer prometheus.Gatherer,
) (srv *httptest.Server) {
	t.Helper()

	svc := httpapi.New(&httpapi.Config{
		Logger:    slogutil.NewDiscardLogger(),
		DHCP:      d,
		Gatherer:  gatherer,
		Addresses: []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:0")},
		Timeout:   testTimeout,
	})

	srv = httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	return srv
}

// doRequest performs the request and returns the response with the read body.
func doRequest(t *testing.T, req *http.Request) (resp *http.Response, body []byte) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	testutil.CleanupAndRequireSuccess(t, resp.Body.Close)

	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestService_handleGetV1Leases(t *testing.T) {
	t.Parallel()

	d := newTestDHCP()
	d.onLeases = func() (ls []*dhcpsvc.Lease) {
		return []*dhcpsvc.Lease{newTestLease(10), {
			IP:         netip.MustParseAddr("192.168.0.2"),
			Resource:   "printer",
			IsStatic:   true,
			IsComplete: true,
			IsInfinite: true,
		}}
	}

	srv := newTestServer(t, d, nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+httpapi.PathPatternV1Leases, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, httpapi.HdrValApplicationJSON, resp.Header.Get(httphdr.ContentType))

	got := &struct {
		Leases []map[string]any `json:"leases"`
	}{}
	err = json.Unmarshal(body, got)
	require.NoError(t, err)
	require.Len(t, got.Leases, 2)

	dyn, static := got.Leases[0], got.Leases[1]
	assert.Equal(t, "192.168.0.10", dyn["ip"])
	assert.Equal(t, "00:01:02:03:04:0a", dyn["hwaddr"])
	assert.Equal(t, "1:0x00010203040a", dyn["client_id"])
	assert.Equal(t, float64(testExpiry.UnixMilli()), dyn["expiry"])
	assert.Equal(t, true, dyn["complete"])

	assert.Equal(t, "printer", static["resource"])
	assert.Equal(t, true, static["static"])
	assert.Equal(t, true, static["infinite"])
	assert.NotContains(t, static, "expiry")
	assert.NotContains(t, static, "hwaddr")
}

func TestService_handleGetV1Leases_gzip(t *testing.T) {
	t.Parallel()

	d := newTestDHCP()
	d.onLeases = func() (ls []*dhcpsvc.Lease) {
		for i := range byte(100) {
			ls = append(ls, newTestLease(i+1))
		}

		return ls
	}

	srv := newTestServer(t, d, nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+httpapi.PathPatternV1Leases, nil)
	require.NoError(t, err)

	// Set the header explicitly to prevent the transparent decompression.
	req.Header.Set(httphdr.AcceptEncoding, "gzip")

	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get(httphdr.ContentEncoding))

	zr, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)

	got := &struct {
		Leases []map[string]any `json:"leases"`
	}{}
	err = json.NewDecoder(zr).Decode(got)
	require.NoError(t, err)

	assert.Len(t, got.Leases, 100)
}

func TestService_handleGetV1Lease(t *testing.T) {
	t.Parallel()

	known := newTestLease(10)

	d := newTestDHCP()
	d.onLeaseByIP = func(ip netip.Addr) (l *dhcpsvc.Lease, ok bool) {
		if ip == known.IP {
			return known, true
		}

		return nil, false
	}

	srv := newTestServer(t, d, nil)

	testCases := []struct {
		name     string
		ip       string
		wantBody string
		wantCode int
	}{{
		name:     "found",
		ip:       "192.168.0.10",
		wantBody: `"resource":"host-10"`,
		wantCode: http.StatusOK,
	}, {
		name:     "not_found",
		ip:       "192.168.0.11",
		wantBody: `{"msg":"192.168.0.11: no lease"}`,
		wantCode: http.StatusNotFound,
	}, {
		name:     "bad_ip",
		ip:       "not-an-ip",
		wantBody: `"msg":"ParseAddr(`,
		wantCode: http.StatusBadRequest,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			u := srv.URL + httpapi.PathPatternV1Leases + "/" + tc.ip
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			require.NoError(t, err)

			resp, body := doRequest(t, req)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			assert.Contains(t, string(body), tc.wantBody)
		})
	}
}

func TestService_handlePostV1Resources(t *testing.T) {
	t.Parallel()

	added := make(chan *dhcpsvc.PoolEntry, 1)

	d := newTestDHCP()
	d.onAddResource = func(_ context.Context, e *dhcpsvc.PoolEntry) (n int, err error) {
		if e.Name == "bad" {
			return 0, assert.AnError
		}

		testutil.RequireSend(testutil.PanicT{}, added, e, testTimeout)

		return 11, nil
	}

	srv := newTestServer(t, d, nil)

	post := func(t *testing.T, body string) (resp *http.Response, respBody []byte) {
		t.Helper()

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		u := srv.URL + httpapi.PathPatternV1Resources
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBufferString(body))
		require.NoError(t, err)

		return doRequest(t, req)
	}

	t.Run("success", func(t *testing.T) {
		resp, body := post(t, `{"start":"192.168.0.50","end":"192.168.0.60","name":"pool","params":"lt=3600"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.JSONEq(t, `{"added":11}`, string(body))

		e, ok := testutil.RequireReceive(t, added, testTimeout)
		require.True(t, ok)

		assert.Equal(t, &dhcpsvc.PoolEntry{
			Start:  netip.MustParseAddr("192.168.0.50"),
			End:    netip.MustParseAddr("192.168.0.60"),
			Name:   "pool",
			Params: "lt=3600",
		}, e)
	})

	t.Run("bad_json", func(t *testing.T) {
		resp, _ := post(t, `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("add_error", func(t *testing.T) {
		resp, body := post(t, `{"start":"0.0.0.0","name":"bad"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, string(body), assert.AnError.Error())
	})
}

func TestService_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewDHCP(metrics.DefaultNamespace, reg)
	require.NoError(t, err)

	m.SetBindings(context.Background(), 3)

	srv := newTestServer(t, newTestDHCP(), reg)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+httpapi.PathPatternMetrics, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, string(body), "adguard_dhcp_server_bindings 3")
}

func TestService_noMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestDHCP(), nil)

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+httpapi.PathPatternMetrics, nil)
	require.NoError(t, err)

	resp, _ := doRequest(t, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestService_Start(t *testing.T) {
	t.Parallel()

	svc := httpapi.New(&httpapi.Config{
		Logger:    slogutil.NewDiscardLogger(),
		DHCP:      newTestDHCP(),
		Addresses: []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:0")},
		Timeout:   testTimeout,
	})

	assert.Empty(t, svc.LocalAddrs())

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	err := svc.Start(ctx)
	require.NoError(t, err)

	addrs := svc.LocalAddrs()
	require.Len(t, addrs, 1)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		"http://"+addrs[0].String()+httpapi.PathPatternHealthCheck,
		nil,
	)
	require.NoError(t, err)

	resp, _ := doRequest(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	err = svc.Shutdown(ctx)
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		conf       *httpapi.Config
		name       string
		wantErrMsg string
	}{{
		conf:       nil,
		name:       "nil",
		wantErrMsg: "no value",
	}, {
		conf: &httpapi.Config{
			Logger:    slogutil.NewDiscardLogger(),
			DHCP:      dhcpsvc.Empty{},
			Addresses: []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:8080")},
			Timeout:   testTimeout,
		},
		name:       "valid",
		wantErrMsg: "",
	}, {
		conf: &httpapi.Config{
			Logger:  slogutil.NewDiscardLogger(),
			DHCP:    dhcpsvc.Empty{},
			Timeout: testTimeout,
		},
		name:       "no_addresses",
		wantErrMsg: "Addresses: empty value",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			testutil.AssertErrorMsg(t, tc.wantErrMsg, tc.conf.Validate())
		})
	}
}
