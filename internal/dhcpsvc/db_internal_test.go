package dhcpsvc

import (
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRecord(t *testing.T) {
	t.Parallel()

	cid := newTestCID(1)
	expiry := time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC).Unix()

	testCases := []struct {
		b    *binding
		name string
		want string
	}{{
		b: &binding{
			hwAddr:  testHW,
			cid:     cid,
			resName: "dynamic",
			expiry:  expiry,
			hwType:  1,
		},
		name: "dynamic",
		want: `1:0x020000000001:192.168.0.0:1:0x020000000001:"Wed Jan  1 10:00:00 2025":dynamic` + "\n",
	}, {
		b: &binding{
			hwAddr:  testHW,
			cid:     cid,
			resName: "boot:host",
			expiry:  expiry,
			hwType:  1,
			flags:   flagBOOTP,
		},
		name: "bootp",
		want: `1:0x020000000001:192.168.0.0:1:0x020000000001:"infinity":boot\:host` + "\n",
	}, {
		b: &binding{
			cid:     ClientID{},
			resName: "released",
			expiry:  epochUncommitted,
		},
		name: "released",
		want: `0:0x:0.0.0.0:0:0x:"":released` + "\n",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, string(formatRecord(tc.b)))
		})
	}
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	b := &binding{
		hwAddr:  testHW,
		cid:     newTestCID(1),
		resName: `odd"name\with:chars`,
		expiry:  time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC).Unix(),
		hwType:  1,
	}

	data := formatRecord(b)
	rec, err := parseRecord(string(data[:len(data)-1]))
	require.NoError(t, err)

	assert.Equal(t, b.resName, rec.resName)
	assert.Equal(t, b.expiry, rec.expiry)
	assert.Equal(t, b.hwType, rec.hwType)
	assert.Equal(t, b.hwAddr, rec.hwAddr)
	assert.Equal(t, b.cid.ID, rec.cid.ID)
	assert.Equal(t, b.cid.Type, rec.cid.Type)
	assert.Equal(t, netip.MustParsePrefix("192.168.0.0/32"), rec.cid.Subnet)

	for _, line := range []string{
		"",
		"1:0x01",
		`x:0x01:192.168.0.0:1:0x01:"":name`,
		`1:01:192.168.0.0:1:0x01:"":name`,
		`1:0x01:subnet:1:0x01:"":name`,
		`1:0x01:192.168.0.0:1:0x01:"tomorrow":name`,
		`1:0x01:192.168.0.0:1:0x01:"unterminated:name`,
	} {
		_, err = parseRecord(line)
		assert.ErrorIs(t, err, errBadRecord, line)
	}
}

func TestDHCPServer_restore(t *testing.T) {
	t.Parallel()

	entry := &PoolEntry{
		Start: netip.MustParseAddr("192.168.0.10"),
		End:   netip.MustParseAddr("192.168.0.11"),
		Name:  "dynamic",
	}
	manual := &PoolEntry{
		Start:  netip.MustParseAddr("192.168.0.50"),
		Name:   "manual",
		Params: `clid=1\:0x020000000009`,
	}

	srv := newInternalServer(t, entry, manual)
	srv.bindingStorage = &memoryStorage{
		data: []byte(
			`1:0x020000000001:192.168.0.0:1:0x020000000001:"Wed Jan  1 10:00:00 2025":dynamic` + "\n" +
				`1:0x020000000002:192.168.0.0:1:0x020000000002:"infinity":dynamic` + "\n" +
				`1:0x020000000003:192.168.0.0:1:0x020000000003:"":dynamic-192.168.0.11` + "\r\n" +
				`1:0x020000000004:192.168.0.0:1:0x020000000004:"":unknown` + "\n" +
				`1:0x020000000005:192.168.0.0:1:0x020000000005:"":manual` + "\n",
		),
	}

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, srv.restore(ctx))

	// The later record overrides the earlier one.
	r, _ := resourceByIP(t, srv, "192.168.0.10")
	b := srv.store.get(r.binding)
	require.NotNil(t, b)

	assert.True(t, b.isInfinite())
	assert.True(t, b.isComplete())
	assert.Equal(t, newTestCID(2).key(), b.cid.key())

	_, _, _, ok := srv.ownResource(newTestCID(1))
	assert.False(t, ok)

	r, _ = resourceByIP(t, srv, "192.168.0.11")
	b = srv.store.get(r.binding)
	require.NotNil(t, b)

	assert.Equal(t, epochUncommitted, b.expiry)

	// The manual binding is kept.
	r, _ = resourceByIP(t, srv, "192.168.0.50")
	b = srv.store.get(r.binding)
	require.NotNil(t, b)

	assert.True(t, b.isStatic())
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x09}, b.cid.ID)

	require.NoError(t, srv.persist(ctx))

	storage := srv.bindingStorage.(*memoryStorage)
	assert.Equal(
		t,
		`1:0x020000000002:192.168.0.0:1:0x020000000002:"infinity":dynamic`+"\n"+
			`1:0x020000000003:192.168.0.0:1:0x020000000003:"":dynamic-192.168.0.11`+"\n",
		string(storage.data),
	)
}

func TestDHCPServer_restore_bootp(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want   assert.BoolAssertionFunc
		name   string
		params string
		expiry string
	}{{
		want:   assert.True,
		name:   "bootp",
		params: "albp:maxl=7200",
		expiry: "infinity",
	}, {
		want:   assert.False,
		name:   "no_bootp",
		params: "maxl=7200",
		expiry: "infinity",
	}, {
		want:   assert.False,
		name:   "infinite_dhcp",
		params: "albp:maxl=infinity",
		expiry: "infinity",
	}, {
		want:   assert.False,
		name:   "finite",
		params: "albp:maxl=7200",
		expiry: "Wed Jan  1 10:00:00 2025",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			entry := &PoolEntry{
				Start:  netip.MustParseAddr("192.168.0.10"),
				Name:   "boot",
				Params: tc.params,
			}

			line := `1:0x020000000001:192.168.0.0:1:0x020000000001:"` + tc.expiry + `":boot` + "\n"

			srv := newInternalServer(t, entry)
			srv.bindingStorage = &memoryStorage{data: []byte(line)}

			ctx := testutil.ContextWithTimeout(t, testTimeout)
			require.NoError(t, srv.restore(ctx))

			r, _ := resourceByIP(t, srv, "192.168.0.10")
			b := srv.store.get(r.binding)
			require.NotNil(t, b)

			tc.want(t, b.isBOOTP())

			require.NoError(t, srv.persist(ctx))

			storage := srv.bindingStorage.(*memoryStorage)
			assert.Equal(t, line, string(storage.data))
		})
	}
}
