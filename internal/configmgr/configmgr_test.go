package configmgr_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/c2h5oh/datasize"
	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes data into a new configuration file and returns its path.
func writeConfig(t *testing.T, data string) (fileName string) {
	t.Helper()

	fileName = filepath.Join(t.TempDir(), configmgr.DefaultFileName)
	err := os.WriteFile(fileName, []byte(data), 0o600)
	require.NoError(t, err)

	return fileName
}

// minimalConfig is the smallest valid configuration.
const minimalConfig = `
schema_version: 1
dhcp:
  interfaces:
    eth0:
      address: '192.168.0.1/24'
`

func TestRead(t *testing.T) {
	t.Parallel()

	conf, err := configmgr.Read(filepath.Join("testdata", configmgr.DefaultFileName))
	require.NoError(t, err)

	assert.True(t, conf.HTTP.Enabled)
	assert.Equal(t, 5*time.Second, conf.HTTP.Timeout.Duration)
	assert.Equal(t, 10, conf.Log.MaxSizeMB())
	assert.Equal(t, 3, conf.Log.MaxAgeDays())
	assert.Equal(t, configmgr.BindingsTypeBbolt, conf.Storage.Bindings.Type)

	t.Run("dhcp", func(t *testing.T) {
		got := conf.DHCP.ServiceConfig()

		want := &dhcpsvc.Config{
			Interfaces: map[string]*dhcpsvc.InterfaceConfig{
				"eth0": {Address: netip.MustParsePrefix("192.168.0.1/24")},
			},
			Pool: []*dhcpsvc.PoolEntry{{
				Start:  netip.IPv4Unspecified(),
				Name:   "default",
				Params: "lt=3600:dn=example.org",
			}, {
				Start: netip.MustParseAddr("192.168.0.100"),
				End:   netip.MustParseAddr("192.168.0.199"),
				Name:  "lan",
			}},
			Relays: []*dhcpsvc.RelayConfig{{
				Address: netip.MustParseAddr("10.0.0.1"),
				Subnet:  netip.MustParsePrefix("10.0.0.0/24"),
			}},
			DefaultsName:   "default",
			OfferHold:      time.Minute,
			GCInterval:     5 * time.Minute,
			ICMPTimeout:    0,
			BindingCeiling: 50,
			MaxMessageSize: int(datasize.KB),
			Overload:       true,
			Enabled:        true,
		}

		assert.Empty(t, cmp.Diff(want, got, cmp.Comparer(func(a, b netip.Addr) bool {
			return a == b
		}), cmp.Comparer(func(a, b netip.Prefix) bool {
			return a == b
		})))
	})

	t.Run("client", func(t *testing.T) {
		inform := netip.MustParseAddr("192.168.0.42")
		got := conf.Client.ClientConfig(inform)

		assert.Equal(t, "eth1", conf.Client.Interface)
		assert.Equal(t, []byte("edge-1"), got.ClientID)
		assert.Equal(t, "edge", got.Hostname)
		assert.Equal(t, inform, got.InformAddr)
		assert.Equal(t, []layers.DHCPOpt{
			layers.DHCPOptSubnetMask,
			layers.DHCPOptRouter,
			layers.DHCPOptDNS,
		}, got.Params)
		assert.Equal(t, 2, got.Retries)
		assert.Zero(t, got.StartDelayMax)

		// Defaults are kept for the absent fields.
		assert.Equal(t, dhcpc.DefaultBackoffMin, got.BackoffMin)
		assert.Equal(t, dhcpc.DefaultCollectTimeout, got.CollectTimeout)
	})
}

func TestRead_defaults(t *testing.T) {
	t.Parallel()

	conf, err := configmgr.Read(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.False(t, conf.HTTP.Enabled)
	assert.Equal(t, configmgr.BindingsTypeFile, conf.Storage.Bindings.Type)

	svcConf := conf.DHCP.ServiceConfig()
	assert.Equal(t, dhcpsvc.DefaultOfferHold, svcConf.OfferHold)
	assert.Equal(t, dhcpsvc.DefaultBindingCeiling, svcConf.BindingCeiling)
	assert.Equal(t, dhcpmsg.MinMessageLen, svcConf.MaxMessageSize)
	assert.Empty(t, conf.Client.ClientConfig(netip.Addr{}).Params)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		data       string
		wantErrMsg string
	}{{
		name:       "minimal",
		data:       minimalConfig,
		wantErrMsg: "",
	}, {
		name:       "no_interfaces",
		data:       "schema_version: 1\n",
		wantErrMsg: "validating config: dhcp: interfaces: empty value",
	}, {
		name:       "disabled_dhcp",
		data:       "schema_version: 1\ndhcp:\n  enabled: false\n",
		wantErrMsg: "",
	}, {
		name: "bad_schema",
		data: "schema_version: 2\ndhcp:\n  enabled: false\n",
		wantErrMsg: "validating config: schema_version: bad enum value: " +
			"got 2, want 1",
	}, {
		name: "bad_bindings",
		data: minimalConfig + "storage:\n  bindings:\n    type: 'sql'\n",
		wantErrMsg: "validating config: storage: bindings: type: bad enum value: " +
			`"sql"`,
	}, {
		name: "bad_log_format",
		data: minimalConfig + "log:\n  format: 'xml'\n",
		wantErrMsg: `validating config: log: format: bad enum value: "xml"`,
	}, {
		name: "small_message",
		data: minimalConfig + "  max_message_size: 300B\n",
		wantErrMsg: "validating config: dhcp: max_message_size: must be at " +
			"least 548, got 300",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := configmgr.Validate(writeConfig(t, tc.data))
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)
		})
	}
}

func TestValidate_unknownField(t *testing.T) {
	t.Parallel()

	err := configmgr.Validate(writeConfig(t, minimalConfig+"unknown: true\n"))
	assert.ErrorContains(t, err, "field unknown not found")
}

func TestValidate_noFile(t *testing.T) {
	t.Parallel()

	err := configmgr.Validate(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
