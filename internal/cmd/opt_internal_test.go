package cmd

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want *options
		name string
		args []string
	}{{
		want: &options{
			confFile: configmgr.DefaultFileName,
		},
		name: "defaults",
		args: nil,
	}, {
		want: &options{
			confFile:      "/etc/AdGuardDHCP.yaml",
			logFile:       "stderr",
			serviceAction: "install",
			workDir:       "/var/lib/adguard-dhcp",
			verbose:       true,
		},
		name: "short",
		args: []string{
			"-c", "/etc/AdGuardDHCP.yaml",
			"-l", "stderr",
			"-s", "install",
			"-w", "/var/lib/adguard-dhcp",
			"-v",
		},
	}, {
		want: &options{
			confFile: configmgr.DefaultFileName,
			pidFile:  "/run/adguard-dhcp.pid",
			inform:   netip.MustParseAddr("192.168.0.10"),
			client:   true,
		},
		name: "client",
		args: []string{
			"--pidfile=/run/adguard-dhcp.pid",
			"--client",
			"--inform=192.168.0.10",
		},
	}, {
		want: &options{
			confFile:    configmgr.DefaultFileName,
			checkConfig: true,
			version:     true,
			help:        true,
		},
		name: "flags",
		args: []string{"--check-config", "--version", "--help"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts, err := parseOptions("AdGuardDHCP", tc.args)
			require.NoError(t, err)

			assert.Equal(t, tc.want, opts)
		})
	}
}

func TestParseOptions_bad(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
	}{{
		name: "unknown",
		args: []string{"--unknown"},
	}, {
		name: "bad_inform",
		args: []string{"--inform", "not-an-ip"},
	}, {
		name: "no_value",
		args: []string{"--config"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseOptions("AdGuardDHCP", tc.args)
			assert.Error(t, err)
		})
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	usage("AdGuardDHCP", buf)

	got := buf.String()
	assert.Contains(t, got, "Usage of AdGuardDHCP:\n")
	assert.Contains(t, got, "  --config=path/-c path\n")
	assert.Contains(t, got, "  --check-config\n")
	assert.Contains(t, got, "  --help/-h\n")
	assert.Contains(t, got, "  --inform=ip\n")
	assert.Contains(t, got, `(Default value: "AdGuardDHCP.yaml")`)
}

func TestProcessOptions(t *testing.T) {
	t.Parallel()

	validConf := filepath.Join(t.TempDir(), configmgr.DefaultFileName)
	err := os.WriteFile(validConf, []byte(`
schema_version: 1
dhcp:
  interfaces:
    eth0:
      address: '192.168.0.1/24'
`), 0o600)
	require.NoError(t, err)

	testCases := []struct {
		opts         *options
		parseErr     error
		name         string
		wantOutput   string
		wantCode     int
		wantNeedExit bool
	}{{
		opts:         &options{confFile: validConf},
		parseErr:     nil,
		name:         "run",
		wantOutput:   "",
		wantCode:     0,
		wantNeedExit: false,
	}, {
		opts:         nil,
		parseErr:     assert.AnError,
		name:         "parse_error",
		wantOutput:   "",
		wantCode:     osutil.ExitCodeArgumentError,
		wantNeedExit: true,
	}, {
		opts:         &options{inform: netip.MustParseAddr("192.168.0.10")},
		parseErr:     nil,
		name:         "inform_without_client",
		wantOutput:   "--inform requires --client\n",
		wantCode:     osutil.ExitCodeArgumentError,
		wantNeedExit: true,
	}, {
		opts:         &options{confFile: validConf, checkConfig: true},
		parseErr:     nil,
		name:         "check_config",
		wantOutput:   "",
		wantCode:     osutil.ExitCodeSuccess,
		wantNeedExit: true,
	}, {
		opts: &options{
			confFile:    filepath.Join(t.TempDir(), "none.yaml"),
			checkConfig: true,
		},
		parseErr:     nil,
		name:         "check_config_no_file",
		wantCode:     osutil.ExitCodeFailure,
		wantNeedExit: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := &bytes.Buffer{}
			code, needExit := processOptions(tc.opts, "AdGuardDHCP", tc.parseErr, out)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantNeedExit, needExit)

			if tc.wantOutput != "" {
				assert.Equal(t, tc.wantOutput, out.String())
			}
		})
	}

	t.Run("help", func(t *testing.T) {
		t.Parallel()

		out := &bytes.Buffer{}
		code, needExit := processOptions(&options{help: true}, "AdGuardDHCP", nil, out)
		assert.Equal(t, osutil.ExitCodeSuccess, code)
		assert.True(t, needExit)
		assert.Contains(t, out.String(), "Usage of AdGuardDHCP:")
	})

	t.Run("version", func(t *testing.T) {
		t.Parallel()

		out := &bytes.Buffer{}
		code, needExit := processOptions(&options{version: true}, "AdGuardDHCP", nil, out)
		assert.Equal(t, osutil.ExitCodeSuccess, code)
		assert.True(t, needExit)
		assert.Contains(t, out.String(), "AdGuard DHCP, version ")
	})
}
