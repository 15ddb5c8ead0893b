package configmgr

import (
	"net/netip"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"github.com/google/gopacket/layers"
)

// ClientConfig is the on-disk configuration of the boot-time client.
type ClientConfig struct {
	// Interface is the name of the network interface to configure.
	Interface string `yaml:"interface"`

	// Hostname is sent to the server, if not empty.
	Hostname string `yaml:"hostname"`

	// ClientID is the client identifier, if not empty.
	ClientID string `yaml:"client_id"`

	// Params are the codes of the requested options.  If empty, the defaults
	// are requested.
	Params []uint8 `yaml:"params"`

	StartDelayMin  timeutil.Duration `yaml:"start_delay_min"`
	StartDelayMax  timeutil.Duration `yaml:"start_delay_max"`
	BackoffMin     timeutil.Duration `yaml:"backoff_min"`
	BackoffMax     timeutil.Duration `yaml:"backoff_max"`
	MinLease       timeutil.Duration `yaml:"min_lease"`
	CollectTimeout timeutil.Duration `yaml:"collect_timeout"`

	// ProbeTimeout is the time to wait for the replies to an ARP probe.  If
	// zero, the offered addresses aren't probed.
	ProbeTimeout timeutil.Duration `yaml:"probe_timeout"`

	// Retries is the number of DISCOVER retransmissions before switching to
	// the legacy format.
	Retries int `yaml:"retries"`

	// MaxMessageSize is advertised to the server.
	MaxMessageSize datasize.ByteSize `yaml:"max_message_size"`
}

// newDefaultClientConfig returns the client configuration with the default
// values.
func newDefaultClientConfig() (c *ClientConfig) {
	return &ClientConfig{
		StartDelayMin:  timeutil.Duration{Duration: dhcpc.DefaultStartDelayMin},
		StartDelayMax:  timeutil.Duration{Duration: dhcpc.DefaultStartDelayMax},
		BackoffMin:     timeutil.Duration{Duration: dhcpc.DefaultBackoffMin},
		BackoffMax:     timeutil.Duration{Duration: dhcpc.DefaultBackoffMax},
		MinLease:       timeutil.Duration{Duration: dhcpc.DefaultMinLease},
		CollectTimeout: timeutil.Duration{Duration: dhcpc.DefaultCollectTimeout},
		ProbeTimeout:   timeutil.Duration{Duration: dhcpc.DefaultProbeTimeout},
		Retries:        dhcpc.DefaultRetries,
		MaxMessageSize: dhcpmsg.MinMessageLen * datasize.B,
	}
}

// type check
var _ validate.Interface = (*ClientConfig)(nil)

// Validate implements the [validate.Interface] interface for *ClientConfig.
// The interface name is only required in the client mode, so it isn't checked.
func (c *ClientConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNegative("start_delay_min", c.StartDelayMin.Duration),
		validate.NotNegative("start_delay_max", c.StartDelayMax.Duration),
		validate.Positive("backoff_min", c.BackoffMin.Duration),
		validate.Positive("backoff_max", c.BackoffMax.Duration),
		validate.NotNegative("min_lease", c.MinLease.Duration),
		validate.Positive("collect_timeout", c.CollectTimeout.Duration),
		validate.NotNegative("probe_timeout", c.ProbeTimeout.Duration),
		validate.Positive("retries", c.Retries),
	}

	if c.StartDelayMax.Duration < c.StartDelayMin.Duration {
		errs = append(errs, errors.Error("start_delay_max: must not be less than start_delay_min"))
	}

	if c.BackoffMax.Duration < c.BackoffMin.Duration {
		errs = append(errs, errors.Error("backoff_max: must not be less than backoff_min"))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the client configuration with the values from c.  The
// fields not stored on disk are left empty.  c must be valid.
func (c *ClientConfig) ClientConfig(informAddr netip.Addr) (conf *dhcpc.Config) {
	conf = &dhcpc.Config{
		Hostname:       c.Hostname,
		InformAddr:     informAddr,
		StartDelayMin:  c.StartDelayMin.Duration,
		StartDelayMax:  c.StartDelayMax.Duration,
		BackoffMin:     c.BackoffMin.Duration,
		BackoffMax:     c.BackoffMax.Duration,
		MinLease:       c.MinLease.Duration,
		CollectTimeout: c.CollectTimeout.Duration,
		Retries:        c.Retries,
		MaxMessageSize: int(c.MaxMessageSize.Bytes()),
		HWType:         uint8(layers.LinkTypeEthernet),
	}

	if c.ClientID != "" {
		conf.ClientID = []byte(c.ClientID)
	}

	for _, p := range c.Params {
		conf.Params = append(conf.Params, layers.DHCPOpt(p))
	}

	return conf
}
