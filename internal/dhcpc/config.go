package dhcpc

import (
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/google/gopacket/layers"
)

// Default values of the optional configuration fields.
const (
	DefaultStartDelayMin  = 1 * time.Second
	DefaultStartDelayMax  = 10 * time.Second
	DefaultBackoffMin     = 4 * time.Second
	DefaultBackoffMax     = 64 * time.Second
	DefaultRetries        = 4
	DefaultMinLease       = 60 * time.Second
	DefaultCollectTimeout = 3 * time.Second
)

// DefaultParams are the options the client requests by default.
var DefaultParams = []layers.DHCPOpt{
	layers.DHCPOptSubnetMask,
	layers.DHCPOptRouter,
	layers.DHCPOptDNS,
	layers.DHCPOptDomainName,
	layers.DHCPOptBroadcastAddr,
	layers.DHCPOptNTPServers,
}

// Config is the configuration of a [Client].
type Config struct {
	// Logger is used to log the client's operation.  It must not be nil.
	Logger *slog.Logger

	// Transport is used to exchange the messages.  It must not be nil.
	Transport Transport

	// Prober checks the offered addresses.  If nil, all the addresses are
	// considered free.
	Prober AddressProber

	// HWAddr is the hardware address of the client's interface.  It must not
	// be empty.
	HWAddr net.HardwareAddr

	// ClientID is the client identifier sent in option 61.  If empty, the
	// option isn't sent.
	ClientID []byte

	// Hostname is sent in option 12, if not empty.
	Hostname string

	// Params are the options requested from the server.  If nil,
	// [DefaultParams] are used.
	Params []layers.DHCPOpt

	// InformAddr is the externally assigned address of the host.  If set, the
	// client only requests the configuration parameters.
	InformAddr netip.Addr

	// StartDelayMin and StartDelayMax bound the random delay before the
	// first DISCOVER.  Zero values disable the delay.
	StartDelayMin time.Duration
	StartDelayMax time.Duration

	// BackoffMin is the first retransmission timeout, which doubles with each
	// retransmission up to BackoffMax.  Both must be positive.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// MinLease is the shortest acceptable lease.
	MinLease time.Duration

	// CollectTimeout is the time to collect more offers after the first
	// acceptable one.  It must be positive.
	CollectTimeout time.Duration

	// Retries is the number of DISCOVER retransmissions before falling back to
	// the legacy format.  REQUEST is retransmitted once more.  It must be
	// positive.
	Retries int

	// MaxMessageSize is advertised in option 57.  Values less than
	// [dhcpmsg.MinMessageLen] are treated as [dhcpmsg.MinMessageLen].
	MaxMessageSize int

	// HWType is the hardware address type, 1 for Ethernet.
	HWType uint8
}

// NewDefaultConfig returns the configuration with the default values.
func NewDefaultConfig() (conf *Config) {
	return &Config{
		StartDelayMin:  DefaultStartDelayMin,
		StartDelayMax:  DefaultStartDelayMax,
		BackoffMin:     DefaultBackoffMin,
		BackoffMax:     DefaultBackoffMax,
		MinLease:       DefaultMinLease,
		CollectTimeout: DefaultCollectTimeout,
		Retries:        DefaultRetries,
		MaxMessageSize: dhcpmsg.MinMessageLen,
		HWType:         uint8(layers.LinkTypeEthernet),
	}
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("conf.Logger", conf.Logger),
		validate.NotNilInterface("conf.Transport", conf.Transport),
		validate.NotEmptySlice("conf.HWAddr", conf.HWAddr),
		validate.NotNegative("conf.StartDelayMin", conf.StartDelayMin),
		validate.NotNegative("conf.StartDelayMax", conf.StartDelayMax),
		validate.Positive("conf.BackoffMin", conf.BackoffMin),
		validate.Positive("conf.BackoffMax", conf.BackoffMax),
		validate.NotNegative("conf.MinLease", conf.MinLease),
		validate.Positive("conf.CollectTimeout", conf.CollectTimeout),
		validate.Positive("conf.Retries", conf.Retries),
	}

	if conf.StartDelayMax < conf.StartDelayMin {
		errs = append(errs, errors.Error("conf.StartDelayMax: must not be less than conf.StartDelayMin"))
	}

	if conf.BackoffMax < conf.BackoffMin {
		errs = append(errs, errors.Error("conf.BackoffMax: must not be less than conf.BackoffMin"))
	}

	if conf.InformAddr.IsValid() && !conf.InformAddr.Is4() {
		errs = append(errs, errors.Error("conf.InformAddr: must be an ipv4 address"))
	}

	return errors.Join(errs...)
}
