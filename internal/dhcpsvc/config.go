package dhcpsvc

import (
	"fmt"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
)

// Default values of the optional configuration fields.
const (
	// DefaultDefaultsName is the default name of the pool entry holding the
	// host requirements defaults.
	DefaultDefaultsName = "default"

	// DefaultOfferHold is the default period an offered address is reserved
	// for the client.
	DefaultOfferHold = 90 * time.Second

	// DefaultGCInterval is the default period of garbage collection.
	DefaultGCInterval = 10 * time.Minute

	// DefaultBindingCeiling is the default number of bindings garbage
	// collection shrinks the store to.
	DefaultBindingCeiling = 100

	// DefaultICMPTimeout is the default timeout of the liveness probe.
	DefaultICMPTimeout = 500 * time.Millisecond
)

// Lease lengths used when neither an entry nor the defaults set them.
const (
	defaultLeaseSecs uint32 = 3600
	defaultMaxSecs   uint32 = 86400
)

// Config is the configuration for the DHCP service.
type Config struct {
	// Interfaces stores configurations of DHCP server specific for the network
	// interface identified by its name.  It must not be empty and must only
	// contain valid interface names and configurations.
	Interfaces map[string]*InterfaceConfig

	// Logger will be used to log the DHCP events.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get the current time.  It must not be nil.
	Clock timeutil.Clock

	// Metrics is used to collect the statistics.  It must not be nil.
	Metrics Metrics

	// BindingStorage persists the bindings.  If nil, the bindings are only
	// kept in memory.
	BindingStorage BindingStorage

	// PoolStorage provides the address pool entries in addition to Pool.  It
	// may be nil.
	PoolStorage PoolStorage

	// NetworkDeviceManager opens the network devices of Interfaces.  If nil,
	// no devices are served and the messages are only handled by
	// [DHCPServer.HandleMessage].
	NetworkDeviceManager NetworkDeviceManager

	// Pool is the static part of the address pool.
	Pool []*PoolEntry

	// Relays are the trusted relay agents.  Relayed messages from other agents
	// are ignored.
	Relays []*RelayConfig

	// DefaultsName is the name of the pool entry which values are inherited by
	// all the other entries.  If empty, [DefaultDefaultsName] is used.
	DefaultsName string

	// OfferHold is the period an offered address is reserved for the client.
	// It must be positive.
	OfferHold time.Duration

	// GCInterval is the period of the garbage collection.  It must be
	// positive.
	GCInterval time.Duration

	// ICMPTimeout is the timeout of the liveness probe.  It must be
	// non-negative.  If it is zero, the probe is skipped.
	ICMPTimeout time.Duration

	// BindingCeiling is the number of bindings the garbage collection tries to
	// keep the store within.  It must be positive.
	BindingCeiling int

	// MaxMessageSize is the upper limit of the reply size.  It must not be less
	// than [dhcpmsg.MinMessageLen].
	MaxMessageSize int

	// Overload enables the use of the file and sname fields for options.
	Overload bool

	// Enabled is the state of the service, whether it is enabled or not.
	Enabled bool
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] for *Config.
func (conf *Config) Validate() (err error) {
	switch {
	case conf == nil:
		return errors.ErrNoValue
	case !conf.Enabled:
		return nil
	}

	errs := []error{
		validate.NotNil("conf.Logger", conf.Logger),
		validate.NotNilInterface("conf.Clock", conf.Clock),
		validate.NotNilInterface("conf.Metrics", conf.Metrics),
		validate.Positive("conf.OfferHold", conf.OfferHold),
		validate.Positive("conf.GCInterval", conf.GCInterval),
		validate.NotNegative("conf.ICMPTimeout", conf.ICMPTimeout),
		validate.Positive("conf.BindingCeiling", conf.BindingCeiling),
	}

	if conf.MaxMessageSize < dhcpmsg.MinMessageLen {
		err = fmt.Errorf(
			"conf.MaxMessageSize: must be at least %d, got %d",
			dhcpmsg.MinMessageLen,
			conf.MaxMessageSize,
		)
		errs = append(errs, err)
	}

	if len(conf.Interfaces) == 0 {
		err = fmt.Errorf("conf.Interfaces: %w", errors.ErrEmptyValue)
		errs = append(errs, err)

		return errors.Join(errs...)
	}

	for _, iface := range slices.Sorted(maps.Keys(conf.Interfaces)) {
		ifaceConf := conf.Interfaces[iface]
		errs = validate.Append(errs, "conf.Interfaces."+iface, ifaceConf)
	}

	errs = validate.AppendSlice(errs, "conf.Relays", conf.Relays)
	errs = validate.AppendSlice(errs, "conf.Pool", conf.Pool)

	return errors.Join(errs...)
}

// defaultsName returns the name of the defaults entry.
func (conf *Config) defaultsName() (name string) {
	if conf.DefaultsName == "" {
		return DefaultDefaultsName
	}

	return conf.DefaultsName
}

// InterfaceConfig is the configuration of a single DHCP interface.
type InterfaceConfig struct {
	// Address is the address of the interface along with the length of its
	// network prefix.  The address is used as the server identifier.  It must
	// be a valid IPv4 prefix.
	Address netip.Prefix
}

// type check
var _ validate.Interface = (*InterfaceConfig)(nil)

// Validate implements the [validate.Interface] interface for *InterfaceConfig.
func (ic *InterfaceConfig) Validate() (err error) {
	switch {
	case ic == nil:
		return errNilConfig
	case !ic.Address.IsValid(), !ic.Address.Addr().Is4():
		return newMustErr("address", "be a valid ipv4 prefix", ic.Address)
	case ic.Address.Addr().IsUnspecified():
		return newMustErr("address", "be specified", ic.Address)
	default:
		return nil
	}
}

// RelayConfig is the configuration of a trusted relay agent.
type RelayConfig struct {
	// Address is the address of the relay agent, as seen in giaddr.  It must be
	// a valid IPv4 address.
	Address netip.Addr

	// Subnet is the network of the clients the agent relays messages for.  It
	// must be a valid IPv4 prefix.
	Subnet netip.Prefix
}

// type check
var _ validate.Interface = (*RelayConfig)(nil)

// Validate implements the [validate.Interface] interface for *RelayConfig.
func (rc *RelayConfig) Validate() (err error) {
	switch {
	case rc == nil:
		return errNilConfig
	case !rc.Address.Is4():
		return newMustErr("address", "be a valid ipv4", rc.Address)
	case !rc.Subnet.IsValid(), !rc.Subnet.Addr().Is4():
		return newMustErr("subnet", "be a valid ipv4 prefix", rc.Subnet)
	default:
		return nil
	}
}
