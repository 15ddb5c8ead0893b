package configmgr

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
)

// DHCPConfig is the on-disk DHCP server configuration.
type DHCPConfig struct {
	// Interfaces are the served network interfaces by their names.
	Interfaces map[string]*InterfaceConfig `yaml:"interfaces"`

	// Relays are the trusted relay agents.
	Relays []*RelayConfig `yaml:"relays"`

	// Pool is the static part of the address pool.
	Pool []*dhcpsvc.PoolEntry `yaml:"pool"`

	// DefaultsName is the name of the pool entry with the defaults.
	DefaultsName string `yaml:"defaults_name"`

	OfferHold   timeutil.Duration `yaml:"offer_hold"`
	GCInterval  timeutil.Duration `yaml:"gc_interval"`
	ICMPTimeout timeutil.Duration `yaml:"icmp_timeout"`

	// BindingCeiling is the number of bindings the garbage collection keeps
	// the store within.
	BindingCeiling int `yaml:"binding_ceiling"`

	// MaxMessageSize is the upper limit of the reply size.
	MaxMessageSize datasize.ByteSize `yaml:"max_message_size"`

	// Overload enables the use of the file and sname fields for options.
	Overload bool `yaml:"overload"`

	Enabled bool `yaml:"enabled"`
}

// newDefaultDHCPConfig returns the DHCP configuration with the default values.
func newDefaultDHCPConfig() (c *DHCPConfig) {
	return &DHCPConfig{
		DefaultsName:   dhcpsvc.DefaultDefaultsName,
		OfferHold:      timeutil.Duration{Duration: dhcpsvc.DefaultOfferHold},
		GCInterval:     timeutil.Duration{Duration: dhcpsvc.DefaultGCInterval},
		ICMPTimeout:    timeutil.Duration{Duration: dhcpsvc.DefaultICMPTimeout},
		BindingCeiling: dhcpsvc.DefaultBindingCeiling,
		MaxMessageSize: dhcpmsg.MinMessageLen * datasize.B,
		Enabled:        true,
	}
}

// type check
var _ validate.Interface = (*DHCPConfig)(nil)

// Validate implements the [validate.Interface] interface for *DHCPConfig.
func (c *DHCPConfig) Validate() (err error) {
	switch {
	case c == nil:
		return errors.ErrNoValue
	case !c.Enabled:
		return nil
	}

	errs := []error{
		validate.Positive("offer_hold", c.OfferHold.Duration),
		validate.Positive("gc_interval", c.GCInterval.Duration),
		validate.NotNegative("icmp_timeout", c.ICMPTimeout.Duration),
		validate.Positive("binding_ceiling", c.BindingCeiling),
	}

	if c.MaxMessageSize < dhcpmsg.MinMessageLen*datasize.B {
		err = fmt.Errorf(
			"max_message_size: must be at least %d, got %d",
			dhcpmsg.MinMessageLen,
			c.MaxMessageSize.Bytes(),
		)
		errs = append(errs, err)
	}

	if len(c.Interfaces) == 0 {
		errs = append(errs, fmt.Errorf("interfaces: %w", errors.ErrEmptyValue))
	}

	for _, name := range slices.Sorted(maps.Keys(c.Interfaces)) {
		errs = validate.Append(errs, "interfaces."+name, c.Interfaces[name])
	}

	errs = validate.AppendSlice(errs, "relays", c.Relays)
	errs = validate.AppendSlice(errs, "pool", c.Pool)

	return errors.Join(errs...)
}

// ServiceConfig returns the DHCP service configuration with the values from
// c.  The fields not stored on disk are left empty.  c must be valid.
func (c *DHCPConfig) ServiceConfig() (conf *dhcpsvc.Config) {
	conf = &dhcpsvc.Config{
		Interfaces:     make(map[string]*dhcpsvc.InterfaceConfig, len(c.Interfaces)),
		Pool:           slices.Clone(c.Pool),
		DefaultsName:   c.DefaultsName,
		OfferHold:      c.OfferHold.Duration,
		GCInterval:     c.GCInterval.Duration,
		ICMPTimeout:    c.ICMPTimeout.Duration,
		BindingCeiling: c.BindingCeiling,
		MaxMessageSize: int(c.MaxMessageSize.Bytes()),
		Overload:       c.Overload,
		Enabled:        c.Enabled,
	}

	for name, ic := range c.Interfaces {
		conf.Interfaces[name] = &dhcpsvc.InterfaceConfig{
			Address: ic.Address,
		}
	}

	for _, rc := range c.Relays {
		conf.Relays = append(conf.Relays, &dhcpsvc.RelayConfig{
			Address: rc.Address,
			Subnet:  rc.Subnet,
		})
	}

	return conf
}

// InterfaceConfig is the on-disk configuration of a served network interface.
type InterfaceConfig struct {
	// Address is the address of the interface along with the length of its
	// network prefix.
	Address netip.Prefix `yaml:"address"`
}

// type check
var _ validate.Interface = (*InterfaceConfig)(nil)

// Validate implements the [validate.Interface] interface for *InterfaceConfig.
func (c *InterfaceConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return (&dhcpsvc.InterfaceConfig{Address: c.Address}).Validate()
}

// RelayConfig is the on-disk configuration of a trusted relay agent.
type RelayConfig struct {
	// Address is the address of the agent as seen in giaddr.
	Address netip.Addr `yaml:"address"`

	// Subnet is the network of the clients behind the agent.
	Subnet netip.Prefix `yaml:"subnet"`
}

// type check
var _ validate.Interface = (*RelayConfig)(nil)

// Validate implements the [validate.Interface] interface for *RelayConfig.
func (c *RelayConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return (&dhcpsvc.RelayConfig{Address: c.Address, Subnet: c.Subnet}).Validate()
}
