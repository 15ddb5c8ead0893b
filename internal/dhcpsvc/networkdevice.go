package dhcpsvc

import (
	"context"
	"io"
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// NetworkDeviceConfig is the configuration for a network device.
type NetworkDeviceConfig struct {
	// Name is the name of the network device.  It must be a valid interface
	// name on the system.
	Name string

	// Address is the IPv4 address of the device used as the source of the
	// link-layer unicast replies.
	Address netip.Addr
}

// type check
var _ validate.Interface = (*NetworkDeviceConfig)(nil)

// Validate implements the [validate.Interface] interface for
// *NetworkDeviceConfig.
func (conf *NetworkDeviceConfig) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("Name", conf.Name),
	}

	if !conf.Address.Is4() {
		errs = append(errs, newMustErr("Address", "be a valid ipv4", conf.Address))
	}

	return errors.Join(errs...)
}

// NetworkDeviceManager creates and manages network devices.
type NetworkDeviceManager interface {
	// Open opens a network device.  conf must be valid.
	//
	// An attempt to open the same device multiple times may return an error.
	Open(ctx context.Context, conf *NetworkDeviceConfig) (dev NetworkDevice, err error)
}

// EmptyNetworkDeviceManager is an empty implementation of
// [NetworkDeviceManager].
type EmptyNetworkDeviceManager struct{}

// type check
var _ NetworkDeviceManager = EmptyNetworkDeviceManager{}

// Open implements the [NetworkDeviceManager] interface for
// [EmptyNetworkDeviceManager].  It always returns [EmptyNetworkDevice].
func (EmptyNetworkDeviceManager) Open(
	_ context.Context,
	_ *NetworkDeviceConfig,
) (nd NetworkDevice, err error) {
	return EmptyNetworkDevice{}, nil
}

// NetworkDevice reads the DHCP messages sent to the server port of a network
// interface and writes the replies.  It's used to generalize implementations
// for different platforms and to simplify testing.
type NetworkDevice interface {
	// No methods of a device should be called after Close.  Close unblocks
	// ReadFrom, which returns [net.ErrClosed] afterwards.
	io.Closer

	// ReadFrom reads the UDP payload of a single message into b.
	ReadFrom(b []byte) (n int, src netip.AddrPort, err error)

	// WriteTo sends b to dst.  If hw is not nil, b is framed and sent to hw
	// directly, since the peer may not answer ARP requests yet.
	WriteTo(b []byte, dst netip.AddrPort, hw net.HardwareAddr) (err error)
}

// EmptyNetworkDevice is an empty implementation of NetworkDevice.
type EmptyNetworkDevice struct{}

// type check
var _ NetworkDevice = EmptyNetworkDevice{}

// Close implements the [NetworkDevice] interface for [EmptyNetworkDevice].  It
// always returns nil.
func (EmptyNetworkDevice) Close() (err error) {
	return nil
}

// ReadFrom implements the [NetworkDevice] interface for [EmptyNetworkDevice].
// It always returns [net.ErrClosed].
func (EmptyNetworkDevice) ReadFrom(_ []byte) (n int, src netip.AddrPort, err error) {
	return 0, netip.AddrPort{}, net.ErrClosed
}

// WriteTo implements the [NetworkDevice] interface for [EmptyNetworkDevice].
// It always returns nil.
func (EmptyNetworkDevice) WriteTo(_ []byte, _ netip.AddrPort, _ net.HardwareAddr) (err error) {
	return nil
}
