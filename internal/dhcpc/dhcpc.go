// Package dhcpc implements the boot-time DHCPv4 client.  The client acquires
// an address lease or, for a host with an externally assigned address, only the
// configuration parameters.
package dhcpc

import (
	"context"
	"net/netip"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
)

const (
	// ErrNoOffer is returned when no acceptable offer has been received
	// in both message formats.
	ErrNoOffer errors.Error = "no offer received"

	// errNotSupported is returned by the transports and probers not
	// available on the current OS.
	errNotSupported errors.Error = "not supported on this os"
)

// Transport sends and receives the client's messages.  Implementations must
// be safe for concurrent use by one sender and one receiver.
type Transport interface {
	// Send broadcasts data as the payload of a UDP datagram to the server
	// port.
	Send(ctx context.Context, data []byte) (err error)

	// Receive returns the payload of the next UDP datagram sent to the client
	// port.  It must return an error when ctx is canceled.
	Receive(ctx context.Context) (data []byte, err error)
}

// AddressProber checks whether an address is already in use on the link.
type AddressProber interface {
	// Probe returns true if ip is used by another host.
	Probe(ctx context.Context, ip netip.Addr) (inUse bool, err error)
}

// EmptyAddressProber is an [AddressProber] which considers every address
// free.
type EmptyAddressProber struct{}

// type check
var _ AddressProber = EmptyAddressProber{}

// Probe implements the [AddressProber] interface for EmptyAddressProber.
func (EmptyAddressProber) Probe(_ context.Context, _ netip.Addr) (inUse bool, err error) {
	return false, nil
}

// Lease is the result of the client's run.
type Lease struct {
	// Options are the options of the accepted reply.
	Options dhcpmsg.Options

	// IP is the assigned address.  For informing runs it's the externally
	// assigned one.
	IP netip.Addr

	// ServerID is the address of the server, unset for BOOTP replies.
	ServerID netip.Addr

	// SubnetMask is the mask of the client's subnet, if provided.
	SubnetMask netip.Addr

	// Duration is the lease length in seconds, [dhcpmsg.Infinity] for infinite
	// leases and zero for informing runs.
	Duration uint32

	// IsBOOTP is true if the lease has been assigned by a BOOTP server.
	IsBOOTP bool
}

// RenewalTime returns the moment the client should start renewing the lease
// acquired at the given time.  ok is false if the lease never expires.
func (l *Lease) RenewalTime(acquired time.Time) (t time.Time, ok bool) {
	if l.Duration == 0 || l.Duration == dhcpmsg.Infinity {
		return time.Time{}, false
	}

	return acquired.Add(time.Duration(dhcpmsg.RenewalTime(l.Duration)) * time.Second), true
}

// RebindingTime returns the moment the client should start rebinding the lease
// acquired at the given time.  ok is false if the lease never expires.
func (l *Lease) RebindingTime(acquired time.Time) (t time.Time, ok bool) {
	if l.Duration == 0 || l.Duration == dhcpmsg.Infinity {
		return time.Time{}, false
	}

	return acquired.Add(time.Duration(dhcpmsg.RebindingTime(l.Duration)) * time.Second), true
}
