// Package dhcpsvc contains the DHCPv4 server lease engine: the address pool,
// the lease indexes, the binding store, the lease selection, and the protocol
// handlers.
package dhcpsvc

import (
	"context"
	"net/netip"

	"github.com/AdguardTeam/golibs/service"
)

const (
	// keyInterface is the key for logging the network interface name.
	keyInterface = "iface"

	// keyMsgType is the key for logging the DHCP message type.
	keyMsgType = "msg_type"

	// keyClientID is the key for logging the client identifier.
	keyClientID = "client_id"

	// keyResource is the key for logging the address pool entry name.
	keyResource = "resource"
)

// Interface is a DHCP service.
type Interface interface {
	service.Interface

	// Leases returns the snapshot of all the known bindings.  The order is
	// stable across calls.
	Leases() (ls []*Lease)

	// AddResource adds the address pool entry at runtime.  It returns the
	// number of added resources.
	AddResource(ctx context.Context, e *PoolEntry) (n int, err error)

	// LeaseByIP returns the lease for the address, if any.
	LeaseByIP(ip netip.Addr) (l *Lease, ok bool)
}

// Empty is an [Interface] implementation that does nothing.
type Empty struct{}

// type check
var _ Interface = Empty{}

// Start implements the [Interface] interface for Empty.
func (Empty) Start(_ context.Context) (err error) { return nil }

// Shutdown implements the [Interface] interface for Empty.
func (Empty) Shutdown(_ context.Context) (err error) { return nil }

// Leases implements the [Interface] interface for Empty.
func (Empty) Leases() (ls []*Lease) { return nil }

// AddResource implements the [Interface] interface for Empty.
func (Empty) AddResource(_ context.Context, _ *PoolEntry) (n int, err error) { return 0, nil }

// LeaseByIP implements the [Interface] interface for Empty.
func (Empty) LeaseByIP(_ netip.Addr) (l *Lease, ok bool) { return nil, false }
