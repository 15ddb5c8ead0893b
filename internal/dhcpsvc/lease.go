package dhcpsvc

import (
	"net"
	"net/netip"
	"slices"
	"time"
)

// Lease is a snapshot of a binding.
type Lease struct {
	// IP is the IP address leased to the client.
	IP netip.Addr

	// Expiry is the expiration time of the lease.  It's zero for infinite and
	// uncommitted leases.
	Expiry time.Time

	// HWAddr is the physical hardware address of the client.  It's nil for
	// manual leases until the client requests one and for quarantined
	// addresses.
	HWAddr net.HardwareAddr

	// ClientID is the identifier of the client.  The value is zeroed for
	// quarantined addresses.
	ClientID ClientID

	// Resource is the name of the leased address pool entry.
	Resource string

	// IsStatic is true for the manual leases.
	IsStatic bool

	// IsBOOTP is true for the leases of BOOTP clients.
	IsBOOTP bool

	// IsComplete is true if the lease is acknowledged.
	IsComplete bool

	// IsInfinite is true if the lease never expires.
	IsInfinite bool
}

// Clone returns a deep copy of l.
func (l *Lease) Clone() (clone *Lease) {
	if l == nil {
		return nil
	}

	clone = &Lease{}
	*clone = *l
	clone.HWAddr = slices.Clone(l.HWAddr)
	clone.ClientID.ID = slices.Clone(l.ClientID.ID)

	return clone
}

// newLease returns the snapshot of b bound to r.
func newLease(b *binding, r *Resource) (l *Lease) {
	l = &Lease{
		IP:         r.ip,
		HWAddr:     slices.Clone(b.hwAddr),
		ClientID:   b.cid,
		Resource:   b.resName,
		IsStatic:   b.isStatic(),
		IsBOOTP:    b.isBOOTP(),
		IsComplete: b.isComplete(),
		IsInfinite: b.isInfinite(),
	}
	l.ClientID.ID = slices.Clone(b.cid.ID)

	if !l.IsInfinite && b.expiry != epochUncommitted {
		l.Expiry = time.Unix(b.expiry, 0).UTC()
	}

	return l
}
