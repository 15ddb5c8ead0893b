package dhcpsvc

import (
	"net"
	"slices"
)

// bindingHandle is the identifier of a binding in the binding store.
type bindingHandle uint64

// noBinding is the handle that refers to no binding.
const noBinding bindingHandle = 0

// bindingFlags is the set of binding states.
type bindingFlags uint8

// Valid bindingFlags values.
const (
	// flagComplete is set once the binding is acknowledged.
	flagComplete bindingFlags = 1 << iota

	// flagStatic is set for the bindings of manual entries.
	flagStatic

	// flagBOOTP is set for the bindings of BOOTP clients.
	flagBOOTP

	// flagQuarantined is set for the bindings of declined or conflicting
	// addresses.
	flagQuarantined
)

// Epoch values with special meaning.
const (
	// epochInfinity is the expiration epoch of infinite leases.
	epochInfinity int64 = 0xFFFF_FFFF

	// epochUncommitted is the expiration epoch of offered bindings.
	epochUncommitted int64 = 0
)

// quarantineSecs is the period an address stays unavailable after a failed
// probe or a decline.
const quarantineSecs = 30 * 60

// binding is a single client's claim on an address pool entry.
type binding struct {
	// hwAddr is the client's hardware address.
	hwAddr net.HardwareAddr

	// cid is the client identifier the binding is indexed by.  Its value is
	// zeroed when the binding is quarantined.
	cid ClientID

	// owner is the key of the client the binding was created for.  It isn't
	// changed on quarantine.
	owner clientKey

	// resName is the name of the bound entry.
	resName string

	// expiry is the hard expiration epoch.
	expiry int64

	// tempExpiry is the expiration epoch of the offer hold.
	tempExpiry int64

	// id is the handle of the binding.
	id bindingHandle

	// res is the handle of the bound entry.
	res resourceHandle

	// hwType is the client's hardware type.
	hwType uint8

	// flags is the state of the binding.
	flags bindingFlags
}

// isComplete returns true if b has been acknowledged.
func (b *binding) isComplete() (ok bool) { return b.flags&flagComplete != 0 }

// isStatic returns true if b binds a manual entry.
func (b *binding) isStatic() (ok bool) { return b.flags&flagStatic != 0 }

// isBOOTP returns true if b is a BOOTP binding.
func (b *binding) isBOOTP() (ok bool) { return b.flags&flagBOOTP != 0 }

// isInfinite returns true if b never expires.
func (b *binding) isInfinite() (ok bool) { return b.expiry == epochInfinity }

// expired returns true if both the lease and the offer hold of b have passed.
func (b *binding) expired(now int64) (ok bool) {
	return !b.isInfinite() && b.expiry <= now && b.tempExpiry <= now
}

// belongsTo returns true if b was created for the client or is currently
// indexed under it.
func (b *binding) belongsTo(k clientKey) (ok bool) {
	return b.owner == k || b.cid.key() == k
}

// availableFor returns true if b may be reassigned to the client at now.  A
// nil binding is always available.
func (b *binding) availableFor(k clientKey, now int64) (ok bool) {
	return b == nil || b.belongsTo(k) || b.expired(now)
}

// isQuarantined returns true if b marks an address that is unusable at now.
func (b *binding) isQuarantined(now int64) (ok bool) {
	return b.flags&flagQuarantined != 0 && !b.expired(now)
}

// assignableTo returns true if the address bound by b may be offered or
// acknowledged to the client at now.  Unlike availableFor, it also refuses the
// former owner of a quarantined address.  A nil binding is always assignable.
func (b *binding) assignableTo(k clientKey, now int64) (ok bool) {
	return b == nil || (b.availableFor(k, now) && !b.isQuarantined(now))
}

// setHWAddr sets the client's hardware address.
func (b *binding) setHWAddr(htype uint8, hw net.HardwareAddr) {
	b.hwType = htype
	b.hwAddr = slices.Clone(hw)
}
