package dhcpsvc

import (
	"fmt"
	"net/netip"
)

// clientKey is the lookup key of a client identifier.  Two identifiers are
// equal if their types, values, and subnets are equal.
type clientKey struct {
	id     string
	subnet netip.Prefix
	typ    uint8
}

// paramKind is the kind of a parameter overlay entry.
type paramKind uint8

// Valid paramKind values.
const (
	paramKindClient paramKind = iota + 1
	paramKindClass
)

// paramKey is the lookup key of a parameter overlay entry.
type paramKey struct {
	id   string
	kind paramKind
}

// clientParamKey returns the overlay key for the client identifier.
func clientParamKey(typ uint8, id []byte) (k paramKey) {
	return paramKey{
		id:   string(append([]byte{typ}, id...)),
		kind: paramKindClient,
	}
}

// classParamKey returns the overlay key for the vendor class identifier.
func classParamKey(id []byte) (k paramKey) {
	return paramKey{
		id:   string(id),
		kind: paramKindClass,
	}
}

// leaseIndex is the set of lookup indexes of the server state.
type leaseIndex struct {
	// byIP is the lookup of address pool entries by their IP addresses.
	byIP *index[netip.Addr, resourceHandle]

	// byName is the lookup of address pool entries by their names.
	byName *index[string, resourceHandle]

	// byClient is the lookup of bindings by their client identifiers.
	byClient *index[clientKey, bindingHandle]

	// byParam is the lookup of parameter overlay entries.
	byParam *index[paramKey, resourceHandle]

	// byRelay is the lookup of trusted relay agents' subnets by the agents' IP
	// addresses.
	byRelay *index[netip.Addr, netip.Prefix]
}

// newLeaseIndex returns a new empty *leaseIndex.
func newLeaseIndex() (idx *leaseIndex) {
	return &leaseIndex{
		byIP:     newIndex[netip.Addr, resourceHandle](),
		byName:   newIndex[string, resourceHandle](),
		byClient: newIndex[clientKey, bindingHandle](),
		byParam:  newIndex[paramKey, resourceHandle](),
		byRelay:  newIndex[netip.Addr, netip.Prefix](),
	}
}

// addResource indexes r under h.  It returns an error if r duplicates the
// address or the name of another entry, in which case idx is unchanged.
func (idx *leaseIndex) addResource(r *Resource, h resourceHandle) (err error) {
	if _, ok := idx.byName.find(r.name); ok {
		return fmt.Errorf("entry %q: %w", r.name, errDupName)
	}

	if !r.isDummy() {
		err = idx.byIP.insert(r.ip, h)
		if err != nil {
			return fmt.Errorf("entry %q: %s: %w", r.name, r.ip, errDupIP)
		}
	}

	// The name is known to be unique at this point.
	_ = idx.byName.insert(r.name, h)

	switch {
	case r.classID != nil:
		idx.addParam(classParamKey(r.classID), h)
	case r.clientID != nil && r.isDummy():
		idx.addParam(clientParamKey(r.clientID.Type, r.clientID.ID), h)
	}

	return nil
}

// addParam adds the overlay entry replacing the previous one for the same key.
func (idx *leaseIndex) addParam(k paramKey, h resourceHandle) {
	idx.byParam.delete(k, func(_ resourceHandle) (ok bool) { return true }, nil)
	_ = idx.byParam.insert(k, h)
}
