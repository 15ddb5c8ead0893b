package dhcpsvc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
)

// resourceHandle is the index of a resource in the address pool.
type resourceHandle int

// noResource is the handle that refers to no resource.
const noResource resourceHandle = -1

// field is the bit set of non-option attributes of a resource.
type field uint8

// Non-option attributes of a resource.
const (
	fieldDefaultLease field = 1 << iota
	fieldMaxLease
	fieldBootServer
	fieldServerName
	fieldBootFile
	fieldAllowBOOTP
)

// param is a single configuration value of a resource.
type param struct {
	// data is the wire form of the value.
	data []byte

	// active is true if the value is set for the entry itself and not
	// inherited from the defaults.
	active bool
}

// Resource is an address pool entry.  It describes one potential lease.
type Resource struct {
	// params are the option values keyed by option tag.  The presence of a
	// key means the value is valid.
	params map[layers.DHCPOpt]*param

	// clientID restricts the entry to a single client, making it a manual
	// lease.  It's nil for dynamic entries.
	clientID *ClientID

	// classID makes the entry a parameter overlay for a vendor class.
	classID []byte

	// name is the unique name of the entry.
	name string

	// continuation is the name of the entry to inherit unset values from.
	continuation string

	// serverName is the value for the sname field.
	serverName string

	// bootFile is the value for the file field.
	bootFile string

	// ip is the leased address.  It's unspecified for parameter-only entries.
	ip netip.Addr

	// subnet is the network of ip.
	subnet netip.Prefix

	// bootServer is the value for the siaddr field.
	bootServer netip.Addr

	// binding is the current binding of the entry, if any.
	binding bindingHandle

	// defaultLease is the lease offered when the client requests none.
	defaultLease uint32

	// maxLease is the longest lease the entry can be leased for.
	maxLease uint32

	// valid is the set of the non-option attributes set for the entry either
	// explicitly or by inheritance.
	valid field

	// active is the set of the non-option attributes set explicitly.
	active field

	// allowBOOTP is true if the entry may be leased to BOOTP clients.
	allowBOOTP bool
}

// newResource returns a new empty resource.
func newResource(name string) (r *Resource) {
	return &Resource{
		params: map[layers.DHCPOpt]*param{},
		name:   name,
	}
}

// clone returns a deep copy of r without a binding.
func (r *Resource) clone() (c *Resource) {
	c = &Resource{}
	*c = *r

	c.params = make(map[layers.DHCPOpt]*param, len(r.params))
	for code, p := range r.params {
		c.params[code] = &param{data: slices.Clone(p.data), active: p.active}
	}

	c.classID = slices.Clone(r.classID)
	c.binding = noBinding
	if r.clientID != nil {
		cid := *r.clientID
		cid.ID = slices.Clone(cid.ID)
		c.clientID = &cid
	}

	return c
}

// isDummy returns true if r carries only parameters and can't be leased.
func (r *Resource) isDummy() (ok bool) {
	return !r.ip.IsValid() || r.ip.IsUnspecified()
}

// isManual returns true if r is restricted to a single client.
func (r *Resource) isManual() (ok bool) {
	return r.clientID != nil
}

// isRestricted returns true if r must not be selected by the general
// allocator.
func (r *Resource) isRestricted() (ok bool) {
	return r.isDummy() || r.clientID != nil || r.classID != nil
}

// setParam sets the explicit value of the option.
func (r *Resource) setParam(code layers.DHCPOpt, data []byte) {
	r.params[code] = &param{data: data, active: true}
}

// param returns the value of the option, if valid.
func (r *Resource) param(code layers.DHCPOpt) (p *param, ok bool) {
	p, ok = r.params[code]

	return p, ok
}

// setField marks the non-option attribute as explicitly set.
func (r *Resource) setField(f field) {
	r.valid |= f
	r.active |= f
}

// inherit copies the values valid in from and not set in r.  Inherited values
// are not active.
func (r *Resource) inherit(from *Resource) {
	for _, code := range slices.Sorted(maps.Keys(from.params)) {
		if _, ok := r.params[code]; !ok {
			r.params[code] = &param{data: slices.Clone(from.params[code].data)}
		}
	}

	missing := from.valid &^ r.valid
	r.valid |= missing

	if missing&fieldDefaultLease != 0 {
		r.defaultLease = from.defaultLease
	}

	if missing&fieldMaxLease != 0 {
		r.maxLease = from.maxLease
	}

	if missing&fieldBootServer != 0 {
		r.bootServer = from.bootServer
	}

	if missing&fieldServerName != 0 {
		r.serverName = from.serverName
	}

	if missing&fieldBootFile != 0 {
		r.bootFile = from.bootFile
	}

	if missing&fieldAllowBOOTP != 0 {
		r.allowBOOTP = from.allowBOOTP
	}
}

// ClientID is a DHCP client identifier along with the subnet the client is
// attached to.
type ClientID struct {
	// ID is the identifier value without the type.
	ID []byte

	// Subnet is the network the client is on.
	Subnet netip.Prefix

	// Type is the identifier type, which is a hardware type for identifiers
	// derived from hardware addresses.
	Type uint8
}

// String implements the [fmt.Stringer] interface for ClientID.
func (cid ClientID) String() (s string) {
	return fmt.Sprintf("%d:0x%x", cid.Type, cid.ID)
}

// key returns the lookup key for cid.
func (cid ClientID) key() (k clientKey) {
	return clientKey{
		id:     string(cid.ID),
		subnet: cid.Subnet.Masked(),
		typ:    cid.Type,
	}
}

// isZero returns true if the identifier value consists of zeroes only.
func (cid ClientID) isZero() (ok bool) {
	return len(bytes.Trim(cid.ID, "\x00")) == 0
}

// parseTypedHex parses the "<type>:0x<hex>" form used for client identifiers
// and hardware addresses.
func parseTypedHex(s string) (typ uint8, val []byte, err error) {
	typStr, hexStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, nil, fmt.Errorf("no type separator in %q", s)
	}

	t, err := strconv.ParseUint(typStr, 10, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("type: %w", err)
	}

	hexStr, ok = strings.CutPrefix(hexStr, "0x")
	if !ok {
		return 0, nil, fmt.Errorf("value %q: %w", hexStr, errors.Error("no 0x prefix"))
	}

	val, err = hex.DecodeString(hexStr)
	if err != nil {
		return 0, nil, fmt.Errorf("value: %w", err)
	}

	return uint8(t), val, nil
}

// classfulPrefixLen returns the length of the network prefix of ip according to
// its address class.
func classfulPrefixLen(ip netip.Addr) (bits int) {
	first := ip.As4()[0]
	switch {
	case first < 128:
		return 8
	case first < 192:
		return 16
	case first < 224:
		return 24
	default:
		return 32
	}
}

// maskLen returns the prefix length of an IPv4 mask.  ok is false if mask is
// not a valid contiguous mask.
func maskLen(mask []byte) (bits int, ok bool) {
	if len(mask) != 4 {
		return 0, false
	}

	m := uint32(mask[0])<<24 | uint32(mask[1])<<16 | uint32(mask[2])<<8 | uint32(mask[3])
	for bits = 0; bits < 32 && m&(1<<(31-bits)) != 0; bits++ {
	}

	if m<<bits != 0 {
		return 0, false
	}

	return bits, true
}
