package dhcpsvc

import (
	"encoding/binary"
	"fmt"
	"iter"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// ipRange is an inclusive range of IPv4 addresses.  A zero range doesn't
// contain any IP addresses.
//
// It is safe for concurrent use.
type ipRange struct {
	start netip.Addr
	end   netip.Addr
}

// maxRangeLen is the maximum number of addresses a single pool entry expands
// into.
const maxRangeLen = 1 << 16

// errMalformedRange is returned by newIPRange for ranges which are skipped
// rather than reported.
const errMalformedRange errors.Error = "malformed ip range"

// newIPRange creates a new IP address range.  start must not be greater than
// end, both must be IPv4 addresses.  The resulting range must not be longer
// than maxRangeLen, otherwise the error is errRangeTooLarge.
func newIPRange(start, end netip.Addr) (r ipRange, err error) {
	defer func() { err = errors.Annotate(err, "ip range %s-%s: %w", start, end) }()

	switch false {
	case start.Is4() && end.Is4():
		return ipRange{}, fmt.Errorf("%w: both ends must be ipv4", errMalformedRange)
	case !end.Less(start):
		return ipRange{}, fmt.Errorf("%w: start is greater than end", errMalformedRange)
	}

	r = ipRange{
		start: start,
		end:   end,
	}

	if r.len() > maxRangeLen {
		return ipRange{}, fmt.Errorf("%w: must be within %d", errRangeTooLarge, maxRangeLen)
	}

	return r, nil
}

// len returns the number of addresses in r.
func (r ipRange) len() (n uint64) {
	if !r.start.IsValid() {
		return 0
	}

	return uint64(ipToUint32(r.end)-ipToUint32(r.start)) + 1
}

// contains returns true if r contains ip.
func (r ipRange) contains(ip netip.Addr) (ok bool) {
	return ip.Is4() && !ip.Less(r.start) && !r.end.Less(ip)
}

// addrs returns an iterator over all addresses in r in ascending order.
func (r ipRange) addrs() (seq iter.Seq[netip.Addr]) {
	return func(yield func(ip netip.Addr) (cont bool)) {
		if !r.start.IsValid() {
			return
		}

		for ip := r.start; !r.end.Less(ip); ip = ip.Next() {
			if !yield(ip) {
				return
			}
		}
	}
}

// offset returns the offset of ip from the beginning of r.  It returns 0 and
// false if ip is not in r.
func (r ipRange) offset(ip netip.Addr) (offset uint64, ok bool) {
	if !r.contains(ip) {
		return 0, false
	}

	return uint64(ipToUint32(ip) - ipToUint32(r.start)), true
}

// String implements the fmt.Stringer interface for ipRange.
func (r ipRange) String() (s string) {
	return fmt.Sprintf("%s-%s", r.start, r.end)
}

// ipToUint32 returns the numeric value of an IPv4 address.
func ipToUint32(ip netip.Addr) (n uint32) {
	data := ip.As4()

	return binary.BigEndian.Uint32(data[:])
}
