package dhcpmsg

import "math"

// Infinity is the lease time meaning the lease never expires.
const Infinity uint32 = math.MaxUint32

// RenewalTime returns T1, which is 50% of the lease.  Only integer arithmetic
// is used.
func RenewalTime(lease uint32) (t1 uint32) {
	if lease == Infinity {
		return Infinity
	}

	return lease / 2
}

// RebindingTime returns T2, which is 87.5% of the lease.  Only integer
// arithmetic is used.
func RebindingTime(lease uint32) (t2 uint32) {
	if lease == Infinity {
		return Infinity
	}

	return lease - lease/8
}
