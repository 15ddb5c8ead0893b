package dhcpsvc

import (
	"bytes"
	"cmp"
	"context"
	"net/netip"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// selectStatus is the kind of the lease selection result.
type selectStatus uint8

// Valid selectStatus values.
const (
	selectFound selectStatus = iota + 1
	selectExhausted
	selectInvalidSubnet
)

// selectResult is the result of the lease selection.  res, h, and lease are
// only set when status is selectFound.
type selectResult struct {
	res    *Resource
	h      resourceHandle
	lease  uint32
	status selectStatus
}

// selectRequest is the client's input of the lease selection.
type selectRequest struct {
	// cid is the client identifier along with the client's subnet.
	cid ClientID

	// requestedIP is the address the client asks for, if any.
	requestedIP netip.Addr

	// requestedLease is the lease the client asks for.  Zero means none.
	requestedLease uint32

	// now is the current epoch.
	now int64
}

// selectResource chooses the address pool entry for the client.  It tries the
// client's own entry, then the requested address, and then the best fitting
// available entry on the client's subnet.  Every candidate is probed, the
// failed ones are quarantined.  srv.mu is expected to be locked.
func (srv *DHCPServer) selectResource(ctx context.Context, req *selectRequest) (res selectResult) {
	subnet := req.cid.Subnet
	if !subnet.IsValid() {
		return selectResult{status: selectInvalidSubnet}
	}

	key := req.cid.key()

	if r, h, b, ok := srv.ownResource(req.cid); ok {
		if srv.probe(ctx, r) {
			return srv.found(r, h, b, key, req)
		}

		srv.markUnavailable(ctx, r, h, req.now)
	}

	if h, ok := srv.idx.byIP.find(req.requestedIP); ok {
		r := srv.pool.get(h)
		b := srv.store.get(r.binding)
		if subnet.Contains(r.ip) && requestable(r, b, req.cid, req.now) {
			if srv.probe(ctx, r) {
				return srv.found(r, h, b, key, req)
			}

			srv.markUnavailable(ctx, r, h, req.now)
		}
	}

	best, bestH := srv.bestFit(ctx, key, subnet, req.requestedLease, req.now)
	if best == nil {
		return selectResult{status: selectExhausted}
	}

	return srv.found(best, bestH, srv.store.get(best.binding), key, req)
}

// found returns the successful selection result for r.
func (srv *DHCPServer) found(
	r *Resource,
	h resourceHandle,
	b *binding,
	key clientKey,
	req *selectRequest,
) (res selectResult) {
	return selectResult{
		res:    r,
		h:      h,
		lease:  chooseLease(r, b, key, req.requestedLease),
		status: selectFound,
	}
}

// ownResource returns the entry bound to the client on its subnet, if any.
// The dynamic bindings are looked up first, then the manual ones, which are
// indexed without a subnet.  srv.mu is expected to be locked.
func (srv *DHCPServer) ownResource(cid ClientID) (r *Resource, h resourceHandle, b *binding, ok bool) {
	if r, h, b, ok = srv.clientResource(cid.key()); ok {
		return r, h, b, true
	}

	manual := cid
	manual.Subnet = netip.Prefix{}
	r, h, b, ok = srv.clientResource(manual.key())
	if ok && cid.Subnet.Contains(r.ip) {
		return r, h, b, true
	}

	return nil, noResource, nil, false
}

// clientResource returns the entry bound under the key, if any.  srv.mu is
// expected to be locked.
func (srv *DHCPServer) clientResource(
	key clientKey,
) (r *Resource, h resourceHandle, b *binding, ok bool) {
	bh, ok := srv.idx.byClient.find(key)
	if !ok {
		return nil, noResource, nil, false
	}

	b = srv.store.get(bh)
	if b == nil {
		return nil, noResource, nil, false
	}

	r = srv.pool.get(b.res)
	if r == nil || r.binding != b.id {
		return nil, noResource, nil, false
	}

	return r, b.res, b, true
}

// requestable returns true if the client may get r by asking for its address.
func requestable(r *Resource, b *binding, cid ClientID, now int64) (ok bool) {
	switch {
	case r.classID != nil:
		return false
	case r.isManual():
		return r.clientID.Type == cid.Type && bytes.Equal(r.clientID.ID, cid.ID)
	default:
		return b.assignableTo(cid.key(), now)
	}
}

// bestFit returns the most suitable available dynamic entry on the subnet.
// It returns nil if there is none.  srv.mu is expected to be locked.
func (srv *DHCPServer) bestFit(
	ctx context.Context,
	key clientKey,
	subnet netip.Prefix,
	reqLease uint32,
	now int64,
) (best *Resource, bestH resourceHandle) {
	bestH = noResource
	for i, r := range srv.pool.resources {
		if r.isRestricted() || !subnet.Contains(r.ip) {
			continue
		}

		b := srv.store.get(r.binding)
		if !b.assignableTo(key, now) {
			continue
		}

		if best != nil && !isBetterFit(r, b, best, srv.store.get(best.binding), reqLease) {
			continue
		}

		h := resourceHandle(i)
		if !srv.probe(ctx, r) {
			srv.markUnavailable(ctx, r, h, now)

			continue
		}

		best, bestH = r, h
	}

	return best, bestH
}

// isBetterFit returns true if r with its binding rb is a better choice than
// best with its binding bestB.  The unused entries are preferred, then the
// ones not reserved for BOOTP, then the ones with the better fitting maximum
// lease, and then the least recently used ones.
func isBetterFit(r *Resource, rb *binding, best *Resource, bestB *binding, reqLease uint32) (ok bool) {
	if rUnused, bestUnused := rb == nil, bestB == nil; rUnused != bestUnused {
		return rUnused
	}

	if r.allowBOOTP != best.allowBOOTP {
		return !r.allowBOOTP
	}

	if c := compareLeaseFit(r.maxLease, best.maxLease, reqLease); c != 0 {
		return c > 0
	}

	return rb != nil && bestB != nil && rb.expiry < bestB.expiry
}

// compareLeaseFit returns a positive number if the maximum lease a fits the
// requested lease better than b, a negative number if b fits better, and zero
// if they are equal.  The smallest maximum covering the request fits best,
// otherwise the largest one.  The infinite request prefers the largest one.
func compareLeaseFit(a, b, req uint32) (res int) {
	switch {
	case req == 0:
		return 0
	case req == dhcpmsg.Infinity:
		return cmp.Compare(a, b)
	}

	aCovers, bCovers := a >= req, b >= req
	switch {
	case aCovers && bCovers:
		return cmp.Compare(b, a)
	case aCovers:
		return 1
	case bCovers:
		return -1
	default:
		return cmp.Compare(a, b)
	}
}

// chooseLease returns the lease length in seconds for the client getting r
// with its current binding b.
func chooseLease(r *Resource, b *binding, key clientKey, reqLease uint32) (lease uint32) {
	switch {
	case r.isManual():
		return dhcpmsg.Infinity
	case reqLease != 0:
		return min(reqLease, r.maxLease)
	case b != nil && b.belongsTo(key) && b.isInfinite():
		return dhcpmsg.Infinity
	default:
		return min(r.defaultLease, r.maxLease)
	}
}

// selectBOOTP chooses the entry for the BOOTP client.  The client's own entry
// is returned first, then the entry of ciaddr, and then the best available
// BOOTP entry on the subnet.  Only the last one is probed.  srv.mu is expected
// to be locked.
func (srv *DHCPServer) selectBOOTP(
	ctx context.Context,
	cid ClientID,
	ciaddr netip.Addr,
	now int64,
) (r *Resource, h resourceHandle, ok bool) {
	if r, h, _, ok = srv.ownResource(cid); ok {
		return r, h, true
	}

	key, subnet := cid.key(), cid.Subnet

	if h, ok = srv.idx.byIP.find(ciaddr); ok {
		r = srv.pool.get(h)
		if isBOOTPCandidate(r, subnet) && srv.store.get(r.binding).assignableTo(key, now) {
			return r, h, true
		}
	}

	r, h = nil, noResource
	for i, c := range srv.pool.resources {
		if !isBOOTPCandidate(c, subnet) {
			continue
		}

		b := srv.store.get(c.binding)
		if !b.assignableTo(key, now) {
			continue
		}

		if r != nil && !isBetterFit(c, b, r, srv.store.get(r.binding), dhcpmsg.Infinity) {
			continue
		}

		ch := resourceHandle(i)
		if !srv.probe(ctx, c) {
			srv.markUnavailable(ctx, c, ch, now)

			continue
		}

		r, h = c, ch
	}

	return r, h, h != noResource
}

// isBOOTPCandidate returns true if r may be leased to a BOOTP client on the
// subnet.
func isBOOTPCandidate(r *Resource, subnet netip.Prefix) (ok bool) {
	return r.allowBOOTP && !r.isRestricted() && subnet.Contains(r.ip)
}

// probe returns true if no device answers on the address of r.  Probe errors
// are logged and treated as no answer.
func (srv *DHCPServer) probe(ctx context.Context, r *Resource) (ok bool) {
	ok, err := srv.checker.IsAvailable(ctx, r.ip)
	if err != nil {
		srv.logger.WarnContext(ctx, "probing address", "ip", r.ip, slogutil.KeyError, err)

		return true
	}

	return ok
}
