package dhcpsvc

import (
	"context"
	"iter"
	"net"
	"slices"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// bindingStore is the arena of bindings along with their traversal order.
type bindingStore struct {
	// bindings are the bindings by their handles.
	bindings map[bindingHandle]*binding

	// order is the traversal order of bindings, which is the order they were
	// added in.
	order []bindingHandle

	// last is the last issued handle.
	last bindingHandle

	// live is the number of bindings reachable by client identifiers.
	live int
}

// newBindingStore returns a new empty *bindingStore.
func newBindingStore() (s *bindingStore) {
	return &bindingStore{
		bindings: map[bindingHandle]*binding{},
	}
}

// add puts b into s and assigns it a handle.
func (s *bindingStore) add(b *binding) {
	s.last++
	b.id = s.last
	s.bindings[b.id] = b
	s.order = append(s.order, b.id)
}

// get returns the binding by its handle.  It returns nil if there is no such
// binding.
func (s *bindingStore) get(h bindingHandle) (b *binding) {
	return s.bindings[h]
}

// remove frees the binding with the handle.
func (s *bindingStore) remove(h bindingHandle) {
	if _, ok := s.bindings[h]; !ok {
		return
	}

	delete(s.bindings, h)
	s.order = slices.DeleteFunc(s.order, func(o bindingHandle) (ok bool) { return o == h })
}

// all returns an iterator over the bindings in the traversal order.  The
// iterated binding may be removed during the iteration.
func (s *bindingStore) all() (seq iter.Seq[*binding]) {
	return func(yield func(b *binding) (cont bool)) {
		for _, h := range slices.Clone(s.order) {
			b := s.bindings[h]
			if b != nil && !yield(b) {
				return
			}
		}
	}
}

// len returns the number of bindings in s.
func (s *bindingStore) len() (n int) {
	return len(s.bindings)
}

// bindResource creates a new binding of the entry for the client.  It returns
// the created binding.  srv.mu is expected to be locked.
func (srv *DHCPServer) bindResource(
	r *Resource,
	h resourceHandle,
	cid ClientID,
	htype uint8,
	hw net.HardwareAddr,
) (b *binding) {
	b = &binding{
		cid:     cid,
		owner:   cid.key(),
		resName: r.name,
		res:     h,
	}
	b.cid.ID = slices.Clone(cid.ID)
	b.setHWAddr(htype, hw)

	srv.store.add(b)
	r.binding = b.id
	srv.indexBinding(b)

	return b
}

// indexBinding adds b into the client index.  The previous binding of the same
// client, if any, is removed.  Quarantined bindings never displace each other,
// the one added later stays reachable only through its entry.  srv.mu is
// expected to be locked.
func (srv *DHCPServer) indexBinding(b *binding) {
	k := b.cid.key()
	if prev, ok := srv.idx.byClient.find(k); ok && prev != b.id {
		if b.cid.isZero() {
			return
		}

		srv.removeBinding(srv.store.get(prev))
	}

	if srv.idx.byClient.insert(k, b.id) == nil {
		srv.store.live++
	}
}

// removeBinding fully removes b: it's deleted from the client index, unlinked
// from its entry, and freed.  srv.mu is expected to be locked.
func (srv *DHCPServer) removeBinding(b *binding) {
	if b == nil {
		return
	}

	srv.unindexBinding(b)

	if r := srv.pool.get(b.res); r != nil && r.binding == b.id {
		r.binding = noBinding
	}

	srv.store.remove(b.id)
}

// unindexBinding removes b from the client index without freeing it.  srv.mu
// is expected to be locked.
func (srv *DHCPServer) unindexBinding(b *binding) {
	srv.idx.byClient.delete(
		b.cid.key(),
		func(h bindingHandle) (ok bool) { return h == b.id },
		func(_ bindingHandle) { srv.store.live-- },
	)
}

// markUnavailable quarantines the entry: its binding, created if missing, gets
// a zeroed client identifier and is held for quarantineSecs.  Manual entries
// are never quarantined.  srv.mu is expected to be locked.
func (srv *DHCPServer) markUnavailable(ctx context.Context, r *Resource, h resourceHandle, now int64) {
	b := srv.store.get(r.binding)
	if b != nil && b.isStatic() {
		srv.logger.WarnContext(ctx, "manual address is in use", keyResource, r.name, "ip", r.ip)

		return
	}

	if b == nil {
		b = srv.bindResource(r, h, ClientID{}, 0, nil)
		b.owner = clientKey{}
	} else {
		srv.unindexBinding(b)
		b.cid.ID = make([]byte, len(b.cid.ID))
		srv.indexBinding(b)
	}

	b.expiry = now + quarantineSecs
	b.tempExpiry = b.expiry
	b.flags = b.flags&^flagComplete | flagQuarantined

	srv.logger.WarnContext(ctx, "address quarantined", keyResource, r.name, "ip", r.ip)
	srv.metrics.IncQuarantined(ctx)
}

// collectGarbage persists the bindings, removes the stale offers, and shrinks
// the store down to the configured ceiling by removing the expired bindings.
// srv.mu is expected to be locked.
func (srv *DHCPServer) collectGarbage(ctx context.Context, now int64) {
	err := srv.persist(ctx)
	if err != nil {
		srv.logger.WarnContext(ctx, "persisting bindings", slogutil.KeyError, err)
	}

	var removed int
	for b := range srv.store.all() {
		if !b.isComplete() && !b.isStatic() && b.tempExpiry <= now && b.expiry <= now {
			srv.removeBinding(b)
			removed++
		}
	}

	for srv.store.live > srv.bindingCeiling {
		oldest := srv.oldestExpired(now)
		if oldest == nil {
			break
		}

		srv.removeBinding(oldest)
		removed++
	}

	srv.logger.DebugContext(ctx, "collected garbage", "removed", removed, "live", srv.store.live)
	srv.metrics.SetBindings(ctx, srv.store.len())
}

// oldestExpired returns the complete dynamic binding which has expired first.
// It returns nil if there are no expired bindings.
func (srv *DHCPServer) oldestExpired(now int64) (oldest *binding) {
	for b := range srv.store.all() {
		if !b.isComplete() || b.isStatic() || !b.expired(now) {
			continue
		}

		if oldest == nil || b.expiry < oldest.expiry {
			oldest = b
		}
	}

	return oldest
}
