package dhcpsvc

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// addressPool is the arena of address pool entries.  The entries are never
// removed, so that their handles stay valid.
type addressPool struct {
	// templates are the decoded raw entries by their names.  These are the
	// sources of the inherited values.
	templates map[string]*Resource

	// defaults is the decoded entry with the host requirements defaults.  It's
	// nil if there is no such entry.
	defaults *Resource

	// builtin is the entry with the built-in defaults of host configuration
	// parameters.  It's inherited last.
	builtin *Resource

	// defaultsName is the name of the entry with the host requirements
	// defaults.
	defaultsName string

	// resources are the expanded entries, indexed by their handles.
	resources []*Resource
}

// newAddressPool returns a new empty *addressPool.
func newAddressPool(defaultsName string) (p *addressPool) {
	return &addressPool{
		templates:    map[string]*Resource{},
		builtin:      newHostRequirements(),
		defaultsName: defaultsName,
	}
}

// get returns the entry by its handle.  It returns nil if there is no such
// entry.
func (p *addressPool) get(h resourceHandle) (r *Resource) {
	if h < 0 || int(h) >= len(p.resources) {
		return nil
	}

	return p.resources[h]
}

// loadPool decodes, expands, and indexes the raw entries.  Malformed entries
// are skipped, the errors are returned for the entries which are too large or
// duplicate the existing ones.  n is the number of added resources.  srv.mu is
// expected to be locked.
func (srv *DHCPServer) loadPool(ctx context.Context, entries []*PoolEntry) (n int, err error) {
	var decoded []*PoolEntry
	for _, e := range entries {
		if e == nil {
			continue
		}

		tmpl := newResource(e.Name)
		err = decodeParams(tmpl, e.Params)
		if err != nil {
			srv.logger.WarnContext(ctx, "skipping entry", keyResource, e.Name, slogutil.KeyError, err)

			continue
		}

		srv.pool.templates[e.Name] = tmpl
		if e.Name == srv.pool.defaultsName {
			srv.pool.defaults = tmpl
		}

		decoded = append(decoded, e)
	}

	var errs []error
	for _, e := range decoded {
		var added int
		added, err = srv.expandEntry(ctx, e, srv.resolveTemplate(ctx, e.Name))
		n += added
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q: %w", e.Name, err))
		}
	}

	return n, errors.Join(errs...)
}

// resolveTemplate returns the entry with the inherited values applied.
func (srv *DHCPServer) resolveTemplate(ctx context.Context, name string) (r *Resource) {
	tmpl := srv.pool.templates[name]
	r = tmpl.clone()

	if r.continuation != "" {
		src, ok := srv.pool.templates[r.continuation]
		if ok {
			r.inherit(src)
		} else {
			srv.logger.WarnContext(ctx, "no continuation entry", keyResource, name, "continuation", r.continuation)
		}
	}

	if !r.isManual() && r.classID == nil {
		if defaults := srv.pool.defaults; defaults != nil && defaults != tmpl {
			r.inherit(defaults)
		}

		r.inherit(srv.pool.builtin)
	}

	if r.valid&fieldDefaultLease == 0 {
		r.defaultLease = defaultLeaseSecs
	}

	if r.valid&fieldMaxLease == 0 {
		r.maxLease = defaultMaxSecs
	}

	return r
}

// expandEntry adds a resource per address of the entry's range.  n is the
// number of added resources.  srv.mu is expected to be locked.
func (srv *DHCPServer) expandEntry(
	ctx context.Context,
	e *PoolEntry,
	r *Resource,
) (n int, err error) {
	if !e.Start.IsValid() || e.Start.IsUnspecified() {
		return srv.addParamEntry(r)
	}

	end := e.End
	if !end.IsValid() {
		end = e.Start
	}

	rng, err := newIPRange(e.Start, end)
	if errors.Is(err, errMalformedRange) {
		srv.logger.WarnContext(ctx, "skipping entry", keyResource, e.Name, slogutil.KeyError, err)

		return 0, nil
	} else if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return 0, err
	}

	var errs []error
	for ip := range rng.addrs() {
		c := r.clone()
		c.ip = ip
		if ip != e.Start {
			c.name = fmt.Sprintf("%s-%s", e.Name, ip)
		}

		c.subnet = netip.PrefixFrom(ip, resourcePrefixLen(c)).Masked()

		err = srv.addResource(c)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		n++
	}

	return n, errors.Join(errs...)
}

// addParamEntry adds the entry without an address.
func (srv *DHCPServer) addParamEntry(r *Resource) (n int, err error) {
	r.ip = netip.Addr{}
	err = srv.addResource(r)
	if err != nil {
		return 0, err
	}

	return 1, nil
}

// resourcePrefixLen returns the length of the network prefix of r's address,
// either configured or classful.
func resourcePrefixLen(r *Resource) (bits int) {
	if p, ok := r.param(layers.DHCPOptSubnetMask); ok {
		if bits, ok = maskLen(p.data); ok {
			return bits
		}
	}

	return classfulPrefixLen(r.ip)
}

// addResource indexes r and puts it into the pool.  Manual entries with
// addresses get the static bindings.  srv.mu is expected to be locked.
func (srv *DHCPServer) addResource(r *Resource) (err error) {
	h := resourceHandle(len(srv.pool.resources))
	err = srv.idx.addResource(r, h)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	srv.pool.resources = append(srv.pool.resources, r)

	if r.isManual() && !r.isDummy() {
		// Manual bindings are indexed without a subnet, see
		// [DHCPServer.ownResource].
		b := srv.bindResource(r, h, *r.clientID, 0, nil)
		b.flags = flagStatic | flagComplete
		b.expiry = epochInfinity
	}

	return nil
}
