package dhcpsvc

import (
	"context"
	"maps"
	"net"
	"slices"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/google/gopacket/layers"
)

// hostRequirementsName is the name of the built-in entry with the default
// values of host configuration parameters.
const hostRequirementsName = "host-requirements"

// newHostRequirements returns the entry holding the default values of host
// configuration parameters listed in Appendix A of RFC 2131.  The values are
// valid but not active, so they are only sent when requested.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#appendix-A.
func newHostRequirements() (r *Resource) {
	r = newResource(hostRequirementsName)

	for code, data := range hostRequirementsOptions() {
		r.params[code] = &param{data: data}
	}

	return r
}

// hostRequirementsOptions returns the IP-layer, link-layer, and TCP defaults.
func hostRequirementsOptions() (opts map[layers.DHCPOpt][]byte) {
	return map[layers.DHCPOpt][]byte{
		// IP-layer per host.

		// An Internet host that includes embedded gateway code MUST have a
		// configuration switch to disable the gateway function, and this switch
		// MUST default to the non-gateway mode.
		//
		// See https://datatracker.ietf.org/doc/html/rfc1122#section-3.3.5.
		layers.DHCPOptIPForwarding: {0x0},

		// A host that supports non-local source-routing MUST have a
		// configurable switch to disable forwarding, and this switch MUST
		// default to disabled.
		layers.DHCPOptSourceRouting: {0x0},

		// The minimum legal value is 576.
		//
		// See https://datatracker.ietf.org/doc/html/rfc2132#section-4.4.
		layers.DHCPOptDatagramMTU: dhcpmsg.Uint16(576),

		// The current recommended default time to live for the Internet
		// Protocol is 64.
		layers.DHCPOptDefaultTTL: {0x40},

		// See https://datatracker.ietf.org/doc/html/rfc1191#section-6.6.
		layers.DHCPOptPathMTUAgingTimeout: dhcpmsg.Uint32(600),

		// The plateaus of all major data-link technologies.
		//
		// See https://datatracker.ietf.org/doc/html/rfc1191#section-7.
		layers.DHCPOptPathPlateuTableOption: {
			0x0, 0x44,
			0x1, 0x28,
			0x1, 0xFC,
			0x3, 0xEE,
			0x5, 0xD4,
			0x7, 0xD2,
			0x11, 0x0,
			0x1F, 0xE6,
			0x45, 0xFA,
		},

		// IP-layer per interface.

		// Commonly the connected hosts aren't expected to be multihomed.
		layers.DHCPOptAllSubsLocal: {0x0},

		// Provide the subnet mask by options only.
		//
		// See https://datatracker.ietf.org/doc/html/rfc1122#section-3.2.2.9.
		layers.DHCPOptMaskDiscovery: {0x0},
		layers.DHCPOptMaskSupplier:  {0x0},

		// See https://datatracker.ietf.org/doc/html/rfc1256#section-5.1.
		layers.DHCPOptRouterDiscovery: {0x1},
		layers.DHCPOptSolicitAddr:     netutil.IPv4allrouter(),

		// See https://datatracker.ietf.org/doc/html/rfc1122#section-3.2.1.3.
		layers.DHCPOptBroadcastAddr: netutil.IPv4bcast(),

		// Link-layer per interface.

		// See https://datatracker.ietf.org/doc/html/rfc1122#section-2.3.1.
		layers.DHCPOptARPTrailers: {0x0},

		// For proxy ARP situations, the timeout needs to be on the order of a
		// minute.
		layers.DHCPOptARPTimeout: dhcpmsg.Uint32(60),

		// See https://datatracker.ietf.org/doc/html/rfc1122#section-2.3.3.
		layers.DHCPOptEthernetEncap: {0x0},

		// TCP per host.

		// See https://datatracker.ietf.org/doc/html/rfc1122#section-3.2.1.7.
		layers.DHCPOptTCPTTL: {0x40},

		// The interval MUST default to no less than two hours.
		//
		// See https://datatracker.ietf.org/doc/html/rfc1122#section-4.2.3.6.
		layers.DHCPOptTCPKeepAliveInt:     dhcpmsg.Uint32(7200),
		layers.DHCPOptTCPKeepAliveGarbage: {0x1},
	}
}

// newReplyBuilder returns the builder of the reply to req leasing r.  The file
// and sname fields are only used for options if r doesn't need them.
func (srv *DHCPServer) newReplyBuilder(req *dhcpmsg.Message, r *Resource) (b *dhcpmsg.Builder) {
	size := dhcpmsg.MinMessageLen
	if reqSize, ok := req.MaxMessageSize(); ok {
		size = min(int(reqSize), srv.maxMessageSize)
	}

	overload := srv.overload
	if r != nil && (r.serverName != "" || r.bootFile != "") {
		overload = false
	}

	return dhcpmsg.NewBuilder(&dhcpmsg.BuilderConfig{
		MaxMessageSize: size,
		Overload:       overload,
	})
}

// insertOption inserts the option into b logging the failure.  The failure
// only skips the option.
func (srv *DHCPServer) insertOption(
	ctx context.Context,
	b *dhcpmsg.Builder,
	code layers.DHCPOpt,
	data []byte,
) {
	err := b.Insert(code, data)
	if err != nil {
		srv.logger.DebugContext(ctx, "skipping option", "code", code, slogutil.KeyError, err)
	}
}

// insertLeaseTimes inserts the lease time along with the renewal and rebinding
// times.
func (srv *DHCPServer) insertLeaseTimes(ctx context.Context, b *dhcpmsg.Builder, lease uint32) {
	srv.insertOption(ctx, b, layers.DHCPOptLeaseTime, dhcpmsg.Uint32(lease))
	srv.insertOption(ctx, b, layers.DHCPOptT1, dhcpmsg.Uint32(dhcpmsg.RenewalTime(lease)))
	srv.insertOption(ctx, b, layers.DHCPOptT2, dhcpmsg.Uint32(dhcpmsg.RebindingTime(lease)))
}

// insertParams inserts the configuration parameters of r into b: the subnet
// mask, the requested parameters, the active parameters of r, and then the
// client-specific and class-specific overlays.  The options already present in
// b are never replaced.  bootp excludes the DHCP-specific options.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.1.
func (srv *DHCPServer) insertParams(
	ctx context.Context,
	b *dhcpmsg.Builder,
	req *dhcpmsg.Message,
	r *Resource,
	bootp bool,
) {
	if mask, ok := resourceMask(r); ok && !b.Has(layers.DHCPOptSubnetMask) {
		srv.insertOption(ctx, b, layers.DHCPOptSubnetMask, mask)
	}

	// The client MAY list the options in order of preference.  The server
	// MUST try to insert the requested options in the order requested by the
	// client.
	//
	// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.8.
	for _, code := range req.ParamRequestList() {
		if b.Has(code) {
			continue
		}

		data, err := paramValue(r, code)
		if errors.Is(err, dhcpmsg.ErrUnknownTag) {
			continue
		}

		srv.insertOption(ctx, b, code, data)
	}

	srv.insertActive(ctx, b, r, bootp)

	for _, k := range overlayKeys(req) {
		if h, ok := srv.idx.byParam.find(k); ok {
			srv.insertActive(ctx, b, srv.pool.get(h), bootp)
		}
	}
}

// insertActive inserts the explicitly configured parameters of r, which are
// not yet in b, in the order of their codes.
func (srv *DHCPServer) insertActive(ctx context.Context, b *dhcpmsg.Builder, r *Resource, bootp bool) {
	for _, code := range slices.Sorted(maps.Keys(r.params)) {
		if bootp && isDHCPOnly(code) {
			continue
		}

		if p := r.params[code]; p.active && !b.Has(code) {
			srv.insertOption(ctx, b, code, p.data)
		}
	}
}

// isDHCPOnly returns true if the option is only meaningful in DHCP messages.
//
// See https://datatracker.ietf.org/doc/html/rfc2132#section-9.
func isDHCPOnly(code layers.DHCPOpt) (ok bool) {
	return code >= layers.DHCPOptRequestIP && code <= layers.DHCPOptClientID
}

// overlayKeys returns the keys of the parameter overlay entries for the client
// sending req, client-specific first.
func overlayKeys(req *dhcpmsg.Message) (keys []paramKey) {
	if id, ok := req.ClientID(); ok {
		keys = append(keys, clientParamKey(id[0], id[1:]))
	} else {
		keys = append(keys, clientParamKey(req.HType, req.HWAddr()))
	}

	if id, ok := req.ClassID(); ok {
		keys = append(keys, classParamKey(id))
	}

	return keys
}

// paramValue returns the valid value of the option in r.  It returns
// [dhcpmsg.ErrUnknownTag] if r has no such value.
func paramValue(r *Resource, code layers.DHCPOpt) (data []byte, err error) {
	if code == layers.DHCPOptSubnetMask {
		if mask, ok := resourceMask(r); ok {
			return mask, nil
		}
	}

	p, ok := r.param(code)
	if !ok {
		return nil, dhcpmsg.ErrUnknownTag
	}

	return p.data, nil
}

// resourceMask returns the subnet mask of r, either configured or derived from
// its subnet.
func resourceMask(r *Resource) (mask []byte, ok bool) {
	if p, has := r.param(layers.DHCPOptSubnetMask); has {
		return p.data, true
	}

	if !r.subnet.IsValid() {
		return nil, false
	}

	return net.CIDRMask(r.subnet.Bits(), 32), true
}
