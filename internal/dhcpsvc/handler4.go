package dhcpsvc

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"slices"
	"strings"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// msgTypeBOOTP is the metrics label of BOOTP messages.
const msgTypeBOOTP = "bootp"

// msgTypeUnknown is the metrics label of unsupported messages.
const msgTypeUnknown = "unknown"

// Inbound describes the reception of a message.
type Inbound struct {
	// Interface is the name of the network interface the message has been
	// received on.
	Interface string

	// Src is the source address of the message.
	Src netip.AddrPort
}

// Outbound is a reply ready to be sent.
type Outbound struct {
	// Msg is the reply.
	Msg *dhcpmsg.Message

	// HWAddr is the link-layer destination.  It's only set when the reply must
	// be unicast to the client which has no address configured yet.
	HWAddr net.HardwareAddr

	// Data is the wire form of Msg.
	Data []byte

	// Dst is the destination of the reply.  It's the limited broadcast
	// address for broadcast replies.
	Dst netip.AddrPort
}

// reply is the result of a message handler.
type reply struct {
	msg *dhcpmsg.Message
	b   *dhcpmsg.Builder

	// typ is the type of the reply, unspecified for BOOTP replies.
	typ layers.DHCPMsgType
}

// label returns the metrics label of the reply type.
func (rep *reply) label() (l string) {
	if rep.typ == layers.DHCPMsgTypeUnspecified {
		return msgTypeBOOTP
	}

	return strings.ToLower(rep.typ.String())
}

// HandleMessage handles a single message received on the interface described
// by in.  It returns nil if there is nothing to send back.  It's safe for
// concurrent use.
func (srv *DHCPServer) HandleMessage(ctx context.Context, data []byte, in *Inbound) (out *Outbound) {
	defer slogutil.RecoverAndLog(ctx, srv.logger)

	start := srv.clock.Now()

	iface, ok := srv.interfaces[in.Interface]
	if !ok {
		srv.logger.DebugContext(ctx, "skipping message", keyInterface, in.Interface, "src", in.Src)
		srv.metrics.IncDropped(ctx, DropReasonIgnored)

		return nil
	}

	req, err := dhcpmsg.Parse(data)
	if err != nil {
		srv.logger.DebugContext(ctx, "parsing message", "src", in.Src, slogutil.KeyError, err)
		srv.metrics.IncDropped(ctx, DropReasonParse)

		return nil
	}

	if req.Op != layers.DHCPOpRequest {
		srv.logger.DebugContext(ctx, "skipping non-request message", "op", req.Op)
		srv.metrics.IncDropped(ctx, DropReasonIgnored)

		return nil
	}

	typ := msgTypeLabel(req)
	defer func() { srv.metrics.ObserveMessage(ctx, typ, srv.clock.Now().Sub(start)) }()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	rep := srv.dispatch(ctx, iface, req)
	if rep == nil {
		return nil
	}

	out = &Outbound{
		Msg: rep.msg,
	}
	out.Dst, out.HWAddr = destination(req, rep.msg, rep.typ == layers.DHCPMsgTypeNak)
	out.Data = rep.b.Bytes(rep.msg)

	srv.logger.DebugContext(
		ctx,
		"replying",
		keyInterface, iface.name,
		keyMsgType, rep.label(),
		"dst", out.Dst,
		"len", len(out.Data),
	)
	srv.metrics.IncReplies(ctx, rep.label())

	return out
}

// msgTypeLabel returns the metrics label of the request type.
func msgTypeLabel(req *dhcpmsg.Message) (l string) {
	if req.IsBOOTP() {
		return msgTypeBOOTP
	}

	typ, _ := req.Type()
	switch typ {
	case
		layers.DHCPMsgTypeDiscover,
		layers.DHCPMsgTypeRequest,
		layers.DHCPMsgTypeDecline,
		layers.DHCPMsgTypeRelease,
		layers.DHCPMsgTypeInform:
		return strings.ToLower(typ.String())
	default:
		return msgTypeUnknown
	}
}

// dispatch calls the handler for the type of req.  srv.mu is expected to be
// locked.
func (srv *DHCPServer) dispatch(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	if req.IsBOOTP() {
		return srv.handleBOOTP(ctx, iface, req)
	}

	typ, _ := req.Type()
	switch typ {
	case layers.DHCPMsgTypeDiscover:
		return srv.handleDiscover(ctx, iface, req)
	case layers.DHCPMsgTypeRequest:
		return srv.handleRequest(ctx, iface, req)
	case layers.DHCPMsgTypeDecline:
		srv.handleDecline(ctx, iface, req)
	case layers.DHCPMsgTypeRelease:
		srv.handleRelease(ctx, iface, req)
	case layers.DHCPMsgTypeInform:
		return srv.handleInform(ctx, iface, req)
	default:
		srv.logger.DebugContext(ctx, "skipping message", keyMsgType, typ)
		srv.metrics.IncDropped(ctx, DropReasonIgnored)
	}

	return nil
}

// isSet returns true if ip is a valid specified address.
func isSet(ip netip.Addr) (ok bool) {
	return ip.IsValid() && !ip.IsUnspecified()
}

// clientSubnet returns the subnet of the client sending req.  The subnet is
// derived from ciaddr, if set, then from the relay agent, and then from the
// receiving interface.  ok is false if the message is relayed by an unknown
// agent.
func (srv *DHCPServer) clientSubnet(iface *netInterface, req *dhcpmsg.Message) (subnet netip.Prefix, ok bool) {
	bits := iface.prefix.Bits()
	if isSet(req.GIAddr) {
		relaySubnet, known := srv.idx.byRelay.find(req.GIAddr)
		if !known {
			return netip.Prefix{}, false
		} else if !isSet(req.CIAddr) {
			return relaySubnet.Masked(), true
		}

		bits = relaySubnet.Bits()
	}

	if !isSet(req.CIAddr) {
		return iface.prefix.Masked(), true
	}

	if mask, has := req.SubnetMask(); has {
		if maskBits, valid := maskLen(mask.AsSlice()); valid {
			bits = maskBits
		}
	}

	return netip.PrefixFrom(req.CIAddr, bits).Masked(), true
}

// clientIDOf returns the identifier of the client sending req on the subnet.
// The hardware address is used if there is no client identifier option.
func clientIDOf(req *dhcpmsg.Message, subnet netip.Prefix) (cid ClientID) {
	if id, ok := req.ClientID(); ok {
		return ClientID{
			ID:     slices.Clone(id[1:]),
			Subnet: subnet,
			Type:   id[0],
		}
	}

	return ClientID{
		ID:     slices.Clone(req.HWAddr()),
		Subnet: subnet,
		Type:   req.HType,
	}
}

// now returns the current epoch.
func (srv *DHCPServer) now() (epoch int64) {
	return srv.clock.Now().Unix()
}

// requestedLease returns the lease requested by the client, or zero.
func requestedLease(req *dhcpmsg.Message) (secs uint32) {
	secs, _ = req.LeaseTime()

	return secs
}

// isForeignServer returns true if req names another server in the server
// identifier option.
func isForeignServer(iface *netInterface, req *dhcpmsg.Message) (ok bool) {
	srvID, has := req.ServerID()

	return has && srvID != iface.prefix.Addr()
}

// isOwnServer returns true if req names iface's address in the server
// identifier option.  DHCPDECLINE and DHCPRELEASE must carry it.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.4.4.
func isOwnServer(iface *netInterface, req *dhcpmsg.Message) (ok bool) {
	srvID, has := req.ServerID()

	return has && srvID == iface.prefix.Addr()
}

// handleDiscover handles messages of type DHCPDISCOVER.  The chosen entry is
// held for the client for the offer hold period.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.1.
func (srv *DHCPServer) handleDiscover(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	subnet, ok := srv.clientSubnet(iface, req)
	if !ok {
		srv.dropBadRelay(ctx, req)

		return nil
	}

	cid := clientIDOf(req, subnet)
	now := srv.now()
	reqIP, _ := req.RequestedIP()

	res := srv.selectResource(ctx, &selectRequest{
		cid:            cid,
		requestedIP:    reqIP,
		requestedLease: requestedLease(req),
		now:            now,
	})
	if res.status != selectFound {
		srv.logger.WarnContext(ctx, "no address to offer", keyClientID, cid, "status", res.status)
		srv.metrics.IncDropped(ctx, DropReasonNoLease)

		return nil
	}

	b := srv.holdOffer(res.res, res.h, cid, req, now)
	srv.offers.add(ctx, cid.key(), res.res.ip, b.tempExpiry)

	srv.logger.DebugContext(ctx, "offering", keyClientID, cid, keyResource, res.res.name, "ip", res.res.ip)

	return srv.newLeaseReply(ctx, iface, req, layers.DHCPMsgTypeOffer, res.res, res.lease)
}

// dropBadRelay logs and counts the message relayed by an unknown agent.
func (srv *DHCPServer) dropBadRelay(ctx context.Context, req *dhcpmsg.Message) {
	srv.logger.DebugContext(ctx, "unknown relay agent", "giaddr", req.GIAddr)
	srv.metrics.IncDropped(ctx, DropReasonBadRelay)
}

// ownBinding returns b if it may be reused for the client instead of creating
// a new one.
func ownBinding(b *binding, k clientKey) (ok bool) {
	return b != nil && (b.isStatic() || b.cid.key() == k)
}

// holdOffer creates or updates the temporary binding of r for the client.
// srv.mu is expected to be locked.
func (srv *DHCPServer) holdOffer(
	r *Resource,
	h resourceHandle,
	cid ClientID,
	req *dhcpmsg.Message,
	now int64,
) (b *binding) {
	b = srv.store.get(r.binding)
	if !ownBinding(b, cid.key()) {
		srv.removeBinding(b)
		b = srv.bindResource(r, h, cid, req.HType, req.HWAddr())
	}

	b.setHWAddr(req.HType, req.HWAddr())
	b.tempExpiry = now + int64(srv.offerHold.Seconds())

	return b
}

// handleRequest handles messages of type DHCPREQUEST.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.2.
func (srv *DHCPServer) handleRequest(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	reqIP, hasReqIP := req.RequestedIP()

	switch {
	case isSet(req.CIAddr):
		// Server identifier MUST NOT be filled in, requested IP address option
		// MUST NOT be filled in, 'ciaddr' MUST be filled in with client's
		// notion of its previously assigned address.
		return srv.handleRenew(ctx, iface, req)
	case hasReqIP && isSet(reqIP):
		if isForeignServer(iface, req) {
			// The client has chosen another server.
			if subnet, ok := srv.clientSubnet(iface, req); ok {
				srv.withdrawOffer(ctx, clientIDOf(req, subnet))
			}

			return nil
		}

		return srv.handleSelecting(ctx, iface, req, reqIP)
	default:
		srv.logger.DebugContext(ctx, "skipping request without address")
		srv.metrics.IncDropped(ctx, DropReasonIgnored)

		return nil
	}
}

// handleRenew handles messages of type DHCPREQUEST in RENEWING or REBINDING
// state.
func (srv *DHCPServer) handleRenew(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	subnet, ok := srv.clientSubnet(iface, req)
	if !ok {
		srv.dropBadRelay(ctx, req)

		return nil
	}

	if isSet(req.GIAddr) {
		relaySubnet, _ := srv.idx.byRelay.find(req.GIAddr)
		if !relaySubnet.Contains(req.CIAddr) {
			srv.logger.DebugContext(ctx, "client on wrong network", "ciaddr", req.CIAddr)

			return srv.newNAK(ctx, iface, req)
		}
	}

	return srv.ackRequested(ctx, iface, req, clientIDOf(req, subnet), req.CIAddr)
}

// handleSelecting handles messages of type DHCPREQUEST in SELECTING and
// INIT-REBOOT states.
func (srv *DHCPServer) handleSelecting(
	ctx context.Context,
	iface *netInterface,
	req *dhcpmsg.Message,
	reqIP netip.Addr,
) (rep *reply) {
	subnet, ok := srv.clientSubnet(iface, req)
	if !ok {
		srv.dropBadRelay(ctx, req)

		return nil
	}

	if !subnet.Contains(reqIP) {
		// If the DHCP server detects that the client is on the wrong net then
		// the server SHOULD send a DHCPNAK message to the client.
		srv.logger.DebugContext(ctx, "requested ip on wrong network", "requested", reqIP)

		return srv.newNAK(ctx, iface, req)
	}

	return srv.ackRequested(ctx, iface, req, clientIDOf(req, subnet), reqIP)
}

// ackRequested commits the lease of ip for the client and returns the
// DHCPACK.  The DHCPNAK is returned if the client can't have ip.  Nothing is
// returned if the server has no record of ip.  srv.mu is expected to be locked.
func (srv *DHCPServer) ackRequested(
	ctx context.Context,
	iface *netInterface,
	req *dhcpmsg.Message,
	cid ClientID,
	ip netip.Addr,
) (rep *reply) {
	h, ok := srv.idx.byIP.find(ip)
	if !ok {
		// If the DHCP server has no record of this client, then it MUST remain
		// silent, and MAY output a warning to the network administrator.
		srv.logger.DebugContext(ctx, "no entry for requested ip", keyClientID, cid, "ip", ip)
		srv.metrics.IncDropped(ctx, DropReasonNoLease)

		return nil
	}

	now := srv.now()
	r := srv.pool.get(h)
	b := srv.store.get(r.binding)
	if !requestable(r, b, cid, now) {
		srv.logger.DebugContext(ctx, "requested ip unavailable", keyClientID, cid, keyResource, r.name)

		return srv.newNAK(ctx, iface, req)
	}

	lease := chooseLease(r, b, cid.key(), requestedLease(req))
	err := srv.commit(ctx, r, h, cid, req, lease, now, 0)
	if err != nil {
		srv.logger.ErrorContext(ctx, "committing lease", keyResource, r.name, slogutil.KeyError, err)
		if srv.offers.has(ctx, cid.key(), ip, now) {
			return srv.newNAK(ctx, iface, req)
		}

		return nil
	}

	return srv.newLeaseReply(ctx, iface, req, layers.DHCPMsgTypeAck, r, lease)
}

// commit binds r to the client completely and persists the bindings.  On
// failure the previous state of r is restored.  srv.mu is expected to be
// locked.
func (srv *DHCPServer) commit(
	ctx context.Context,
	r *Resource,
	h resourceHandle,
	cid ClientID,
	req *dhcpmsg.Message,
	lease uint32,
	now int64,
	flags bindingFlags,
) (err error) {
	k := cid.key()

	b := srv.store.get(r.binding)
	created := !ownBinding(b, k)
	if created {
		srv.removeBinding(b)
		b = srv.bindResource(r, h, cid, req.HType, req.HWAddr())
	}

	prev := *b

	b.setHWAddr(req.HType, req.HWAddr())
	b.flags = b.flags&^flagQuarantined | flagComplete | flags
	b.tempExpiry = epochUncommitted
	if !b.isStatic() {
		b.expiry = leaseExpiry(lease, now)
	}

	err = srv.persist(ctx)
	if err != nil {
		if created {
			srv.removeBinding(b)
		} else {
			*b = prev
		}

		return err
	}

	srv.offers.remove(k)

	srv.logger.InfoContext(ctx, "committed lease", keyClientID, cid, keyResource, r.name, "ip", r.ip)

	return nil
}

// leaseExpiry returns the expiration epoch of the lease starting at now.
func leaseExpiry(lease uint32, now int64) (epoch int64) {
	if lease == dhcpmsg.Infinity {
		return epochInfinity
	}

	return now + int64(lease)
}

// withdrawOffer releases the entry held for the client, which has chosen
// another server.  srv.mu is expected to be locked.
func (srv *DHCPServer) withdrawOffer(ctx context.Context, cid ClientID) {
	srv.offers.remove(cid.key())

	r, _, b, ok := srv.ownResource(cid)
	if !ok || b.isComplete() {
		return
	}

	srv.logger.DebugContext(ctx, "withdrawing offer", keyClientID, cid, keyResource, r.name)
	b.tempExpiry = epochUncommitted
}

// handleDecline handles messages of type DHCPDECLINE.  The declined address
// is quarantined.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.3.
func (srv *DHCPServer) handleDecline(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) {
	if !isOwnServer(iface, req) {
		srv.logger.DebugContext(ctx, "decline not for this server", "hwaddr", req.HWAddr())

		return
	}

	subnet, ok := srv.clientSubnet(iface, req)
	if !ok {
		srv.dropBadRelay(ctx, req)

		return
	}

	cid := clientIDOf(req, subnet)
	r, h, _, ok := srv.ownResource(cid)
	if !ok {
		srv.logger.InfoContext(ctx, "decline from unknown client", keyClientID, cid)

		return
	}

	if reqIP, has := req.RequestedIP(); has && reqIP != r.ip {
		srv.logger.InfoContext(ctx, "decline mismatch", keyClientID, cid, "ip", reqIP, "lease", r.ip)

		return
	}

	srv.offers.remove(cid.key())
	srv.markUnavailable(ctx, r, h, srv.now())
}

// handleRelease handles messages of type DHCPRELEASE.  The lease of the
// client expires immediately.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.3.4.
func (srv *DHCPServer) handleRelease(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) {
	if !isOwnServer(iface, req) {
		srv.logger.DebugContext(ctx, "release not for this server", "hwaddr", req.HWAddr())

		return
	}

	h, ok := srv.idx.byIP.find(req.CIAddr)
	if !ok {
		srv.logger.InfoContext(ctx, "release of unknown address", "ciaddr", req.CIAddr)

		return
	}

	r := srv.pool.get(h)
	b := srv.store.get(r.binding)
	switch {
	case b == nil:
		srv.logger.InfoContext(ctx, "release of unbound address", keyResource, r.name)
	case b.isStatic():
		srv.logger.InfoContext(ctx, "release of manual address", keyResource, r.name)
	case !bytes.Equal(b.hwAddr, req.HWAddr()):
		srv.logger.WarnContext(
			ctx,
			"release mismatch",
			keyResource, r.name,
			"hwaddr", req.HWAddr(),
			"lease_hwaddr", b.hwAddr,
		)
	default:
		b.expiry = epochUncommitted
		b.tempExpiry = epochUncommitted
		srv.logger.InfoContext(ctx, "released lease", keyResource, r.name, "ip", r.ip)
	}
}

// handleInform handles messages of type DHCPINFORM.  The reply carries only
// the configuration parameters of the client's address entry, or the defaults.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-3.4.
func (srv *DHCPServer) handleInform(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	r := srv.informResource(req.CIAddr)

	resp := dhcpmsg.NewReply(req)
	resp.CIAddr = req.CIAddr
	setBootFields(resp, r)

	b := srv.newReplyBuilder(req, r)
	srv.insertOption(ctx, b, layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeAck)})
	srv.insertOption(ctx, b, layers.DHCPOptServerID, iface.prefix.Addr().AsSlice())
	srv.insertParams(ctx, b, req, r, false)

	return &reply{
		msg: resp,
		b:   b,
		typ: layers.DHCPMsgTypeAck,
	}
}

// informResource returns the entry to take the parameters for the client with
// the address from.
func (srv *DHCPServer) informResource(ciaddr netip.Addr) (r *Resource) {
	if h, ok := srv.idx.byIP.find(ciaddr); ok {
		return srv.pool.get(h)
	}

	if h, ok := srv.idx.byName.find(srv.pool.defaultsName); ok {
		return srv.pool.get(h)
	}

	return srv.pool.builtin
}

// handleBOOTP handles the BOOTREQUEST of a BOOTP client.  The client gets an
// infinite lease.
//
// See https://datatracker.ietf.org/doc/html/rfc1534.
func (srv *DHCPServer) handleBOOTP(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	subnet, ok := srv.clientSubnet(iface, req)
	if !ok {
		srv.dropBadRelay(ctx, req)

		return nil
	}

	cid := clientIDOf(req, subnet)
	now := srv.now()

	r, h, ok := srv.selectBOOTP(ctx, cid, req.CIAddr, now)
	if !ok {
		srv.logger.WarnContext(ctx, "no address for bootp client", keyClientID, cid)
		srv.metrics.IncDropped(ctx, DropReasonNoLease)

		return nil
	}

	err := srv.commit(ctx, r, h, cid, req, dhcpmsg.Infinity, now, flagBOOTP)
	if err != nil {
		srv.logger.ErrorContext(ctx, "committing bootp lease", keyResource, r.name, slogutil.KeyError, err)

		return nil
	}

	resp := dhcpmsg.NewReply(req)
	resp.YIAddr = r.ip
	setBootFields(resp, r)

	b := dhcpmsg.NewBOOTPBuilder()
	srv.insertParams(ctx, b, req, r, true)

	return &reply{
		msg: resp,
		b:   b,
	}
}

// newLeaseReply returns the DHCPOFFER or DHCPACK leasing r.
func (srv *DHCPServer) newLeaseReply(
	ctx context.Context,
	iface *netInterface,
	req *dhcpmsg.Message,
	typ layers.DHCPMsgType,
	r *Resource,
	lease uint32,
) (rep *reply) {
	resp := dhcpmsg.NewReply(req)
	resp.YIAddr = r.ip
	setBootFields(resp, r)

	b := srv.newReplyBuilder(req, r)
	srv.insertOption(ctx, b, layers.DHCPOptMessageType, []byte{byte(typ)})
	srv.insertOption(ctx, b, layers.DHCPOptServerID, iface.prefix.Addr().AsSlice())
	srv.insertLeaseTimes(ctx, b, lease)
	srv.insertParams(ctx, b, req, r, false)

	return &reply{
		msg: resp,
		b:   b,
		typ: typ,
	}
}

// newNAK returns the DHCPNAK for req.  The broadcast bit is always set, since
// the client may have no correct address.
func (srv *DHCPServer) newNAK(ctx context.Context, iface *netInterface, req *dhcpmsg.Message) (rep *reply) {
	resp := dhcpmsg.NewReply(req)
	resp.Flags |= dhcpmsg.FlagBroadcast

	b := srv.newReplyBuilder(req, nil)
	srv.insertOption(ctx, b, layers.DHCPOptMessageType, []byte{byte(layers.DHCPMsgTypeNak)})
	srv.insertOption(ctx, b, layers.DHCPOptServerID, iface.prefix.Addr().AsSlice())

	return &reply{
		msg: resp,
		b:   b,
		typ: layers.DHCPMsgTypeNak,
	}
}

// setBootFields fills the boot server, server name, and boot file fields of
// resp from r.
func setBootFields(resp *dhcpmsg.Message, r *Resource) {
	if r.bootServer.IsValid() {
		resp.SIAddr = r.bootServer
	}

	copy(resp.SName[:dhcpmsg.SNameLen-1], r.serverName)
	copy(resp.File[:dhcpmsg.FileLen-1], r.bootFile)
}

// destination returns the destination of resp replying to req.  hw is only set
// for link-layer unicast.
//
// See https://datatracker.ietf.org/doc/html/rfc2131#section-4.1.
func destination(req, resp *dhcpmsg.Message, nak bool) (dst netip.AddrPort, hw net.HardwareAddr) {
	bcast := netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), dhcpv4.ClientPort)

	switch {
	case isSet(req.GIAddr):
		// Send any return messages to the server port on the BOOTP relay agent
		// whose address appears in giaddr.
		return netip.AddrPortFrom(req.GIAddr, dhcpv4.ServerPort), nil
	case nak:
		// Broadcast any DHCPNAK messages to 0xffffffff.
		return bcast, nil
	case isSet(req.CIAddr):
		// Unicast DHCPOFFER and DHCPACK messages to the address in ciaddr.
		return netip.AddrPortFrom(req.CIAddr, dhcpv4.ClientPort), nil
	case req.Broadcast(), !isSet(resp.YIAddr), len(req.HWAddr()) == 0:
		return bcast, nil
	default:
		// Unicast DHCPOFFER and DHCPACK messages to the client's hardware
		// address and yiaddr.
		return netip.AddrPortFrom(resp.YIAddr, dhcpv4.ClientPort), req.HWAddr()
	}
}
