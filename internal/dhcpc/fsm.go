package dhcpc

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// init starts a new exchange by broadcasting DISCOVER after a random delay.
func (c *Client) init(ctx context.Context) (next state, err error) {
	c.stopTimer()
	c.offer = nil

	err = c.sleep(ctx, c.startDelay())
	if err != nil {
		return stateError, err
	}

	c.resetExchange()

	err = c.send(ctx, layers.DHCPMsgTypeDiscover)
	if err != nil {
		return stateError, err
	}

	c.arm(c.backoff)

	return stateWaitOffer, nil
}

// waitOffer waits for the first acceptable offer and retransmits DISCOVER on
// timeouts.
func (c *Client) waitOffer(ctx context.Context) (next state, err error) {
	m, err := c.next(ctx)
	if err != nil {
		return stateError, err
	} else if m == nil {
		return c.retransmitDiscover(ctx)
	}

	o := c.acceptOffer(ctx, m)
	if o == nil {
		return stateWaitOffer, nil
	}

	c.offer = o
	c.arm(c.collectTimeout)

	return stateSelecting, nil
}

// retransmitDiscover retransmits DISCOVER.  After the retries are exhausted,
// it falls back to the legacy format once.
func (c *Client) retransmitDiscover(ctx context.Context) (next state, err error) {
	c.retries++
	if c.retries <= c.maxRetries {
		c.nextBackoff()
	} else if c.legacy {
		return stateError, ErrNoOffer
	} else {
		c.logger.WarnContext(ctx, "no offers, falling back to legacy format")

		c.legacy = true
		c.resetRetries()
	}

	err = c.send(ctx, layers.DHCPMsgTypeDiscover)
	if err != nil {
		return stateError, err
	}

	c.arm(c.backoff)

	return stateWaitOffer, nil
}

// selecting collects the offers until the collection timer fires and then
// requests the best one.
func (c *Client) selecting(ctx context.Context) (next state, err error) {
	m, err := c.next(ctx)
	if err != nil {
		return stateError, err
	} else if m != nil {
		if o := c.acceptOffer(ctx, m); o != nil && o.betterThan(c.offer) {
			c.offer = o
		}

		return stateSelecting, nil
	}

	if c.offer.isBOOTP {
		c.lease = c.offer.toLease()

		return stateBound, nil
	}

	c.resetRetries()

	err = c.send(ctx, layers.DHCPMsgTypeRequest)
	if err != nil {
		return stateError, err
	}

	c.arm(c.backoff)

	return stateRequesting, nil
}

// requesting waits for the reply to REQUEST or INFORM and retransmits it on
// timeouts.
func (c *Client) requesting(ctx context.Context) (next state, err error) {
	m, err := c.next(ctx)
	if err != nil {
		return stateError, err
	} else if m == nil {
		return c.retransmitRequest(ctx)
	}

	typ, ok := m.Type()
	if !ok {
		return stateRequesting, nil
	}

	switch typ {
	case layers.DHCPMsgTypeAck:
		return c.handleAck(ctx, m)
	case layers.DHCPMsgTypeNak:
		text, _ := m.Options.Get(layers.DHCPOptMessage)
		c.logger.InfoContext(ctx, "got nak", "message", string(text))

		c.offer = nil
		if c.informing {
			c.lease = &Lease{IP: c.informAddr}

			return stateBound, nil
		}

		return stateInit, nil
	default:
		return stateRequesting, nil
	}
}

// retransmitRequest retransmits REQUEST or INFORM.  After the retries are
// exhausted, it restarts the exchange, or finishes it when informing.
func (c *Client) retransmitRequest(ctx context.Context) (next state, err error) {
	c.retries++
	if c.retries > c.maxRetries+1 {
		if c.informing {
			c.logger.WarnContext(ctx, "no reply to inform")
			c.lease = &Lease{IP: c.informAddr}

			return stateBound, nil
		}

		c.logger.WarnContext(ctx, "no reply to request, restarting")

		return stateInit, nil
	}

	typ := layers.DHCPMsgTypeRequest
	if c.informing {
		typ = layers.DHCPMsgTypeInform
	}

	err = c.send(ctx, typ)
	if err != nil {
		return stateError, err
	}

	c.arm(c.nextBackoff())

	return stateRequesting, nil
}

// handleAck finishes the exchange if the acknowledged lease is acceptable and
// declines it otherwise.
func (c *Client) handleAck(ctx context.Context, m *dhcpmsg.Message) (next state, err error) {
	if c.informing {
		c.lease = newLease(m, c.informAddr, 0)

		return stateBound, nil
	}

	if id, ok := m.ServerID(); ok && id != c.offer.serverID {
		c.logger.DebugContext(ctx, "ignoring ack from other server", "server", id)

		return stateRequesting, nil
	}

	secs, reason := c.checkAck(ctx, m)
	if reason == "" {
		c.lease = newLease(m, m.YIAddr, secs)

		return stateBound, nil
	}

	c.logger.WarnContext(ctx, "declining", "ip", m.YIAddr, "reason", reason)

	err = c.send(ctx, layers.DHCPMsgTypeDecline)
	if err != nil {
		return stateError, err
	}

	c.offer = nil

	return stateInit, nil
}

// checkAck returns the lease length of the acknowledged lease and an empty
// reason if it's acceptable.
func (c *Client) checkAck(ctx context.Context, m *dhcpmsg.Message) (secs uint32, reason string) {
	secs, ok := m.LeaseTime()
	switch {
	case !ok:
		return 0, "no lease time"
	case !c.leaseLongEnough(secs):
		return 0, "lease is too short"
	case m.YIAddr != c.offer.msg.YIAddr:
		return 0, "address differs from the offered one"
	case c.isInUse(ctx, m.YIAddr):
		return 0, "address is in use"
	default:
		return secs, ""
	}
}

// inform starts the informing exchange.
func (c *Client) inform(ctx context.Context) (next state, err error) {
	c.stopTimer()
	c.informing = true
	c.resetExchange()

	err = c.send(ctx, layers.DHCPMsgTypeInform)
	if err != nil {
		return stateError, err
	}

	c.arm(c.backoff)

	return stateRequesting, nil
}

// acceptOffer returns the offer made by m or nil if it's not acceptable.
func (c *Client) acceptOffer(ctx context.Context, m *dhcpmsg.Message) (o *offer) {
	o = &offer{
		msg:     m,
		lease:   dhcpmsg.Infinity,
		isBOOTP: m.IsBOOTP(),
	}

	if !o.isBOOTP {
		typ, _ := m.Type()
		if typ != layers.DHCPMsgTypeOffer {
			return nil
		}

		var ok bool
		o.serverID, ok = m.ServerID()
		if !ok {
			c.logger.DebugContext(ctx, "offer without server id")

			return nil
		}

		o.lease, ok = m.LeaseTime()
		if !ok || !c.leaseLongEnough(o.lease) {
			c.logger.DebugContext(ctx, "offered lease is too short", "lease", o.lease)

			return nil
		}
	}

	if !m.YIAddr.Is4() || m.YIAddr.IsUnspecified() {
		return nil
	}

	if c.isInUse(ctx, m.YIAddr) {
		c.logger.InfoContext(ctx, "offered address is in use", "ip", m.YIAddr)

		return nil
	}

	c.logger.DebugContext(ctx, "accepted offer", "ip", m.YIAddr, "lease", o.lease, "bootp", o.isBOOTP)

	return o
}

// leaseLongEnough returns true if secs isn't shorter than the minimum lease.
func (c *Client) leaseLongEnough(secs uint32) (ok bool) {
	return secs == dhcpmsg.Infinity || uint64(secs) >= uint64(c.minLease.Seconds())
}

// send builds the message of the type and broadcasts it.
func (c *Client) send(ctx context.Context, typ layers.DHCPMsgType) (err error) {
	data := c.build(ctx, typ)

	err = c.transport.Send(ctx, data)
	if err != nil {
		return fmt.Errorf("sending %s: %w", typ, err)
	}

	c.logger.DebugContext(ctx, "sent", "type", typ, "xid", c.xid, "legacy", c.legacy)

	return nil
}

// build returns the wire form of the client's message of the type.
func (c *Client) build(ctx context.Context, typ layers.DHCPMsgType) (data []byte) {
	m := &dhcpmsg.Message{
		Op:        layers.DHCPOpRequest,
		XID:       c.xid,
		Secs:      c.elapsed(),
		Flags:     dhcpmsg.FlagBroadcast,
		HasCookie: true,
	}
	m.SetHWAddr(c.hwType, c.hwAddr)

	if typ == layers.DHCPMsgTypeInform {
		m.CIAddr = c.informAddr
	}

	b := dhcpmsg.NewBuilder(&dhcpmsg.BuilderConfig{
		MaxMessageSize: c.maxMsgSize,
		PadOptions:     c.legacy,
	})

	for _, opt := range c.options(typ) {
		err := b.Insert(opt.Code, opt.Data)
		if err != nil {
			c.logger.WarnContext(ctx, "inserting option", "code", opt.Code, slogutil.KeyError, err)
		}
	}

	return b.Bytes(m)
}

// options returns the options of the client's message of the type in the
// order of insertion.
func (c *Client) options(typ layers.DHCPMsgType) (opts dhcpmsg.Options) {
	opts.Set(layers.DHCPOptMessageType, []byte{byte(typ)})

	if len(c.clientID) > 0 {
		opts.Set(layers.DHCPOptClientID, c.clientID)
	}

	switch typ {
	case layers.DHCPMsgTypeRequest, layers.DHCPMsgTypeDecline:
		opts.Set(layers.DHCPOptRequestIP, dhcpmsg.IPs(c.offer.msg.YIAddr))
		opts.Set(layers.DHCPOptServerID, dhcpmsg.IPs(c.offer.serverID))
	}

	if typ == layers.DHCPMsgTypeDecline {
		return opts
	}

	opts.Set(layers.DHCPOptMaxMessageSize, dhcpmsg.Uint16(uint16(min(c.maxMsgSize, 0xFFFF))))

	if c.hostname != "" && typ != layers.DHCPMsgTypeInform {
		opts.Set(layers.DHCPOptHostname, []byte(c.hostname))
	}

	prl := make([]byte, 0, len(c.params))
	for _, p := range c.params {
		prl = append(prl, byte(p))
	}

	opts.Set(layers.DHCPOptParamsRequest, prl)

	return opts
}

// elapsed returns the number of seconds since the exchange has started.
func (c *Client) elapsed() (secs uint16) {
	if c.started.IsZero() {
		return 0
	}

	return uint16(min(time.Since(c.started).Seconds(), 0xFFFF))
}
