package dhcpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// state is a state of the client.
type state uint8

// Client states.
const (
	stateError state = iota
	stateInit
	stateWaitOffer
	stateSelecting
	stateRequesting
	stateInforming
	stateBound
)

// String implements the [fmt.Stringer] interface for state.
func (s state) String() (str string) {
	switch s {
	case stateError:
		return "error"
	case stateInit:
		return "init"
	case stateWaitOffer:
		return "wait_offer"
	case stateSelecting:
		return "selecting"
	case stateRequesting:
		return "requesting"
	case stateInforming:
		return "informing"
	case stateBound:
		return "bound"
	default:
		return fmt.Sprintf("!bad_state_%d", s)
	}
}

// inbound is a result of receiving from the transport.
type inbound struct {
	err  error
	data []byte
}

// offer is an accepted offer.
type offer struct {
	msg      *dhcpmsg.Message
	serverID netip.Addr
	lease    uint32
	isBOOTP  bool
}

// betterThan returns true if o should be preferred to other.  A DHCP offer is
// preferred to a BOOTP one, and a longer lease to a shorter one.
func (o *offer) betterThan(other *offer) (ok bool) {
	if o.isBOOTP != other.isBOOTP {
		return !o.isBOOTP
	}

	return !o.isBOOTP && o.lease > other.lease
}

// toLease converts o into the lease.
func (o *offer) toLease() (l *Lease) {
	return newLease(o.msg, o.msg.YIAddr, o.lease)
}

// newLease returns the lease for ip described by m.
func newLease(m *dhcpmsg.Message, ip netip.Addr, secs uint32) (l *Lease) {
	l = &Lease{
		Options:  m.Options,
		IP:       ip,
		Duration: secs,
		IsBOOTP:  m.IsBOOTP(),
	}

	l.ServerID, _ = m.ServerID()
	l.SubnetMask, _ = m.SubnetMask()

	return l
}

// Client is the boot-time DHCP client.  A Client performs a single run and
// must not be reused.
type Client struct {
	logger    *slog.Logger
	transport Transport
	prober    AddressProber

	// timer is the single pending timer of the client.  It's nil when no
	// timer is armed.
	timer *time.Timer

	// packets receives the data read from the transport.
	packets chan inbound

	// offer is the best offer received so far.
	offer *offer

	// lease is the result of the run.
	lease *Lease

	// started is the beginning of the current exchange.
	started time.Time

	hwAddr     net.HardwareAddr
	clientID   []byte
	hostname   string
	params     []layers.DHCPOpt
	informAddr netip.Addr

	startDelayMin  time.Duration
	startDelayMax  time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration
	backoff        time.Duration
	minLease       time.Duration
	collectTimeout time.Duration

	retries    int
	maxRetries int
	maxMsgSize int

	xid    uint32
	hwType uint8

	// legacy is true once the client has fallen back to the padded message
	// format.
	legacy bool

	// informing is true if the client only requests the parameters.
	informing bool
}

// New returns a new client.  conf must be valid.
func New(conf *Config) (c *Client) {
	params := conf.Params
	if params == nil {
		params = DefaultParams
	}

	prober := conf.Prober
	if prober == nil {
		prober = EmptyAddressProber{}
	}

	return &Client{
		logger:         conf.Logger,
		transport:      conf.Transport,
		prober:         prober,
		hwAddr:         conf.HWAddr,
		clientID:       conf.ClientID,
		hostname:       conf.Hostname,
		params:         params,
		informAddr:     conf.InformAddr,
		startDelayMin:  conf.StartDelayMin,
		startDelayMax:  conf.StartDelayMax,
		backoffMin:     conf.BackoffMin,
		backoffMax:     conf.BackoffMax,
		minLease:       conf.MinLease,
		collectTimeout: conf.CollectTimeout,
		maxRetries:     conf.Retries,
		maxMsgSize:     max(conf.MaxMessageSize, dhcpmsg.MinMessageLen),
		hwType:         conf.HWType,
	}
}

// Run runs the client until it's bound or fails.  If the context is canceled,
// it returns an error wrapping ctx.Err().
func (c *Client) Run(ctx context.Context) (l *Lease, err error) {
	defer func() { err = errors.Annotate(err, "dhcp client: %w") }()
	defer c.stopTimer()

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.packets = make(chan inbound)
	go c.receive(recvCtx)

	st := stateInit
	if c.informAddr.IsValid() {
		st = stateInforming
	}

	for st != stateBound {
		c.logger.DebugContext(ctx, "handling state", "state", st)

		prev := st
		st, err = c.handle(ctx, prev)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", prev, err)
		}
	}

	c.logger.InfoContext(
		ctx,
		"bound",
		"ip", c.lease.IP,
		"server", c.lease.ServerID,
		"lease", c.lease.Duration,
		"bootp", c.lease.IsBOOTP,
	)

	return c.lease, nil
}

// handle runs the handler of st and returns the next state.  next is
// [stateError] if err is not nil.
func (c *Client) handle(ctx context.Context, st state) (next state, err error) {
	switch st {
	case stateInit:
		return c.init(ctx)
	case stateWaitOffer:
		return c.waitOffer(ctx)
	case stateSelecting:
		return c.selecting(ctx)
	case stateRequesting:
		return c.requesting(ctx)
	case stateInforming:
		return c.inform(ctx)
	default:
		panic(fmt.Errorf("handling state: %w: %s", errors.ErrBadEnumValue, st))
	}
}

// receive sends the data read from the transport to c.packets until ctx is
// canceled.  It's used to run in a separate goroutine.
func (c *Client) receive(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, c.logger)

	for {
		data, err := c.transport.Receive(ctx)
		if ctx.Err() != nil {
			return
		}

		select {
		case c.packets <- inbound{data: data, err: err}:
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// arm stops the pending timer, if any, and arms a new one.
func (c *Client) arm(d time.Duration) {
	c.stopTimer()
	c.timer = time.NewTimer(d)
}

// stopTimer stops the pending timer, if any.
func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// timerC returns the channel of the pending timer or nil.
func (c *Client) timerC() (ch <-chan time.Time) {
	if c.timer == nil {
		return nil
	}

	return c.timer.C
}

// sleep waits for d or until ctx is canceled.
func (c *Client) sleep(ctx context.Context, d time.Duration) (err error) {
	if d <= 0 {
		return nil
	}

	c.arm(d)
	defer c.stopTimer()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.timerC():
		return nil
	}
}

// next waits for a reply to the current transaction or for the pending timer.
// m is nil on timeout.
func (c *Client) next(ctx context.Context) (m *dhcpmsg.Message, err error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.timerC():
			c.timer = nil

			return nil, nil
		case in := <-c.packets:
			if in.err != nil {
				return nil, fmt.Errorf("receiving: %w", in.err)
			}

			m = c.parseReply(ctx, in.data)
			if m != nil {
				return m, nil
			}
		}
	}
}

// parseReply parses data and returns nil if it's not a reply to the current
// transaction.
func (c *Client) parseReply(ctx context.Context, data []byte) (m *dhcpmsg.Message) {
	m, err := dhcpmsg.Parse(data)
	if err != nil {
		c.logger.DebugContext(ctx, "parsing reply", slogutil.KeyError, err)

		return nil
	}

	if m.Op != layers.DHCPOpReply || m.XID != c.xid || !equalHW(m.HWAddr(), c.hwAddr) {
		c.logger.DebugContext(ctx, "ignoring foreign message", "xid", m.XID)

		return nil
	}

	return m
}

// equalHW returns true if a and b are the same hardware address.
func equalHW(a, b net.HardwareAddr) (ok bool) {
	return string(a) == string(b)
}

// startDelay returns a random delay before the first DISCOVER.
func (c *Client) startDelay() (d time.Duration) {
	d = c.startDelayMin
	if spread := c.startDelayMax - c.startDelayMin; spread > 0 {
		d += rand.N(spread)
	}

	return d
}

// resetExchange starts a new transaction.
func (c *Client) resetExchange() {
	c.xid = rand.Uint32()
	c.started = time.Now()
	c.resetRetries()
}

// resetRetries resets the retransmission state.
func (c *Client) resetRetries() {
	c.retries = 0
	c.backoff = c.backoffMin
}

// nextBackoff doubles the retransmission timeout up to the maximum.
func (c *Client) nextBackoff() (d time.Duration) {
	c.backoff = min(c.backoff*2, c.backoffMax)

	return c.backoff
}

// isInUse probes ip.  Probe errors are logged and the address is considered
// free.
func (c *Client) isInUse(ctx context.Context, ip netip.Addr) (ok bool) {
	inUse, err := c.prober.Probe(ctx, ip)
	if err != nil {
		c.logger.WarnContext(ctx, "probing address", "ip", ip, slogutil.KeyError, err)

		return false
	}

	return inUse
}
