package dhcpsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/go-ping/ping"
)

// addressChecker checks addresses for availability.
type addressChecker interface {
	// IsAvailable returns true if the address is available in the current
	// subnet.  Any error is a network error.  The call must not block for
	// longer than the checker's timeout.
	IsAvailable(ctx context.Context, ip netip.Addr) (ok bool, err error)
}

// noopAddressChecker is an implementation of [addressChecker] that doesn't
// perform any checks.
type noopAddressChecker struct{}

// type check
var _ addressChecker = noopAddressChecker{}

// IsAvailable implements the [addressChecker] interface for noopAddressChecker.
func (noopAddressChecker) IsAvailable(_ context.Context, _ netip.Addr) (ok bool, err error) {
	return true, nil
}

// icmpAddressChecker is an implementation of [addressChecker] that sends a
// single ICMP echo request, as recommended by RFC 2131, Section 2.2.
type icmpAddressChecker struct {
	logger *slog.Logger

	// timeout is the time to wait for the echo reply.
	timeout time.Duration

	// privileged is true if raw sockets can be used.
	privileged bool
}

// newICMPAddressChecker returns a new *icmpAddressChecker.  Raw sockets are
// used when the process runs as root, datagram ICMP sockets otherwise.
func newICMPAddressChecker(logger *slog.Logger, timeout time.Duration) (c *icmpAddressChecker) {
	return &icmpAddressChecker{
		logger:     logger,
		timeout:    timeout,
		privileged: isPrivileged(),
	}
}

// type check
var _ addressChecker = (*icmpAddressChecker)(nil)

// IsAvailable implements the [addressChecker] interface for
// *icmpAddressChecker.
func (c *icmpAddressChecker) IsAvailable(ctx context.Context, ip netip.Addr) (ok bool, err error) {
	pinger, err := ping.NewPinger(ip.String())
	if err != nil {
		return true, fmt.Errorf("creating pinger: %w", err)
	}

	pinger.SetPrivileged(c.privileged)
	pinger.Timeout = c.timeout
	pinger.Count = 1

	reply := false
	pinger.OnRecv = func(_ *ping.Packet) {
		reply = true
	}

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()

	c.logger.DebugContext(ctx, "sending icmp echo", "ip", ip)

	err = pinger.Run()
	if err != nil {
		return true, fmt.Errorf("running pinger: %w", err)
	}

	if reply {
		c.logger.InfoContext(ctx, "ip conflict: address is used by another device", "ip", ip)

		return false, nil
	}

	return true, nil
}
