//go:build linux

package dhcpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
)

// ARPProber is an [AddressProber] sending ARP probes, see RFC 5227.
type ARPProber struct {
	logger  *slog.Logger
	iface   *net.Interface
	timeout time.Duration
}

// type check
var _ AddressProber = (*ARPProber)(nil)

// NewARPProber returns a new prober for the interface.  conf must not be nil.
func NewARPProber(conf *ARPProberConfig) (p *ARPProber, err error) {
	iface, err := net.InterfaceByName(conf.Interface)
	if err != nil {
		return nil, fmt.Errorf("getting interface: %w", err)
	}

	return &ARPProber{
		logger:  conf.Logger,
		iface:   iface,
		timeout: conf.Timeout,
	}, nil
}

// Probe implements the [AddressProber] interface for *ARPProber.
func (p *ARPProber) Probe(ctx context.Context, ip netip.Addr) (inUse bool, err error) {
	defer func() { err = errors.Annotate(err, "probing %s: %w", ip) }()

	conn, err := packet.Listen(p.iface, packet.Raw, int(ethernet.EtherTypeARP), nil)
	if err != nil {
		return false, fmt.Errorf("listening: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	frame, err := newProbeFrame(p.iface.HardwareAddr, ip)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err = conn.SetReadDeadline(deadline)
	if err != nil {
		return false, fmt.Errorf("setting deadline: %w", err)
	}

	_, err = conn.WriteTo(frame, &packet.Addr{HardwareAddr: layers.EthernetBroadcast})
	if err != nil {
		return false, fmt.Errorf("sending probe: %w", err)
	}

	buf := make([]byte, maxPacketSize)
	for {
		var n int
		n, _, err = conn.ReadFrom(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return false, nil
		} else if err != nil {
			return false, fmt.Errorf("reading: %w", err)
		}

		if isConflict(buf[:n], p.iface.HardwareAddr, ip) {
			p.logger.DebugContext(ctx, "address conflict", "ip", ip)

			return true, nil
		}
	}
}
