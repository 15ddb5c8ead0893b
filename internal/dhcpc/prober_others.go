//go:build !linux

package dhcpc

import (
	"context"
	"net/netip"
)

// ARPProber is an [AddressProber] sending ARP probes.  It's only supported on
// Linux.
type ARPProber struct{}

// type check
var _ AddressProber = (*ARPProber)(nil)

// NewARPProber returns an error, since ARP probes are only supported on Linux.
func NewARPProber(_ *ARPProberConfig) (p *ARPProber, err error) {
	return nil, errNotSupported
}

// Probe implements the [AddressProber] interface for *ARPProber.
func (p *ARPProber) Probe(_ context.Context, _ netip.Addr) (inUse bool, err error) {
	return false, errNotSupported
}
