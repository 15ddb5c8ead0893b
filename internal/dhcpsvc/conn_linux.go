//go:build linux

package dhcpsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
)

// netDeviceManager is the Linux implementation of [NetworkDeviceManager].  It
// opens an interface-bound UDP socket along with a raw link-layer socket for
// each device.
type netDeviceManager struct {
	logger *slog.Logger
}

// NewNetworkDeviceManager returns the [NetworkDeviceManager] for the current
// platform.
func NewNetworkDeviceManager(logger *slog.Logger) (m NetworkDeviceManager) {
	return &netDeviceManager{
		logger: logger,
	}
}

// type check
var _ NetworkDeviceManager = (*netDeviceManager)(nil)

// Open implements the [NetworkDeviceManager] interface for *netDeviceManager.
func (m *netDeviceManager) Open(
	ctx context.Context,
	conf *NetworkDeviceConfig,
) (nd NetworkDevice, err error) {
	iface, err := net.InterfaceByName(conf.Name)
	if err != nil {
		return nil, fmt.Errorf("getting interface: %w", err)
	}

	rawConn, err := packet.Listen(iface, packet.Raw, int(ethernet.EtherTypeIPv4), nil)
	if err != nil {
		return nil, fmt.Errorf("creating raw connection: %w", err)
	}

	udpConn, err := server4.NewIPv4UDPConn(iface.Name, &net.UDPAddr{
		IP:   net.IPv4zero,
		Port: dhcpv4.ServerPort,
	})
	if err != nil {
		return nil, errors.WithDeferred(
			fmt.Errorf("creating ipv4 udp connection: %w", err),
			rawConn.Close(),
		)
	}

	m.logger.DebugContext(ctx, "opened device", keyInterface, iface.Name, "hwaddr", iface.HardwareAddr)

	return &netDevice{
		udpConn: udpConn,
		rawConn: rawConn,
		srcMAC:  iface.HardwareAddr,
		srcIP:   conf.Address,
	}, nil
}

// netDevice is the [NetworkDevice] capable of sending both to IP and to
// hardware addresses.
type netDevice struct {
	// udpConn is the connection for UDP addresses.
	udpConn *net.UDPConn

	// rawConn is the connection for hardware addresses.
	rawConn *packet.Conn

	// srcMAC is the hardware address of the network interface.
	srcMAC net.HardwareAddr

	// srcIP is the IP address of the network interface.
	srcIP netip.Addr
}

// type check
var _ NetworkDevice = (*netDevice)(nil)

// Close implements the [NetworkDevice] interface for *netDevice.
func (d *netDevice) Close() (err error) {
	rerr := d.rawConn.Close()
	if errors.Is(rerr, os.ErrClosed) {
		// Ignore the error since the actual file is closed already.
		rerr = nil
	}

	return errors.Join(d.udpConn.Close(), rerr)
}

// ReadFrom implements the [NetworkDevice] interface for *netDevice.
func (d *netDevice) ReadFrom(b []byte) (n int, src netip.AddrPort, err error) {
	n, src, err = d.udpConn.ReadFromUDPAddrPort(b)

	return n, netip.AddrPortFrom(src.Addr().Unmap(), src.Port()), err
}

// WriteTo implements the [NetworkDevice] interface for *netDevice.
func (d *netDevice) WriteTo(b []byte, dst netip.AddrPort, hw net.HardwareAddr) (err error) {
	if hw == nil {
		_, err = d.udpConn.WriteToUDPAddrPort(b, dst)

		return err
	}

	frame, err := d.buildEtherPkt(b, dst.Addr(), hw)
	if err != nil {
		return fmt.Errorf("framing: %w", err)
	}

	_, err = d.rawConn.WriteTo(frame, &packet.Addr{HardwareAddr: hw})

	return err
}

// ipv4DefaultTTL is the default Time to Live value in seconds as recommended by
// RFC 1700.
//
// See https://datatracker.ietf.org/doc/html/rfc1700.
const ipv4DefaultTTL = 64

// buildEtherPkt wraps the payload with IPv4, UDP and Ethernet frames.
// Validation of the payload is a caller's responsibility.
func (d *netDevice) buildEtherPkt(payload []byte, dstIP netip.Addr, dstMAC net.HardwareAddr) (pkt []byte, err error) {
	udpLayer := &layers.UDP{
		SrcPort: dhcpv4.ServerPort,
		DstPort: dhcpv4.ClientPort,
	}

	ipv4Layer := &layers.IPv4{
		Version:  4,
		Flags:    layers.IPv4DontFragment,
		TTL:      ipv4DefaultTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    d.srcIP.AsSlice(),
		DstIP:    dstIP.AsSlice(),
	}

	// Ignore the error since it's only returned for invalid network layer's
	// type.
	_ = udpLayer.SetNetworkLayerForChecksum(ipv4Layer)

	ethLayer := &layers.Ethernet{
		SrcMAC:       d.srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	buf := gopacket.NewSerializeBuffer()
	setts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	err = gopacket.SerializeLayers(
		buf,
		setts,
		ethLayer,
		ipv4Layer,
		udpLayer,
		gopacket.Payload(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("serializing layers: %w", err)
	}

	return buf.Bytes(), nil
}
