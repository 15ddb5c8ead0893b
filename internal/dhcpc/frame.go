package dhcpc

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"slices"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// maxPacketSize is the size of the buffer for the received packets.
const maxPacketSize = 1500

// serializeOpts are the options for serializing the frames.
var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// encodeUDP returns the IPv4 packet with a UDP datagram carrying data from the
// client port of an unconfigured host to the server port of all the hosts.
func encodeUDP(data []byte) (pkt []byte, err error) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4zero.To4(),
		DstIP:    net.IPv4bcast.To4(),
	}

	udp := &layers.UDP{
		SrcPort: dhcpv4.ClientPort,
		DstPort: dhcpv4.ServerPort,
	}

	err = udp.SetNetworkLayerForChecksum(ip)
	if err != nil {
		return nil, fmt.Errorf("setting network layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, serializeOpts, ip, udp, gopacket.Payload(data))
	if err != nil {
		return nil, fmt.Errorf("serializing udp packet: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeUDP returns the payload of the IPv4 packet if it's a UDP datagram sent
// to the client port.
func decodeUDP(pkt []byte) (data []byte, ok bool) {
	p := gopacket.NewPacket(pkt, layers.LayerTypeIPv4, gopacket.NoCopy)

	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udp.DstPort != dhcpv4.ClientPort {
		return nil, false
	}

	return slices.Clone(udp.Payload), true
}

// newProbeFrame returns the Ethernet frame with the ARP probe for ip sent from
// hw, see RFC 5227, section 2.1.1.
func newProbeFrame(hw net.HardwareAddr, ip netip.Addr) (frame []byte, err error) {
	eth := &layers.Ethernet{
		SrcMAC:       hw,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}

	target := ip.As4()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   hw,
		SourceProtAddress: make([]byte, 4),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target[:],
	}

	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, serializeOpts, eth, arp)
	if err != nil {
		return nil, fmt.Errorf("serializing arp probe: %w", err)
	}

	return buf.Bytes(), nil
}

// isConflict returns true if frame is an ARP packet showing that ip is used by
// a host other than hw.  Both the replies and the probes of other hosts for
// the same address count.
func isConflict(frame []byte, hw net.HardwareAddr, ip netip.Addr) (ok bool) {
	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	arp, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP)
	if !ok || bytes.Equal(arp.SourceHwAddress, hw) {
		return false
	}

	target := ip.As4()
	if bytes.Equal(arp.SourceProtAddress, target[:]) {
		return true
	}

	return arp.Operation == layers.ARPRequest &&
		bytes.Equal(arp.DstProtAddress, target[:]) &&
		bytes.Equal(arp.SourceProtAddress, make([]byte, 4))
}
