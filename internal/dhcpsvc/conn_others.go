//go:build !linux

package dhcpsvc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"golang.org/x/net/ipv4"
)

// errDeviceBusy is returned when the server port is already served for another
// device.
const errDeviceBusy errors.Error = "only one device is supported on this platform"

// netDeviceManager is the portable implementation of [NetworkDeviceManager].
// The server port can't be bound to a device on these platforms, so only one
// device may be opened at a time.
type netDeviceManager struct {
	logger *slog.Logger

	// mu protects opened.
	mu *sync.Mutex

	// opened is the name of the currently opened device, if any.
	opened string
}

// NewNetworkDeviceManager returns the [NetworkDeviceManager] for the current
// platform.
func NewNetworkDeviceManager(logger *slog.Logger) (m NetworkDeviceManager) {
	return &netDeviceManager{
		logger: logger,
		mu:     &sync.Mutex{},
	}
}

// type check
var _ NetworkDeviceManager = (*netDeviceManager)(nil)

// Open implements the [NetworkDeviceManager] interface for *netDeviceManager.
func (m *netDeviceManager) Open(
	ctx context.Context,
	conf *NetworkDeviceConfig,
) (nd NetworkDevice, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened != "" {
		return nil, fmt.Errorf("%q is already opened: %w", m.opened, errDeviceBusy)
	}

	iface, err := net.InterfaceByName(conf.Name)
	if err != nil {
		return nil, fmt.Errorf("getting interface: %w", err)
	}

	c, err := net.ListenPacket("udp4", net.JoinHostPort("", strconv.Itoa(dhcpv4.ServerPort)))
	if err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	pc := ipv4.NewPacketConn(c)
	err = pc.SetControlMessage(ipv4.FlagInterface, true)
	if err != nil {
		// Messages from all the interfaces are handled then.
		m.logger.WarnContext(ctx, "setting control message", keyInterface, iface.Name, slogutil.KeyError, err)
	}

	m.opened = iface.Name
	m.logger.DebugContext(ctx, "opened device", keyInterface, iface.Name)

	return &netDevice{
		manager: m,
		conn:    pc,
		ifIndex: iface.Index,
	}, nil
}

// release marks the device as closed.
func (m *netDeviceManager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opened = ""
}

// netDevice is the [NetworkDevice] reading the messages received on a single
// network interface.  The link-layer unicast isn't available, so such replies
// are broadcast.
type netDevice struct {
	manager *netDeviceManager
	conn    *ipv4.PacketConn
	ifIndex int
}

// type check
var _ NetworkDevice = (*netDevice)(nil)

// Close implements the [NetworkDevice] interface for *netDevice.
func (d *netDevice) Close() (err error) {
	defer d.manager.release()

	return d.conn.Close()
}

// ReadFrom implements the [NetworkDevice] interface for *netDevice.  The
// messages received on other interfaces are skipped.
func (d *netDevice) ReadFrom(b []byte) (n int, src netip.AddrPort, err error) {
	for {
		var cm *ipv4.ControlMessage
		var addr net.Addr
		n, cm, addr, err = d.conn.ReadFrom(b)
		if err != nil {
			return 0, netip.AddrPort{}, err
		}

		if cm != nil && cm.IfIndex != d.ifIndex {
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}

		return n, udpAddr.AddrPort(), nil
	}
}

// WriteTo implements the [NetworkDevice] interface for *netDevice.
func (d *netDevice) WriteTo(b []byte, dst netip.AddrPort, hw net.HardwareAddr) (err error) {
	if hw != nil {
		dst = netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), dst.Port())
	}

	cm := &ipv4.ControlMessage{
		IfIndex: d.ifIndex,
	}

	_, err = d.conn.WriteTo(b, cm, net.UDPAddrFromAddrPort(dst))

	return err
}
