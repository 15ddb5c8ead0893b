//go:build linux

package dhcpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/raw"
)

// RawTransport is a [Transport] working on an interface without an address
// configured.  All the messages are broadcast on the link.
type RawTransport struct {
	conn net.PacketConn
}

// type check
var _ Transport = (*RawTransport)(nil)

// NewRawTransport opens the transport on the interface with the name.
func NewRawTransport(ifaceName string) (t *RawTransport, err error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("getting interface: %w", err)
	}

	conn, err := raw.ListenPacket(iface, uint16(ethernet.EtherTypeIPv4), &raw.Config{
		LinuxSockDGRAM: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", ifaceName, err)
	}

	return &RawTransport{
		conn: conn,
	}, nil
}

// Send implements the [Transport] interface for *RawTransport.
func (t *RawTransport) Send(_ context.Context, data []byte) (err error) {
	pkt, err := encodeUDP(data)
	if err != nil {
		return err
	}

	_, err = t.conn.WriteTo(pkt, &raw.Addr{HardwareAddr: layers.EthernetBroadcast})

	return err
}

// Receive implements the [Transport] interface for *RawTransport.
func (t *RawTransport) Receive(ctx context.Context) (data []byte, err error) {
	err = t.conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("resetting deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		// Unblock the pending read.
		_ = t.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, maxPacketSize)
	for {
		var n int
		n, _, err = t.conn.ReadFrom(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, err
		}

		data, ok := decodeUDP(buf[:n])
		if ok {
			return data, nil
		}
	}
}

// Close closes the underlying socket.
func (t *RawTransport) Close() (err error) {
	return errors.Annotate(t.conn.Close(), "closing raw transport: %w")
}
