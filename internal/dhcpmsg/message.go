// Package dhcpmsg implements the DHCPv4 and BOOTP message format, including the
// option overloading of the file and sname fields and the option insertion
// budget.
//
// See https://datatracker.ietf.org/doc/html/rfc2131 and
// https://datatracker.ietf.org/doc/html/rfc2132.
package dhcpmsg

import (
	"bytes"
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"
)

// Sizes of the fixed parts of a message.
const (
	// HeaderLen is the length of the fixed BOOTP header, from op to file.
	HeaderLen = 236

	// CookieLen is the length of the magic cookie.
	CookieLen = 4

	// CHAddrLen is the length of the chaddr field.
	CHAddrLen = 16

	// SNameLen is the length of the sname field.
	SNameLen = 64

	// FileLen is the length of the file field.
	FileLen = 128

	// VendLen is the length of the BOOTP vendor extensions area.
	VendLen = 64

	// MinOptionsLen is the length of the options area every DHCP client must
	// be prepared to receive, including the magic cookie.
	MinOptionsLen = 312

	// MinMessageLen is the length of the smallest DHCP message every client
	// must accept.
	MinMessageLen = HeaderLen + MinOptionsLen

	// BOOTPMinLen is the minimal length of a BOOTP message.
	BOOTPMinLen = HeaderLen + VendLen
)

// MagicCookie is the value starting the options area.
var MagicCookie = [CookieLen]byte{99, 130, 83, 99}

// FlagBroadcast is the broadcast bit of the flags field.
const FlagBroadcast uint16 = 1 << 15

// Overload is the value of the option overload option.
type Overload uint8

// Overload values.
const (
	OverloadNone  Overload = 0
	OverloadFile  Overload = 1
	OverloadSName Overload = 2
	OverloadBoth  Overload = OverloadFile | OverloadSName
)

// Message is a parsed DHCPv4 or BOOTP message.
type Message struct {
	// CIAddr is the client's IP address, set when the client is able to
	// respond to ARP requests.
	CIAddr netip.Addr

	// YIAddr is the address assigned to the client.
	YIAddr netip.Addr

	// SIAddr is the address of the next server to use in bootstrap.
	SIAddr netip.Addr

	// GIAddr is the relay agent address.
	GIAddr netip.Addr

	// Options are the options of the message in the order of appearance.
	// Repeated options are concatenated.
	Options Options

	// XID is the transaction identifier.
	XID uint32

	// Secs is the number of seconds elapsed since the client began the
	// exchange.
	Secs uint16

	// Flags contains the broadcast bit.
	Flags uint16

	// Op is the message operation code.
	Op layers.DHCPOp

	// HType is the hardware address type, see RFC 1700.
	HType uint8

	// HLen is the hardware address length.
	HLen uint8

	// Hops is used by relay agents.
	Hops uint8

	// Overload tells which of the file and sname fields carried options.
	Overload Overload

	// CHAddr is the client hardware address.
	CHAddr [CHAddrLen]byte

	// SName is the optional server host name.
	SName [SNameLen]byte

	// File is the boot file name.
	File [FileLen]byte

	// HasCookie is false for legacy BOOTP messages without the RFC 1048 vendor
	// extensions.
	HasCookie bool
}

// Type returns the DHCP message type.  ok is false for BOOTP messages.
func (m *Message) Type() (typ layers.DHCPMsgType, ok bool) {
	data, ok := m.Options.Get(layers.DHCPOptMessageType)
	if !ok || len(data) != 1 {
		return layers.DHCPMsgTypeUnspecified, false
	}

	return layers.DHCPMsgType(data[0]), true
}

// IsBOOTP returns true if m is a legacy BOOTP message, that is it has no
// message type option.
func (m *Message) IsBOOTP() (ok bool) {
	_, ok = m.Type()

	return !ok
}

// Broadcast returns true if the broadcast bit is set.
func (m *Message) Broadcast() (ok bool) {
	return m.Flags&FlagBroadcast != 0
}

// HWAddr returns the significant part of chaddr.
func (m *Message) HWAddr() (hw net.HardwareAddr) {
	l := min(int(m.HLen), CHAddrLen)

	return net.HardwareAddr(bytes.Clone(m.CHAddr[:l]))
}

// SetHWAddr sets chaddr and hlen from hw, truncating it to [CHAddrLen].
func (m *Message) SetHWAddr(htype uint8, hw net.HardwareAddr) {
	m.HType = htype
	m.HLen = uint8(copy(m.CHAddr[:], hw))
}

// ServerName returns the sname field as a string, or an empty string if the
// field carried options.
func (m *Message) ServerName() (name string) {
	if m.Overload&OverloadSName != 0 {
		return ""
	}

	return cString(m.SName[:])
}

// BootFile returns the file field as a string, or an empty string if the field
// carried options.
func (m *Message) BootFile() (name string) {
	if m.Overload&OverloadFile != 0 {
		return ""
	}

	return cString(m.File[:])
}

// cString returns the part of b preceding the first NUL byte.
func cString(b []byte) (s string) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}

// NewReply returns a reply to req with the fields a server must copy from the
// request.  typ is not set for BOOTP replies if req is a BOOTP message.
func NewReply(req *Message) (resp *Message) {
	return &Message{
		Op:        layers.DHCPOpReply,
		HType:     req.HType,
		HLen:      req.HLen,
		XID:       req.XID,
		Flags:     req.Flags,
		GIAddr:    req.GIAddr,
		CHAddr:    req.CHAddr,
		CIAddr:    netip.IPv4Unspecified(),
		YIAddr:    netip.IPv4Unspecified(),
		SIAddr:    netip.IPv4Unspecified(),
		HasCookie: req.HasCookie,
	}
}
