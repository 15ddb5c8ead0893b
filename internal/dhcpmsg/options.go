package dhcpmsg

import (
	"encoding/binary"
	"net/netip"
	"slices"

	"github.com/google/gopacket/layers"
)

// Option is a single DHCP option.
type Option struct {
	// Data is the option payload without the tag and the length.
	Data []byte

	// Code is the option tag.
	Code layers.DHCPOpt
}

// Options is an ordered list of options.  Each code appears at most once.
type Options []Option

// Get returns the data of the option with code.
func (o Options) Get(code layers.DHCPOpt) (data []byte, ok bool) {
	i := slices.IndexFunc(o, func(opt Option) (found bool) { return opt.Code == code })
	if i < 0 {
		return nil, false
	}

	return o[i].Data, true
}

// Has returns true if o contains an option with code.
func (o Options) Has(code layers.DHCPOpt) (ok bool) {
	_, ok = o.Get(code)

	return ok
}

// appendData appends data to the option with code or adds a new one, as
// described by RFC 3396.
func (o Options) appendData(code layers.DHCPOpt, data []byte) (res Options) {
	i := slices.IndexFunc(o, func(opt Option) (found bool) { return opt.Code == code })
	if i < 0 {
		return append(o, Option{Code: code, Data: slices.Clone(data)})
	}

	o[i].Data = append(o[i].Data, data...)

	return o
}

// Set replaces the data of the option with code or appends a new option.
func (o *Options) Set(code layers.DHCPOpt, data []byte) {
	i := slices.IndexFunc(*o, func(opt Option) (found bool) { return opt.Code == code })
	if i < 0 {
		*o = append(*o, Option{Code: code, Data: data})

		return
	}

	(*o)[i].Data = data
}

// RequestedIP returns the requested IP address option.
func (m *Message) RequestedIP() (ip netip.Addr, ok bool) {
	return m.ipOption(layers.DHCPOptRequestIP)
}

// ServerID returns the server identifier option.
func (m *Message) ServerID() (ip netip.Addr, ok bool) {
	return m.ipOption(layers.DHCPOptServerID)
}

// SubnetMask returns the subnet mask option.
func (m *Message) SubnetMask() (mask netip.Addr, ok bool) {
	return m.ipOption(layers.DHCPOptSubnetMask)
}

// ipOption returns the single IPv4 address stored in the option with code.
func (m *Message) ipOption(code layers.DHCPOpt) (ip netip.Addr, ok bool) {
	data, ok := m.Options.Get(code)
	if !ok || len(data) != 4 {
		return netip.Addr{}, false
	}

	return netip.AddrFrom4([4]byte(data)), true
}

// LeaseTime returns the IP address lease time option in seconds.
func (m *Message) LeaseTime() (secs uint32, ok bool) {
	data, ok := m.Options.Get(layers.DHCPOptLeaseTime)
	if !ok || len(data) != 4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(data), true
}

// MaxMessageSize returns the maximum DHCP message size option.
func (m *Message) MaxMessageSize() (size uint16, ok bool) {
	data, ok := m.Options.Get(layers.DHCPOptMaxMessageSize)
	if !ok || len(data) != 2 {
		return 0, false
	}

	return binary.BigEndian.Uint16(data), true
}

// ClientID returns the client identifier option.  The first byte of id is the
// identifier type.
func (m *Message) ClientID() (id []byte, ok bool) {
	id, ok = m.Options.Get(layers.DHCPOptClientID)
	if !ok || len(id) < 2 {
		return nil, false
	}

	return id, true
}

// ClassID returns the vendor class identifier option.
func (m *Message) ClassID() (id []byte, ok bool) {
	id, ok = m.Options.Get(layers.DHCPOptClassID)
	if !ok || len(id) == 0 {
		return nil, false
	}

	return id, true
}

// Hostname returns the host name option.
func (m *Message) Hostname() (name string) {
	data, _ := m.Options.Get(layers.DHCPOptHostname)

	return string(data)
}

// ParamRequestList returns the tags from the parameter request list option.
func (m *Message) ParamRequestList() (codes []layers.DHCPOpt) {
	data, ok := m.Options.Get(layers.DHCPOptParamsRequest)
	if !ok {
		return nil
	}

	codes = make([]layers.DHCPOpt, 0, len(data))
	for _, c := range data {
		codes = append(codes, layers.DHCPOpt(c))
	}

	return codes
}

// Uint32 encodes v in network byte order.
func Uint32(v uint32) (data []byte) {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Uint16 encodes v in network byte order.
func Uint16(v uint16) (data []byte) {
	return binary.BigEndian.AppendUint16(nil, v)
}

// IPs encodes a list of IPv4 addresses.  Non-IPv4 addresses are skipped.
func IPs(ips ...netip.Addr) (data []byte) {
	data = make([]byte, 0, len(ips)*4)
	for _, ip := range ips {
		if ip.Is4() {
			data = append(data, ip.AsSlice()...)
		}
	}

	return data
}
