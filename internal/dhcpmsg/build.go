package dhcpmsg

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
)

const (
	// ErrNoSpace is returned by [Builder.Insert] when the option doesn't fit
	// into the remaining budget.  The builder stays usable.
	ErrNoSpace errors.Error = "no more space for option"

	// ErrUnknownTag is returned when there is no value to insert for a tag.
	ErrUnknownTag errors.Error = "unknown option tag"

	// ErrReservedTag is returned on attempts to insert the pad, end, or option
	// overload tags.
	ErrReservedTag errors.Error = "reserved option tag"
)

// maxOptionLen is the maximum length of a single option instance.
const maxOptionLen = 255

// overloadOptLen is the length of the option overload option.
const overloadOptLen = 3

// BuilderConfig is the configuration for a [Builder].
type BuilderConfig struct {
	// MaxMessageSize is the maximum message size negotiated with the peer.
	// Values less than [MinMessageLen] are treated as [MinMessageLen].  Any
	// room above [MinMessageLen] is used for the overflow buffer.
	MaxMessageSize int

	// Overload enables spilling options into the file and sname fields.
	Overload bool

	// PadOptions makes the options area padded to [MinOptionsLen], as older
	// servers expect.
	PadOptions bool
}

// area is a region of a message options can be inserted into.
type area struct {
	buf []byte
	cap int
}

// fits returns true if n more bytes fit into a.
func (a *area) fits(n int) (ok bool) {
	return len(a.buf)+n <= a.cap
}

// Builder accumulates options under an insertion budget.  Options go into the
// options field first, then, if overloading is enabled, into the file and sname
// fields, and finally into the overflow buffer.
type Builder struct {
	main     area
	file     area
	sname    area
	overflow area
	present  [256]bool
	overload bool
	pad      bool
}

// NewBuilder returns a new builder for a DHCP message.  conf must not be nil.
func NewBuilder(conf *BuilderConfig) (b *Builder) {
	// The END tag of the options area is always reserved.
	mainCap := MinOptionsLen - CookieLen - 1
	if conf.Overload {
		mainCap -= overloadOptLen
	}

	b = &Builder{
		main:     area{cap: mainCap},
		overload: conf.Overload,
		pad:      conf.PadOptions,
	}

	if conf.Overload {
		b.file.cap = FileLen - 1
		b.sname.cap = SNameLen - 1
	}

	if conf.MaxMessageSize > MinMessageLen {
		b.overflow.cap = conf.MaxMessageSize - MinMessageLen
	}

	return b
}

// NewBOOTPBuilder returns a new builder for the vendor extensions area of a
// BOOTP reply.
func NewBOOTPBuilder() (b *Builder) {
	return &Builder{
		main: area{cap: VendLen - CookieLen - 1},
	}
}

// Has returns true if an option with code has already been inserted.
func (b *Builder) Has(code layers.DHCPOpt) (ok bool) {
	return b.present[code]
}

// Len returns the number of option bytes inserted so far.
func (b *Builder) Len() (n int) {
	return len(b.main.buf) + len(b.file.buf) + len(b.sname.buf) + len(b.overflow.buf)
}

// OverflowLen returns the number of bytes inserted into the overflow buffer.
func (b *Builder) OverflowLen() (n int) {
	return len(b.overflow.buf)
}

// Insert adds the option into the first area having enough room.  Data longer
// than 255 bytes is split into several instances of the same option, which are
// always kept in one area.  It returns [ErrNoSpace] if no area has enough room,
// in which case nothing is inserted.
func (b *Builder) Insert(code layers.DHCPOpt, data []byte) (err error) {
	switch code {
	case layers.DHCPOptPad, layers.DHCPOptEnd, layers.DHCPOptExtOptions:
		return fmt.Errorf("%w: %s", ErrReservedTag, code)
	}

	encoded := encodeOption(code, data)
	for _, a := range b.areas() {
		if a.fits(len(encoded)) {
			a.buf = append(a.buf, encoded...)
			b.present[code] = true

			return nil
		}
	}

	return fmt.Errorf("inserting %s of length %d: %w", code, len(data), ErrNoSpace)
}

// areas returns the areas in the order of filling.
func (b *Builder) areas() (areas []*area) {
	areas = []*area{&b.main}
	if b.overload {
		areas = append(areas, &b.file, &b.sname)
	}

	return append(areas, &b.overflow)
}

// encodeOption returns the TLV encoding of the option splitting it into
// several instances if needed.
func encodeOption(code layers.DHCPOpt, data []byte) (encoded []byte) {
	if len(data) == 0 {
		return []byte{byte(code), 0}
	}

	for len(data) > 0 {
		n := min(len(data), maxOptionLen)
		encoded = append(encoded, byte(code), byte(n))
		encoded = append(encoded, data[:n]...)
		data = data[n:]
	}

	return encoded
}

// overloadValue returns the value of the option overload option for the
// current content of b.
func (b *Builder) overloadValue() (o Overload) {
	if len(b.file.buf) > 0 {
		o |= OverloadFile
	}

	if len(b.sname.buf) > 0 {
		o |= OverloadSName
	}

	return o
}

// Bytes returns the wire form of m with the options from b.  The options of m
// itself are ignored.  The result is never longer than the negotiated maximum
// message size and always ends the options with the END tag.
func (b *Builder) Bytes(m *Message) (data []byte) {
	data = make([]byte, HeaderLen, MinMessageLen+b.overflow.cap)

	data[0] = byte(m.Op)
	data[1] = m.HType
	data[2] = m.HLen
	data[3] = m.Hops
	binary.BigEndian.PutUint32(data[4:8], m.XID)
	binary.BigEndian.PutUint16(data[8:10], m.Secs)
	binary.BigEndian.PutUint16(data[10:12], m.Flags)
	putAddr(data[12:16], m.CIAddr)
	putAddr(data[16:20], m.YIAddr)
	putAddr(data[20:24], m.SIAddr)
	putAddr(data[24:28], m.GIAddr)
	copy(data[28:44], m.CHAddr[:])

	ov := b.overloadValue()
	if ov&OverloadSName != 0 {
		putArea(data[44:108], b.sname.buf)
	} else {
		copy(data[44:108], m.SName[:])
	}

	if ov&OverloadFile != 0 {
		putArea(data[108:HeaderLen], b.file.buf)
	} else {
		copy(data[108:HeaderLen], m.File[:])
	}

	data = append(data, MagicCookie[:]...)
	if ov != OverloadNone {
		data = append(data, byte(layers.DHCPOptExtOptions), 1, byte(ov))
	}

	data = append(data, b.main.buf...)
	data = append(data, b.overflow.buf...)
	data = append(data, byte(layers.DHCPOptEnd))

	minLen := BOOTPMinLen
	if b.pad {
		minLen = MinMessageLen
	}

	for len(data) < minLen {
		data = append(data, byte(layers.DHCPOptPad))
	}

	return data
}

// putAddr writes the IPv4 address into dst.  Invalid and non-IPv4 addresses
// are written as zeroes.
func putAddr(dst []byte, ip netip.Addr) {
	if ip.Is4() {
		a := ip.As4()
		copy(dst, a[:])
	}
}

// putArea writes the options from buf into dst, which is a file or a sname
// field, and terminates them with the END tag.  The rest of dst is padded.
func putArea(dst, buf []byte) {
	n := copy(dst, buf)
	dst[n] = byte(layers.DHCPOptEnd)
	clear(dst[n+1:])
}
