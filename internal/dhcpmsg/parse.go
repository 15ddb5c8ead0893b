package dhcpmsg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
)

const (
	// ErrTruncated is returned when the message is shorter than its fixed
	// header.
	ErrTruncated errors.Error = "message is truncated"

	// ErrBadOption is returned when an option runs past the end of its area or
	// has an invalid value.
	ErrBadOption errors.Error = "malformed option"
)

// Parse parses a DHCPv4 or BOOTP message from b.  The returned message doesn't
// reference b.
func Parse(b []byte) (m *Message, err error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}

	m = &Message{
		Op:     layers.DHCPOp(b[0]),
		HType:  b[1],
		HLen:   b[2],
		Hops:   b[3],
		XID:    binary.BigEndian.Uint32(b[4:8]),
		Secs:   binary.BigEndian.Uint16(b[8:10]),
		Flags:  binary.BigEndian.Uint16(b[10:12]),
		CIAddr: netip.AddrFrom4([4]byte(b[12:16])),
		YIAddr: netip.AddrFrom4([4]byte(b[16:20])),
		SIAddr: netip.AddrFrom4([4]byte(b[20:24])),
		GIAddr: netip.AddrFrom4([4]byte(b[24:28])),
	}

	copy(m.CHAddr[:], b[28:44])
	copy(m.SName[:], b[44:108])
	copy(m.File[:], b[108:HeaderLen])

	vend := b[HeaderLen:]
	if len(vend) < CookieLen || !bytes.Equal(vend[:CookieLen], MagicCookie[:]) {
		// A legacy BOOTP message without RFC 1048 extensions.
		return m, nil
	}

	m.HasCookie = true

	p := &optionsParser{}
	err = p.parse(vend[CookieLen:], true)
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}

	// The file field is parsed before the sname one, see RFC 2131, section
	// 4.1.
	if p.overload&OverloadFile != 0 {
		err = p.parse(m.File[:], false)
		if err != nil {
			return nil, fmt.Errorf("file options: %w", err)
		}
	}

	if p.overload&OverloadSName != 0 {
		err = p.parse(m.SName[:], false)
		if err != nil {
			return nil, fmt.Errorf("sname options: %w", err)
		}
	}

	m.Overload = p.overload
	m.Options = p.opts

	return m, nil
}

// optionsParser accumulates options from several areas of a message.
type optionsParser struct {
	opts     Options
	overload Overload
}

// parse walks the TLV stream in area until the END tag or the end of area.
// The option overload tag is only accepted if main is true.
func (p *optionsParser) parse(area []byte, main bool) (err error) {
	for i := 0; i < len(area); {
		code := layers.DHCPOpt(area[i])
		switch code {
		case layers.DHCPOptEnd:
			return nil
		case layers.DHCPOptPad:
			i++

			continue
		}

		if i+1 >= len(area) {
			return fmt.Errorf("%w: no length for %s at %d", ErrBadOption, code, i)
		}

		l := int(area[i+1])
		start, end := i+2, i+2+l
		if end > len(area) {
			return fmt.Errorf("%w: %s of length %d at %d", ErrBadOption, code, l, i)
		}

		data := area[start:end]
		if code == layers.DHCPOptExtOptions {
			if !main {
				// Nested overloading is not allowed, so skip it.
				i = end

				continue
			}

			if l != 1 || Overload(data[0]) > OverloadBoth || data[0] == 0 {
				return fmt.Errorf("%w: overload value %v", ErrBadOption, data)
			}

			p.overload = Overload(data[0])
		}

		p.opts = p.opts.appendData(code, data)
		i = end
	}

	return nil
}
