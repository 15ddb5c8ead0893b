package dhcpsvc

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
)

// Parameter tags of the address pool entries.
const (
	tagSubnetMask    = "snmk"
	tagDefaultLease  = "dflt"
	tagMaxLease      = "maxl"
	tagRouters       = "rout"
	tagDNSServers    = "dnsv"
	tagNTPServers    = "ntsv"
	tagNISServers    = "nisv"
	tagDomainName    = "dnsd"
	tagDomainSearch  = "srch"
	tagHostname      = "hstn"
	tagBroadcastAddr = "brda"
	tagMTU           = "mtu"
	tagMTUPlateaus   = "mtpt"
	tagTTL           = "ttl"
	tagBootServer    = "siad"
	tagServerName    = "sname"
	tagBootFile      = "bootf"
	tagAllowBOOTP    = "albp"
	tagClientID      = "clid"
	tagClassID       = "clas"
	tagContinuation  = "tblc"

	// tagRawPrefix is the prefix of the raw option tags, like "o252".
	tagRawPrefix = "o"
)

// leaseInfinity is the textual form of the infinite lease.
const leaseInfinity = "infinity"

// minMTU is the minimum value of the interface MTU option, see RFC 2132.
const minMTU = 68

// decodeParams sets the values of r from the parameter string s, which is a
// colon-separated list of tag=value pairs.
func decodeParams(r *Resource, s string) (err error) {
	defer func() { err = errors.Annotate(err, "params %q: %w", s) }()

	fields, err := splitParams(s)
	if err != nil {
		return err
	}

	for _, f := range fields {
		tag, val, hasVal := strings.Cut(f, "=")
		if !hasVal && tag != tagAllowBOOTP {
			return fmt.Errorf("tag %q: %w", tag, errors.ErrEmptyValue)
		}

		err = r.decodeParam(tag, val)
		if err != nil {
			return fmt.Errorf("tag %q: %w", tag, err)
		}
	}

	return nil
}

// splitParams splits s into trimmed non-empty fields.
func splitParams(s string) (fields []string, err error) {
	fields, err = splitQuoted(s)
	if err != nil {
		return nil, err
	}

	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	return slices.DeleteFunc(fields, func(f string) (ok bool) { return f == "" }), nil
}

// splitQuoted splits s into fields separated by colons.  Double quotes group
// the value, a backslash escapes the next character.
func splitQuoted(s string) (fields []string, err error) {
	var sb strings.Builder
	quoted, escaped := false, false
	for _, c := range s {
		switch {
		case escaped:
			sb.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ':' && !quoted:
			fields = append(fields, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(c)
		}
	}

	if quoted || escaped {
		return nil, errors.Error("unterminated value")
	}

	return append(fields, sb.String()), nil
}

// decodeParam sets the single parameter of r.
func (r *Resource) decodeParam(tag, val string) (err error) {
	switch tag {
	case tagSubnetMask:
		return r.decodeMask(val)
	case tagDefaultLease:
		r.defaultLease, err = parseLease(val)
		r.setField(fieldDefaultLease)
	case tagMaxLease:
		r.maxLease, err = parseLease(val)
		r.setField(fieldMaxLease)
	case tagRouters:
		err = r.decodeIPs(layers.DHCPOptRouter, val)
	case tagDNSServers:
		err = r.decodeIPs(layers.DHCPOptDNS, val)
	case tagNTPServers:
		err = r.decodeIPs(layers.DHCPOptNTPServers, val)
	case tagNISServers:
		err = r.decodeIPs(layers.DHCPOptNISServers, val)
	case tagDomainName:
		err = r.decodeName(layers.DHCPOptDomainName, val)
	case tagDomainSearch:
		err = r.decodeSearchList(val)
	case tagHostname:
		err = r.decodeName(layers.DHCPOptHostname, val)
	case tagBroadcastAddr:
		err = r.decodeIPs(layers.DHCPOptBroadcastAddr, val)
	case tagMTU:
		err = r.decodeMTU(val)
	case tagMTUPlateaus:
		err = r.decodePlateaus(val)
	case tagTTL:
		err = r.decodeTTL(val)
	case tagBootServer:
		r.bootServer, err = parseIPv4(val)
		r.setField(fieldBootServer)
	case tagServerName:
		r.serverName, err = parseHeaderString(val, dhcpmsg.SNameLen)
		r.setField(fieldServerName)
	case tagBootFile:
		r.bootFile, err = parseHeaderString(val, dhcpmsg.FileLen)
		r.setField(fieldBootFile)
	case tagAllowBOOTP:
		r.allowBOOTP = true
		r.setField(fieldAllowBOOTP)
	case tagClientID:
		err = r.decodeClientID(val)
	case tagClassID:
		r.classID = []byte(val)
	case tagContinuation:
		r.continuation = val
	default:
		return r.decodeRaw(tag, val)
	}

	return err
}

// decodeMask sets the subnet mask option.
func (r *Resource) decodeMask(val string) (err error) {
	ip, err := parseIPv4(val)
	if err != nil {
		return err
	}

	mask := ip.AsSlice()
	if _, ok := maskLen(mask); !ok {
		return fmt.Errorf("mask %s is not contiguous", ip)
	}

	r.setParam(layers.DHCPOptSubnetMask, mask)

	return nil
}

// decodeIPs sets the option holding a comma-separated list of IPv4 addresses.
func (r *Resource) decodeIPs(code layers.DHCPOpt, val string) (err error) {
	var ips []netip.Addr
	for i, s := range strings.Split(val, ",") {
		var ip netip.Addr
		ip, err = parseIPv4(s)
		if err != nil {
			return fmt.Errorf("at index %d: %w", i, err)
		}

		ips = append(ips, ip)
	}

	r.setParam(code, dhcpmsg.IPs(ips...))

	return nil
}

// decodeName sets the option holding a domain name.
func (r *Resource) decodeName(code layers.DHCPOpt, val string) (err error) {
	err = netutil.ValidateDomainName(val)
	if err != nil {
		// Don't wrap the error, since it's informative enough as is.
		return err
	}

	r.setParam(code, []byte(val))

	return nil
}

// decodeSearchList sets the domain search option from a comma-separated list
// of names, see RFC 3397.
func (r *Resource) decodeSearchList(val string) (err error) {
	var data []byte
	buf := make([]byte, 256)
	for i, name := range strings.Split(val, ",") {
		var off int
		off, err = dns.PackDomainName(dns.Fqdn(strings.TrimSpace(name)), buf, 0, nil, false)
		if err != nil {
			return fmt.Errorf("name at index %d: %w", i, err)
		}

		data = append(data, buf[:off]...)
	}

	r.setParam(layers.DHCPOptDomainSearch, data)

	return nil
}

// decodeMTU sets the interface MTU option.
func (r *Resource) decodeMTU(val string) (err error) {
	mtu, err := strconv.ParseUint(val, 10, 16)
	if err != nil {
		return err
	} else if mtu < minMTU {
		return fmt.Errorf("mtu %d is less than %d", mtu, minMTU)
	}

	r.setParam(layers.DHCPOptInterfaceMTU, dhcpmsg.Uint16(uint16(mtu)))

	return nil
}

// decodePlateaus sets the path MTU plateau table option.
func (r *Resource) decodePlateaus(val string) (err error) {
	var data []byte
	for i, s := range strings.Split(val, ",") {
		var n uint64
		n, err = strconv.ParseUint(strings.TrimSpace(s), 10, 16)
		if err != nil {
			return fmt.Errorf("at index %d: %w", i, err)
		}

		data = append(data, dhcpmsg.Uint16(uint16(n))...)
	}

	r.setParam(layers.DHCPOptPathPlateuTableOption, data)

	return nil
}

// decodeTTL sets the default IP TTL option.
func (r *Resource) decodeTTL(val string) (err error) {
	ttl, err := strconv.ParseUint(val, 10, 8)
	if err != nil {
		return err
	} else if ttl == 0 {
		return fmt.Errorf("ttl: %w", errors.ErrEmptyValue)
	}

	r.setParam(layers.DHCPOptDefaultTTL, []byte{byte(ttl)})

	return nil
}

// decodeClientID makes r a manual entry.
func (r *Resource) decodeClientID(val string) (err error) {
	typ, id, err := parseTypedHex(val)
	if err != nil {
		return err
	} else if len(id) == 0 {
		return fmt.Errorf("client id: %w", errors.ErrEmptyValue)
	}

	r.clientID = &ClientID{
		ID:   id,
		Type: typ,
	}

	return nil
}

// decodeRaw sets the option from the raw tag, like "o252=0x0102" or
// "o252=text".
func (r *Resource) decodeRaw(tag, val string) (err error) {
	codeStr, ok := strings.CutPrefix(tag, tagRawPrefix)
	if !ok {
		return fmt.Errorf("tag: %w", errors.ErrBadEnumValue)
	}

	code, err := strconv.ParseUint(codeStr, 10, 8)
	if err != nil {
		return fmt.Errorf("option code: %w", err)
	}

	switch opt := layers.DHCPOpt(code); opt {
	case
		layers.DHCPOptPad,
		layers.DHCPOptEnd,
		layers.DHCPOptExtOptions,
		layers.DHCPOptMessageType:
		return fmt.Errorf("option code %d: %w", code, dhcpmsg.ErrReservedTag)
	default:
		var data []byte
		if hexStr, isHex := strings.CutPrefix(val, "0x"); isHex {
			data, err = hex.DecodeString(hexStr)
			if err != nil {
				return fmt.Errorf("option value: %w", err)
			}
		} else {
			data = []byte(val)
		}

		r.setParam(opt, data)
	}

	return nil
}

// parseLease parses the lease length in seconds or the infinite lease.
func parseLease(s string) (secs uint32, err error) {
	if s == leaseInfinity {
		return dhcpmsg.Infinity, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("lease: %w", err)
	}

	return uint32(n), nil
}

// parseIPv4 parses an IPv4 address.
func parseIPv4(s string) (ip netip.Addr, err error) {
	ip, err = netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	} else if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("address %s is not ipv4", ip)
	}

	return ip, nil
}

// parseHeaderString checks the header string field to fit into n bytes with the
// terminating zero.
func parseHeaderString(s string, n int) (val string, err error) {
	if len(s) >= n {
		return "", fmt.Errorf("value is longer than %d", n-1)
	}

	return s, nil
}
