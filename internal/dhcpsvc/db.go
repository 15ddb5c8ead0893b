package dhcpsvc

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpmsg"
	"github.com/AdguardTeam/golibs/errors"
)

// recordFieldsNum is the number of fields in a lease record.
const recordFieldsNum = 7

// recordTimeLayout is the layout of the expiration time in the lease records.
const recordTimeLayout = time.ANSIC

// record is a parsed lease record.
type record struct {
	hwAddr  net.HardwareAddr
	cid     ClientID
	resName string
	expiry  int64
	hwType  uint8
}

// formatRecord returns the lease record of b terminated with a newline:
//
//	<cid type>:0x<cid>:<subnet>:<hw type>:0x<hw addr>:"<expiry>":<entry name>
func formatRecord(b *binding) (data []byte) {
	var expiry string
	switch {
	case b.isInfinite(), b.isBOOTP():
		expiry = leaseInfinity
	case b.expiry == epochUncommitted:
		// Keep empty.
	default:
		expiry = time.Unix(b.expiry, 0).UTC().Format(recordTimeLayout)
	}

	subnet := "0.0.0.0"
	if b.cid.Subnet.IsValid() {
		subnet = b.cid.Subnet.Masked().Addr().String()
	}

	return fmt.Appendf(
		nil,
		"%d:0x%x:%s:%d:0x%x:\"%s\":%s\n",
		b.cid.Type,
		b.cid.ID,
		subnet,
		b.hwType,
		[]byte(b.hwAddr),
		expiry,
		escapeRecordField(b.resName),
	)
}

// escapeRecordField escapes the characters with special meaning in the lease
// records.
func escapeRecordField(s string) (escaped string) {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, `:`, `\:`).Replace(s)
}

// parseRecord parses a single lease record without the trailing newline.  The
// subnet of the returned client identifier has the full length and must be
// adjusted to the entry's one.
func parseRecord(line string) (rec *record, err error) {
	fields, err := splitQuoted(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRecord, err)
	} else if len(fields) != recordFieldsNum {
		return nil, fmt.Errorf("%w: %d fields, want %d", errBadRecord, len(fields), recordFieldsNum)
	}

	rec = &record{
		resName: fields[6],
	}

	rec.cid.Type, rec.cid.ID, err = parseTypedHex(fields[0] + ":" + fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: client id: %w", errBadRecord, err)
	}

	subnet, err := parseIPv4(fields[2])
	if err != nil {
		return nil, fmt.Errorf("%w: subnet: %w", errBadRecord, err)
	}

	rec.cid.Subnet = netip.PrefixFrom(subnet, subnet.BitLen())

	var hw []byte
	rec.hwType, hw, err = parseTypedHex(fields[3] + ":" + fields[4])
	if err != nil {
		return nil, fmt.Errorf("%w: hardware address: %w", errBadRecord, err)
	}

	rec.hwAddr = hw

	rec.expiry, err = parseRecordExpiry(fields[5])
	if err != nil {
		return nil, fmt.Errorf("%w: expiry: %w", errBadRecord, err)
	}

	return rec, nil
}

// parseRecordExpiry parses the expiration time of the lease record.
func parseRecordExpiry(s string) (epoch int64, err error) {
	switch s {
	case leaseInfinity:
		return epochInfinity, nil
	case "":
		return epochUncommitted, nil
	default:
		var t time.Time
		t, err = time.ParseInLocation(recordTimeLayout, s, time.UTC)
		if err != nil {
			return 0, err
		}

		return t.Unix(), nil
	}
}

// persist writes the snapshot of the complete dynamic bindings into the
// binding storage.  srv.mu is expected to be locked.
func (srv *DHCPServer) persist(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "persisting bindings: %w") }()

	err = srv.bindingStorage.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clearing: %w", err)
	}

	var n int
	for b := range srv.store.all() {
		if !b.isComplete() || b.isStatic() {
			continue
		}

		err = srv.bindingStorage.Write(ctx, formatRecord(b))
		if err != nil {
			return fmt.Errorf("writing record for %q: %w", b.resName, err)
		}

		n++
	}

	if f, ok := srv.bindingStorage.(BindingFlusher); ok {
		err = f.Flush(ctx)
		if err != nil {
			return fmt.Errorf("flushing: %w", err)
		}
	}

	srv.logger.DebugContext(ctx, "persisted bindings", "num", n)

	return nil
}

// restore reads the lease records from the binding storage and binds the
// named entries.  The records naming unknown entries are dropped, the later
// records override the earlier ones.  srv.mu is expected to be locked.
func (srv *DHCPServer) restore(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "restoring bindings: %w") }()

	data, err := srv.bindingStorage.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	var restored, dropped int
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		var rec *record
		rec, err = parseRecord(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}

		if srv.restoreRecord(ctx, rec) {
			restored++
		} else {
			dropped++
		}
	}

	srv.logger.InfoContext(ctx, "restored bindings", "num", restored, "dropped", dropped)

	return nil
}

// restoreRecord binds the entry named in rec.  ok is false if the record was
// dropped.
func (srv *DHCPServer) restoreRecord(ctx context.Context, rec *record) (ok bool) {
	h, ok := srv.idx.byName.find(rec.resName)
	if !ok {
		srv.logger.WarnContext(ctx, "dropping record", keyResource, rec.resName, "reason", errNotFound)

		return false
	}

	r := srv.pool.get(h)
	if r.isManual() || r.isDummy() {
		srv.logger.WarnContext(ctx, "dropping record", keyResource, rec.resName, "reason", "not dynamic")

		return false
	}

	srv.removeBinding(srv.store.get(r.binding))

	rec.cid.Subnet = netip.PrefixFrom(rec.cid.Subnet.Addr(), r.subnet.Bits()).Masked()
	b := srv.bindResource(r, h, rec.cid, rec.hwType, rec.hwAddr)
	b.expiry = rec.expiry
	b.flags = flagComplete
	if isBOOTPRecord(r, rec) {
		b.flags |= flagBOOTP
	}

	return true
}

// isBOOTPRecord returns true if rec restores a BOOTP binding of r.  The record
// format doesn't distinguish BOOTP bindings from infinite DHCP ones, so an
// infinite record is considered BOOTP when r allows BOOTP and can't be leased
// to DHCP clients infinitely.
func isBOOTPRecord(r *Resource, rec *record) (ok bool) {
	return rec.expiry == epochInfinity && r.allowBOOTP && r.maxLease != dhcpmsg.Infinity
}
