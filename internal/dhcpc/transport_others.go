//go:build !linux

package dhcpc

import (
	"context"
)

// RawTransport is a [Transport] working on an interface without an address
// configured.  It's only supported on Linux.
type RawTransport struct{}

// type check
var _ Transport = (*RawTransport)(nil)

// NewRawTransport returns an error, since raw transport is only supported on
// Linux.
func NewRawTransport(_ string) (t *RawTransport, err error) {
	return nil, errNotSupported
}

// Send implements the [Transport] interface for *RawTransport.
func (t *RawTransport) Send(_ context.Context, _ []byte) (err error) {
	return errNotSupported
}

// Receive implements the [Transport] interface for *RawTransport.
func (t *RawTransport) Receive(_ context.Context) (data []byte, err error) {
	return nil, errNotSupported
}

// Close implements the [io.Closer] interface for *RawTransport.
func (t *RawTransport) Close() (err error) {
	return nil
}
