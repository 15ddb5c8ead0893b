package dhcpsvc

import (
	"context"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// BindingStorage is the persistent storage of the bindings.  The server writes
// the snapshot of its bindings as a sequence of newline-terminated records.
type BindingStorage interface {
	// Start prepares the storage for use.
	Start(ctx context.Context) (err error)

	// Stop flushes and releases the storage.
	Stop(ctx context.Context) (err error)

	// Clear removes all the stored records before writing a new snapshot.
	Clear(ctx context.Context) (err error)

	// Write appends p to the stored records.
	Write(ctx context.Context, p []byte) (err error)

	// Read returns all the stored records.  It returns nil and no error if
	// there are none.
	Read(ctx context.Context) (data []byte, err error)
}

// BindingFlusher is an optional interface of a [BindingStorage] buffering the
// written records.  The server calls Flush after writing each snapshot.
type BindingFlusher interface {
	// Flush commits the records written since the last Clear.
	Flush(ctx context.Context) (err error)
}

// PoolStorage is the source of the address pool entries.
type PoolStorage interface {
	// Start prepares the storage for use.
	Start(ctx context.Context) (err error)

	// Stop releases the storage.
	Stop(ctx context.Context) (err error)

	// Read returns all the entries.
	Read(ctx context.Context) (entries []*PoolEntry, err error)
}

// PoolEntry is a raw address pool entry.
type PoolEntry struct {
	// Start is the first address of the range.  The unspecified address makes
	// a parameter-only entry.
	Start netip.Addr `yaml:"start" json:"start"`

	// End is the last address of the range.  If it's unset, the range consists
	// of Start only.
	End netip.Addr `yaml:"end,omitempty" json:"end,omitempty"`

	// Name is the name of the entry.  The names of the addresses of the range
	// except the first one are suffixed with the addresses.  It must not be
	// empty.
	Name string `yaml:"name" json:"name"`

	// Params is the parameter string, a colon-separated list of tag=value
	// pairs.
	Params string `yaml:"params,omitempty" json:"params,omitempty"`
}

// type check
var _ validate.Interface = (*PoolEntry)(nil)

// Validate implements the [validate.Interface] interface for *PoolEntry.  Only
// the presence of values is checked, malformed ranges are skipped on load.
func (e *PoolEntry) Validate() (err error) {
	if e == nil {
		return errors.ErrNoValue
	}

	return validate.NotEmpty("name", e.Name)
}

// EmptyBindingStorage is a [BindingStorage] that stores nothing.
type EmptyBindingStorage struct{}

// type check
var _ BindingStorage = EmptyBindingStorage{}

// Start implements the [BindingStorage] interface for EmptyBindingStorage.
func (EmptyBindingStorage) Start(_ context.Context) (err error) { return nil }

// Stop implements the [BindingStorage] interface for EmptyBindingStorage.
func (EmptyBindingStorage) Stop(_ context.Context) (err error) { return nil }

// Clear implements the [BindingStorage] interface for EmptyBindingStorage.
func (EmptyBindingStorage) Clear(_ context.Context) (err error) { return nil }

// Write implements the [BindingStorage] interface for EmptyBindingStorage.
func (EmptyBindingStorage) Write(_ context.Context, _ []byte) (err error) { return nil }

// Read implements the [BindingStorage] interface for EmptyBindingStorage.
func (EmptyBindingStorage) Read(_ context.Context) (data []byte, err error) { return nil, nil }
