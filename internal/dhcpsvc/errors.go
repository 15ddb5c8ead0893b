package dhcpsvc

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// errNilConfig is returned when a nil config met.
	errNilConfig errors.Error = "config is nil"

	// errDupIP is returned when an address pool entry duplicates the IP
	// address of another one.
	errDupIP errors.Error = "duplicate ip address"

	// errDupName is returned when an address pool entry duplicates the name of
	// another one.
	errDupName errors.Error = "duplicate entry name"

	// errRangeTooLarge is returned when an address range can't be expanded.
	errRangeTooLarge errors.Error = "range is too large"

	// errNotFound is returned when an index has no value for a key.
	errNotFound errors.Error = "not found"

	// errBadRecord is returned when a lease database record is malformed.
	errBadRecord errors.Error = "malformed lease record"
)

// newMustErr returns an error that indicates that valName must be as must
// describes.
func newMustErr(valName, must string, val fmt.Stringer) (err error) {
	return fmt.Errorf("%s %s must %s", valName, val, must)
}
