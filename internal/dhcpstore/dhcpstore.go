// Package dhcpstore contains the implementations of the storages used by the
// DHCP server: the binding storages and the address pool sources.
package dhcpstore

import (
	"io/fs"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// filePerm is the permissions of the written files.
	filePerm fs.FileMode = 0o644

	// errNoPath is returned when the path of the storage file isn't set.
	errNoPath errors.Error = "no path"
)
