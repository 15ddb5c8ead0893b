//go:build unix

package dhcpsvc

import "golang.org/x/sys/unix"

// isPrivileged returns true if the process may open raw sockets.
func isPrivileged() (ok bool) {
	return unix.Geteuid() == 0
}
