//go:build windows

package dhcpsvc

// isPrivileged returns true if the process may open raw sockets.  Windows only
// supports the privileged mode.
func isPrivileged() (ok bool) {
	return true
}
