//go:build unix

package aghos

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func haveAdminRights() (ok bool, err error) {
	// The error is nil because the platform-independent function signature
	// requires returning an error.
	return unix.Geteuid() == 0, nil
}

func notifyShutdownSignal(c chan<- os.Signal) {
	signal.Notify(c, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM)
}

func notifyReconfigureSignal(c chan<- os.Signal) {
	signal.Notify(c, unix.SIGHUP)
}

func isShutdownSignal(sig os.Signal) (ok bool) {
	switch sig {
	case
		unix.SIGINT,
		unix.SIGQUIT,
		unix.SIGTERM:
		return true
	default:
		return false
	}
}

func isReconfigureSignal(sig os.Signal) (ok bool) {
	return sig == unix.SIGHUP
}
