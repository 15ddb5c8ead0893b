// Package aghos contains utilities for functions requiring system calls and
// other OS-specific APIs.
package aghos

import (
	"fmt"
	"os"
	"runtime"

	"github.com/AdguardTeam/golibs/errors"
)

// Unsupported is a helper that returns a wrapped [errors.ErrUnsupported].
func Unsupported(op string) (err error) {
	return fmt.Errorf("%s: not supported on %s: %w", op, runtime.GOOS, errors.ErrUnsupported)
}

// HaveAdminRights checks if the current user has root (administrator) rights.
// Serving DHCP requires them for binding the privileged ports and opening the
// raw sockets.
func HaveAdminRights() (ok bool, err error) {
	return haveAdminRights()
}

// NotifyShutdownSignal notifies c on receiving shutdown signals.
func NotifyShutdownSignal(c chan<- os.Signal) {
	notifyShutdownSignal(c)
}

// NotifyReconfigureSignal notifies c on receiving reconfigure signals.
func NotifyReconfigureSignal(c chan<- os.Signal) {
	notifyReconfigureSignal(c)
}

// IsShutdownSignal returns true if sig is a shutdown signal.
func IsShutdownSignal(sig os.Signal) (ok bool) {
	return isShutdownSignal(sig)
}

// IsReconfigureSignal returns true if sig is a reconfigure signal.
func IsReconfigureSignal(sig os.Signal) (ok bool) {
	return isReconfigureSignal(sig)
}

// SendShutdownSignal sends the shutdown signal to the channel.  It doesn't
// block if c is full.
func SendShutdownSignal(c chan<- os.Signal) {
	select {
	case c <- os.Interrupt:
	default:
	}
}
