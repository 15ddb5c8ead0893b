package dhcpc

import (
	"log/slog"
	"time"
)

// DefaultProbeTimeout is the default time to wait for the replies to an ARP
// probe.
const DefaultProbeTimeout = 1 * time.Second

// ARPProberConfig is the configuration of an [ARPProber].
type ARPProberConfig struct {
	// Logger is used to log the probes.  It must not be nil.
	Logger *slog.Logger

	// Interface is the name of the interface to probe on.  It must not be
	// empty.
	Interface string

	// Timeout is the time to wait for the conflicting packets.  It must be
	// positive.
	Timeout time.Duration
}
