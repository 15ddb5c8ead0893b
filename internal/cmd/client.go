package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
)

// runClient configures the interface from conf using the DHCP client and
// returns the exit status.  If inform is valid, only the parameters are
// requested.  conf must be valid.
func runClient(
	ctx context.Context,
	baseLogger *slog.Logger,
	conf *configmgr.ClientConfig,
	inform netip.Addr,
) (status int) {
	l := baseLogger.With(slogutil.KeyPrefix, "dhcpc")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go cancelOnShutdown(ctx, l, cancel)

	lease, err := acquireLease(ctx, l, conf, inform)
	if err != nil {
		l.ErrorContext(ctx, "configuring interface", "iface", conf.Interface, slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	logLease(ctx, l, lease, time.Now())

	return osutil.ExitCodeSuccess
}

// acquireLease runs the client on the configured interface.
func acquireLease(
	ctx context.Context,
	l *slog.Logger,
	conf *configmgr.ClientConfig,
	inform netip.Addr,
) (lease *dhcpc.Lease, err error) {
	iface, err := net.InterfaceByName(conf.Interface)
	if err != nil {
		return nil, fmt.Errorf("getting interface: %w", err)
	}

	transport, err := dhcpc.NewRawTransport(conf.Interface)
	if err != nil {
		return nil, fmt.Errorf("opening transport: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, transport.Close()) }()

	c := conf.ClientConfig(inform)
	c.Logger = l
	c.Transport = transport
	c.HWAddr = iface.HardwareAddr

	if conf.ProbeTimeout.Duration > 0 && !inform.IsValid() {
		c.Prober, err = dhcpc.NewARPProber(&dhcpc.ARPProberConfig{
			Logger:    l,
			Interface: conf.Interface,
			Timeout:   conf.ProbeTimeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("creating prober: %w", err)
		}
	}

	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	return dhcpc.New(c).Run(ctx)
}

// cancelOnShutdown calls cancel when a shutdown signal is received or ctx is
// done.
func cancelOnShutdown(ctx context.Context, l *slog.Logger, cancel context.CancelFunc) {
	defer slogutil.RecoverAndLog(ctx, l)

	sigCh := make(chan os.Signal, 1)
	aghos.NotifyShutdownSignal(sigCh)

	select {
	case sig := <-sigCh:
		l.InfoContext(ctx, "canceling", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
}

// logLease writes the parameters of the lease acquired at the given moment to
// l.
func logLease(ctx context.Context, l *slog.Logger, lease *dhcpc.Lease, acquired time.Time) {
	attrs := []any{
		"ip", lease.IP,
		"server_id", lease.ServerID,
		"subnet_mask", lease.SubnetMask,
		"bootp", lease.IsBOOTP,
	}

	if t1, ok := lease.RenewalTime(acquired); ok {
		t2, _ := lease.RebindingTime(acquired)
		attrs = append(
			attrs,
			"duration", time.Duration(lease.Duration)*time.Second,
			"renew_at", t1,
			"rebind_at", t2,
		)
	}

	l.InfoContext(ctx, "configured", attrs...)
}
