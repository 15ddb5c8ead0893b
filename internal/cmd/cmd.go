// Package cmd is the AdGuard DHCP entry point.  It reads the configuration
// file, sets up logging and signal processing logic, and runs either the server
// or the client.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/AdGuardDHCP/internal/version"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
)

// Main is the entry point of AdGuard DHCP.
func Main() {
	ctx := context.Background()

	cmdName := os.Args[0]
	opts, err := parseOptions(cmdName, os.Args[1:])
	exitCode, needExit := processOptions(opts, cmdName, err, os.Stdout)
	if needExit {
		os.Exit(exitCode)
	}

	if opts.workDir != "" {
		err = os.Chdir(opts.workDir)
		check(err)
	}

	conf, err := configmgr.Read(opts.confFile)
	check(err)

	baseLogger := newBaseLogger(opts, conf.Log)
	l := baseLogger.With(slogutil.KeyPrefix, "cmd")

	l.InfoContext(
		ctx,
		"starting adguard dhcp",
		"version", version.Version(),
		"channel", version.Channel(),
		"pid", os.Getpid(),
		"config", opts.confFile,
	)

	if opts.serviceAction != "" {
		os.Exit(handleServiceAction(ctx, baseLogger, opts, conf))
	}

	warnAdminRights(ctx, l)

	if opts.client {
		os.Exit(runClient(ctx, baseLogger, conf.Client, opts.inform))
	}

	h := newSignalHandler(baseLogger, opts)
	os.Exit(h.run(ctx, conf))
}

// warnAdminRights writes a warning to l if the process lacks the privileges
// required to serve DHCP.
func warnAdminRights(ctx context.Context, l *slog.Logger) {
	ok, err := aghos.HaveAdminRights()
	if err != nil {
		l.WarnContext(ctx, "checking admin rights", slogutil.KeyError, err)
	} else if !ok {
		l.WarnContext(ctx, "not running with admin rights, opening sockets may fail")
	}
}

// defaultTimeout is the timeout used for some operations where another timeout
// hasn't been defined yet.
const defaultTimeout = 5 * time.Second

// ctxWithDefaultTimeout is a helper function that returns a context with
// timeout set to defaultTimeout.
func ctxWithDefaultTimeout(parent context.Context) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(parent, defaultTimeout)
}

// check is a simple error-checking helper.  It must only be used within Main.
func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(osutil.ExitCodeFailure)
	}
}
