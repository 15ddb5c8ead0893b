package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/kardianos/service"
)

// Service control actions.
const (
	serviceActionInstall   = "install"
	serviceActionRestart   = "restart"
	serviceActionRun       = "run"
	serviceActionStart     = "start"
	serviceActionStatus    = "status"
	serviceActionStop      = "stop"
	serviceActionUninstall = "uninstall"
)

// Properties of the system service.
const (
	serviceName        = "AdGuardDHCP"
	serviceDisplayName = "AdGuard DHCP service"
	serviceDescription = "AdGuard DHCP: DHCPv4 server for the local network."
)

// program is the program launched as a system service.
type program struct {
	ctx     context.Context
	handler *signalHandler
	conf    *configmgr.Config

	// done is closed when the handler has finished.
	done chan struct{}

	// status is the exit status of the handler.  It's only valid after done is
	// closed.
	status int
}

// type check
var _ service.Interface = (*program)(nil)

// Start implements the [service.Interface] interface for *program.
func (p *program) Start(_ service.Service) (err error) {
	// Start should not block.  Do the actual work async.
	go func() {
		defer close(p.done)

		p.status = p.handler.run(p.ctx, p.conf)
		if p.status != osutil.ExitCodeSuccess {
			// The service manager only stops the service on a signal.
			os.Exit(p.status)
		}
	}()

	return nil
}

// Stop implements the [service.Interface] interface for *program.
func (p *program) Stop(_ service.Service) (err error) {
	aghos.SendShutdownSignal(p.handler.signal)

	select {
	case <-p.done:
		return nil
	case <-time.After(defaultTimeout):
		return errors.Error("timed out waiting for shutdown")
	}
}

// handleServiceAction performs the service control action from opts and
// returns the exit status.  conf is only used for the "run" action.
func handleServiceAction(
	ctx context.Context,
	baseLogger *slog.Logger,
	opts *options,
	conf *configmgr.Config,
) (status int) {
	l := baseLogger.With(slogutil.KeyPrefix, "ossvc")
	action := opts.serviceAction

	l.InfoContext(ctx, "service control", "action", action)

	prg := &program{
		ctx:     ctx,
		handler: newSignalHandler(baseLogger, opts),
		conf:    conf,
		done:    make(chan struct{}),
	}

	s, err := newSystemService(prg, opts)
	if err != nil {
		l.ErrorContext(ctx, "creating service", slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	switch action {
	case serviceActionRun:
		err = s.Run()
		if err != nil {
			l.ErrorContext(ctx, "running service", slogutil.KeyError, err)

			return osutil.ExitCodeFailure
		}

		<-prg.done

		return prg.status
	case serviceActionStatus:
		err = logServiceStatus(ctx, l, s)
	case serviceActionInstall:
		err = installService(s)
	case
		serviceActionRestart,
		serviceActionStart,
		serviceActionStop,
		serviceActionUninstall:
		err = service.Control(s, action)
	default:
		err = fmt.Errorf("action: %w: %q", errors.ErrBadEnumValue, action)
	}

	if err != nil {
		l.ErrorContext(ctx, "performing action", "action", action, slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	l.InfoContext(ctx, "action done", "action", action, "system", service.ChosenSystem())

	return osutil.ExitCodeSuccess
}

// newSystemService returns a system service running prg.  The service is
// launched with the same configuration and working directory options as the
// current process.
func newSystemService(prg *program, opts *options) (s service.Service, err error) {
	pwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	args := []string{"--service", serviceActionRun, "--config", opts.confFile}
	if opts.logFile != "" {
		args = append(args, "--log-file", opts.logFile)
	}

	if opts.pidFile != "" {
		args = append(args, "--pidfile", opts.pidFile)
	}

	if opts.verbose {
		args = append(args, "--verbose")
	}

	return service.New(prg, &service.Config{
		Name:             serviceName,
		DisplayName:      serviceDisplayName,
		Description:      serviceDescription,
		WorkingDirectory: pwd,
		Arguments:        args,
	})
}

// installService installs the service and starts it.
func installService(s service.Service) (err error) {
	err = service.Control(s, serviceActionInstall)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = service.Control(s, serviceActionStart)
	if err != nil {
		return fmt.Errorf("starting installed service: %w", err)
	}

	return nil
}

// logServiceStatus writes the status of the service to l.
func logServiceStatus(ctx context.Context, l *slog.Logger, s service.Service) (err error) {
	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}

	switch status {
	case service.StatusRunning:
		l.InfoContext(ctx, "service is running")
	case service.StatusStopped:
		l.InfoContext(ctx, "service is stopped")
	default:
		l.InfoContext(ctx, "service status is unknown")
	}

	return nil
}
