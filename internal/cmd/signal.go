package cmd

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/google/renameio/v2/maybe"
)

// signalHandler starts the services, processes incoming signals, and shuts
// the services down.
type signalHandler struct {
	// baseLogger is used to create the loggers of the services.
	baseLogger *slog.Logger

	logger *slog.Logger

	// mgr controls the currently running services.
	mgr *serviceMgr

	// signal is the channel to which OS signals are sent.
	signal chan os.Signal

	// confFile is the path to the configuration file reread on reconfigure
	// signals.
	confFile string

	// pidFile is the path to the file where to store the PID, if any.
	pidFile string
}

// newSignalHandler returns a new signalHandler subscribed to the shutdown and
// reconfigure signals.
func newSignalHandler(baseLogger *slog.Logger, opts *options) (h *signalHandler) {
	h = &signalHandler{
		baseLogger: baseLogger,
		logger:     baseLogger.With(slogutil.KeyPrefix, "sighdlr"),
		signal:     make(chan os.Signal, 1),
		confFile:   opts.confFile,
		pidFile:    opts.pidFile,
	}

	aghos.NotifyShutdownSignal(h.signal)
	aghos.NotifyReconfigureSignal(h.signal)

	return h
}

// run starts the services configured by conf and processes the signals until
// a shutdown signal is received.  It returns the exit status.
func (h *signalHandler) run(ctx context.Context, conf *configmgr.Config) (status int) {
	defer slogutil.RecoverAndLog(ctx, h.logger)

	if !h.start(ctx, conf) {
		return osutil.ExitCodeFailure
	}

	h.writePID(ctx)
	defer h.removePID(ctx)

	for sig := range h.signal {
		h.logger.InfoContext(ctx, "received", "signal", sig)

		if aghos.IsReconfigureSignal(sig) {
			if !h.reconfigure(ctx) {
				return osutil.ExitCodeFailure
			}
		} else if aghos.IsShutdownSignal(sig) {
			status = h.shutdown(ctx)
			h.logger.InfoContext(ctx, "exiting", "status", status)

			return status
		}
	}

	return osutil.ExitCodeSuccess
}

// start creates and starts the services from conf.  It returns false if the
// services couldn't be started, shutting down the started ones.
func (h *signalHandler) start(ctx context.Context, conf *configmgr.Config) (ok bool) {
	startCtx, cancel := ctxWithDefaultTimeout(ctx)
	defer cancel()

	mgr, err := newServiceMgr(startCtx, h.baseLogger, conf)
	if err != nil {
		h.logger.ErrorContext(ctx, "creating services", slogutil.KeyError, err)

		return false
	}

	h.mgr = mgr
	err = mgr.Start(startCtx)
	if err != nil {
		h.logger.ErrorContext(ctx, "starting services", slogutil.KeyError, err)
		_ = h.shutdown(ctx)

		return false
	}

	return true
}

// reconfigure rereads the configuration file and restarts the services.  An
// invalid configuration file leaves the running services intact.  It returns
// false if the services couldn't be restarted.
func (h *signalHandler) reconfigure(ctx context.Context) (ok bool) {
	h.logger.InfoContext(ctx, "reconfiguring", "config", h.confFile)

	conf, err := configmgr.Read(h.confFile)
	if err != nil {
		h.logger.ErrorContext(ctx, "keeping previous configuration", slogutil.KeyError, err)

		return true
	}

	if h.shutdown(ctx) != osutil.ExitCodeSuccess {
		return false
	}

	if !h.start(ctx, conf) {
		return false
	}

	h.logger.InfoContext(ctx, "reconfigured")

	return true
}

// shutdown gracefully shuts down all services.
func (h *signalHandler) shutdown(ctx context.Context) (status int) {
	ctx, cancel := ctxWithDefaultTimeout(ctx)
	defer cancel()

	h.logger.InfoContext(ctx, "shutting down services")

	err := h.mgr.Shutdown(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "shutting down", slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	return osutil.ExitCodeSuccess
}

// writePID writes the PID to the file, if needed.  Any errors are reported to
// log.
func (h *signalHandler) writePID(ctx context.Context) {
	if h.pidFile == "" {
		return
	}

	// Use 8, since most PIDs will fit.
	data := make([]byte, 0, 8)
	data = strconv.AppendInt(data, int64(os.Getpid()), 10)
	data = append(data, '\n')

	err := maybe.WriteFile(h.pidFile, data, 0o644)
	if err != nil {
		h.logger.ErrorContext(ctx, "writing pidfile", slogutil.KeyError, err)

		return
	}

	h.logger.DebugContext(ctx, "wrote pid", "file", h.pidFile)
}

// removePID removes the PID file, if any.
func (h *signalHandler) removePID(ctx context.Context) {
	if h.pidFile == "" {
		return
	}

	err := os.Remove(h.pidFile)
	if err != nil {
		h.logger.ErrorContext(ctx, "removing pidfile", slogutil.KeyError, err)

		return
	}

	h.logger.DebugContext(ctx, "removed pid", "file", h.pidFile)
}
