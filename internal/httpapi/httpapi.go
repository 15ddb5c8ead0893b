// Package httpapi contains the HTTP API of the DHCP server: the lease listing,
// the runtime address pool additions, and the metrics.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is the configuration of the HTTP API service.
type Config struct {
	// Logger is used to log the operation of the service.  It must not be nil.
	Logger *slog.Logger

	// DHCP is the served DHCP server.  It must not be nil.
	DHCP dhcpsvc.Interface

	// Gatherer provides the metrics for the metrics endpoint.  If nil, the
	// endpoint isn't routed.
	Gatherer prometheus.Gatherer

	// Addresses are the addresses to listen on.  It must not be empty.
	Addresses []netip.AddrPort

	// Timeout is the timeout of reading requests and writing responses.  It
	// must be positive.
	Timeout time.Duration
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNilInterface("DHCP", c.DHCP),
		validate.NotEmptySlice("Addresses", c.Addresses),
		validate.Positive("Timeout", c.Timeout),
	}

	return errors.Join(errs...)
}

// Service is the HTTP API service.
type Service struct {
	logger   *slog.Logger
	dhcp     dhcpsvc.Interface
	gatherer prometheus.Gatherer
	handler  http.Handler
	servers  []*server
}

// New returns a new properly initialized *Service.  c must be valid.
func New(c *Config) (svc *Service) {
	svc = &Service{
		logger:   c.Logger,
		dhcp:     c.DHCP,
		gatherer: c.Gatherer,
	}

	mux := http.NewServeMux()
	svc.route(mux)
	svc.handler = mux

	for _, addr := range c.Addresses {
		svc.servers = append(svc.servers, newServer(c.Logger, addr, mux, c.Timeout))
	}

	return svc
}

// Handler returns the HTTP handler of svc with all the routes.
func (svc *Service) Handler() (h http.Handler) {
	return svc.handler
}

// LocalAddrs returns the addresses svc listens on.  It returns nothing until
// svc is started.
func (svc *Service) LocalAddrs() (addrs []net.Addr) {
	for _, s := range svc.servers {
		if addr := s.localAddr(); addr != nil {
			addrs = append(addrs, addr)
		}
	}

	return addrs
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It
// returns an error if any of the addresses can't be listened on.
func (svc *Service) Start(ctx context.Context) (err error) {
	for _, s := range svc.servers {
		err = s.listen(ctx)
		if err != nil {
			return errors.WithDeferred(err, svc.Shutdown(ctx))
		}

		go s.serve(ctx)
	}

	svc.logger.InfoContext(ctx, "started", "servers", len(svc.servers))

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for _, s := range svc.servers {
		errs = append(errs, s.shutdown(ctx))
	}

	err = errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("shutting down http api: %w", err)
	}

	svc.logger.InfoContext(ctx, "stopped")

	return nil
}

// logRespErr logs the error of writing the response to r.
func (svc *Service) logRespErr(r *http.Request, err error) {
	svc.logger.DebugContext(
		r.Context(),
		"writing response",
		"method", r.Method,
		"path", r.URL.Path,
		slogutil.KeyError, err,
	)
}
