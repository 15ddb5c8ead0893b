package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/configmgr"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpstore"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/AdGuardDHCP/internal/httpapi"
	"github.com/AdguardTeam/AdGuardDHCP/internal/metrics"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// serviceMgr assembles the services from the configuration and controls their
// lifecycle.
type serviceMgr struct {
	logger *slog.Logger

	// dhcp is the DHCP service.  It's [dhcpsvc.Empty] if the server is
	// disabled.
	dhcp dhcpsvc.Interface

	// services are the services in the order of starting.
	services []service.Interface
}

// newServiceMgr returns a new service manager with the services created from
// conf.  baseLogger and conf must not be nil, conf must be valid.
func newServiceMgr(
	ctx context.Context,
	baseLogger *slog.Logger,
	conf *configmgr.Config,
) (m *serviceMgr, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mtrc, err := metrics.NewDHCP(metrics.DefaultNamespace, reg)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	m = &serviceMgr{
		logger: baseLogger.With(slogutil.KeyPrefix, "svcmgr"),
	}

	m.dhcp, err = newDHCP(ctx, baseLogger, conf, mtrc)
	if err != nil {
		return nil, fmt.Errorf("dhcp: %w", err)
	}

	m.services = append(m.services, m.dhcp)

	httpConf := conf.HTTP
	if !httpConf.Enabled {
		return m, nil
	}

	apiConf := &httpapi.Config{
		Logger:    baseLogger.With(slogutil.KeyPrefix, "httpapi"),
		DHCP:      m.dhcp,
		Addresses: httpConf.Addresses,
		Timeout:   httpConf.Timeout.Duration,
	}

	if httpConf.Metrics {
		apiConf.Gatherer = reg
	}

	err = apiConf.Validate()
	if err != nil {
		return nil, fmt.Errorf("http api: %w", err)
	}

	m.services = append(m.services, httpapi.New(apiConf))

	return m, nil
}

// newDHCP returns the DHCP service along with its storages created from conf.
func newDHCP(
	ctx context.Context,
	baseLogger *slog.Logger,
	conf *configmgr.Config,
	mtrc dhcpsvc.Metrics,
) (srv dhcpsvc.Interface, err error) {
	svcConf := conf.DHCP.ServiceConfig()
	if !svcConf.Enabled {
		return dhcpsvc.Empty{}, nil
	}

	svcConf.Logger = baseLogger.With(slogutil.KeyPrefix, "dhcpsvc")
	svcConf.Clock = timeutil.SystemClock{}
	svcConf.Metrics = mtrc
	svcConf.NetworkDeviceManager = dhcpsvc.NewNetworkDeviceManager(svcConf.Logger)

	svcConf.BindingStorage, err = newBindingStorage(baseLogger, conf.Storage.Bindings)
	if err != nil {
		return nil, fmt.Errorf("binding storage: %w", err)
	}

	pool, err := newPoolStorage(baseLogger, conf.Storage)
	if err != nil {
		return nil, fmt.Errorf("pool storage: %w", err)
	}

	if pool != nil {
		svcConf.PoolStorage = pool
	}

	err = svcConf.Validate()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	dhcpSrv, err := dhcpsvc.New(ctx, svcConf)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	if pool != nil {
		pool.SetAdder(dhcpSrv)
	}

	return dhcpSrv, nil
}

// newBindingStorage returns the binding storage of the configured type.  It
// returns nil if the bindings aren't stored.
func newBindingStorage(
	baseLogger *slog.Logger,
	conf *configmgr.BindingsConfig,
) (s dhcpsvc.BindingStorage, err error) {
	l := baseLogger.With(slogutil.KeyPrefix, "bindings")

	switch conf.Type {
	case configmgr.BindingsTypeNone:
		return nil, nil
	case configmgr.BindingsTypeFile:
		return dhcpstore.NewFileBindings(&dhcpstore.FileBindingsConfig{
			Logger: l,
			Path:   conf.Path,
		})
	case configmgr.BindingsTypeBbolt:
		return dhcpstore.NewBoltBindings(&dhcpstore.BoltBindingsConfig{
			Logger: l,
			Path:   conf.Path,
		})
	default:
		return nil, fmt.Errorf("type: %w: %q", errors.ErrBadEnumValue, conf.Type)
	}
}

// newPoolStorage returns the pool storage reading the configured file.  It
// returns nil if no file is configured.
func newPoolStorage(
	baseLogger *slog.Logger,
	conf *configmgr.StorageConfig,
) (p *dhcpstore.YAMLPool, err error) {
	if conf.PoolFile == "" {
		return nil, nil
	}

	l := baseLogger.With(slogutil.KeyPrefix, "pool")

	var watcher aghos.FSWatcher
	if conf.WatchPoolFile {
		watcher, err = aghos.NewOSWritesWatcher(&aghos.OSWritesWatcherConfig{
			Logger:      l,
			SettleDelay: aghos.DefaultSettleDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
	}

	return dhcpstore.NewYAMLPool(&dhcpstore.YAMLPoolConfig{
		Logger:  l,
		Watcher: watcher,
		Path:    conf.PoolFile,
	})
}

// type check
var _ service.Interface = (*serviceMgr)(nil)

// Start implements the [service.Interface] interface for *serviceMgr.  It
// starts the services in order and stops at the first error.
func (m *serviceMgr) Start(ctx context.Context) (err error) {
	for i, svc := range m.services {
		err = svc.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting service at index %d: %w", i, err)
		}
	}

	m.logger.InfoContext(ctx, "started services", "num", len(m.services))

	return nil
}

// Shutdown implements the [service.Interface] interface for *serviceMgr.  It
// shuts the services down in the reverse order.
func (m *serviceMgr) Shutdown(ctx context.Context) (err error) {
	var errs []error
	for i, svc := range slices.Backward(m.services) {
		err = svc.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("shutting down service at index %d: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
