package dhcpsvc

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
)

// maxPacketSize is the size of the buffer for reading messages.
const maxPacketSize = 1 << 16

// netInterface is a network interface served by the DHCP server.
type netInterface struct {
	// name is the name of the network interface.
	name string

	// prefix is the address of the interface along with the length of its
	// network prefix.  The address is used as the server identifier.
	prefix netip.Prefix
}

// DHCPServer is a DHCPv4 server.  It keeps the address pool, the bindings, and
// the lookup indexes under a single lock.
type DHCPServer struct {
	// logger logs common DHCP events.
	logger *slog.Logger

	// clock is used to get the current time.
	clock timeutil.Clock

	// checker probes the addresses before offering them.
	checker addressChecker

	// bindingStorage persists the bindings.
	bindingStorage BindingStorage

	// poolStorage is the optional source of the address pool entries.
	poolStorage PoolStorage

	// deviceManager opens the network devices.
	deviceManager NetworkDeviceManager

	// metrics collects the statistics.
	metrics Metrics

	// offers tracks the offers made by the server.
	offers *offerTracker

	// mu protects pool, idx, store, and devices.
	mu *sync.Mutex

	// pool is the address pool.
	pool *addressPool

	// idx are the lookup indexes.
	idx *leaseIndex

	// store is the binding store.
	store *bindingStore

	// interfaces are the served network interfaces by their names.
	interfaces map[string]*netInterface

	// devices are the opened network devices.
	devices []NetworkDevice

	// wg tracks the serving and garbage collecting goroutines.
	wg *sync.WaitGroup

	// cancel stops the goroutines started by Start.
	cancel context.CancelFunc

	// offerHold is the period an offered address is reserved for the client.
	offerHold time.Duration

	// gcInterval is the period of the garbage collection.
	gcInterval time.Duration

	// bindingCeiling is the number of bindings the garbage collection keeps
	// the store within.
	bindingCeiling int

	// maxMessageSize is the upper limit of the reply size.
	maxMessageSize int

	// overload enables the use of the file and sname fields for options.
	overload bool
}

// New creates a new DHCP server with the given configuration.  conf must be
// valid and enabled.  It returns an error if the static address pool or the
// relay agents can't be used.
func New(ctx context.Context, conf *Config) (srv *DHCPServer, err error) {
	defer func() { err = errors.Annotate(err, "creating dhcp server: %w") }()

	l := conf.Logger

	var checker addressChecker = noopAddressChecker{}
	if conf.ICMPTimeout > 0 {
		checker = newICMPAddressChecker(l, conf.ICMPTimeout)
	}

	srv = &DHCPServer{
		logger:         l,
		clock:          conf.Clock,
		checker:        checker,
		bindingStorage: conf.BindingStorage,
		poolStorage:    conf.PoolStorage,
		deviceManager:  conf.NetworkDeviceManager,
		metrics:        conf.Metrics,
		offers:         newOfferTracker(l),
		mu:             &sync.Mutex{},
		pool:           newAddressPool(conf.defaultsName()),
		idx:            newLeaseIndex(),
		store:          newBindingStore(),
		interfaces:     newInterfaces(conf.Interfaces),
		wg:             &sync.WaitGroup{},
		offerHold:      conf.OfferHold,
		gcInterval:     conf.GCInterval,
		bindingCeiling: conf.BindingCeiling,
		maxMessageSize: conf.MaxMessageSize,
		overload:       conf.Overload,
	}

	if srv.bindingStorage == nil {
		srv.bindingStorage = EmptyBindingStorage{}
	}

	err = srv.addRelays(conf.Relays)
	if err != nil {
		// Don't wrap the error since there is already an annotation deferred.
		return nil, err
	}

	n, err := srv.loadPool(ctx, conf.Pool)
	if err != nil {
		return nil, fmt.Errorf("loading pool: %w", err)
	}

	l.DebugContext(ctx, "loaded pool", "num", n)

	return srv, nil
}

// newInterfaces returns the served interfaces for the configurations.
func newInterfaces(confs map[string]*InterfaceConfig) (ifaces map[string]*netInterface) {
	ifaces = make(map[string]*netInterface, len(confs))
	for name, c := range confs {
		ifaces[name] = &netInterface{
			name:   name,
			prefix: c.Address,
		}
	}

	return ifaces
}

// addRelays adds the trusted relay agents into the index.
func (srv *DHCPServer) addRelays(relays []*RelayConfig) (err error) {
	var errs []error
	for i, r := range relays {
		err = srv.idx.byRelay.insert(r.Address, r.Subnet.Masked())
		if err != nil {
			errs = append(errs, fmt.Errorf("relay at index %d: %s: %w", i, r.Address, err))
		}
	}

	return errors.Join(errs...)
}

// type check
var _ Interface = (*DHCPServer)(nil)

// Start implements the [service.Interface] interface for *DHCPServer.  It
// loads the stored address pool and bindings and starts serving the network
// devices.  Any error is fatal.
func (srv *DHCPServer) Start(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "starting dhcp server: %w") }()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	err = srv.load(ctx)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	err = srv.openDevices(ctx)
	if err != nil {
		return fmt.Errorf("opening devices: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	srv.cancel = cancel

	for i, name := range slices.Sorted(maps.Keys(srv.interfaces)) {
		srv.wg.Add(1)
		go srv.serve(runCtx, srv.interfaces[name], srv.devices[i])
	}

	srv.wg.Add(1)
	go srv.collectGarbageLoop(runCtx)

	srv.logger.InfoContext(ctx, "started", "interfaces", len(srv.interfaces))

	return nil
}

// load starts the storages and loads the stored address pool entries and
// bindings.  srv.mu is expected to be locked.
func (srv *DHCPServer) load(ctx context.Context) (err error) {
	err = srv.bindingStorage.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting binding storage: %w", err)
	}

	if srv.poolStorage != nil {
		err = srv.poolStorage.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting pool storage: %w", err)
		}

		var entries []*PoolEntry
		entries, err = srv.poolStorage.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading pool storage: %w", err)
		}

		var n int
		n, err = srv.loadPool(ctx, entries)
		if err != nil {
			return fmt.Errorf("loading pool: %w", err)
		}

		srv.logger.DebugContext(ctx, "loaded stored pool", "num", n)
	}

	// Don't wrap the error since it's informative enough as is.
	return srv.restore(ctx)
}

// openDevices opens the network devices of the served interfaces in the order
// of their names.  srv.mu is expected to be locked.
func (srv *DHCPServer) openDevices(ctx context.Context) (err error) {
	if srv.deviceManager == nil {
		srv.deviceManager = EmptyNetworkDeviceManager{}
	}

	for _, name := range slices.Sorted(maps.Keys(srv.interfaces)) {
		var dev NetworkDevice
		dev, err = srv.deviceManager.Open(ctx, &NetworkDeviceConfig{
			Name:    name,
			Address: srv.interfaces[name].prefix.Addr(),
		})
		if err != nil {
			return errors.WithDeferred(fmt.Errorf("interface %q: %w", name, err), srv.closeDevices())
		}

		srv.devices = append(srv.devices, dev)
	}

	return nil
}

// closeDevices closes all the opened devices.  srv.mu is expected to be
// locked.
func (srv *DHCPServer) closeDevices() (err error) {
	var errs []error
	for _, dev := range srv.devices {
		errs = append(errs, dev.Close())
	}

	srv.devices = nil

	return errors.Join(errs...)
}

// Shutdown implements the [service.Interface] interface for *DHCPServer.  It
// stops serving, persists the bindings, and stops the storages.
func (srv *DHCPServer) Shutdown(ctx context.Context) (err error) {
	defer func() { err = errors.Annotate(err, "shutting down dhcp server: %w") }()

	srv.mu.Lock()
	if srv.cancel != nil {
		srv.cancel()
	}

	errs := []error{srv.closeDevices()}
	srv.mu.Unlock()

	srv.wg.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()

	errs = append(errs, srv.persist(ctx), srv.bindingStorage.Stop(ctx))
	if srv.poolStorage != nil {
		errs = append(errs, srv.poolStorage.Stop(ctx))
	}

	srv.logger.InfoContext(ctx, "stopped")

	return errors.Join(errs...)
}

// serve handles the messages read from dev until it's closed.  It's used to
// run in a separate goroutine.
func (srv *DHCPServer) serve(ctx context.Context, iface *netInterface, dev NetworkDevice) {
	defer srv.wg.Done()
	defer slogutil.RecoverAndLog(ctx, srv.logger)

	l := srv.logger.With(keyInterface, iface.name)
	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := dev.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.DebugContext(ctx, "device closed")

				return
			}

			l.WarnContext(ctx, "reading message", slogutil.KeyError, err)

			continue
		}

		out := srv.HandleMessage(ctx, buf[:n], &Inbound{
			Interface: iface.name,
			Src:       src,
		})
		if out == nil {
			continue
		}

		err = dev.WriteTo(out.Data, out.Dst, out.HWAddr)
		if err != nil {
			l.WarnContext(ctx, "writing reply", "dst", out.Dst, slogutil.KeyError, err)
		}
	}
}

// collectGarbageLoop runs the garbage collection periodically until ctx is
// canceled.  It's used to run in a separate goroutine.
func (srv *DHCPServer) collectGarbageLoop(ctx context.Context) {
	defer srv.wg.Done()
	defer slogutil.RecoverAndLog(ctx, srv.logger)

	ticker := time.NewTicker(srv.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.CollectGarbage(ctx)
		}
	}
}

// CollectGarbage persists the bindings and removes the stale ones.  It's
// called periodically after Start, and is safe for concurrent use.
func (srv *DHCPServer) CollectGarbage(ctx context.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.collectGarbage(ctx, srv.now())
}

// Leases implements the [Interface] interface for *DHCPServer.
func (srv *DHCPServer) Leases() (ls []*Lease) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for b := range srv.store.all() {
		if r := srv.pool.get(b.res); r != nil {
			ls = append(ls, newLease(b, r))
		}
	}

	return ls
}

// LeaseByIP implements the [Interface] interface for *DHCPServer.
func (srv *DHCPServer) LeaseByIP(ip netip.Addr) (l *Lease, ok bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	h, ok := srv.idx.byIP.find(ip)
	if !ok {
		return nil, false
	}

	r := srv.pool.get(h)
	b := srv.store.get(r.binding)
	if b == nil {
		return nil, false
	}

	return newLease(b, r), true
}

// AddResource implements the [Interface] interface for *DHCPServer.  The
// entry may refer to the previously added ones.
func (srv *DHCPServer) AddResource(ctx context.Context, e *PoolEntry) (n int, err error) {
	defer func() { err = errors.Annotate(err, "adding resource: %w") }()

	err = e.Validate()
	if err != nil {
		// Don't wrap the error since there is already an annotation deferred.
		return 0, err
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	n, err = srv.loadPool(ctx, []*PoolEntry{e})

	srv.logger.DebugContext(ctx, "added resource", keyResource, e.Name, "num", n)

	return n, err
}
