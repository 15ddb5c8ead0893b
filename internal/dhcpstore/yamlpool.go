package dhcpstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/AdguardTeam/AdGuardDHCP/internal/aghos"
	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"gopkg.in/yaml.v3"
)

// ResourceAdder adds the address pool entries at runtime.  *dhcpsvc.DHCPServer
// implements it.
type ResourceAdder interface {
	// AddResource adds the entry and returns the number of the added
	// resources.
	AddResource(ctx context.Context, e *dhcpsvc.PoolEntry) (n int, err error)
}

// YAMLPoolConfig is the configuration of a [YAMLPool].
type YAMLPoolConfig struct {
	// Logger is used to log the operation of the storage.  It must not be nil.
	Logger *slog.Logger

	// Watcher tracks the changes of the pool file.  If nil, the file is only
	// read once.
	Watcher aghos.FSWatcher

	// Path is the path to the pool file.  It must not be empty.
	Path string
}

// yamlPoolFile is the structure of the pool file.
type yamlPoolFile struct {
	Entries []*dhcpsvc.PoolEntry `yaml:"entries"`
}

// YAMLPool is a [dhcpsvc.PoolStorage] reading the entries from a YAML file.
// When the file changes, the entries with the new names are added to the
// server using the adder set by SetAdder.
type YAMLPool struct {
	logger  *slog.Logger
	watcher aghos.FSWatcher

	// mu protects adder and known.
	mu *sync.Mutex

	adder ResourceAdder

	// known are the names of the entries already read.
	known *container.MapSet[string]

	// wg tracks the watching goroutine.
	wg *sync.WaitGroup

	path string
}

// NewYAMLPool returns a new properly initialized *YAMLPool.  conf must not be
// nil.
func NewYAMLPool(conf *YAMLPoolConfig) (p *YAMLPool, err error) {
	if conf.Path == "" {
		return nil, errNoPath
	}

	return &YAMLPool{
		logger:  conf.Logger,
		watcher: conf.Watcher,
		mu:      &sync.Mutex{},
		known:   container.NewMapSet[string](),
		wg:      &sync.WaitGroup{},
		path:    conf.Path,
	}, nil
}

// type check
var _ dhcpsvc.PoolStorage = (*YAMLPool)(nil)

// SetAdder sets the destination of the entries added to the file at runtime.
func (p *YAMLPool) SetAdder(a ResourceAdder) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.adder = a
}

// Start implements the [dhcpsvc.PoolStorage] interface for *YAMLPool.  It
// starts watching the file.
func (p *YAMLPool) Start(ctx context.Context) (err error) {
	if p.watcher == nil {
		return nil
	}

	err = p.watcher.Add(p.path)
	if err != nil {
		return fmt.Errorf("watching pool file: %w", err)
	}

	err = p.watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	p.wg.Add(1)
	go p.watch(context.WithoutCancel(ctx))

	return nil
}

// Stop implements the [dhcpsvc.PoolStorage] interface for *YAMLPool.
func (p *YAMLPool) Stop(ctx context.Context) (err error) {
	if p.watcher == nil {
		return nil
	}

	err = p.watcher.Shutdown(ctx)
	p.wg.Wait()

	return err
}

// Read implements the [dhcpsvc.PoolStorage] interface for *YAMLPool.
func (p *YAMLPool) Read(_ context.Context) (entries []*dhcpsvc.PoolEntry, err error) {
	entries, err = p.readFile()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		p.known.Add(e.Name)
	}

	return entries, nil
}

// readFile reads and validates the entries from the file.
func (p *YAMLPool) readFile() (entries []*dhcpsvc.PoolEntry, err error) {
	defer func() { err = errors.Annotate(err, "pool file %q: %w", p.path) }()

	data, err := os.ReadFile(p.path)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	f := &yamlPoolFile{}
	err = yaml.Unmarshal(data, f)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	var errs []error
	for i, e := range f.Entries {
		err = e.Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("entries: at index %d: %w", i, err))
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, err
	}

	return f.Entries, nil
}

// watch adds the new entries each time the file changes.  It's used to run in
// a separate goroutine.
func (p *YAMLPool) watch(ctx context.Context) {
	defer p.wg.Done()
	defer slogutil.RecoverAndLog(ctx, p.logger)

	for range p.watcher.Events() {
		p.reload(ctx)
	}

	p.logger.DebugContext(ctx, "stopped watching pool file")
}

// reload re-reads the file and adds the entries with the names not seen
// before.  p.mu isn't held while adding, since the server may read the pool
// under its own lock.
func (p *YAMLPool) reload(ctx context.Context) {
	entries, err := p.readFile()
	if err != nil {
		p.logger.ErrorContext(ctx, "reloading pool", slogutil.KeyError, err)

		return
	}

	adder, fresh := p.newEntries(entries)
	if adder == nil {
		p.logger.WarnContext(ctx, "no server to add entries to")

		return
	}

	var added int
	for _, e := range fresh {
		n, addErr := adder.AddResource(ctx, e)
		if addErr != nil {
			p.logger.ErrorContext(ctx, "adding entry", "name", e.Name, slogutil.KeyError, addErr)
		}

		if n > 0 {
			p.markKnown(e.Name)
			added += n
		}
	}

	p.logger.InfoContext(ctx, "reloaded pool", "added", added)
}

// newEntries returns the current adder and the entries with unknown names.
func (p *YAMLPool) newEntries(
	entries []*dhcpsvc.PoolEntry,
) (adder ResourceAdder, fresh []*dhcpsvc.PoolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		if !p.known.Has(e.Name) {
			fresh = append(fresh, e)
		}
	}

	return p.adder, fresh
}

// markKnown remembers the name of an added entry.
func (p *YAMLPool) markKnown(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.known.Add(name)
}
