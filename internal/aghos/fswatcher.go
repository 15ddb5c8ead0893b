package aghos

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/fsnotify/fsnotify"
)

// Event is sent when a tracked file has been written to.
type Event struct {
	// Name is the absolute path of the written file.
	Name string
}

// FSWatcher tracks the writes to files and notifies about those.
type FSWatcher interface {
	service.Interface

	// Events returns the channel to notify about the writes.  The channel is
	// closed on shutdown.
	Events() (e <-chan Event)

	// Add starts tracking the file.  It returns an error if the file can't be
	// tracked.
	Add(name string) (err error)
}

// DefaultSettleDelay is the default delay since the last write after which the
// watcher reports the file as written.
const DefaultSettleDelay = 100 * time.Millisecond

// OSWritesWatcherConfig is the configuration of the watcher returned by
// [NewOSWritesWatcher].
type OSWritesWatcherConfig struct {
	// Logger is used for logging the operations of the watcher.  It must not
	// be nil.
	Logger *slog.Logger

	// SettleDelay is the delay since the last write to a file after which the
	// event is sent.  The writes within the delay are reported once.  It must
	// not be negative.
	SettleDelay time.Duration
}

// osWatcher tracks the writes using the notifications of the OS.
type osWatcher struct {
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	events  chan Event

	// mu protects dirs and pending.
	mu *sync.Mutex

	// dirs maps the watched directories to the tracked files in them.
	dirs map[string]*container.MapSet[string]

	// pending are the settle timers of the recently written files.
	pending map[string]*time.Timer

	// wg tracks the event handling goroutines.
	wg *sync.WaitGroup

	settle time.Duration
}

// NewOSWritesWatcher returns an FSWatcher that reports the writes to the
// tracked files after they settle.  conf must not be nil.
func NewOSWritesWatcher(conf *OSWritesWatcherConfig) (w FSWatcher, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating os watcher: %w", err)
	}

	return &osWatcher{
		logger:  conf.Logger,
		watcher: watcher,
		events:  make(chan Event, 1),
		mu:      &sync.Mutex{},
		dirs:    map[string]*container.MapSet[string]{},
		pending: map[string]*time.Timer{},
		wg:      &sync.WaitGroup{},
		settle:  conf.SettleDelay,
	}, nil
}

// type check
var _ FSWatcher = (*osWatcher)(nil)

// Start implements the [FSWatcher] interface for *osWatcher.
func (w *osWatcher) Start(ctx context.Context) (err error) {
	ctx = context.WithoutCancel(ctx)

	w.wg.Add(2)
	go w.handleErrors(ctx)
	go w.handleEvents(ctx)

	return nil
}

// Shutdown implements the [FSWatcher] interface for *osWatcher.  It stops the
// pending notifications and closes the events channel.
func (w *osWatcher) Shutdown(_ context.Context) (err error) {
	err = w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}

	close(w.events)

	return err
}

// Events implements the [FSWatcher] interface for *osWatcher.
func (w *osWatcher) Events() (e <-chan Event) {
	return w.events
}

// Add implements the [FSWatcher] interface for *osWatcher.  name may be
// relative to the working directory, the file must exist.
func (w *osWatcher) Add(name string) (err error) {
	name, err = filepath.Abs(name)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}

	_, err = os.Stat(name)
	if err != nil {
		return fmt.Errorf("checking file: %w", err)
	}

	// The atomic writers replace the file, so watch its directory instead.
	dir := filepath.Dir(name)

	w.mu.Lock()
	defer w.mu.Unlock()

	files, ok := w.dirs[dir]
	if !ok {
		err = w.watcher.Add(dir)
		if err != nil {
			return fmt.Errorf("watching %q: %w", dir, err)
		}

		files = container.NewMapSet[string]()
		w.dirs[dir] = files
	}

	files.Add(name)

	return nil
}

// writeOps are the operations considered as writing to a file.
const writeOps = fsnotify.Write | fsnotify.Create

// handleEvents schedules the notifications about the writes to the tracked
// files.  It is intended to be used as a goroutine.
func (w *osWatcher) handleEvents(ctx context.Context) {
	defer w.wg.Done()
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for e := range w.watcher.Events {
		if e.Op&writeOps != 0 {
			w.schedule(ctx, e.Name)
		}
	}
}

// schedule postpones the notification about the write to name by the settle
// delay, if the file is tracked.
func (w *osWatcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := w.dirs[filepath.Dir(name)]
	if files == nil || !files.Has(name) {
		return
	}

	if t, ok := w.pending[name]; ok {
		t.Reset(w.settle)

		return
	}

	w.pending[name] = time.AfterFunc(w.settle, func() { w.notify(ctx, name) })
}

// notify sends the event about name unless the watcher has been shut down.
func (w *osWatcher) notify(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.pending[name]; !ok {
		return
	}

	delete(w.pending, name)

	select {
	case w.events <- Event{Name: name}:
		w.logger.DebugContext(ctx, "file written", "name", name)
	default:
		w.logger.DebugContext(ctx, "events buffer is full", "name", name)
	}
}

// handleErrors logs the errors of the underlying watcher.  It is intended to be
// used as a goroutine.
func (w *osWatcher) handleErrors(ctx context.Context) {
	defer w.wg.Done()
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for err := range w.watcher.Errors {
		if !errors.Is(err, fsnotify.ErrEventOverflow) {
			w.logger.ErrorContext(ctx, "watching files", slogutil.KeyError, err)

			continue
		}

		w.logger.WarnContext(ctx, "events overflow, some writes may be missed")
	}
}
