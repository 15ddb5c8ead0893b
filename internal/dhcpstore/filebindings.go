package dhcpstore

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2/maybe"
)

// FileBindingsConfig is the configuration of a [FileBindings].
type FileBindingsConfig struct {
	// Logger is used to log the operation of the storage.  It must not be nil.
	Logger *slog.Logger

	// Path is the path to the lease file.  It must not be empty.
	Path string
}

// FileBindings is a [dhcpsvc.BindingStorage] keeping the lease records in a
// text file.  The written records are buffered and replace the file contents
// atomically on Flush and Stop.
type FileBindings struct {
	logger *slog.Logger

	// mu protects buf and dirty.
	mu *sync.Mutex

	// buf is the snapshot being written.
	buf *bytes.Buffer

	path string

	// dirty is true if buf contains the changes not yet written to the file.
	dirty bool
}

// NewFileBindings returns a new properly initialized *FileBindings.  conf must
// not be nil.
func NewFileBindings(conf *FileBindingsConfig) (s *FileBindings, err error) {
	if conf.Path == "" {
		return nil, errNoPath
	}

	return &FileBindings{
		logger: conf.Logger,
		mu:     &sync.Mutex{},
		buf:    &bytes.Buffer{},
		path:   conf.Path,
	}, nil
}

// type check
var (
	_ dhcpsvc.BindingStorage = (*FileBindings)(nil)
	_ dhcpsvc.BindingFlusher = (*FileBindings)(nil)
)

// Start implements the [dhcpsvc.BindingStorage] interface for *FileBindings.
func (s *FileBindings) Start(ctx context.Context) (err error) {
	s.logger.DebugContext(ctx, "using lease file", "path", s.path)

	return nil
}

// Stop implements the [dhcpsvc.BindingStorage] interface for *FileBindings.
// It writes the pending snapshot, if any.
func (s *FileBindings) Stop(ctx context.Context) (err error) {
	return s.Flush(ctx)
}

// Clear implements the [dhcpsvc.BindingStorage] interface for *FileBindings.
func (s *FileBindings) Clear(_ context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	s.dirty = true

	return nil
}

// Write implements the [dhcpsvc.BindingStorage] interface for *FileBindings.
func (s *FileBindings) Write(_ context.Context, p []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.buf.Write(p)
	s.dirty = true

	return err
}

// Read implements the [dhcpsvc.BindingStorage] interface for *FileBindings.
// It returns nil if the file doesn't exist.
func (s *FileBindings) Read(ctx context.Context) (data []byte, err error) {
	data, err = os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.DebugContext(ctx, "no lease file", "path", s.path)

			return nil, nil
		}

		return nil, fmt.Errorf("reading lease file: %w", err)
	}

	return data, nil
}

// Flush implements the [dhcpsvc.BindingFlusher] interface for *FileBindings.
func (s *FileBindings) Flush(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	err = maybe.WriteFile(s.path, s.buf.Bytes(), filePerm)
	if err != nil {
		return fmt.Errorf("writing lease file: %w", err)
	}

	s.dirty = false
	s.logger.DebugContext(ctx, "wrote lease file", "path", s.path, "size", s.buf.Len())

	return nil
}
