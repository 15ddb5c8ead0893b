package dhcpstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AdguardTeam/AdGuardDHCP/internal/dhcpsvc"
	"github.com/AdguardTeam/golibs/errors"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// bucketBindings is the name of the bbolt bucket with the lease records.
const bucketBindings = "bindings"

// boltOpenTimeout is the time to wait for the file lock of the database.
const boltOpenTimeout = 1 * time.Second

// BoltBindingsConfig is the configuration of a [BoltBindings].
type BoltBindingsConfig struct {
	// Logger is used to log the operation of the storage.  It must not be nil.
	Logger *slog.Logger

	// Path is the path to the database file.  It must not be empty.
	Path string
}

// BoltBindings is a [dhcpsvc.BindingStorage] keeping the lease records in a
// bbolt database, one record per key.  The written records are buffered and
// replace the bucket contents in a single transaction on Flush and Stop.
type BoltBindings struct {
	logger *slog.Logger

	// mu protects db, records, and dirty.
	mu *sync.Mutex

	// db is nil until the storage is started.
	db *bbolt.DB

	path string

	// records are the records of the snapshot being written.
	records [][]byte

	dirty bool
}

// NewBoltBindings returns a new properly initialized *BoltBindings.  conf must
// not be nil.
func NewBoltBindings(conf *BoltBindingsConfig) (s *BoltBindings, err error) {
	if conf.Path == "" {
		return nil, errNoPath
	}

	return &BoltBindings{
		logger: conf.Logger,
		mu:     &sync.Mutex{},
		path:   conf.Path,
	}, nil
}

// type check
var (
	_ dhcpsvc.BindingStorage = (*BoltBindings)(nil)
	_ dhcpsvc.BindingFlusher = (*BoltBindings)(nil)
)

// Start implements the [dhcpsvc.BindingStorage] interface for *BoltBindings.
// It opens the database.
func (s *BoltBindings) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.db, err = bbolt.Open(s.path, filePerm, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		if errors.Is(err, berrors.ErrInvalid) {
			s.logger.ErrorContext(ctx, "incompatible file system or corrupted database", "path", s.path)
		}

		return fmt.Errorf("opening db %q: %w", s.path, err)
	}

	return nil
}

// Stop implements the [dhcpsvc.BindingStorage] interface for *BoltBindings.
// It writes the pending snapshot, if any, and closes the database.
func (s *BoltBindings) Stop(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err = s.flush(ctx)

	err = errors.WithDeferred(err, s.db.Close())
	s.db = nil

	return err
}

// Clear implements the [dhcpsvc.BindingStorage] interface for *BoltBindings.
func (s *BoltBindings) Clear(_ context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
	s.dirty = true

	return nil
}

// Write implements the [dhcpsvc.BindingStorage] interface for *BoltBindings.
func (s *BoltBindings) Write(_ context.Context, p []byte) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, slices.Clone(p))
	s.dirty = true

	return nil
}

// Read implements the [dhcpsvc.BindingStorage] interface for *BoltBindings.
// The records are returned in the order they were written.
func (s *BoltBindings) Read(_ context.Context) (data []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, errors.Error("db is not opened")
	}

	buf := &bytes.Buffer{}
	err = s.db.View(func(tx *bbolt.Tx) (txErr error) {
		bkt := tx.Bucket([]byte(bucketBindings))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) (err error) {
			_, err = buf.Write(v)

			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading bucket: %w", err)
	}

	if buf.Len() == 0 {
		return nil, nil
	}

	return buf.Bytes(), nil
}

// Flush implements the [dhcpsvc.BindingFlusher] interface for *BoltBindings.
func (s *BoltBindings) Flush(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flush(ctx)
}

// flush replaces the contents of the bucket with the buffered records.  s.mu
// is expected to be locked.
func (s *BoltBindings) flush(ctx context.Context) (err error) {
	if !s.dirty || s.db == nil {
		return nil
	}

	err = s.db.Update(func(tx *bbolt.Tx) (txErr error) {
		txErr = tx.DeleteBucket([]byte(bucketBindings))
		if txErr != nil && !errors.Is(txErr, berrors.ErrBucketNotFound) {
			return fmt.Errorf("deleting bucket: %w", txErr)
		}

		bkt, txErr := tx.CreateBucket([]byte(bucketBindings))
		if txErr != nil {
			return fmt.Errorf("creating bucket: %w", txErr)
		}

		for i, rec := range s.records {
			txErr = bkt.Put(binary.BigEndian.AppendUint64(nil, uint64(i)), rec)
			if txErr != nil {
				return fmt.Errorf("putting record %d: %w", i, txErr)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("updating db: %w", err)
	}

	s.dirty = false
	s.logger.DebugContext(ctx, "wrote lease db", "path", s.path, "num", len(s.records))

	return nil
}
