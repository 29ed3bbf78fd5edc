// Package collection implements a versioned collection of typed records
// persisted as a single document. The on-disk shape is supplied by a Format;
// Collection owns locking and the read-modify-write cycle.
package collection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/checksum"
	"github.com/starford/webring/internal/storage"
)

// DefaultLockTimeout bounds how long Update waits for the document lock.
const DefaultLockTimeout = 5 * time.Second

// Format converts between a document's bytes and its records.
//
// Encode receives the document as it was read (nil when it did not exist) so
// formats that own only part of the document can carry the rest over.
type Format[T any] interface {
	Decode(doc []byte) ([]T, error)
	Encode(doc []byte, records []T) ([]byte, error)
}

// Snapshot is the decoded content of a document at one version.
type Snapshot[T any] struct {
	Records []T
	Version string
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	lockTimeout time.Duration
	missing     []byte
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMissingDocument makes a missing document read as doc instead of
// failing with ErrStorage.
func WithMissingDocument(doc []byte) Option {
	return func(o *options) {
		o.missing = doc
	}
}

// Collection is one document holding an ordered sequence of T.
// It keeps no records in memory between calls.
type Collection[T any] struct {
	store  storage.Provider
	path   string
	format Format[T]
	opts   options
}

// New creates a collection for the document at path inside store.
func New[T any](store storage.Provider, path string, format Format[T], opts ...Option) *Collection[T] {
	o := options{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T]{store: store, path: path, format: format, opts: o}
}

// Path returns the document path relative to the store root.
func (c *Collection[T]) Path() string { return c.path }

// Load reads and decodes the current document. Writers replace the file
// atomically, so Load does not take the lock.
func (c *Collection[T]) Load(_ context.Context) (Snapshot[T], error) {
	doc, err := c.read()
	if err != nil {
		return Snapshot[T]{}, err
	}
	records, err := c.format.Decode(doc)
	if err != nil {
		return Snapshot[T]{}, err
	}
	return Snapshot[T]{Records: records, Version: checksum.Sum(doc)}, nil
}

// MutateFunc computes the new record sequence from the current snapshot.
// Returning an error aborts the update without writing.
type MutateFunc[T any] func(current Snapshot[T]) ([]T, error)

// Update runs one critical section: lock, read, decode, mutate, encode,
// write, unlock. It returns the snapshot that was written.
func (c *Collection[T]) Update(ctx context.Context, mutate MutateFunc[T]) (Snapshot[T], error) {
	release, err := c.lock(ctx)
	if err != nil {
		return Snapshot[T]{}, err
	}
	defer release()

	doc, err := c.read()
	if err != nil {
		return Snapshot[T]{}, err
	}
	records, err := c.format.Decode(doc)
	if err != nil {
		return Snapshot[T]{}, err
	}
	next, err := mutate(Snapshot[T]{Records: records, Version: checksum.Sum(doc)})
	if err != nil {
		return Snapshot[T]{}, err
	}
	out, err := c.format.Encode(doc, next)
	if err != nil {
		return Snapshot[T]{}, err
	}
	if err := c.store.Write(c.path, out); err != nil {
		return Snapshot[T]{}, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	return Snapshot[T]{Records: next, Version: checksum.Sum(out)}, nil
}

func (c *Collection[T]) lock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.opts.lockTimeout)
	defer cancel()
	release, err := c.store.Lock(lockCtx, c.path)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: %s is locked by another writer", apperr.ErrBusy, c.path)
	}
	return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
}

func (c *Collection[T]) read() ([]byte, error) {
	doc, err := c.store.Read(c.path)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, fs.ErrNotExist) && c.opts.missing != nil {
		return c.opts.missing, nil
	}
	return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
}
