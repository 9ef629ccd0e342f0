// Package ffi is the Go side of the embedding boundary described in spec
// §6: a caller outside the Go runtime (the original Rust crate's consumers
// linked a cdylib) opens one catalog, runs updates against it, and issues
// read-path calls, all keyed by an opaque handle. The actual C-callable
// exports live in internal/ffi/cshared, built as a cgo c-shared library;
// this package holds everything that can be tested as ordinary Go.
package ffi

import (
	"context"
	"fmt"
	"sync"

	"github.com/filmindex/filmindex/internal/catalogdb"
	"github.com/filmindex/filmindex/internal/update"
)

// Internals is one opened catalog: a read/write connection plus the update
// coordinator used for full and partial updates, matching the Rust crate's
// `Internals` struct one-to-one.
type Internals struct {
	db      *catalogdb.DB
	coord   *update.Coordinator
	fetcher *catalogdb.Fetcher

	mu sync.Mutex
}

var (
	registryMu sync.Mutex
	registry   = map[uintptr]*Internals{}
	nextHandle uintptr = 1
)

// Open creates or opens the catalog database rooted at dir and registers it
// under a new handle. needsUpdate reports whether the on-disk schema was
// missing or stale and a full update should be run before serving queries.
func Open(dir string, partialUpdateRPS int, http2Enabled, acceptBrotli bool) (handle uintptr, needsUpdate bool, err error) {
	db, needsUpdate, err := catalogdb.Open(dir)
	if err != nil {
		return 0, false, fmt.Errorf("ffi: open: %w", err)
	}
	fetcher, err := catalogdb.NewFetcher()
	if err != nil {
		db.Close()
		return 0, false, fmt.Errorf("ffi: new fetcher: %w", err)
	}

	in := &Internals{
		db:      db,
		coord:   update.NewCoordinator(dir, partialUpdateRPS, http2Enabled, acceptBrotli, nil),
		fetcher: fetcher,
	}

	registryMu.Lock()
	handle = nextHandle
	nextHandle++
	registry[handle] = in
	registryMu.Unlock()

	return handle, needsUpdate, nil
}

// Lookup resolves a handle previously returned by Open. It returns false if
// the handle is unknown or has already been dropped.
func Lookup(handle uintptr) (*Internals, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	in, ok := registry[handle]
	return in, ok
}

// Drop closes the catalog and releases handle. Calling Drop on an unknown or
// already-dropped handle is a no-op, matching the Rust crate's `Box::drop`
// semantics of being safe to call exactly once.
func Drop(handle uintptr) error {
	registryMu.Lock()
	in, ok := registry[handle]
	if ok {
		delete(registry, handle)
	}
	registryMu.Unlock()
	if !ok {
		return nil
	}
	return in.db.Close()
}

// FullUpdate re-indexes the entire catalog from url. Serialized per handle:
// the Rust crate accepted only one in-flight update per Internals, and a
// second call while one is running blocks until the first completes.
func (in *Internals) FullUpdate(ctx context.Context, url string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.coord.Full(ctx, url)
}

// PartialUpdate applies url's items incrementally, deduplicating against
// the existing catalog per spec §4.6.
func (in *Internals) PartialUpdate(ctx context.Context, url string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.coord.Partial(ctx, url)
}

// Channels lists every distinct channel name.
func (in *Internals) Channels(sink func(string)) error {
	return in.db.Channels(sink)
}

// Topics lists every distinct topic name under channelPrefix.
func (in *Internals) Topics(channelPrefix string, sink func(string)) error {
	return in.db.Topics(channelPrefix, sink)
}

// Query runs a filtered, sorted id scan.
func (in *Internals) Query(channel, topic, title string, sortColumn catalogdb.SortColumn, sortOrder catalogdb.SortOrder, sink func(int64)) error {
	return in.db.Query(channel, topic, title, sortColumn, sortOrder, sink)
}

// Fetch resolves id to its full record.
func (in *Internals) Fetch(id int64) (catalogdb.Show, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.db.Fetch(in.fetcher, id)
}
