// Package blobstore accumulates null-delimited strings into staging
// buffers and compresses them off the foreground thread, addressing each
// compressed blob by an application-supplied tag (the pre-allocated blob
// id). It also provides the read-side counterpart: a single-blob
// decompression cache keyed by blob id.
package blobstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrEmbeddedNul is returned by Push when text contains a NUL byte, which
// would corrupt the null-delimited framing of the staging buffer.
var ErrEmbeddedNul = errors.New("blobstore: text contains embedded NUL")

// compressionLevel approximates the zstd level 12 quality/speed trade-off
// the original indexer used. klauspost/compress/zstd exposes named speed
// tiers rather than numeric levels; SpeedBetterCompression is the closest
// match to level 12's "favor ratio over raw throughput" intent.
const compressionLevel = zstd.SpeedBetterCompression

// result is one completed compression job, identified by the tag the
// caller attached to the buffer when it was rotated out.
type result[T any] struct {
	tag        T
	compressed []byte
	err        error
}

// BackgroundCompressor accumulates text into a staging buffer of
// NUL-terminated strings and compresses filled buffers on a worker pool,
// delivering completions out of submission order. Not safe for concurrent
// use by multiple goroutines; it is meant to be owned by a single indexer
// loop.
//
// Completed jobs land in a mutex-guarded queue rather than being sent on a
// channel: a pool worker must never block handing back its result, because
// two compressors (text and url) share one worker pool, and a worker
// blocked delivering one compressor's result while that compressor's
// consumer is busy elsewhere would starve the other compressor's Rotate
// calls of workers entirely.
type BackgroundCompressor[T any] struct {
	pool *Pool
	buf  []byte

	mu      sync.Mutex
	queue   []result[T]
	notify  chan struct{}
	pending int
}

// New returns a BackgroundCompressor that submits compression jobs to pool.
// A nil pool uses DefaultPool.
func New[T any](pool *Pool) *BackgroundCompressor[T] {
	if pool == nil {
		pool = DefaultPool
	}
	return &BackgroundCompressor[T]{
		pool:   pool,
		notify: make(chan struct{}, 1),
	}
}

// tryPop removes and returns the oldest queued result, if any. It never
// blocks.
func (c *BackgroundCompressor[T]) tryPop() (result[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return result[T]{}, false
	}
	r := c.queue[0]
	c.queue = c.queue[1:]
	return r, true
}

// deliver is called from a pool worker goroutine once a job finishes. It
// appends to the queue under a short-lived lock and pings notify — neither
// step can block the worker indefinitely.
func (c *BackgroundCompressor[T]) deliver(r result[T]) {
	c.mu.Lock()
	c.queue = append(c.queue, r)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// waitPop blocks until at least one result is queued, then pops it.
func (c *BackgroundCompressor[T]) waitPop() result[T] {
	for {
		if r, ok := c.tryPop(); ok {
			return r
		}
		<-c.notify
	}
}

// Push appends text plus a terminating NUL to the staging buffer and
// returns the byte offset at which text begins.
func (c *BackgroundCompressor[T]) Push(text string) (uint32, error) {
	if strings.IndexByte(text, 0) >= 0 {
		return 0, ErrEmbeddedNul
	}
	offset := uint32(len(c.buf))
	c.buf = append(c.buf, text...)
	c.buf = append(c.buf, 0)
	return offset, nil
}

// Len returns the current staging buffer length in bytes.
func (c *BackgroundCompressor[T]) Len() int {
	return len(c.buf)
}

// Rotate swaps the staging buffer for an empty one and submits the filled
// buffer to the worker pool for compression under tag. If a previously
// submitted job has already completed, its result is delivered to sink
// before the swap — synchronously, and in the order it happened to finish,
// not necessarily the order it was submitted.
func (c *BackgroundCompressor[T]) Rotate(tag T, sink func(T, []byte) error) error {
	if r, ok := c.tryPop(); ok {
		c.pending--
		if r.err != nil {
			return r.err
		}
		if err := sink(r.tag, r.compressed); err != nil {
			return err
		}
	}

	todo := c.buf
	c.buf = nil
	c.pending++
	c.pool.Submit(func() {
		compressed, err := compress(todo)
		c.deliver(result[T]{tag: tag, compressed: compressed, err: err})
	})
	return nil
}

// Finish signals end of input: the current staging buffer (if non-empty)
// is submitted under tag, and every outstanding job — including ones from
// prior Rotate calls — is drained and delivered to sink in completion
// order. Draining continues even after sink or a job itself errors, so no
// job is left outstanding; the first error encountered is returned.
func (c *BackgroundCompressor[T]) Finish(tag T, sink func(T, []byte) error) error {
	if len(c.buf) > 0 {
		todo := c.buf
		c.buf = nil
		c.pending++
		c.pool.Submit(func() {
			compressed, err := compress(todo)
			c.deliver(result[T]{tag: tag, compressed: compressed, err: err})
		})
	}

	var firstErr error
	for c.pending > 0 {
		r := c.waitPop()
		c.pending--
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		if err := sink(r.tag, r.compressed); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain waits for every outstanding job (from prior Rotate calls) to
// complete and discards its result without calling sink. Used when an
// update aborts before Finish: the transaction is being rolled back, so
// writing blob rows would be pointless, but jobs already submitted to the
// shared pool must still be waited out rather than left outstanding.
func (c *BackgroundCompressor[T]) Drain() {
	for c.pending > 0 {
		c.waitPop()
		c.pending--
	}
}

func compress(buf []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(compressionLevel))
	if err != nil {
		return nil, fmt.Errorf("blobstore: create encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf, make([]byte, 0, len(buf)/2)), nil
}
