package blobstore

import (
	"strings"
	"testing"
	"time"
)

func TestPushReturnsOffsetAndRejectsNul(t *testing.T) {
	c := New[int](nil)

	off, err := c.Push("title")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if off != 0 {
		t.Fatalf("first Push offset = %d, want 0", off)
	}

	off, err = c.Push("description")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if off != uint32(len("title\x00")) {
		t.Fatalf("second Push offset = %d, want %d", off, len("title\x00"))
	}

	if _, err := c.Push("bad\x00text"); err != ErrEmbeddedNul {
		t.Fatalf("Push with NUL: err = %v, want ErrEmbeddedNul", err)
	}
}

func TestLenTracksStagingBuffer(t *testing.T) {
	c := New[int](nil)
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	c.Push("abc")
	if want := len("abc\x00"); c.Len() != want {
		t.Fatalf("Len() = %d, want %d", c.Len(), want)
	}
}

func TestRotateThenFinishDeliversCompressedContent(t *testing.T) {
	c := New[int](nil)
	c.Push("title-one")
	c.Push("desc-one")

	var delivered []struct {
		tag        int
		compressed []byte
	}
	sink := func(tag int, compressed []byte) error {
		delivered = append(delivered, struct {
			tag        int
			compressed []byte
		}{tag, append([]byte(nil), compressed...)})
		return nil
	}

	if err := c.Rotate(1, sink); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	c.Push("title-two")
	if err := c.Finish(2, sink); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if len(delivered) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(delivered))
	}

	byTag := map[int][]byte{}
	for _, d := range delivered {
		byTag[d.tag] = d.compressed
	}

	dec, err := NewDecompressor()
	if err != nil {
		t.Fatalf("NewDecompressor: %v", err)
	}
	plain1, err := dec.Decompress(byTag[1])
	if err != nil {
		t.Fatalf("Decompress tag 1: %v", err)
	}
	want1 := "title-one\x00desc-one\x00"
	if string(plain1) != want1 {
		t.Fatalf("tag 1 decompressed = %q, want %q", plain1, want1)
	}

	plain2, err := dec.Decompress(byTag[2])
	if err != nil {
		t.Fatalf("Decompress tag 2: %v", err)
	}
	want2 := "title-two\x00"
	if string(plain2) != want2 {
		t.Fatalf("tag 2 decompressed = %q, want %q", plain2, want2)
	}
}

func TestFinishWithEmptyBufferDeliversNothingNew(t *testing.T) {
	c := New[int](nil)
	var calls int
	err := c.Finish(1, func(int, []byte) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if calls != 0 {
		t.Fatalf("sink called %d times, want 0", calls)
	}
}

// TestSharedPoolWorkerNeverBlocksOnDelivery pins two compressors to a
// single-worker pool and lets one of them pile up undrained jobs. A worker
// that blocked handing back a result (an unbuffered results channel, the
// bug this guards against) would never return to the pool, starving the
// other compressor's Rotate of a worker forever. With a non-blocking
// result queue, the worker always returns promptly.
func TestSharedPoolWorkerNeverBlocksOnDelivery(t *testing.T) {
	pool := NewPool(1)
	text := New[int](pool)
	urls := New[int](pool)

	noop := func(int, []byte) error { return nil }

	text.Push("a")
	if err := text.Rotate(1, noop); err != nil {
		t.Fatalf("Rotate 1: %v", err)
	}
	text.Push("b")
	if err := text.Rotate(2, noop); err != nil {
		t.Fatalf("Rotate 2: %v", err)
	}
	text.Push("c")
	if err := text.Rotate(3, noop); err != nil {
		t.Fatalf("Rotate 3: %v", err)
	}
	// text now has multiple jobs submitted to the pool with nothing draining
	// its queue. urls sharing the same single-worker pool must still make
	// progress.

	urls.Push("u")
	done := make(chan error, 1)
	go func() {
		done <- urls.Rotate(1, noop)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("urls.Rotate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("urls.Rotate blocked: a pool worker is stuck delivering text's result")
	}

	text.Drain()
	urls.Drain()
}

// TestDrainReleasesOutstandingJobsWithoutSink verifies the abort path: Drain
// waits out every job already submitted by Rotate without ever calling sink.
func TestDrainReleasesOutstandingJobsWithoutSink(t *testing.T) {
	c := New[int](nil)
	c.Push("x")
	sinkCalled := false
	if err := c.Rotate(1, func(int, []byte) error {
		sinkCalled = true
		return nil
	}); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	c.Drain()

	if sinkCalled {
		t.Fatal("Drain invoked sink; it must discard pending results instead")
	}
	if c.pending != 0 {
		t.Fatalf("pending = %d after Drain, want 0", c.pending)
	}
}

func TestPushRejectsEmbeddedNulBeforeAnyRowWritten(t *testing.T) {
	c := New[int](nil)
	before := c.Len()
	if _, err := c.Push(strings.Repeat("x", 3) + "\x00y"); err == nil {
		t.Fatal("expected error for embedded NUL")
	}
	if c.Len() != before {
		t.Fatalf("Len() changed after failed Push: got %d, want %d", c.Len(), before)
	}
}
