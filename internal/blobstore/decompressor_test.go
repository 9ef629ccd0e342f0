package blobstore

import (
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type memBlobSource map[int64][]byte

func (m memBlobSource) ReadBlob(id int64) ([]byte, error) {
	b, ok := m[id]
	if !ok {
		return nil, errors.New("no such blob")
	}
	return b, nil
}

func compressFixture(t *testing.T, plain string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(plain), nil)
}

func TestBlobFetcherFetchesAndCaches(t *testing.T) {
	plain := "title\x00description\x00"
	src := memBlobSource{42: compressFixture(t, plain)}

	f, err := NewBlobFetcher()
	if err != nil {
		t.Fatalf("NewBlobFetcher: %v", err)
	}

	strs, err := f.Fetch(src, 42, 0, 2)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(strs) != 2 || strs[0] != "title" || strs[1] != "description" {
		t.Fatalf("Fetch = %#v, want [title description]", strs)
	}

	// Second fetch of the same blob id should hit the cache, not re-read.
	delete(src, 42)
	strs, err = f.Fetch(src, 42, 6, 1)
	if err != nil {
		t.Fatalf("cached Fetch: %v", err)
	}
	if len(strs) != 1 || strs[0] != "description" {
		t.Fatalf("cached Fetch = %#v, want [description]", strs)
	}
}

func TestBlobFetcherMissingBlob(t *testing.T) {
	f, err := NewBlobFetcher()
	if err != nil {
		t.Fatalf("NewBlobFetcher: %v", err)
	}
	if _, err := f.Fetch(memBlobSource{}, 1, 0, 1); err == nil {
		t.Fatal("expected error for missing blob")
	}
}

func TestFrameContentSizeRoundTrip(t *testing.T) {
	compressed := compressFixture(t, "hello world")
	size, ok, err := frameContentSize(compressed)
	if err != nil {
		t.Fatalf("frameContentSize: %v", err)
	}
	if !ok {
		t.Fatal("frameContentSize: ok = false, want true")
	}
	if size != uint64(len("hello world")) {
		t.Fatalf("size = %d, want %d", size, len("hello world"))
	}
}

func TestFrameContentSizeRejectsGarbage(t *testing.T) {
	if _, _, err := frameContentSize([]byte("not a zstd frame")); err == nil {
		t.Fatal("expected error for non-zstd input")
	}
}
