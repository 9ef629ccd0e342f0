package blobstore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrUnknownFrameSize is returned when a compressed blob's zstd frame does
// not declare its uncompressed content size, so the decompressor cannot
// presize its output buffer.
var ErrUnknownFrameSize = errors.New("blobstore: zstd frame has no declared content size")

// Decompressor holds a reusable zstd decoding context and output buffer,
// sized from each frame's declared uncompressed size.
type Decompressor struct {
	dec *zstd.Decoder
	buf []byte
}

// NewDecompressor returns a ready Decompressor.
func NewDecompressor() (*Decompressor, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: create decoder: %w", err)
	}
	return &Decompressor{dec: dec}, nil
}

// Decompress decompresses compr into the Decompressor's reusable buffer and
// returns a view of it. The returned slice is invalidated by the next call.
func (d *Decompressor) Decompress(compr []byte) ([]byte, error) {
	size, ok, err := frameContentSize(compr)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read frame header: %w", err)
	}
	if !ok {
		return nil, ErrUnknownFrameSize
	}
	if cap(d.buf) < int(size) {
		d.buf = make([]byte, 0, size)
	}
	out, err := d.dec.DecodeAll(compr, d.buf[:0])
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompress: %w", err)
	}
	d.buf = out
	return out, nil
}

// BlobFetcher caches the single most recently decompressed blob, identified
// by its id, and scans NUL-terminated substrings out of it on request.
type BlobFetcher struct {
	decomp    *Decompressor
	cachedID  int64
	haveCache bool
	cached    []byte
}

// NewBlobFetcher returns a BlobFetcher with an empty cache.
func NewBlobFetcher() (*BlobFetcher, error) {
	d, err := NewDecompressor()
	if err != nil {
		return nil, err
	}
	return &BlobFetcher{decomp: d}, nil
}

// BlobSource reads the raw compressed bytes for a blob id, e.g. from the
// `blobs` table.
type BlobSource interface {
	ReadBlob(id int64) ([]byte, error)
}

// Fetch returns the cached or freshly decompressed content of blobID, then
// exactly count NUL-terminated substrings starting at offset; it returns an
// error if the blob ends before count terminated strings are found. Strings
// returned alias the fetcher's cache and are valid only until the
// next Fetch call.
func (f *BlobFetcher) Fetch(src BlobSource, blobID int64, offset int, count int) ([]string, error) {
	if !f.haveCache || f.cachedID != blobID {
		raw, err := src.ReadBlob(blobID)
		if err != nil {
			return nil, fmt.Errorf("blobstore: read blob %d: %w", blobID, err)
		}
		decoded, err := f.decomp.Decompress(raw)
		if err != nil {
			return nil, err
		}
		// Decompress's buffer is reused across calls; copy out since we
		// are about to cache it across Fetch invocations.
		f.cached = append(f.cached[:0], decoded...)
		f.cachedID = blobID
		f.haveCache = true
	}

	if offset < 0 || offset > len(f.cached) {
		return nil, fmt.Errorf("blobstore: offset %d out of range for blob %d (len %d)", offset, blobID, len(f.cached))
	}

	strs := make([]string, 0, count)
	pos := offset
	for i := 0; i < count; i++ {
		end := bytes.IndexByte(f.cached[pos:], 0)
		if end < 0 {
			return nil, fmt.Errorf("blobstore: blob %d missing NUL terminator at offset %d", blobID, pos)
		}
		strs = append(strs, string(f.cached[pos:pos+end]))
		pos += end + 1
	}
	return strs, nil
}

var zstdMagic = [4]byte{0x28, 0xB5, 0x2F, 0xFD}

// frameContentSize parses a zstd frame header to recover the declared
// uncompressed content size, per RFC 8878 section 3.1.1.1. ok is false when
// the frame legitimately omits the size (a streaming frame with unknown
// length), matching zstd's CONTENTSIZE_UNKNOWN.
func frameContentSize(data []byte) (size uint64, ok bool, err error) {
	if len(data) < 5 || [4]byte(data[:4]) != zstdMagic {
		return 0, false, fmt.Errorf("not a zstd frame")
	}
	idx := 4
	fhd := data[idx]
	idx++

	dictIDFlag := fhd & 0x3
	singleSegment := (fhd >> 5) & 1
	fcsFlag := (fhd >> 6) & 0x3

	if singleSegment == 0 {
		if idx >= len(data) {
			return 0, false, fmt.Errorf("truncated frame header")
		}
		idx++ // window descriptor
	}

	dictIDLen := [4]int{0, 1, 2, 4}[dictIDFlag]
	idx += dictIDLen

	var fcsLen int
	switch {
	case fcsFlag == 0 && singleSegment == 1:
		fcsLen = 1
	case fcsFlag == 0:
		return 0, false, nil // unknown
	case fcsFlag == 1:
		fcsLen = 2
	case fcsFlag == 2:
		fcsLen = 4
	default:
		fcsLen = 8
	}

	if idx+fcsLen > len(data) {
		return 0, false, fmt.Errorf("truncated frame header")
	}
	var v uint64
	for i := fcsLen - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[idx+i])
	}
	if fcsLen == 2 {
		v += 256
	}
	return v, true, nil
}
