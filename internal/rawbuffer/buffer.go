// Package rawbuffer defines RawImageBuffer, the unit of work passed
// between the streamer's queues, and the pooled backing storage it
// borrows its bytes from.
//
// A buffer is alive in at most one stage at a time: queues transfer
// ownership (a pointer handed off, never shared concurrently) rather
// than giving two stages access to the same Data at once.
package rawbuffer

import "sync"

// PixelFormat identifies a Bayer sample packing.
type PixelFormat int

// Supported pixel formats.
const (
	RAW10 PixelFormat = iota
	RAW12
	RAW16
)

func (f PixelFormat) String() string {
	switch f {
	case RAW10:
		return "RAW10"
	case RAW12:
		return "RAW12"
	case RAW16:
		return "RAW16"
	default:
		return "UNKNOWN"
	}
}

// CompressionType identifies how a frame's payload bytes are encoded.
type CompressionType int

// Supported compression types.
const (
	Uncompressed CompressionType = iota
	BNZP16
)

// Metadata carries the per-frame fields forwarded verbatim to the
// container writer. This core never interprets them.
type Metadata struct {
	TimestampNs       int64
	ISO               float32
	ExposureNs        int64
	WhiteBalance      [3]float32
	LensShadingOffset float32
}

// RawImageBuffer is the sole shared mutable object handed between the
// streamer's stages: camera -> Unprocessed queue -> processor ->
// Ready queue -> writer -> container.
type RawImageBuffer struct {
	Width     int
	Height    int
	RowStride int

	PixelFormat     PixelFormat
	IsBinned        bool
	IsCompressed    bool
	CompressionType CompressionType

	Meta Metadata

	Data *Data
}

// Data is a reference-counted, resizable byte region with an
// exclusive lock/unlock discipline. While locked, the holder gets a
// mutable slice view and may shrink the valid range to the portion it
// actually produced; capacity never grows past what the pool
// allocated for it.
type Data struct {
	mu sync.Mutex

	buf   []byte
	begin int
	end   int

	refs int32

	pool *Pool
}

func newData(capacity int, pool *Pool) *Data {
	return &Data{
		buf:  make([]byte, capacity),
		end:  capacity,
		refs: 1,
		pool: pool,
	}
}

// Lock acquires exclusive access and returns the full backing slice.
// Callers index it using ValidRange (or their own tracked offsets)
// rather than assuming len(buf) is the live extent.
func (d *Data) Lock() []byte {
	d.mu.Lock()
	return d.buf
}

// Unlock releases exclusive access. Must be called exactly once per
// Lock, after any ValidRange update the caller intends to make.
func (d *Data) Unlock() {
	d.mu.Unlock()
}

// ValidRange returns the live [begin, end) subrange of the backing
// allocation. Must be called while holding the lock.
func (d *Data) ValidRange() (begin, end int) {
	return d.begin, d.end
}

// SetValidRange updates the live subrange. Must be called while
// holding the lock. end must not exceed cap(d.buf).
func (d *Data) SetValidRange(begin, end int) {
	d.begin = begin
	d.end = end
}

// Cap returns the full backing capacity in bytes, independent of the
// current valid range.
func (d *Data) Cap() int {
	return len(d.buf)
}

// AddRef increments the reference count, for a buffer handed to more
// than one collaborator at a time. Nothing does that today, but the
// discipline keeps Release symmetric.
func (d *Data) AddRef() {
	d.mu.Lock()
	d.refs++
	d.mu.Unlock()
}

// Release decrements the reference count and, if it reaches zero,
// returns the Data to its owning pool for reuse.
func (d *Data) Release() {
	d.mu.Lock()
	d.refs--
	remaining := d.refs
	d.mu.Unlock()

	if remaining == 0 && d.pool != nil {
		d.pool.put(d)
	}
}

// Discard releases one reference to buf's Data, which returns it to
// the pool it came from once no other reference remains. Convenience
// for the common single-owner path.
func Discard(buf *RawImageBuffer) {
	if buf == nil || buf.Data == nil {
		return
	}
	buf.Data.Release()
}
