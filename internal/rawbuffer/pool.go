package rawbuffer

import "sync"

// Pool is a thread-safe free list of fixed-capacity Data regions.
// Buffers are acquired, used by exactly one stage at a time, and
// returned via Data.Release for reuse rather than freed and
// reallocated per frame.
type Pool struct {
	mu sync.Mutex

	bufferCapacity int
	maxBuffers     int

	free      []*Data
	allocated int
}

// NewPool creates a pool that hands out Data regions of
// bufferCapacity bytes each, allocating at most maxBuffers of them
// before Acquire starts blocking-free returning nil.
func NewPool(bufferCapacity, maxBuffers int) *Pool {
	return &Pool{
		bufferCapacity: bufferCapacity,
		maxBuffers:     maxBuffers,
	}
}

// Acquire returns a Data region ready for use, reusing a released one
// if available, else allocating a fresh one up to maxBuffers. Returns
// nil if the pool is exhausted; callers treat this as a dropped frame
// rather than queueing indefinitely.
func (p *Pool) Acquire() *Data {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		d := p.free[n-1]
		p.free = p.free[:n-1]
		d.refs = 1
		d.begin, d.end = 0, len(d.buf)
		return d
	}

	if p.allocated >= p.maxBuffers {
		return nil
	}

	d := newData(p.bufferCapacity, p)
	p.allocated++
	return d
}

func (p *Pool) put(d *Data) {
	p.mu.Lock()
	p.free = append(p.free, d)
	p.mu.Unlock()
}

// Grow raises maxBuffers by extra, allowing that many additional
// concurrent allocations. The host calls this when telemetry shows
// memory headroom instead of letting the pool silently starve under
// load. Returns the new maxBuffers.
func (p *Pool) Grow(extra int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxBuffers += extra
	return p.maxBuffers
}

// Stats reports current pool occupancy.
type Stats struct {
	Allocated int // total Data regions ever allocated by this pool
	Free      int // regions currently sitting in the free list
	Max       int // current allocation ceiling
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Allocated: p.allocated,
		Free:      len(p.free),
		Max:       p.maxBuffers,
	}
}

// NewBuffer acquires a Data region from the pool and wraps it in a
// fresh RawImageBuffer with the given dimensions/format already set.
// Returns nil if the pool is exhausted.
func (p *Pool) NewBuffer(width, height, rowStride int, format PixelFormat) *RawImageBuffer {
	d := p.Acquire()
	if d == nil {
		return nil
	}
	return &RawImageBuffer{
		Width:       width,
		Height:      height,
		RowStride:   rowStride,
		PixelFormat: format,
		Data:        d,
	}
}
