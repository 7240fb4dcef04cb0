// Package streamer implements the capture orchestrator: it owns the
// Unprocessed/Ready queue pair, spawns processor and writer
// goroutines, and drives the start/add/stop lifecycle.
//
// Shutdown is cooperative: every blocking wait is bounded by a
// timeout so goroutines re-check the running flag, and writers drain
// both queues before committing their shards.
package streamer

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/motioncam/rawstreamer/internal/queue"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
	"github.com/motioncam/rawstreamer/internal/transform"
	"github.com/motioncam/rawstreamer/pkg/log"
)

const (
	processorDequeueTimeout = 67 * time.Millisecond
	writerDequeueTimeout    = 100 * time.Millisecond

	soundSampleRateHz = 48000
	soundChannelCount = 2
)

// AudioInterface is the external audio capture contract: start at a
// rate/channel count, stop, then pull whatever was captured as one
// interleaved int16 span.
type AudioInterface interface {
	Start(sampleRateHz, channels int) error
	Stop()
	AudioData() []int16
	SampleRate() int
	Channels() int
}

// bufferQueue is the handoff queue type shared by both pipeline
// stages.
type bufferQueue = queue.Queue[*rawbuffer.RawImageBuffer]

func newBufferQueue() *bufferQueue {
	return queue.New[*rawbuffer.RawImageBuffer]()
}

// Streamer owns the capture pipeline's lifecycle.
type Streamer struct {
	pool   *rawbuffer.Pool
	logger *log.Logger

	unprocessed *bufferQueue
	ready       *bufferQueue

	mu      sync.Mutex
	running bool
	cfg     transform.Config
	stopC   chan struct{}

	audio    AudioInterface
	audioOut io.Writer

	processorsWG sync.WaitGroup
	writersWG    sync.WaitGroup

	startTime time.Time

	acceptedFrames uint64
	writtenFrames  uint64
	writtenBytes   uint64

	// testProcessorGate, when non-nil, parks every processor goroutine
	// until the gate is closed or the streamer stops. Lets tests pin
	// frames in Unprocessed to exercise the writer-side drain.
	testProcessorGate chan struct{}
}

// NewStreamer returns an idle Streamer. pool is the pool the host
// allocates frame buffers from; the streamer only reads its Stats for
// the shutdown log. logger may be nil.
func NewStreamer(pool *rawbuffer.Pool, logger *log.Logger) *Streamer {
	return &Streamer{
		pool:        pool,
		logger:      logger,
		unprocessed: newBufferQueue(),
		ready:       newBufferQueue(),
	}
}

// IsRunning reports whether the streamer is currently accepting
// frames and running its processor/writer goroutines.
func (s *Streamer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetCropAmount sets the crop percentages. Honored only while not
// running; otherwise silently ignored.
func (s *Streamer) SetCropAmount(widthPercent, heightPercent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cfg.CropWidthPercent = widthPercent
	s.cfg.CropHeightPercent = heightPercent
}

// SetBin enables or disables 2x2 binning. Honored only while not
// running.
func (s *Streamer) SetBin(bin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cfg.Bin = bin
}

// SetCompress enables or disables BNZP16 compression. Honored only
// while not running.
func (s *Streamer) SetCompress(compress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cfg.Compress = compress
}

// Add enqueues buf for processing and counts it as accepted,
// regardless of whether it is ultimately written. If the streamer is
// not running, buf is discarded back to its pool immediately instead
// of being enqueued.
func (s *Streamer) Add(buf *rawbuffer.RawImageBuffer) {
	atomic.AddUint64(&s.acceptedFrames, 1)

	s.mu.Lock()
	running := s.running
	q := s.unprocessed
	s.mu.Unlock()

	if !running {
		rawbuffer.Discard(buf)
		return
	}
	q.Enqueue(buf)
}

// EstimateFps returns acceptedFrames / elapsedSeconds, with a small
// epsilon denominator to avoid dividing by zero immediately after
// Start.
func (s *Streamer) EstimateFps() float64 {
	s.mu.Lock()
	start := s.startTime
	s.mu.Unlock()

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-6
	}

	accepted := atomic.LoadUint64(&s.acceptedFrames)
	return float64(accepted) / elapsed
}

// WrittenOutputBytes returns the total bytes committed across all
// shards so far.
func (s *Streamer) WrittenOutputBytes() uint64 {
	return atomic.LoadUint64(&s.writtenBytes)
}

// WrittenFrames returns the total frame records committed across all
// shards so far.
func (s *Streamer) WrittenFrames() uint64 {
	return atomic.LoadUint64(&s.writtenFrames)
}

// AcceptedFrames returns the total frames passed to Add so far.
func (s *Streamer) AcceptedFrames() uint64 {
	return atomic.LoadUint64(&s.acceptedFrames)
}
