package streamer

import (
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/motioncam/rawstreamer/internal/container"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
	"github.com/motioncam/rawstreamer/internal/transform"
	"github.com/motioncam/rawstreamer/internal/wavewriter"
)

// Start spins up the pipeline: one writer goroutine per video output,
// max(numThreads, 1) processor goroutines, and audio capture at
// 48 kHz / 2 channels. Counters reset to zero. An empty output set is
// logged and ignored; the streamer stays non-running.
//
// Start is a no-op while already running.
func (s *Streamer) Start(
	videoOutputs []io.Writer,
	audioOutput io.Writer,
	audio AudioInterface,
	enableCompression bool,
	numThreads int,
	cameraMeta []byte,
) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	if len(videoOutputs) == 0 {
		s.mu.Unlock()
		s.logWarn("streamer", "", "start called with no output fds, ignoring")
		return
	}

	s.cfg.Compress = enableCompression
	cfg := s.cfg

	atomic.StoreUint64(&s.acceptedFrames, 0)
	atomic.StoreUint64(&s.writtenFrames, 0)
	atomic.StoreUint64(&s.writtenBytes, 0)

	// Fresh queues per run: Close during the previous Stop is
	// permanent, and stale frames from an aborted run must not leak
	// into this one.
	s.unprocessed = newBufferQueue()
	s.ready = newBufferQueue()
	unprocessed, ready := s.unprocessed, s.ready

	s.stopC = make(chan struct{})
	s.audio = audio
	s.audioOut = audioOutput
	s.startTime = time.Now()
	s.running = true
	s.mu.Unlock()

	if audio != nil {
		if err := audio.Start(soundSampleRateHz, soundChannelCount); err != nil {
			s.logWarn("audio", "", "start capture: "+err.Error())
		}
	}

	if numThreads < 1 {
		numThreads = 1
	}
	for i := 0; i < numThreads; i++ {
		s.processorsWG.Add(1)
		go s.processorLoop(unprocessed, ready, cfg)
	}

	for i, out := range videoOutputs {
		header := container.Header{
			ShardIndex:     uint32(i),
			ShardCount:     uint32(len(videoOutputs)),
			CameraMetadata: cameraMeta,
		}
		wtr, err := container.NewWriter(out, header)
		if err != nil {
			s.logError("writer", shardName(i), "open shard: "+err.Error())
			continue
		}

		s.writersWG.Add(1)
		go s.writerLoop(shardName(i), wtr, unprocessed, ready, cfg)
	}
}

// Stop shuts the pipeline down: flip the running flag, stop audio and
// persist the captured samples as a WAVE file, join the processors,
// then join the writers, which drain both queues (Ready first, then
// Unprocessed with in-goroutine transforms) and commit their shards
// before exiting.
//
// Stop is a no-op while not running.
func (s *Streamer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopC)
	audio := s.audio
	audioOut := s.audioOut
	unprocessed, ready := s.unprocessed, s.ready
	s.mu.Unlock()

	if audio != nil {
		audio.Stop()
		s.writeAudioFile(audio, audioOut)
	}

	// Wake blocked consumers instead of waiting out their timeouts.
	unprocessed.Close()
	ready.Close()

	s.processorsWG.Wait()
	s.writersWG.Wait()

	if s.logger != nil && s.pool != nil {
		st := s.pool.Stats()
		s.logger.Info().Src("streamer").
			Msgf("stopped, buffer pool: %d allocated, %d free, max %d", st.Allocated, st.Free, st.Max)
	}
}

func (s *Streamer) writeAudioFile(audio AudioInterface, out io.Writer) {
	if out == nil {
		s.logWarn("audio", "", "no audio fd, skipping wave file")
		return
	}

	samples := audio.AudioData()
	err := wavewriter.Write(out, samples, audio.SampleRate(), audio.Channels())
	if err != nil {
		s.logError("audio", "", "write wave file: "+err.Error())
		return
	}
	s.logInfo("audio", "", "wrote "+strconv.Itoa(len(samples))+" samples")
}

// processorLoop consumes Unprocessed and feeds Ready until the
// streamer stops. Leftover frames are the writers' problem: the drain
// protocol transforms them in the writer goroutines, so processors
// just exit.
func (s *Streamer) processorLoop(unprocessed, ready *bufferQueue, cfg transform.Config) {
	defer s.processorsWG.Done()

	if s.testProcessorGate != nil {
		select {
		case <-s.testProcessorGate:
		case <-s.stopC:
			return
		}
	}

	for s.IsRunning() {
		buf, ok := unprocessed.WaitDequeueTimed(processorDequeueTimeout)
		if !ok {
			continue
		}
		s.processBuffer(buf, ready, cfg)
	}
}

// processBuffer transforms buf and hands it to the ready queue.
// Unsupported formats pass through untouched for the writer to skip;
// capacity and cursor violations drop the frame.
func (s *Streamer) processBuffer(buf *rawbuffer.RawImageBuffer, ready *bufferQueue, cfg transform.Config) {
	err := transform.Process(buf, cfg)
	switch {
	case err == nil:
		ready.Enqueue(buf)
	case errors.Is(err, transform.ErrUnsupportedFormat):
		s.logWarn("processor", "", "unsupported pixel format "+buf.PixelFormat.String())
		ready.Enqueue(buf)
	default:
		s.logError("processor", "", "dropping frame: "+err.Error())
		rawbuffer.Discard(buf)
	}
}

// writerLoop consumes Ready and appends frames to its own shard. On
// shutdown it runs the drain protocol: empty Ready via the fast path,
// then empty Unprocessed by running the transform here in the writer
// goroutine, then commit the shard.
func (s *Streamer) writerLoop(shard string, wtr *container.Writer, unprocessed, ready *bufferQueue, cfg transform.Config) {
	defer s.writersWG.Done()

	if err := setRealtimePriority(); err != nil {
		s.logInfo("writer", shard, "realtime priority unavailable: "+err.Error())
	}

	for s.IsRunning() {
		buf, ok := ready.WaitDequeueTimed(writerDequeueTimeout)
		if !ok {
			continue
		}
		s.writeBuffer(shard, wtr, buf)
	}

	// A processor may still hold a frame it dequeued before the stop
	// flag flipped; draining before it lands in Ready would lose it.
	s.processorsWG.Wait()

	for {
		if buf, ok := ready.TryDequeue(); ok {
			s.writeBuffer(shard, wtr, buf)
			continue
		}
		buf, ok := unprocessed.TryDequeue()
		if !ok {
			break
		}
		// Transformed frames land back in Ready, where this writer or
		// a sibling still draining picks them up.
		s.processBuffer(buf, ready, cfg)
	}

	if err := wtr.Commit(); err != nil {
		s.logError("writer", shard, "commit: "+err.Error())
		return
	}
	s.logInfo("writer", shard, "committed "+strconv.FormatUint(wtr.FrameCount(), 10)+" frames")
}

// writeBuffer appends buf to wtr and updates the telemetry counters.
// A failed shard stops appending but keeps consuming so the remaining
// shards don't starve behind it.
func (s *Streamer) writeBuffer(shard string, wtr *container.Writer, buf *rawbuffer.RawImageBuffer) {
	switch buf.PixelFormat {
	case rawbuffer.RAW10, rawbuffer.RAW12, rawbuffer.RAW16:
	default:
		s.logWarn("writer", shard, "skipping frame with pixel format "+buf.PixelFormat.String())
		rawbuffer.Discard(buf)
		return
	}

	if wtr.Failed() {
		rawbuffer.Discard(buf)
		return
	}

	before := wtr.WrittenBytes()
	if err := wtr.Add(buf, true); err != nil {
		s.logError("writer", shard, err.Error())
		return
	}

	atomic.AddUint64(&s.writtenFrames, 1)
	atomic.AddUint64(&s.writtenBytes, wtr.WrittenBytes()-before)
}

func shardName(i int) string {
	return "shard-" + strconv.Itoa(i)
}

func (s *Streamer) logInfo(src, shard, msg string) {
	if s.logger == nil {
		return
	}
	s.logger.Info().Src(src).Shard(shard).Msg(msg)
}

func (s *Streamer) logWarn(src, shard, msg string) {
	if s.logger == nil {
		return
	}
	s.logger.Warn().Src(src).Shard(shard).Msg(msg)
}

func (s *Streamer) logError(src, shard, msg string) {
	if s.logger == nil {
		return
	}
	s.logger.Error().Src(src).Shard(shard).Msg(msg)
}
