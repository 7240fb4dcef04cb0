package streamer

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/container"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

func raw10Frame(t *testing.T, pool *rawbuffer.Pool, width, height int, ts int64) *rawbuffer.RawImageBuffer {
	t.Helper()

	stride := bayer.Stride10(width)
	buf := pool.NewBuffer(width, height, stride, rawbuffer.RAW10)
	require.NotNil(t, buf, "pool exhausted")

	data := buf.Data.Lock()
	for i := 0; i < stride*height; i++ {
		data[i] = byte(i)
	}
	buf.Data.SetValidRange(0, stride*height)
	buf.Data.Unlock()

	buf.Meta.TimestampNs = ts
	return buf
}

// raw12ConstantFrame packs a constant-valued RAW12 image in plain
// sequential sample order.
func raw12ConstantFrame(t *testing.T, pool *rawbuffer.Pool, width, height int, value uint16) *rawbuffer.RawImageBuffer {
	t.Helper()

	stride := bayer.Stride12(width)
	buf := pool.NewBuffer(width, height, stride, rawbuffer.RAW12)
	require.NotNil(t, buf, "pool exhausted")

	data := buf.Data.Lock()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 2 {
			offset := y*stride + (12*x)/8
			data[offset] = uint8(value >> 4)
			data[offset+1] = uint8(value >> 4)
			data[offset+2] = uint8(value&0x0F) | uint8(value&0x0F)<<4
		}
	}
	buf.Data.SetValidRange(0, stride*height)
	buf.Data.Unlock()

	return buf
}

func raw16Frame(t *testing.T, pool *rawbuffer.Pool, width, height int, value uint16) *rawbuffer.RawImageBuffer {
	t.Helper()

	stride := bayer.Stride16(width)
	buf := pool.NewBuffer(width, height, stride, rawbuffer.RAW16)
	require.NotNil(t, buf, "pool exhausted")

	data := buf.Data.Lock()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			binary.LittleEndian.PutUint16(data[y*stride+2*x:], value)
		}
	}
	buf.Data.SetValidRange(0, stride*height)
	buf.Data.Unlock()

	return buf
}

func scanShards(t *testing.T, outputs []*bytes.Buffer) []container.ScannedFrame {
	t.Helper()

	var all []container.ScannedFrame
	for i, out := range outputs {
		header, frames, footer, err := container.ScanShard(out.Bytes())
		require.NoError(t, err, "shard %d", i)
		require.NotNil(t, footer, "shard %d missing footer", i)
		require.Len(t, footer.Offsets, len(frames), "shard %d", i)
		require.Equal(t, uint32(i), header.ShardIndex)
		require.Equal(t, uint32(len(outputs)), header.ShardCount)
		all = append(all, frames...)
	}
	return all
}

func asWriters(outputs []*bytes.Buffer) []io.Writer {
	ws := make([]io.Writer, len(outputs))
	for i, out := range outputs {
		ws[i] = out
	}
	return ws
}

func TestPipelineHappyPath(t *testing.T) {
	const (
		width, height = 64, 16
		frameCount    = 24
	)
	stride := bayer.Stride10(width)

	pool := rawbuffer.NewPool(stride*height, frameCount)
	s := NewStreamer(pool, nil)

	outputs := []*bytes.Buffer{{}, {}}
	s.Start(asWriters(outputs), nil, nil, false, 4, []byte("camera-meta"))
	require.True(t, s.IsRunning())

	for i := 0; i < frameCount; i++ {
		s.Add(raw10Frame(t, pool, width, height, int64(i)))
	}
	s.Stop()
	require.False(t, s.IsRunning())

	frames := scanShards(t, outputs)
	require.Len(t, frames, frameCount)

	for _, f := range frames {
		require.Equal(t, uint8(rawbuffer.RAW10), f.Header.PixelFormat)
		require.Equal(t, int32(width), f.Header.Width)
		require.Equal(t, int32(height), f.Header.Height)
		require.Len(t, f.Payload, stride*height)
	}

	require.Equal(t, uint64(frameCount), s.AcceptedFrames())
	require.Equal(t, uint64(frameCount), s.WrittenFrames())
	require.GreaterOrEqual(t, s.WrittenOutputBytes(), uint64(frameCount*stride*height))
	require.Greater(t, s.EstimateFps(), 0.0)
}

func TestPipelineBinAndCompress(t *testing.T) {
	const (
		width, height = 80, 40
		value         = uint16(123)
	)
	stride := bayer.Stride12(width)

	pool := rawbuffer.NewPool(stride*height, 4)
	s := NewStreamer(pool, nil)

	s.SetCropAmount(10, 10)
	s.SetBin(true)

	outputs := []*bytes.Buffer{{}}
	s.Start(asWriters(outputs), nil, nil, true, 1, nil)

	s.Add(raw12ConstantFrame(t, pool, width, height, value))
	s.Stop()

	frames := scanShards(t, outputs)
	require.Len(t, frames, 1)
	f := frames[0]

	// 10% crop: hCrop=4, vCrop=2 -> 72x36 cropped -> 36x18 binned.
	require.Equal(t, int32(36), f.Header.Width)
	require.Equal(t, int32(18), f.Header.Height)
	require.Equal(t, uint8(rawbuffer.RAW16), f.Header.PixelFormat)
	require.Equal(t, uint8(rawbuffer.BNZP16), f.Header.CompressionType)
	require.True(t, f.Header.IsBinned)
	require.True(t, f.Header.IsCompressed)
	require.Equal(t, int32(2*36), f.Header.RowStride)

	// Binning a constant image is the identity on sample values
	// (weights sum to 16), so every decoded row is all `value`.
	offset := 0
	for y := 0; y < int(f.Header.Height); y++ {
		row, consumed, err := bayer.DecodeBNZP16(f.Payload[offset:], int(f.Header.Width))
		require.NoError(t, err)
		offset += consumed

		for x, v := range row {
			require.Equal(t, value, v, "y=%d x=%d", y, x)
		}
	}
	require.Equal(t, len(f.Payload), offset)
}

func TestPipelineShutdownDrain(t *testing.T) {
	const (
		width, height = 16, 4
		frameCount    = 100
	)
	stride := bayer.Stride10(width)

	pool := rawbuffer.NewPool(stride*height, frameCount)
	s := NewStreamer(pool, nil)

	outputs := []*bytes.Buffer{{}, {}}
	s.Start(asWriters(outputs), nil, nil, false, 2, nil)

	for i := 0; i < frameCount; i++ {
		s.Add(raw10Frame(t, pool, width, height, int64(i)))
	}
	// Stop immediately: most frames are still queued. The drain
	// protocol must persist every one of them.
	s.Stop()

	frames := scanShards(t, outputs)
	require.Len(t, frames, frameCount)
	require.Equal(t, uint64(frameCount), s.WrittenFrames())
}

func TestWriterDrainProcessesUnprocessed(t *testing.T) {
	const (
		width, height = 16, 4
		frameCount    = 10
	)
	stride := bayer.Stride16(width)

	pool := rawbuffer.NewPool(stride*height, frameCount)
	s := NewStreamer(pool, nil)
	// Park the single processor so nothing ever reaches Ready while
	// running; the writer must transform the backlog itself on stop.
	s.testProcessorGate = make(chan struct{})

	outputs := []*bytes.Buffer{{}}
	s.Start(asWriters(outputs), nil, nil, false, 1, nil)

	for i := 0; i < frameCount; i++ {
		s.Add(raw16Frame(t, pool, width, height, 0x0ABC))
	}
	s.Stop()

	frames := scanShards(t, outputs)
	require.Len(t, frames, frameCount)

	// The frames went through the transform (in the writer goroutine):
	// RAW16 input always repacks to RAW12.
	for _, f := range frames {
		require.Equal(t, uint8(rawbuffer.RAW12), f.Header.PixelFormat)
		require.Equal(t, int32(bayer.Stride12(width)), f.Header.RowStride)
		require.Len(t, f.Payload, bayer.Stride12(width)*height)
	}
}

func TestRAW16PassthroughBecomesRAW12(t *testing.T) {
	const width, height = 16, 4
	stride := bayer.Stride16(width)

	pool := rawbuffer.NewPool(stride*height, 1)
	s := NewStreamer(pool, nil)

	outputs := []*bytes.Buffer{{}}
	s.Start(asWriters(outputs), nil, nil, false, 1, nil)

	s.Add(raw16Frame(t, pool, width, height, 0x0123))
	s.Stop()

	frames := scanShards(t, outputs)
	require.Len(t, frames, 1)
	f := frames[0]

	require.Equal(t, uint8(rawbuffer.RAW12), f.Header.PixelFormat)
	require.Equal(t, int32(bayer.Stride12(width)), f.Header.RowStride)

	// Sample values survive the repack: Read12 over the payload gives
	// back the original 12-bit values.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			got := bayer.Read12(f.Payload, x, y, bayer.Stride12(width))
			require.Equal(t, uint16(0x0123), got, "y=%d x=%d", y, x)
		}
	}
}

type fakeAudio struct {
	samples []int16

	startedRate     int
	startedChannels int
	stopped         bool
}

func (f *fakeAudio) Start(sampleRateHz, channels int) error {
	f.startedRate = sampleRateHz
	f.startedChannels = channels
	return nil
}

func (f *fakeAudio) Stop()              { f.stopped = true }
func (f *fakeAudio) AudioData() []int16 { return f.samples }
func (f *fakeAudio) SampleRate() int    { return f.startedRate }
func (f *fakeAudio) Channels() int      { return f.startedChannels }

func TestAudioWaveOutput(t *testing.T) {
	const seconds = 2

	samples := make([]int16, seconds*soundSampleRateHz*soundChannelCount)
	for i := range samples {
		samples[i] = int16(i)
	}
	audio := &fakeAudio{samples: samples}

	pool := rawbuffer.NewPool(64, 1)
	s := NewStreamer(pool, nil)

	outputs := []*bytes.Buffer{{}}
	var audioOut bytes.Buffer
	s.Start(asWriters(outputs), &audioOut, audio, false, 1, nil)
	s.Stop()

	require.Equal(t, soundSampleRateHz, audio.startedRate)
	require.Equal(t, soundChannelCount, audio.startedChannels)
	require.True(t, audio.stopped)

	wave := audioOut.Bytes()
	require.Equal(t, "RIFF", string(wave[0:4]))
	require.Equal(t, "WAVE", string(wave[8:12]))
	require.Equal(t, uint16(soundChannelCount), binary.LittleEndian.Uint16(wave[22:24]))
	require.Equal(t, uint32(soundSampleRateHz), binary.LittleEndian.Uint32(wave[24:28]))
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(wave[34:36]))

	dataSize := binary.LittleEndian.Uint32(wave[40:44])
	require.Equal(t, uint32(seconds*soundSampleRateHz*soundChannelCount*2), dataSize)
	require.Len(t, wave, 44+int(dataSize))
}

func TestStartWithNoOutputsIsNoop(t *testing.T) {
	s := NewStreamer(rawbuffer.NewPool(64, 1), nil)
	s.Start(nil, nil, nil, false, 1, nil)
	require.False(t, s.IsRunning())
}

func TestSettersIgnoredWhileRunning(t *testing.T) {
	pool := rawbuffer.NewPool(64, 1)
	s := NewStreamer(pool, nil)

	outputs := []*bytes.Buffer{{}}
	s.Start(asWriters(outputs), nil, nil, false, 1, nil)

	s.SetBin(true)
	s.SetCropAmount(50, 50)
	s.SetCompress(true)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	require.False(t, cfg.Bin)
	require.Equal(t, 0, cfg.CropWidthPercent)

	s.Stop()
}

func TestAddWhileStoppedDiscards(t *testing.T) {
	pool := rawbuffer.NewPool(64, 2)
	s := NewStreamer(pool, nil)

	buf := pool.NewBuffer(4, 4, 8, rawbuffer.RAW10)
	s.Add(buf)

	// The buffer went straight back to the pool's free list.
	require.Equal(t, 1, pool.Stats().Free)
	require.Equal(t, uint64(1), s.AcceptedFrames())
}
