// Command rawstreamer exercises the capture pipeline against a
// synthetic camera: generated RAW10 frames are pushed through the
// streamer at a fixed rate and land in container shard files plus a
// WAVE file, the same way a host application would drive it with real
// sensor buffers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/config"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
	"github.com/motioncam/rawstreamer/internal/streamer"
	"github.com/motioncam/rawstreamer/internal/telemetry"
	"github.com/motioncam/rawstreamer/pkg/log"
)

func main() {
	outDir := flag.String("out", ".", "output directory")
	frames := flag.Int("frames", 120, "number of frames to capture")
	width := flag.Int("width", 1920, "frame width, multiple of 4")
	height := flag.Int("height", 1080, "frame height, multiple of 2")
	fps := flag.Int("fps", 60, "capture rate")
	shards := flag.Int("shards", 2, "number of container shard files")
	threads := flag.Int("threads", 4, "processor thread count")
	crop := flag.Int("crop", 0, "crop percentage, 0..100")
	bin := flag.Bool("bin", false, "enable 2x2 binning")
	compress := flag.Bool("compress", false, "enable lossless compression")
	poolSize := flag.Int("pool", 16, "max in-flight frame buffers")
	metaPath := flag.String("meta", "", "optional YAML camera descriptor")
	flag.Parse()

	if err := run(*outDir, *frames, *width, *height, *fps, *shards, *threads,
		*crop, *bin, *compress, *poolSize, *metaPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(
	outDir string,
	frames, width, height, fps, shards, threads int,
	crop int,
	bin, compress bool,
	poolSize int,
	metaPath string,
) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	logger := log.NewLogger(wg)
	logger.Start(ctx)
	go logger.LogToStdout(ctx)

	sampler := telemetry.New(2*time.Second, logger)
	go sampler.Run(ctx)

	var cameraMeta []byte
	if metaPath != "" {
		meta, err := config.LoadCameraMetadata(metaPath)
		if err != nil {
			return err
		}
		cameraMeta, err = meta.Marshal()
		if err != nil {
			return err
		}
	}

	videoOutputs := make([]io.Writer, 0, shards)
	for i := 0; i < shards; i++ {
		f, err := os.Create(filepath.Join(outDir, fmt.Sprintf("shard-%d.rawcontainer", i)))
		if err != nil {
			return err
		}
		defer f.Close()
		videoOutputs = append(videoOutputs, f)
	}

	audioFile, err := os.Create(filepath.Join(outDir, "audio.wav"))
	if err != nil {
		return err
	}
	defer audioFile.Close()

	stride := bayer.Stride10(width)
	capacity := stride * height
	if worstCase := (2*width + 1) * height; worstCase > capacity {
		capacity = worstCase
	}
	pool := rawbuffer.NewPool(capacity, poolSize)

	s := streamer.NewStreamer(pool, logger)
	s.SetCropAmount(crop, crop)
	s.SetBin(bin)
	s.Start(videoOutputs, audioFile, newToneSource(), compress, threads, cameraMeta)

	interval := time.Second / time.Duration(fps)
	dropped := 0
	for i := 0; i < frames; i++ {
		buf := pool.NewBuffer(width, height, stride, rawbuffer.RAW10)
		if buf == nil {
			dropped++
			time.Sleep(interval)
			continue
		}

		fillSynthetic(buf, i)
		buf.Meta.TimestampNs = time.Now().UnixNano()
		s.Add(buf)

		time.Sleep(interval)
	}

	s.Stop()

	status := sampler.Status()
	fmt.Printf("accepted %d frames (%d dropped at source), wrote %d frames / %d bytes, ~%.1f fps, cpu %d%% ram %d%%\n",
		s.AcceptedFrames(), dropped, s.WrittenFrames(), s.WrittenOutputBytes(),
		s.EstimateFps(), status.CPUPercent, status.RAMPercent)
	return nil
}

// fillSynthetic packs a moving horizontal gradient so consecutive
// frames differ and the compressed path sees sensor-like smooth data.
func fillSynthetic(buf *rawbuffer.RawImageBuffer, frame int) {
	data := buf.Data.Lock()
	size := buf.RowStride * buf.Height
	for i := 0; i < size; i++ {
		data[i] = byte((i + frame*7) % 251)
	}
	buf.Data.SetValidRange(0, size)
	buf.Data.Unlock()
}

// toneSource fakes the microphone: a 440 Hz tone synthesized for the
// wall-clock span between Start and Stop.
type toneSource struct {
	rate     int
	channels int
	started  time.Time
	stopped  time.Time
}

func newToneSource() *toneSource {
	return &toneSource{}
}

func (t *toneSource) Start(sampleRateHz, channels int) error {
	t.rate = sampleRateHz
	t.channels = channels
	t.started = time.Now()
	return nil
}

func (t *toneSource) Stop() {
	t.stopped = time.Now()
}

func (t *toneSource) AudioData() []int16 {
	elapsed := t.stopped.Sub(t.started).Seconds()
	frames := int(elapsed * float64(t.rate))

	samples := make([]int16, frames*t.channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(t.rate)))
		for c := 0; c < t.channels; c++ {
			samples[i*t.channels+c] = v
		}
	}
	return samples
}

func (t *toneSource) SampleRate() int { return t.rate }
func (t *toneSource) Channels() int   { return t.channels }
