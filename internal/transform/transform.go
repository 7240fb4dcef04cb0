// Package transform implements the per-frame CPU kernel that crops,
// optionally bins, and optionally compresses a RawImageBuffer in
// place over its own backing storage.
//
// One generic kernel parameterized by a bayer.Read* accessor covers
// all three pixel formats; the control flow is identical per format,
// only the sample load differs.
package transform

import (
	"errors"
	"math"

	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// ErrUnsupportedFormat is returned when a buffer's PixelFormat is
// outside {RAW10, RAW12, RAW16}. The buffer is left untouched on this
// error; callers still enqueue it downstream.
var ErrUnsupportedFormat = errors.New("transform: unsupported pixel format")

// ErrCursorViolation reports the in-place compression invariant being
// violated: the write cursor caught up with the next unconsumed
// source row. The frame is dropped.
var ErrCursorViolation = errors.New("transform: write cursor overran read cursor")

// Config holds the streamer-wide transform settings, honored only
// while the streamer is not running.
type Config struct {
	CropWidthPercent  int // 0..100
	CropHeightPercent int // 0..100
	Bin               bool
	Compress          bool
}

// Process runs exactly one of crop / cropAndCompress / cropAndBin on
// buf according to cfg. Returns ErrUnsupportedFormat,
// ErrCursorViolation, or an error wrapping bayer.ErrCapacityExceeded
// on failure; buf's metadata fields are only mutated on success.
func Process(buf *rawbuffer.RawImageBuffer, cfg Config) error {
	if cfg.Bin {
		return cropAndBin(buf, cfg)
	}
	if cfg.Compress {
		return cropAndCompress(buf, cfg)
	}
	return crop(buf, cfg)
}

// cropAmount computes the crop offset for one axis: round(dim *
// pct/100 / 2), then floored to a multiple of align so Bayer phase is
// preserved on both the left/top and right/bottom edges.
func cropAmount(dim, pct, align int) int {
	inner := int(math.Round(0.5 * float64(pct) / 100.0 * float64(dim)))
	return align * (inner / align)
}

// cropGeometry bundles the crop computation shared by all three
// transform entry points.
type cropGeometry struct {
	hCrop, vCrop           int
	croppedWidth           int
	croppedHeight          int
	xstart, xend           int
	ystart, yend           int
}

func computeCropGeometry(width, height, cropWidthPct, cropHeightPct int) cropGeometry {
	hCrop := cropAmount(width, cropWidthPct, 4)
	vCrop := cropAmount(height, cropHeightPct, 2)

	croppedWidth := width - 2*hCrop
	croppedHeight := height - 2*vCrop

	return cropGeometry{
		hCrop:         hCrop,
		vCrop:         vCrop,
		croppedWidth:  croppedWidth,
		croppedHeight: croppedHeight,
		xstart:        hCrop,
		xend:          width - hCrop,
		ystart:        vCrop,
		yend:          height - vCrop,
	}
}

// sampleReader reads one Bayer sample at (x, y) from a packed buffer
// with the given row stride.
type sampleReader func(data []byte, x, y, stride int) uint16

func readerFor(format rawbuffer.PixelFormat) (sampleReader, bool) {
	switch format {
	case rawbuffer.RAW10:
		return bayer.Read10, true
	case rawbuffer.RAW12:
		return bayer.Read12, true
	case rawbuffer.RAW16:
		return bayer.Read16, true
	default:
		return nil, false
	}
}
