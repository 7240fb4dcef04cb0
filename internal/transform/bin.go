package transform

import (
	"fmt"

	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// cropAndBin performs the 2x2 Bayer-aware box bin: a separable
// [1,2,1]/16 kernel evaluated at the four phase positions of each 4x4
// source tile. The boundary policy is asymmetric (clamp low, wrap
// high) and must stay that way for golden-frame compatibility.
func cropAndBin(buf *rawbuffer.RawImageBuffer, cfg Config) error {
	reader, ok := readerFor(buf.PixelFormat)
	if !ok {
		return ErrUnsupportedFormat
	}

	geo := computeCropGeometry(buf.Width, buf.Height, cfg.CropWidthPercent, cfg.CropHeightPercent)
	binnedWidth := geo.croppedWidth / 2
	half := binnedWidth / 2

	data := buf.Data.Lock()
	defer buf.Data.Unlock()

	row0 := make([]uint16, binnedWidth)
	row1 := make([]uint16, binnedWidth)
	scratch := make([]byte, 2*binnedWidth+1)

	offset := 0
	for y := geo.ystart; y < geo.yend; y += 4 {
		for x := geo.xstart; x < geo.xend; x += 4 {
			X := (x - geo.xstart) >> 2

			row0[X] = binSample(reader, data, buf.RowStride, buf.Width, buf.Height, x, y)
			row0[X+half] = binSample(reader, data, buf.RowStride, buf.Width, buf.Height, x+1, y)
			row1[X] = binSample(reader, data, buf.RowStride, buf.Width, buf.Height, x, y+1)
			row1[X+half] = binSample(reader, data, buf.RowStride, buf.Width, buf.Height, x+1, y+1)
		}

		if cfg.Compress {
			n0, err := bayer.EncodeBNZP16(scratch, row0)
			if err != nil {
				return fmt.Errorf("transform: cropAndBin row0 y=%d: %w", y, err)
			}
			if offset+n0 > len(data) {
				return fmt.Errorf("transform: cropAndBin row0 y=%d: %w", y, bayer.ErrCapacityExceeded)
			}
			copy(data[offset:offset+n0], scratch[:n0])
			offset += n0

			n1, err := bayer.EncodeBNZP16(scratch, row1)
			if err != nil {
				return fmt.Errorf("transform: cropAndBin row1 y=%d: %w", y, err)
			}
			if offset+n1 > len(data) {
				return fmt.Errorf("transform: cropAndBin row1 y=%d: %w", y, bayer.ErrCapacityExceeded)
			}
			copy(data[offset:offset+n1], scratch[:n1])
			offset += n1
		} else {
			if offset+2*len(row0) > len(data) {
				return fmt.Errorf("transform: cropAndBin y=%d: %w", y, bayer.ErrCapacityExceeded)
			}
			offset += writePacked(buf.PixelFormat, data[offset:], row0)
			offset += writePacked(buf.PixelFormat, data[offset:], row1)
		}
	}

	buf.Width = binnedWidth
	buf.Height = geo.croppedHeight / 2
	buf.IsBinned = true

	if cfg.Compress {
		buf.PixelFormat = rawbuffer.RAW16
		buf.IsCompressed = true
		buf.CompressionType = rawbuffer.BNZP16
		buf.RowStride = 2 * buf.Width
	} else {
		buf.IsCompressed = false
		buf.CompressionType = rawbuffer.Uncompressed

		if buf.PixelFormat == rawbuffer.RAW16 {
			buf.PixelFormat = rawbuffer.RAW12
		}
		if buf.PixelFormat == rawbuffer.RAW10 {
			buf.RowStride = 10 * buf.Width / 8
		} else {
			buf.RowStride = 12 * buf.Width / 8
		}
	}

	buf.Data.SetValidRange(0, offset)
	return nil
}

// writePacked repacks a half-interleaved binned row back into RAW10
// or RAW12 (RAW16 sources repack to RAW12, matching crop's repack
// writer).
func writePacked(format rawbuffer.PixelFormat, dst []byte, row []uint16) int {
	if format == rawbuffer.RAW10 {
		return bayer.WriteRow10(dst, row)
	}
	return bayer.WriteRow12(dst, row)
}

// binSample evaluates the 9-tap kernel centered at (ix, iy), with the
// left/top neighbors clamped to 0 and the right/bottom neighbors
// wrapped modulo the full (uncropped) buffer dimensions.
func binSample(reader sampleReader, data []byte, stride, width, height, ix, iy int) uint16 {
	ixM2 := ix - 2
	if ixM2 < 0 {
		ixM2 = 0
	}
	ixP2 := (ix + 2) % width

	iyM2 := iy - 2
	if iyM2 < 0 {
		iyM2 = 0
	}
	iyP2 := (iy + 2) % height

	p0 := uint32(reader(data, ixM2, iyM2, stride))
	p1 := uint32(reader(data, ix, iyM2, stride)) << 1
	p2 := uint32(reader(data, ixP2, iyM2, stride))

	p3 := uint32(reader(data, ixM2, iy, stride)) << 1
	p4 := uint32(reader(data, ix, iy, stride)) << 2
	p5 := uint32(reader(data, ixP2, iy, stride)) << 1

	p6 := uint32(reader(data, ixM2, iyP2, stride))
	p7 := uint32(reader(data, ix, iyP2, stride)) << 1
	p8 := uint32(reader(data, ixP2, iyP2, stride))

	return uint16((p0 + p1 + p2 + p3 + p4 + p5 + p6 + p7 + p8) >> 4)
}
