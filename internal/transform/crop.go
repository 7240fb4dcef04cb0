package transform

import (
	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// crop performs the no-binning, no-compression transform. RAW10 and
// RAW12 buffers are cropped via an overlap-tolerant forward copy of
// each kept row; RAW16 buffers are always cropped and repacked down
// to RAW12, even at zero crop percentages, so the format dispatch
// downstream never has to special-case RAW16.
func crop(buf *rawbuffer.RawImageBuffer, cfg Config) error {
	if cfg.CropWidthPercent == 0 && cfg.CropHeightPercent == 0 &&
		(buf.PixelFormat == rawbuffer.RAW10 || buf.PixelFormat == rawbuffer.RAW12) {
		return nil
	}

	geo := computeCropGeometry(buf.Width, buf.Height, cfg.CropWidthPercent, cfg.CropHeightPercent)

	data := buf.Data.Lock()
	defer buf.Data.Unlock()

	var croppedRowStride int
	outFormat := buf.PixelFormat

	switch buf.PixelFormat {
	case rawbuffer.RAW10:
		croppedRowStride = 10 * geo.croppedWidth / 8
		byteOffset := 10 * geo.hCrop / 8
		forwardCropCopy(data, buf.RowStride, croppedRowStride, geo.ystart, geo.yend, byteOffset)

	case rawbuffer.RAW12:
		croppedRowStride = 12 * geo.croppedWidth / 8
		byteOffset := 10 * geo.hCrop / 8
		forwardCropCopy(data, buf.RowStride, croppedRowStride, geo.ystart, geo.yend, byteOffset)

	case rawbuffer.RAW16:
		croppedRowStride = 12 * geo.croppedWidth / 8
		repackRAW16ToRAW12(data, buf.RowStride, geo)
		outFormat = rawbuffer.RAW12

	default:
		return ErrUnsupportedFormat
	}

	buf.RowStride = croppedRowStride
	buf.Width = geo.croppedWidth
	buf.Height = geo.croppedHeight
	buf.PixelFormat = outFormat
	buf.IsCompressed = false
	buf.CompressionType = rawbuffer.Uncompressed

	buf.Data.SetValidRange(0, buf.RowStride*buf.Height)
	return nil
}

// forwardCropCopy moves each kept row from its source offset to a
// tighter destination offset. Destination never trails source for the
// same row since croppedRowStride <= the source's row extent, so a
// plain forward copy (Go's copy, like memmove) is overlap-safe.
func forwardCropCopy(data []byte, srcStride, dstStride, ystart, yend, byteOffset int) {
	for y := ystart; y < yend; y++ {
		srcOffset := srcStride*y + byteOffset
		dstOffset := dstStride * (y - ystart)
		copy(data[dstOffset:dstOffset+dstStride], data[srcOffset:srcOffset+dstStride])
	}
}

func repackRAW16ToRAW12(data []byte, rowStride int, geo cropGeometry) {
	dstOffset := 0
	for y := geo.ystart; y < geo.yend; y++ {
		for x := geo.hCrop; x < geo.xend; x += 2 {
			p0 := bayer.Read16(data, x, y, rowStride)
			p1 := bayer.Read16(data, x+1, y, rowStride)

			upper := uint8(p0&0x0F) | uint8(p1&0x0F)<<4

			data[dstOffset] = uint8(p0 >> 4)
			data[dstOffset+1] = uint8(p1 >> 4)
			data[dstOffset+2] = upper

			dstOffset += 3
		}
	}
}
