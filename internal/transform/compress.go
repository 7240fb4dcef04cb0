package transform

import (
	"fmt"

	"github.com/motioncam/rawstreamer/internal/bayer"
	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// cropAndCompress performs the compression-without-binning transform:
// each cropped row is read into a half-interleaved uint16 scratch
// row, then BNZP16-encoded into the backing buffer at the current
// write offset.
//
// The backing buffer is read and written in place, so the write
// cursor must never catch up with a row the read cursor has not yet
// consumed; that invariant is checked after every row and the frame
// dropped on violation.
func cropAndCompress(buf *rawbuffer.RawImageBuffer, cfg Config) error {
	reader, ok := readerFor(buf.PixelFormat)
	if !ok {
		return ErrUnsupportedFormat
	}

	geo := computeCropGeometry(buf.Width, buf.Height, cfg.CropWidthPercent, cfg.CropHeightPercent)
	half := geo.croppedWidth / 2

	data := buf.Data.Lock()
	defer buf.Data.Unlock()

	row := make([]uint16, geo.croppedWidth)
	scratch := make([]byte, 2*geo.croppedWidth+1)

	offset := 0
	for y := geo.ystart; y < geo.yend; y++ {
		for x := geo.xstart; x < geo.xend; x += 2 {
			p0 := reader(data, x, y, buf.RowStride)
			p1 := reader(data, x+1, y, buf.RowStride)

			X := (x - geo.xstart) >> 1
			row[X] = p0
			row[half+X] = p1
		}

		n, err := bayer.EncodeBNZP16(scratch, row)
		if err != nil {
			return fmt.Errorf("transform: cropAndCompress row %d: %w", y, err)
		}

		if offset+n > len(data) {
			return fmt.Errorf("transform: cropAndCompress row %d: %w", y, bayer.ErrCapacityExceeded)
		}

		// Safety invariant: the write cursor must stay behind the
		// next row we have not read yet, since reads and writes share
		// the same backing buffer.
		nextReadOffset := buf.RowStride * (y + 1)
		if offset+n > nextReadOffset && y+1 < geo.yend {
			return ErrCursorViolation
		}

		copy(data[offset:offset+n], scratch[:n])
		offset += n
	}

	buf.PixelFormat = rawbuffer.RAW16
	buf.RowStride = geo.croppedWidth * 2
	buf.Width = geo.croppedWidth
	buf.Height = geo.croppedHeight
	buf.IsCompressed = true
	buf.CompressionType = rawbuffer.BNZP16

	buf.Data.SetValidRange(0, offset)
	return nil
}
