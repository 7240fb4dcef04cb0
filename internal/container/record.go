package container

import (
	"encoding/binary"
	"math"

	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// Frame record flags, packed into one bitmask byte.
const (
	flagIsBinned     = uint8(0x1)
	flagIsCompressed = uint8(0x2)
)

// recordHeaderSize is FrameHeader's fixed marshaled size:
// timestamp(8) + iso(4) + exposure(8) + wb(12) + lensShading(4) +
// width(4) + height(4) + rowStride(4) + pixelFormat(1) +
// compressionType(1) + flags(1).
const recordHeaderSize = 8 + 4 + 8 + 12 + 4 + 4 + 4 + 4 + 1 + 1 + 1

// FrameHeader is the per-frame metadata blob written ahead of each
// frame's payload bytes.
type FrameHeader struct {
	TimestampNs       int64
	ISO               float32
	ExposureNs        int64
	WhiteBalance      [3]float32
	LensShadingOffset float32

	Width, Height, RowStride int32
	PixelFormat              uint8
	CompressionType          uint8
	IsBinned                 bool
	IsCompressed             bool
}

// FrameHeaderFromBuffer builds a FrameHeader from a transformed
// RawImageBuffer's metadata and current geometry.
func FrameHeaderFromBuffer(buf *rawbuffer.RawImageBuffer) FrameHeader {
	return FrameHeader{
		TimestampNs:       buf.Meta.TimestampNs,
		ISO:               buf.Meta.ISO,
		ExposureNs:        buf.Meta.ExposureNs,
		WhiteBalance:      buf.Meta.WhiteBalance,
		LensShadingOffset: buf.Meta.LensShadingOffset,
		Width:             int32(buf.Width),
		Height:            int32(buf.Height),
		RowStride:         int32(buf.RowStride),
		PixelFormat:       uint8(buf.PixelFormat),
		CompressionType:   uint8(buf.CompressionType),
		IsBinned:          buf.IsBinned,
		IsCompressed:      buf.IsCompressed,
	}
}

// Marshal encodes fh into a fixed recordHeaderSize-byte blob.
func (fh FrameHeader) Marshal() []byte {
	out := make([]byte, recordHeaderSize)
	pos := 0

	binary.BigEndian.PutUint64(out[pos:pos+8], uint64(fh.TimestampNs))
	pos += 8
	binary.BigEndian.PutUint32(out[pos:pos+4], math.Float32bits(fh.ISO))
	pos += 4
	binary.BigEndian.PutUint64(out[pos:pos+8], uint64(fh.ExposureNs))
	pos += 8
	for _, c := range fh.WhiteBalance {
		binary.BigEndian.PutUint32(out[pos:pos+4], math.Float32bits(c))
		pos += 4
	}
	binary.BigEndian.PutUint32(out[pos:pos+4], math.Float32bits(fh.LensShadingOffset))
	pos += 4
	binary.BigEndian.PutUint32(out[pos:pos+4], uint32(fh.Width))
	pos += 4
	binary.BigEndian.PutUint32(out[pos:pos+4], uint32(fh.Height))
	pos += 4
	binary.BigEndian.PutUint32(out[pos:pos+4], uint32(fh.RowStride))
	pos += 4
	out[pos] = fh.PixelFormat
	pos++
	out[pos] = fh.CompressionType
	pos++

	var flags uint8
	if fh.IsBinned {
		flags |= flagIsBinned
	}
	if fh.IsCompressed {
		flags |= flagIsCompressed
	}
	out[pos] = flags
	pos++

	return out
}

// UnmarshalFrameHeader decodes a FrameHeader from a recordHeaderSize
// byte slice.
func UnmarshalFrameHeader(buf []byte) FrameHeader {
	var fh FrameHeader
	pos := 0

	fh.TimestampNs = int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
	pos += 8
	fh.ISO = math.Float32frombits(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	fh.ExposureNs = int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
	pos += 8
	for i := range fh.WhiteBalance {
		fh.WhiteBalance[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
	}
	fh.LensShadingOffset = math.Float32frombits(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	fh.Width = int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	fh.Height = int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	fh.RowStride = int32(binary.BigEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	fh.PixelFormat = buf[pos]
	pos++
	fh.CompressionType = buf[pos]
	pos++

	flags := buf[pos]
	fh.IsBinned = flags&flagIsBinned != 0
	fh.IsCompressed = flags&flagIsCompressed != 0

	return fh
}
