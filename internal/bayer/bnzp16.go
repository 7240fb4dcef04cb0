package bayer

import (
	"bytes"
	"errors"
	"math/bits"

	"github.com/icza/bitio"
)

// ErrCapacityExceeded is returned when a compressed row would not fit
// in the caller-provided destination slice. The frame transformer
// treats this as a dropped frame.
var ErrCapacityExceeded = errors.New("bayer: bnzp16 output exceeds destination capacity")

// A BNZP16 row is stored either raw or packed. The header byte's high
// bit (modeRawFlag) marks a raw row; a packed row stores the Rice
// parameter k in the header's low 5 bits (riceParamMask).
const (
	modeRawFlag   = 0x80
	riceParamMask = 0x1F
	maxRiceParam  = 30
	headerSize    = 1
)

// EncodeBNZP16 compresses row into dst and returns the number of
// bytes written, guaranteed <= 2*len(row)+1: the row is
// zigzag-delta/Rice-coded, falling back to a raw 16-bit copy whenever
// the packed encoding would not beat that bound.
//
// Returns ErrCapacityExceeded if dst is too small to hold even the
// raw fallback.
func EncodeBNZP16(dst []byte, row []uint16) (int, error) {
	rawSize := headerSize + 2*len(row)
	if len(dst) < rawSize {
		return 0, ErrCapacityExceeded
	}

	packed, ok := encodePacked(row)
	if ok && len(packed) <= rawSize {
		copy(dst, packed)
		return len(packed), nil
	}

	encodeRaw(dst, row)
	return rawSize, nil
}

// DecodeBNZP16 reconstructs the N-sample row encoded by EncodeBNZP16
// from in. N must match the value passed to Encode. Returns the
// decoded row and the number of bytes consumed from in, so callers can
// decode consecutive rows from one concatenated stream.
func DecodeBNZP16(in []byte, n int) ([]uint16, int, error) {
	if len(in) < headerSize {
		return nil, 0, errors.New("bayer: bnzp16 input too short")
	}

	header := in[0]
	if header&modeRawFlag != 0 {
		row, err := decodeRaw(in[headerSize:], n)
		if err != nil {
			return nil, 0, err
		}
		return row, headerSize + 2*n, nil
	}

	k := uint(header & riceParamMask)
	row, consumed, err := decodePacked(in[headerSize:], n, k)
	if err != nil {
		return nil, 0, err
	}
	return row, headerSize + consumed, nil
}

func encodeRaw(dst []byte, row []uint16) {
	dst[0] = modeRawFlag
	out := dst[headerSize:]
	for i, v := range row {
		out[2*i] = uint8(v)
		out[2*i+1] = uint8(v >> 8)
	}
}

func decodeRaw(in []byte, n int) ([]uint16, error) {
	if len(in) < 2*n {
		return nil, errors.New("bayer: bnzp16 raw payload too short")
	}
	row := make([]uint16, n)
	for i := range row {
		row[i] = uint16(in[2*i]) | uint16(in[2*i+1])<<8
	}
	return row, nil
}

// encodePacked zigzag-encodes the delta between consecutive samples
// (predicting from the previous sample, 0 for the first) and Rice
// codes the result with a parameter k chosen from the row's average
// magnitude. ok is false if bitio reports an error (never expected
// for an in-memory buffer, but plumbed through rather than ignored).
func encodePacked(row []uint16) ([]byte, bool) {
	k := chooseRiceParam(row)

	var buf bytes.Buffer
	buf.WriteByte(uint8(k) & riceParamMask)

	w := bitio.NewWriter(&buf)
	var prev uint16
	for _, v := range row {
		delta := int32(v) - int32(prev)
		prev = v

		zz := zigzagEncode(delta)
		if err := writeRice(w, zz, k); err != nil {
			return nil, false
		}
	}
	if err := w.Close(); err != nil {
		return nil, false
	}

	return buf.Bytes(), true
}

func decodePacked(in []byte, n int, k uint) ([]uint16, int, error) {
	br := bytes.NewReader(in)
	r := bitio.NewReader(br)
	row := make([]uint16, n)

	var prev int32
	for i := 0; i < n; i++ {
		zz, err := readRice(r, k)
		if err != nil {
			return nil, 0, err
		}
		delta := zigzagDecode(zz)
		prev += delta
		row[i] = uint16(prev)
	}

	// bitio pulls whole bytes from the underlying reader, and the
	// encoder's Close pads to a byte boundary, so the bytes drained
	// from br are exactly the packed row's size.
	return row, len(in) - br.Len(), nil
}

func zigzagEncode(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

func zigzagDecode(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

// writeRice writes v as a Rice code with parameter k: the quotient
// v>>k in unary (that many 1 bits followed by a terminating 0), then
// the k-bit remainder.
func writeRice(w *bitio.Writer, v uint32, k uint) error {
	q := v >> k
	for ; q > 0; q-- {
		if err := w.WriteBits(1, 1); err != nil {
			return err
		}
	}
	if err := w.WriteBits(0, 1); err != nil {
		return err
	}
	if k > 0 {
		rem := uint64(v) & (1<<k - 1)
		if err := w.WriteBits(rem, uint8(k)); err != nil {
			return err
		}
	}
	return nil
}

func readRice(r *bitio.Reader, k uint) (uint32, error) {
	var q uint32
	for {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b == 0 {
			break
		}
		q++
	}

	var rem uint64
	if k > 0 {
		var err error
		rem, err = r.ReadBits(uint8(k))
		if err != nil {
			return 0, err
		}
	}
	return (q << k) | uint32(rem), nil
}

// chooseRiceParam picks k from the mean zigzag-delta magnitude of the
// row: k = floor(log2(mean)), clamped to a sane range. This keeps the
// unary quotient short for typical sensor noise while still bounding
// worst case (the raw fallback in EncodeBNZP16 covers pathological
// rows where even a good k blows up).
func chooseRiceParam(row []uint16) uint {
	if len(row) == 0 {
		return 0
	}

	var sum uint64
	var prev uint16
	for _, v := range row {
		delta := int32(v) - int32(prev)
		prev = v
		sum += uint64(zigzagEncode(delta))
	}
	mean := sum / uint64(len(row))
	if mean == 0 {
		return 0
	}

	k := bits.Len64(mean) - 1
	if k < 0 {
		k = 0
	}
	if k > maxRiceParam {
		k = maxRiceParam
	}
	return uint(k)
}
