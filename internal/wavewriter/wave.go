// Package wavewriter serializes a span of interleaved 16-bit PCM
// audio samples as a standard RIFF/WAVE file: four-byte chunk IDs,
// little-endian chunk sizes, a 16-byte fmt chunk, one data chunk.
package wavewriter

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
)

// Write serializes samples (interleaved int16, one value per channel
// per frame) as a RIFF/WAVE file with a standard fmt chunk to w. The
// data chunk is exactly the concatenated samples, little-endian.
func Write(w io.Writer, samples []int16, sampleRate, channels int) error {
	dataSize := uint32(len(samples) * bytesPerSample)
	byteRate := uint32(sampleRate * channels * bytesPerSample)
	blockAlign := uint16(channels * bytesPerSample)

	riffSize := uint32(4) /* "WAVE" */ + (8 + 16) /* fmt chunk */ + (8 + dataSize) /* data chunk */

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], riffSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wavewriter: write header: %w", err)
	}

	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wavewriter: write data: %w", err)
	}

	return nil
}
