package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/motioncam/rawstreamer/internal/rawbuffer"
)

// Writer serializes one shard's frame stream to an output file
// descriptor, append-only: header once, then length-prefixed frame
// records, then a footer on Commit. One Writer instance is owned
// exclusively by one writer goroutine.
type Writer struct {
	mu sync.Mutex

	w      io.Writer
	offset uint32 // bytes written so far, including the header
	index  []uint32

	frameCount   uint64
	writtenBytes uint64

	failed bool
}

// NewWriter writes header immediately and returns a Writer ready to
// accept frames.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	marshaled := header.Marshal()
	n, err := w.Write(marshaled)
	if err != nil {
		return nil, fmt.Errorf("container: write header: %w", err)
	}

	return &Writer{
		w:      w,
		offset: uint32(n),
	}, nil
}

// Add appends one frame record: a 4-byte big-endian length prefix
// covering the frame header plus payload, the frame header itself,
// then the payload bytes exactly as produced by the frame
// transformer. If releaseData, buf's Data is returned to its pool
// once the payload bytes have been copied out.
//
// On a write failure the shard is marked failed and every subsequent
// Add is a no-op returning an error: fd write failures are fatal for
// the shard.
func (w *Writer) Add(buf *rawbuffer.RawImageBuffer, releaseData bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failed {
		return fmt.Errorf("container: shard already failed")
	}

	data := buf.Data.Lock()
	begin, end := buf.Data.ValidRange()
	payload := data[begin:end]

	fh := FrameHeaderFromBuffer(buf)
	fhBytes := fh.Marshal()

	recordLen := uint32(len(fhBytes) + len(payload))

	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, recordLen)

	err := w.writeAll(lenPrefix, fhBytes, payload)
	buf.Data.Unlock()

	if releaseData {
		buf.Data.Release()
	}

	if err != nil {
		w.failed = true
		return fmt.Errorf("container: write frame record: %w", err)
	}

	w.index = append(w.index, w.offset)
	w.offset += uint32(4) + recordLen
	w.frameCount++
	w.writtenBytes += uint64(4) + uint64(recordLen)

	return nil
}

func (w *Writer) writeAll(parts ...[]byte) error {
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if _, err := w.w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Commit finalizes the shard: writes the footer (frame count, every
// record's offset, then the magic terminator). After a failed Add,
// Commit still attempts a best-effort footer write so the accumulated
// index isn't lost and the partial file remains scannable.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeFooterLocked()
}

func (w *Writer) writeFooterLocked() error {
	countBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(countBuf, uint32(len(w.index)))

	if _, err := w.w.Write(countBuf); err != nil {
		return fmt.Errorf("container: write footer count: %w", err)
	}

	for _, off := range w.index {
		offBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(offBuf, off)
		if _, err := w.w.Write(offBuf); err != nil {
			return fmt.Errorf("container: write footer index: %w", err)
		}
	}

	if _, err := w.w.Write(magicFooter[:]); err != nil {
		return fmt.Errorf("container: write footer magic: %w", err)
	}

	return nil
}

// FrameCount returns the number of frame records written so far.
func (w *Writer) FrameCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frameCount
}

// WrittenBytes returns the total bytes written so far, including
// per-record overhead (length prefix + frame header).
func (w *Writer) WrittenBytes() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writtenBytes
}

// Failed reports whether a prior Add failed and this shard has
// stopped appending.
func (w *Writer) Failed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}
