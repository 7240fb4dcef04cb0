// Package container implements the append-only container file format:
// one writer instance per output file descriptor, a header written
// once, length-prefixed frame records appended as they arrive, and a
// trailing footer committed on shutdown. A forward-scan Scanner
// recovers frames from a file whose footer never got written.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const formatVersion = 0

var magicHeader = [8]byte{'R', 'A', 'W', 'S', 'T', 'R', 'M', 0x01}
var magicFooter = [8]byte{'R', 'A', 'W', 'F', 'O', 'O', 'T', 0x01}

// ErrUnsupportedVersion is returned by UnmarshalHeader for a version
// byte this package doesn't understand.
var ErrUnsupportedVersion = errors.New("container: unsupported version")

// ErrBadMagic is returned when a magic byte sequence doesn't match,
// indicating a corrupt or foreign file.
var ErrBadMagic = errors.New("container: bad magic bytes")

// Header is written once at the start of every shard file.
// CameraMetadata is an opaque blob (sensor arrangement, black/white
// levels, color matrices, lens shading maps) forwarded verbatim from
// the host, never interpreted by this package.
type Header struct {
	ShardIndex     uint32
	ShardCount     uint32
	CameraMetadata []byte
}

// Size returns the marshaled size of h in bytes.
func (h *Header) Size() int {
	return len(magicHeader) + 1 + 4 + 4 + 2 + len(h.CameraMetadata)
}

// Marshal encodes h: magic, version, shard index, shard count, then a
// 16-bit length-prefixed camera metadata blob.
func (h *Header) Marshal() []byte {
	out := make([]byte, h.Size())
	pos := 0

	copy(out[pos:], magicHeader[:])
	pos += len(magicHeader)

	out[pos] = formatVersion
	pos++

	binary.BigEndian.PutUint32(out[pos:pos+4], h.ShardIndex)
	pos += 4
	binary.BigEndian.PutUint32(out[pos:pos+4], h.ShardCount)
	pos += 4

	binary.BigEndian.PutUint16(out[pos:pos+2], uint16(len(h.CameraMetadata)))
	pos += 2
	copy(out[pos:], h.CameraMetadata)
	pos += len(h.CameraMetadata)

	return out[:pos]
}

// UnmarshalHeader reads and decodes a Header from r, returning the
// number of bytes consumed.
func UnmarshalHeader(r io.Reader) (*Header, int, error) {
	read := 0
	h := &Header{}

	magic := make([]byte, len(magicHeader))
	n, err := io.ReadFull(r, magic)
	read += n
	if err != nil {
		return nil, read, fmt.Errorf("container: read header magic: %w", err)
	}
	if string(magic) != string(magicHeader[:]) {
		return nil, read, ErrBadMagic
	}

	versionBuf := make([]byte, 1)
	n, err = io.ReadFull(r, versionBuf)
	read += n
	if err != nil {
		return nil, read, err
	}
	if versionBuf[0] != formatVersion {
		return nil, read, fmt.Errorf("%w: %d", ErrUnsupportedVersion, versionBuf[0])
	}

	fixed := make([]byte, 8)
	n, err = io.ReadFull(r, fixed)
	read += n
	if err != nil {
		return nil, read, err
	}
	h.ShardIndex = binary.BigEndian.Uint32(fixed[0:4])
	h.ShardCount = binary.BigEndian.Uint32(fixed[4:8])

	sizeBuf := make([]byte, 2)
	n, err = io.ReadFull(r, sizeBuf)
	read += n
	if err != nil {
		return nil, read, err
	}
	metaLen := binary.BigEndian.Uint16(sizeBuf)

	h.CameraMetadata = make([]byte, metaLen)
	n, err = io.ReadFull(r, h.CameraMetadata)
	read += n
	if err != nil {
		return nil, read, err
	}

	return h, read, nil
}
