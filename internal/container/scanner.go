package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortRecord is returned by Scanner.Next when a record's declared
// length runs past the available bytes — the signature of a file
// truncated mid-write.
var ErrShortRecord = errors.New("container: short record")

// ScannedFrame is one frame record recovered from a container file:
// the decoded header plus its payload bytes.
type ScannedFrame struct {
	Header  FrameHeader
	Payload []byte
}

// Scanner performs a forward linear recovery read: it walks
// length-prefixed frame records from the first byte after the file
// header, stopping cleanly at EOF on a record boundary (a footerless
// file) or with ErrShortRecord at a short read (truncation mid
// record). It never looks for a footer: in a committed file the footer
// bytes are read as if they were another record, so committed files
// are read with ScanShard instead.
type Scanner struct {
	r io.Reader
}

// NewScanner reads and validates the file header from r, then returns
// a Scanner positioned at the first frame record.
func NewScanner(r io.Reader) (*Scanner, *Header, error) {
	header, _, err := UnmarshalHeader(r)
	if err != nil {
		return nil, nil, err
	}
	return &Scanner{r: r}, header, nil
}

// Next reads and returns the next frame record. Returns io.EOF when
// the input ends exactly after the last record, and an ErrShortRecord
// error when it ends inside a length prefix or record body.
//
// Scanner does not recognize a footer: at the start of one, the
// footer's record count is taken as a record length, so Next returns
// ErrShortRecord or a frame decoded from footer bytes. ScanShard is
// the footer-aware reader.
func (s *Scanner) Next() (*ScannedFrame, error) {
	lenBuf := make([]byte, 4)
	n, err := io.ReadFull(s.r, lenBuf)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: length prefix: %v", ErrShortRecord, err)
	}
	recordLen := binary.BigEndian.Uint32(lenBuf)

	if recordLen < recordHeaderSize {
		return nil, fmt.Errorf("%w: record length %d smaller than header", ErrShortRecord, recordLen)
	}

	record := make([]byte, recordLen)
	if _, err := io.ReadFull(s.r, record); err != nil {
		return nil, fmt.Errorf("%w: record body: %v", ErrShortRecord, err)
	}

	fh := UnmarshalFrameHeader(record[:recordHeaderSize])
	payload := record[recordHeaderSize:]

	return &ScannedFrame{Header: fh, Payload: payload}, nil
}

// ScanAll drains every recoverable frame record from r via Scanner,
// stopping at the first error other than io.EOF.
func ScanAll(r io.Reader) (*Header, []ScannedFrame, error) {
	scanner, header, err := NewScanner(r)
	if err != nil {
		return nil, nil, err
	}

	var frames []ScannedFrame
	for {
		frame, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return header, frames, err
		}
		frames = append(frames, *frame)
	}

	return header, frames, nil
}

// Footer is the decoded trailing index of a committed shard: the file
// offset of every frame record's length prefix.
type Footer struct {
	Offsets []uint32
}

// ScanShard reads a whole shard file held in memory. Unlike the
// streaming Scanner it recognizes a trailing footer, so a committed
// file scans cleanly: frames holds every record, footer is non-nil
// when the file was committed and nil when it ended footerless.
func ScanShard(data []byte) (*Header, []ScannedFrame, *Footer, error) {
	r := bytes.NewReader(data)
	scanner, header, err := NewScanner(r)
	if err != nil {
		return nil, nil, nil, err
	}

	var frames []ScannedFrame
	for {
		pos := len(data) - r.Len()
		if footer, ok := parseFooterAt(data, pos); ok {
			return header, frames, footer, nil
		}

		frame, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			return header, frames, nil, nil
		}
		if err != nil {
			return header, frames, nil, err
		}
		frames = append(frames, *frame)
	}
}

// parseFooterAt reports whether the bytes from pos to the end of data
// form exactly one footer: a record count whose index runs to the
// terminating magic at the very end of the file. Frame-record length
// prefixes cannot satisfy that geometry, so a match is unambiguous.
func parseFooterAt(data []byte, pos int) (*Footer, bool) {
	rest := len(data) - pos
	if rest < 4+len(magicFooter) {
		return nil, false
	}

	count := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	if pos+4+4*count+len(magicFooter) != len(data) {
		return nil, false
	}
	if !bytes.Equal(data[len(data)-len(magicFooter):], magicFooter[:]) {
		return nil, false
	}

	offsets := make([]uint32, count)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint32(data[pos+4+4*i:])
	}
	return &Footer{Offsets: offsets}, true
}
