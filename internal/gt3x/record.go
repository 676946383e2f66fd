package gt3x

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// log.bin framing constants.
const (
	Separator     byte = 0x1E
	HeaderSize         = 8
	ChecksumSize       = 1
	MaxPayloadLen      = 0xFFFF
)

// Record types with decodable activity payloads.
const (
	TypeActivity  uint8 = 0x00
	TypeActivity2 uint8 = 0x1A
)

// RecordKind groups record types by how their payload is decoded.
type RecordKind int

const (
	KindOther RecordKind = iota
	KindLegacyActivity
	KindModernActivity
)

func (k RecordKind) String() string {
	switch k {
	case KindLegacyActivity:
		return "legacy-activity"
	case KindModernActivity:
		return "modern-activity"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("RecordKind(%d)", int(k))
}

// KindOf classifies a record type.
func KindOf(recordType uint8) RecordKind {
	switch recordType {
	case TypeActivity:
		return KindLegacyActivity
	case TypeActivity2:
		return KindModernActivity
	default:
		return KindOther
	}
}

// Record is one framed log.bin entry. Payload aliases the scanner's buffer
// and is only valid until the next call to Next.
type Record struct {
	Offset      int64
	Separator   byte
	Type        uint8
	Timestamp   uint32
	PayloadSize uint16
	Payload     []byte
	Checksum    byte
}

// Kind is KindOf(r.Type).
func (r Record) Kind() RecordKind { return KindOf(r.Type) }

// Len is the number of stream bytes the record occupies.
func (r Record) Len() int64 { return int64(HeaderSize) + int64(r.PayloadSize) + ChecksumSize }

// AppendRecord encodes a record with a valid checksum and appends it to dst.
func AppendRecord(dst []byte, recordType uint8, timestamp uint32, payload []byte) []byte {
	if len(payload) > MaxPayloadLen {
		panic(fmt.Sprintf("gt3x: payload of %d bytes does not fit a record", len(payload)))
	}
	var hdr [HeaderSize]byte
	hdr[0] = Separator
	hdr[1] = recordType
	binary.LittleEndian.PutUint32(hdr[2:6], timestamp)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(payload)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return append(dst, Checksum(hdr[:], payload))
}

// RecordScanner frames log.bin into records. It is forward-only; to start
// over, reopen the stream.
//
// Iteration ends when fewer than HeaderSize bytes remain (Err returns nil), on
// the first framing failure (Err returns a *FramingError) or when the stream
// itself cannot be read (Err returns a *StreamError). Records framed before a
// failure have already been returned and stay valid results.
//
// A member CRC failure reported by the archive at end of stream does not stop
// iteration: every byte has been delivered by then and the record checksums
// locate the damage. It is kept for StreamChecksum.
type RecordScanner struct {
	br       *bufio.Reader
	offset   int64
	rec      Record
	hdr      [HeaderSize]byte
	buf      []byte
	mismatch *ChecksumMismatch
	crc      *StreamError
	err      error
	done     bool
}

// NewRecordScanner reads records from r.
func NewRecordScanner(r io.Reader) *RecordScanner {
	return &RecordScanner{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next record.
func (s *RecordScanner) Next() bool {
	if s.done {
		return false
	}
	s.mismatch = nil
	start := s.offset

	n, err := io.ReadFull(s.br, s.hdr[:])
	if err != nil {
		err = s.streamErr(err, start+int64(n))
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.offset += int64(n)
			return s.finish(nil)
		}
		return s.finish(&StreamError{Offset: start + int64(n), Err: err})
	}

	if s.hdr[0] != Separator {
		return s.finish(&FramingError{
			Offset: start,
			Reason: fmt.Sprintf("separator 0x%02X, want 0x%02X", s.hdr[0], Separator),
		})
	}

	size := binary.LittleEndian.Uint16(s.hdr[6:8])
	if cap(s.buf) < int(size) {
		s.buf = make([]byte, size)
	}
	payload := s.buf[:size]
	if n, err := io.ReadFull(s.br, payload); err != nil {
		at := start + HeaderSize + int64(n)
		err = s.streamErr(err, at)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return s.finish(&FramingError{
				Offset: start,
				Reason: fmt.Sprintf("payload truncated: declared %d bytes, %d available", size, n),
			})
		}
		return s.finish(&StreamError{Offset: at, Err: err})
	}

	stored, err := s.br.ReadByte()
	if err != nil {
		at := start + HeaderSize + int64(size)
		err = s.streamErr(err, at)
		if errors.Is(err, io.EOF) {
			return s.finish(&FramingError{Offset: start, Reason: "checksum byte missing"})
		}
		return s.finish(&StreamError{Offset: at, Err: err})
	}

	s.rec = Record{
		Offset:      start,
		Separator:   s.hdr[0],
		Type:        s.hdr[1],
		Timestamp:   binary.LittleEndian.Uint32(s.hdr[2:6]),
		PayloadSize: size,
		Payload:     payload,
		Checksum:    stored,
	}
	if computed := Checksum(s.hdr[:], payload); computed != stored {
		s.mismatch = &ChecksumMismatch{Offset: start, Expected: stored, Actual: computed}
	}
	s.offset += s.rec.Len()
	return true
}

// streamErr records a member CRC failure and reports it as end of stream.
func (s *RecordScanner) streamErr(err error, at int64) error {
	if !errors.Is(err, zip.ErrChecksum) {
		return err
	}
	if s.crc == nil {
		s.crc = &StreamError{Offset: at, Err: err}
	}
	return io.EOF
}

func (s *RecordScanner) finish(err error) bool {
	s.done = true
	s.err = err
	s.rec = Record{}
	return false
}

// Record returns the current record.
func (s *RecordScanner) Record() Record { return s.rec }

// ChecksumMismatch reports a checksum failure on the current record, or nil.
func (s *RecordScanner) ChecksumMismatch() *ChecksumMismatch { return s.mismatch }

// StreamChecksum returns the member CRC failure seen at end of stream, or nil.
func (s *RecordScanner) StreamChecksum() *StreamError { return s.crc }

// Offset is the number of stream bytes consumed so far.
func (s *RecordScanner) Offset() int64 { return s.offset }

// Err returns the error that ended iteration, or nil at a clean end.
func (s *RecordScanner) Err() error { return s.err }
