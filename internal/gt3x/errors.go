package gt3x

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrCorrupt              = errors.New("corrupt container")
	ErrMissingField         = errors.New("missing metadata field")
	ErrMalformedValue       = errors.New("malformed metadata value")
	ErrFraming              = errors.New("record stream desynchronized")
	ErrChecksumMismatch     = errors.New("record checksum mismatch")
	ErrUnknownPayloadFormat = errors.New("unknown activity payload format")
	ErrCalibrationUndefined = errors.New("calibration undefined")
	ErrTimestampOrder       = errors.New("record timestamps out of order")
)

// FieldError reports a metadata defect for a named info.txt key.
type FieldError struct {
	Field string
	Value string
	Err   error // ErrMissingField or ErrMalformedValue
	Cause error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrMissingField) {
		return fmt.Sprintf("info.txt: %v: %q", e.Err, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("info.txt: %v: %s=%q: %v", e.Err, e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("info.txt: %v: %s=%q", e.Err, e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

func missingField(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

func malformedValue(field, value string, cause error) error {
	return &FieldError{Field: field, Value: value, Err: ErrMalformedValue, Cause: cause}
}

// FramingError terminates record iteration. Offset is the stream position of
// the record header that could not be framed.
type FramingError struct {
	Offset int64
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("log.bin offset %d: %v: %s", e.Offset, ErrFraming, e.Reason)
}

func (e *FramingError) Unwrap() error { return ErrFraming }

// StreamError reports log.bin bytes that could not be read intact: a
// decompression fault, or a member CRC that disagrees with the archive
// directory. Offset is the stream position where the read failed.
type StreamError struct {
	Offset int64
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s offset %d: %v: %v", LogMember, e.Offset, ErrCorrupt, e.Err)
}

func (e *StreamError) Unwrap() error { return ErrCorrupt }

// ChecksumMismatch is a non-fatal data quality condition for one record.
type ChecksumMismatch struct {
	Offset   int64
	Expected byte // value stored in the record
	Actual   byte // value recomputed from header and payload
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("log.bin offset %d: %v: stored 0x%02X, computed 0x%02X",
		e.Offset, ErrChecksumMismatch, e.Expected, e.Actual)
}

func (e *ChecksumMismatch) Unwrap() error { return ErrChecksumMismatch }

// UnknownPayloadFormatError is returned for an activity record whose payload
// size matches none of the sample widths allowed for its type.
type UnknownPayloadFormatError struct {
	Offset     int64
	RecordType uint8
	Size       int
}

func (e *UnknownPayloadFormatError) Error() string {
	return fmt.Sprintf("log.bin offset %d: %v: type %d, size %d",
		e.Offset, ErrUnknownPayloadFormat, e.RecordType, e.Size)
}

func (e *UnknownPayloadFormatError) Unwrap() error { return ErrUnknownPayloadFormat }

// TimestampOrderError reports a record whose base time is earlier than the
// previous record's, or whose first sample does not follow the previous
// record's last sample.
type TimestampOrderError struct {
	Offset   int64
	Previous time.Time
	Current  time.Time
	Overlap  bool
}

func (e *TimestampOrderError) Error() string {
	what := "base time precedes previous record"
	if e.Overlap {
		what = "first sample overlaps previous record"
	}
	return fmt.Sprintf("log.bin offset %d: %v: %s (%s < %s)", e.Offset, ErrTimestampOrder, what,
		e.Current.Format(time.RFC3339Nano), e.Previous.Format(time.RFC3339Nano))
}

func (e *TimestampOrderError) Unwrap() error { return ErrTimestampOrder }
