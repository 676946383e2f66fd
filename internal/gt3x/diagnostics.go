package gt3x

import (
	"errors"
	"fmt"
)

// DiagnosticKind classifies a non-fatal decode condition.
type DiagnosticKind int

const (
	DiagChecksumMismatch DiagnosticKind = iota + 1
	DiagUnknownPayloadFormat
	DiagTimestampRegression
	DiagSampleOverlap
	DiagMemberChecksum
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagChecksumMismatch:
		return "checksum_mismatch"
	case DiagUnknownPayloadFormat:
		return "unknown_payload_format"
	case DiagTimestampRegression:
		return "timestamp_regression"
	case DiagSampleOverlap:
		return "sample_overlap"
	case DiagMemberChecksum:
		return "member_checksum_mismatch"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Diagnostic is a data quality problem that did not stop decoding. Err holds
// the typed error (*ChecksumMismatch, *UnknownPayloadFormatError,
// *TimestampOrderError or *StreamError). RecordType is zero for
// DiagMemberChecksum, which concerns the whole log member.
type Diagnostic struct {
	Kind       DiagnosticKind
	Offset     int64
	RecordType uint8
	Err        error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Kind, d.Err)
}

// Matches reports whether the diagnostic's error matches target.
func (d Diagnostic) Matches(target error) bool {
	return errors.Is(d.Err, target)
}

// Diagnostics is the ordered list collected during one decode pass.
type Diagnostics []Diagnostic

// Count returns how many diagnostics of kind k were collected.
func (ds Diagnostics) Count(k DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// ByKind tallies diagnostics per kind.
func (ds Diagnostics) ByKind() map[DiagnosticKind]int {
	out := make(map[DiagnosticKind]int)
	for _, d := range ds {
		out[d.Kind]++
	}
	return out
}
