package gt3x

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/gt3x/internal/monitoring"
)

type readerOptions struct {
	encoding Encoding
	raw      bool
	onDiag   func(Diagnostic)
}

// Option configures a Reader.
type Option func(*readerOptions)

// WithEncoding forces one payload encoding for every activity record.
func WithEncoding(e Encoding) Option {
	return func(o *readerOptions) { o.encoding = e }
}

// WithRaw keeps device units instead of g. The acceleration scale is then
// not required.
func WithRaw(raw bool) Option {
	return func(o *readerOptions) { o.raw = raw }
}

// WithDiagnosticHandler is called for each diagnostic as it is collected.
func WithDiagnosticHandler(f func(Diagnostic)) Option {
	return func(o *readerOptions) { o.onDiag = f }
}

// Reader decodes a .gt3x file into calibrated samples, one at a time:
//
//	r, err := gt3x.Open(path)
//	if err != nil { ... }
//	defer r.Close()
//	for r.Next() {
//		s := r.Sample()
//	}
//	if err := r.Err(); err != nil { ... }
//
// Only the current record and its samples are held in memory.
type Reader struct {
	c     *Container
	logRC io.ReadCloser
	sc    *RecordScanner
	dec   ActivityDecoder
	cal   *Calibrator
	opts  readerOptions

	dev   DeviceInfo
	info  RecordingInfo
	acc   Accumulator
	diags Diagnostics

	cur    []ActivitySample
	curRec Record
	idx    int
	base   time.Time
	sample CalibratedSample
	raw    ActivitySample

	err    error
	done   bool
	closed bool
}

// Open opens the container at path and prepares to decode it. Metadata is
// parsed and validated before any record is read.
func Open(path string, opts ...Option) (*Reader, error) {
	c, err := OpenContainer(path)
	if err != nil {
		monitoring.RecordFile("error")
		return nil, err
	}
	r, err := NewReader(c, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return r, nil
}

// NewReader decodes from an already open container and takes ownership of
// it: Close releases it. On error the container is left open.
func NewReader(c *Container, opts ...Option) (*Reader, error) {
	r := &Reader{c: c, acc: newAccumulator()}
	for _, opt := range opts {
		opt(&r.opts)
	}
	r.dec.Force = r.opts.encoding

	if err := r.readInfo(); err != nil {
		monitoring.RecordFile("error")
		return nil, err
	}

	var err error
	if r.opts.raw {
		r.cal, err = NewRawCalibrator(r.dev)
	} else {
		r.cal, err = NewCalibrator(r.dev)
	}
	if err != nil {
		monitoring.RecordFile("error")
		return nil, err
	}

	r.logRC, err = c.OpenMember(LogMember)
	if err != nil {
		monitoring.RecordFile("error")
		return nil, err
	}
	r.sc = NewRecordScanner(r.logRC)
	return r, nil
}

func (r *Reader) readInfo() error {
	rc, err := r.c.OpenMember(InfoMember)
	if err != nil {
		return err
	}
	defer rc.Close()
	r.dev, r.info, err = ParseInfo(rc)
	return err
}

// Device returns the parsed device descriptor.
func (r *Reader) Device() DeviceInfo { return r.dev }

// Recording returns a snapshot of the recording descriptor. TotalSamples
// counts the samples decoded so far and is final once Next returns false.
func (r *Reader) Recording() RecordingInfo {
	info := r.info
	info.TotalSamples = r.acc.Samples
	return info
}

// Stats returns a snapshot of the per-pass totals.
func (r *Reader) Stats() Accumulator { return r.acc.Clone() }

// Diagnostics returns the non-fatal conditions collected so far.
func (r *Reader) Diagnostics() Diagnostics {
	out := make(Diagnostics, len(r.diags))
	copy(out, r.diags)
	return out
}

// Calibrator exposes the scale and rate in use.
func (r *Reader) Calibrator() *Calibrator { return r.cal }

// Next advances to the next sample. It returns false when the log is
// exhausted, on a fatal error (see Err), or after Close.
func (r *Reader) Next() bool {
	if r.done || r.closed {
		return false
	}
	for r.idx >= len(r.cur) {
		if !r.nextRecord() {
			return false
		}
	}
	r.raw = r.cur[r.idx]
	r.sample = r.cal.Calibrate(r.base, r.idx, r.raw)
	r.idx++
	return true
}

func (r *Reader) nextRecord() bool {
	r.cur, r.idx = nil, 0
	if !r.sc.Next() {
		r.done = true
		r.err = r.sc.Err()
		if crc := r.sc.StreamChecksum(); crc != nil {
			r.addDiag(DiagMemberChecksum, Record{Offset: crc.Offset}, crc)
		}
		if r.err != nil {
			monitoring.Logf("gt3x: %s: decode stopped after %d records: %v", r.dev.SerialNumber, r.acc.Records, r.err)
			monitoring.RecordFile("error")
		} else {
			monitoring.RecordFile("ok")
		}
		return false
	}

	rec := r.sc.Record()
	r.curRec = rec
	base := r.cal.RecordTime(rec.Timestamp)
	monitoring.RecordRecord(strconv.Itoa(int(rec.Type)))
	monitoring.Debugf("gt3x: record offset=%d type=%d ts=%d size=%d", rec.Offset, rec.Type, rec.Timestamp, rec.PayloadSize)

	if m := r.sc.ChecksumMismatch(); m != nil {
		r.addDiag(DiagChecksumMismatch, rec, m)
	}
	prev, regressed := r.acc.addRecord(rec, base)
	if regressed {
		r.addDiag(DiagTimestampRegression, rec, &TimestampOrderError{Offset: rec.Offset, Previous: prev, Current: base})
	}

	samples, enc, err := r.dec.Decode(rec)
	if err != nil {
		r.addDiag(DiagUnknownPayloadFormat, rec, err)
		return true
	}
	if len(samples) == 0 {
		return true
	}

	first := base
	last := base.Add(r.cal.Offset(len(samples) - 1))
	if !regressed && r.acc.Samples > 0 && !first.After(r.acc.LastSample) {
		r.addDiag(DiagSampleOverlap, rec, &TimestampOrderError{
			Offset: rec.Offset, Previous: r.acc.LastSample, Current: first, Overlap: true,
		})
	}
	r.acc.addSamples(enc, len(samples), first, last)
	monitoring.RecordSamples(enc.String(), len(samples))

	r.cur = samples
	r.base = base
	return true
}

func (r *Reader) addDiag(kind DiagnosticKind, rec Record, err error) {
	d := Diagnostic{Kind: kind, Offset: rec.Offset, RecordType: rec.Type, Err: err}
	r.diags = append(r.diags, d)
	monitoring.RecordDiagnostic(kind.String())
	monitoring.Logf("gt3x: %s: %v", r.dev.SerialNumber, err)
	if r.opts.onDiag != nil {
		r.opts.onDiag(d)
	}
}

// Sample returns the current calibrated sample.
func (r *Reader) Sample() CalibratedSample { return r.sample }

// Raw returns the current sample in device units.
func (r *Reader) Raw() ActivitySample { return r.raw }

// Record returns the header of the record the current sample came from.
// Its Payload is not retained.
func (r *Reader) Record() Record {
	rec := r.curRec
	rec.Payload = nil
	return rec
}

// Err returns the fatal error that stopped iteration, if any. A clean end of
// the log returns nil.
func (r *Reader) Err() error { return r.err }

// Close releases the log stream and the container file. It may be called at
// any point, including mid-iteration, and more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cur = nil
	var firstErr error
	if r.logRC != nil {
		if err := r.logRC.Close(); err != nil {
			firstErr = fmt.Errorf("close %s: %w", LogMember, err)
		}
	}
	if err := r.c.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
