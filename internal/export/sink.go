// Package export turns a decoded sample stream into files and messages.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/gt3x/internal/gt3x"
)

// SampleSource is a pull-based stream of calibrated samples. *gt3x.Reader
// satisfies it.
type SampleSource interface {
	Next() bool
	Sample() gt3x.CalibratedSample
	Err() error
}

// Sink consumes samples one at a time. Close flushes buffered output.
type Sink interface {
	WriteSample(s gt3x.CalibratedSample) error
	Close() error
}

// Run drains src into every sink and closes them. It stops at the first sink
// error or when ctx is done; the source error, if any, is returned after the
// sinks are closed. The count is the number of samples pulled from src.
func Run(ctx context.Context, src SampleSource, sinks ...Sink) (int64, error) {
	var n int64
	var runErr error
loop:
	for {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("after %d samples: %w", n, err)
			break
		}
		if !src.Next() {
			break
		}
		s := src.Sample()
		n++
		for _, sink := range sinks {
			if err := sink.WriteSample(s); err != nil {
				runErr = fmt.Errorf("sample %d: %w", n, err)
				break loop
			}
		}
	}
	if runErr == nil {
		runErr = src.Err()
	}

	var closeErrs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	if runErr != nil {
		return n, runErr
	}
	return n, errors.Join(closeErrs...)
}

// SliceSource replays a fixed slice of samples.
type SliceSource struct {
	Samples []gt3x.CalibratedSample
	i       int
}

// Next advances to the next sample.
func (s *SliceSource) Next() bool {
	if s.i >= len(s.Samples) {
		return false
	}
	s.i++
	return true
}

// Sample returns the current sample.
func (s *SliceSource) Sample() gt3x.CalibratedSample { return s.Samples[s.i-1] }

// Err is always nil.
func (s *SliceSource) Err() error { return nil }
