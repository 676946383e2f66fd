package gt3x

import (
	"fmt"
	"math"
	"time"
)

// CalibratedSample is a sample in g with its absolute time.
type CalibratedSample struct {
	Timestamp time.Time
	X, Y, Z   float64
}

// Calibrator converts raw samples to g and places them in time. It holds no
// mutable state and performs no I/O.
type Calibrator struct {
	scale  float64
	rate   float64
	period float64 // nanoseconds per sample
}

// NewCalibrator returns a calibrator for the device's scale and sample rate.
func NewCalibrator(dev DeviceInfo) (*Calibrator, error) {
	if err := checkPositive(KeyAccelerationScale, dev.AccelerationScale); err != nil {
		return nil, err
	}
	return newCalibrator(dev.AccelerationScale, dev.SampleRate)
}

// NewRawCalibrator keeps device units (scale 1) and only requires a valid
// sample rate. It backs raw exports.
func NewRawCalibrator(dev DeviceInfo) (*Calibrator, error) {
	return newCalibrator(1, dev.SampleRate)
}

func newCalibrator(scale, rate float64) (*Calibrator, error) {
	if err := checkPositive(KeySampleRate, rate); err != nil {
		return nil, err
	}
	return &Calibrator{scale: scale, rate: rate, period: float64(time.Second) / rate}, nil
}

func checkPositive(field string, v float64) error {
	if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
		return nil
	}
	return fmt.Errorf("%s is %v: %w", field, v, ErrCalibrationUndefined)
}

// Scale is the g-per-unit factor applied to every axis.
func (c *Calibrator) Scale() float64 { return c.scale }

// SampleRate is the device sample rate in Hz.
func (c *Calibrator) SampleRate() float64 { return c.rate }

// Offset is the time of sample i relative to its record's base time.
func (c *Calibrator) Offset(i int) time.Duration {
	return time.Duration(math.Round(float64(i) * c.period))
}

// RecordTime converts a record header timestamp to UTC.
func (c *Calibrator) RecordTime(raw uint32) time.Time {
	return TimestampToTime(int64(raw))
}

// Calibrate converts the sample at ordinal i of a record starting at base.
func (c *Calibrator) Calibrate(base time.Time, i int, s ActivitySample) CalibratedSample {
	return CalibratedSample{
		Timestamp: base.Add(c.Offset(i)),
		X:         float64(s.X) * c.scale,
		Y:         float64(s.Y) * c.scale,
		Z:         float64(s.Z) * c.scale,
	}
}

// CalibrateRecord appends the calibrated form of samples to dst.
func (c *Calibrator) CalibrateRecord(dst []CalibratedSample, rec Record, samples []ActivitySample) []CalibratedSample {
	base := c.RecordTime(rec.Timestamp)
	for i, s := range samples {
		dst = append(dst, c.Calibrate(base, i, s))
	}
	return dst
}
