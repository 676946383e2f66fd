// Package stats summarises a calibrated sample stream per axis and per
// fixed-length epoch without holding more than one epoch in memory.
package stats

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/gt3x/internal/gt3x"
)

// DefaultEpoch is the aggregation window used when none is given.
const DefaultEpoch = 60 * time.Second

// Epoch aggregates the samples whose timestamps fall in [Start, Start+length).
type Epoch struct {
	Start time.Time
	N     int
	MeanX float64
	MeanY float64
	MeanZ float64
	// ENMO is the mean Euclidean norm minus one g, negative values clipped.
	ENMO float64
}

// Axis holds whole-recording statistics for one axis.
type Axis struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Result is the finished summary.
type Result struct {
	Samples    int64
	X, Y, Z    Axis
	ENMO       float64 // mean over all samples
	ENMOMedian float64 // median of epoch ENMO values
	Epochs     []Epoch
}

type axisAcc struct {
	n        float64
	mean     float64
	m2       float64
	min, max float64
}

// merge folds one chunk's mean and unbiased variance in.
func (a *axisAcc) merge(chunk []float64) {
	nb := float64(len(chunk))
	if nb == 0 {
		return
	}
	meanB, varB := stat.MeanVariance(chunk, nil)
	if nb < 2 {
		varB = 0
	}
	m2B := varB * (nb - 1)
	lo, hi := floats.Min(chunk), floats.Max(chunk)

	if a.n == 0 {
		a.n, a.mean, a.m2, a.min, a.max = nb, meanB, m2B, lo, hi
		return
	}
	n := a.n + nb
	delta := meanB - a.mean
	a.mean += delta * nb / n
	a.m2 += m2B + delta*delta*a.n*nb/n
	a.n = n
	a.min = math.Min(a.min, lo)
	a.max = math.Max(a.max, hi)
}

func (a *axisAcc) result() Axis {
	out := Axis{Mean: a.mean, Min: a.min, Max: a.max}
	if a.n > 1 {
		out.StdDev = math.Sqrt(a.m2 / (a.n - 1))
	}
	return out
}

// Summary consumes samples in timestamp order.
type Summary struct {
	epoch time.Duration

	start   time.Time
	started bool
	x, y, z []float64
	norms   []float64

	ax, ay, az axisAcc
	enmoSum    float64
	samples    int64
	epochs     []Epoch
}

// NewSummary returns a summary with the given epoch length; zero or negative
// selects DefaultEpoch.
func NewSummary(epoch time.Duration) *Summary {
	if epoch <= 0 {
		epoch = DefaultEpoch
	}
	return &Summary{epoch: epoch}
}

// EpochLength is the aggregation window.
func (s *Summary) EpochLength() time.Duration { return s.epoch }

// Add folds one sample in. Samples that arrive out of order are counted in
// the current epoch; epochs with no samples are not emitted.
func (s *Summary) Add(c gt3x.CalibratedSample) {
	if !s.started {
		s.start = c.Timestamp.Truncate(s.epoch)
		s.started = true
	}
	if !c.Timestamp.Before(s.start.Add(s.epoch)) {
		s.flush()
		s.start = c.Timestamp.Truncate(s.epoch)
	}
	s.x = append(s.x, c.X)
	s.y = append(s.y, c.Y)
	s.z = append(s.z, c.Z)
	s.norms = append(s.norms, math.Max(0, math.Sqrt(c.X*c.X+c.Y*c.Y+c.Z*c.Z)-1))
}

// WriteSample lets a Summary sit alongside the export sinks.
func (s *Summary) WriteSample(c gt3x.CalibratedSample) error {
	s.Add(c)
	return nil
}

// Close flushes the open epoch.
func (s *Summary) Close() error {
	s.flush()
	return nil
}

func (s *Summary) flush() {
	if len(s.x) == 0 {
		return
	}
	s.ax.merge(s.x)
	s.ay.merge(s.y)
	s.az.merge(s.z)
	enmo := stat.Mean(s.norms, nil)
	s.enmoSum += floats.Sum(s.norms)
	s.samples += int64(len(s.x))
	s.epochs = append(s.epochs, Epoch{
		Start: s.start,
		N:     len(s.x),
		MeanX: stat.Mean(s.x, nil),
		MeanY: stat.Mean(s.y, nil),
		MeanZ: stat.Mean(s.z, nil),
		ENMO:  enmo,
	})
	s.x, s.y, s.z, s.norms = s.x[:0], s.y[:0], s.z[:0], s.norms[:0]
}

// Result flushes any open epoch and returns the summary so far.
func (s *Summary) Result() Result {
	s.flush()
	r := Result{
		Samples: s.samples,
		X:       s.ax.result(),
		Y:       s.ay.result(),
		Z:       s.az.result(),
		Epochs:  append([]Epoch(nil), s.epochs...),
	}
	if s.samples > 0 {
		r.ENMO = s.enmoSum / float64(s.samples)
	}
	if len(s.epochs) > 0 {
		vals := make([]float64, len(s.epochs))
		for i, e := range s.epochs {
			vals[i] = e.ENMO
		}
		sort.Float64s(vals)
		r.ENMOMedian = stat.Quantile(0.5, stat.Empirical, vals, nil)
	}
	return r
}
