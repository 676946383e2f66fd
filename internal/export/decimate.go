package export

import "github.com/banshee-data/gt3x/internal/gt3x"

// Decimator keeps an evenly strided subset of an unbounded stream within a
// fixed budget. When the budget fills, every other kept sample is dropped
// and the stride doubles.
type Decimator struct {
	max    int
	stride int
	seen   int
	kept   []gt3x.CalibratedSample
}

// NewDecimator keeps at most max samples (minimum 2).
func NewDecimator(max int) *Decimator {
	if max < 2 {
		max = 2
	}
	return &Decimator{max: max, stride: 1, kept: make([]gt3x.CalibratedSample, 0, max)}
}

// Add offers one sample.
func (d *Decimator) Add(s gt3x.CalibratedSample) {
	if d.seen%d.stride == 0 {
		if len(d.kept) == d.max {
			half := d.kept[:0]
			for i := 0; i < len(d.kept); i += 2 {
				half = append(half, d.kept[i])
			}
			d.kept = half
			d.stride *= 2
		}
		if d.seen%d.stride == 0 {
			d.kept = append(d.kept, s)
		}
	}
	d.seen++
}

// Samples returns the kept samples in stream order.
func (d *Decimator) Samples() []gt3x.CalibratedSample { return d.kept }

// Stride is the current spacing between kept samples.
func (d *Decimator) Stride() int { return d.stride }

// Seen is the number of samples offered.
func (d *Decimator) Seen() int { return d.seen }
