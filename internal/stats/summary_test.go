package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/gt3x/internal/gt3x"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(offset time.Duration, x, y, z float64) gt3x.CalibratedSample {
	return gt3x.CalibratedSample{Timestamp: t0.Add(offset), X: x, Y: y, Z: z}
}

func TestSummaryMatchesBatchStatistics(t *testing.T) {
	s := NewSummary(time.Second)

	var xs, ys, zs []float64
	for i := 0; i < 250; i++ {
		x := math.Sin(float64(i) / 7)
		y := float64(i%13) / 10
		z := 1 + float64(i%5)/100
		xs, ys, zs = append(xs, x), append(ys, y), append(zs, z)
		require.NoError(t, s.WriteSample(sample(time.Duration(i)*10*time.Millisecond, x, y, z)))
	}
	require.NoError(t, s.Close())
	r := s.Result()

	assert.Equal(t, int64(250), r.Samples)
	require.Len(t, r.Epochs, 3)
	assert.Equal(t, 100, r.Epochs[0].N)
	assert.Equal(t, 50, r.Epochs[2].N)
	assert.Equal(t, t0.Add(2*time.Second), r.Epochs[2].Start)

	for _, tc := range []struct {
		name string
		got  Axis
		vals []float64
	}{{"x", r.X, xs}, {"y", r.Y, ys}, {"z", r.Z, zs}} {
		mean, std := stat.MeanStdDev(tc.vals, nil)
		assert.InDelta(t, mean, tc.got.Mean, 1e-12, tc.name)
		assert.InDelta(t, std, tc.got.StdDev, 1e-12, tc.name)
	}
	assert.InDelta(t, -1.0, r.X.Min, 0.01)
	assert.InDelta(t, 1.2, r.Y.Max, 1e-12)
	assert.InDelta(t, 1.0, r.Z.Min, 1e-12)
}

func TestSummaryENMO(t *testing.T) {
	s := NewSummary(time.Second)
	// norm 1.5 -> 0.5; norm 0.5 -> clipped to 0
	s.Add(sample(0, 0, 0, 1.5))
	s.Add(sample(10*time.Millisecond, 0, 0, 0.5))
	s.Add(sample(time.Second, 0, 0.6, 0.8))  // norm 1 -> 0
	s.Add(sample(2*time.Second, 3, 0, 4))    // norm 5 -> 4
	r := s.Result()

	require.Len(t, r.Epochs, 3)
	assert.InDelta(t, 0.25, r.Epochs[0].ENMO, 1e-12)
	assert.InDelta(t, 0.0, r.Epochs[1].ENMO, 1e-12)
	assert.InDelta(t, 4.0, r.Epochs[2].ENMO, 1e-12)
	assert.InDelta(t, 4.5/4, r.ENMO, 1e-12)
	assert.InDelta(t, 0.25, r.ENMOMedian, 1e-12)
}

func TestSummaryGapsAndSingleSample(t *testing.T) {
	s := NewSummary(0)
	assert.Equal(t, DefaultEpoch, s.EpochLength())

	s.Add(sample(0, 1, 2, 3))
	s.Add(sample(10*time.Minute, 1, 2, 3))
	r := s.Result()
	require.Len(t, r.Epochs, 2, "empty epochs are skipped")
	assert.Equal(t, t0.Add(10*time.Minute), r.Epochs[1].Start)
	assert.Zero(t, r.X.StdDev)

	one := NewSummary(time.Second)
	one.Add(sample(0, 0.5, 0, 0))
	r = one.Result()
	assert.Equal(t, int64(1), r.Samples)
	assert.Zero(t, r.X.StdDev)
	assert.False(t, math.IsNaN(r.X.Mean))
}

func TestSummaryEmpty(t *testing.T) {
	r := NewSummary(time.Second).Result()
	assert.Zero(t, r.Samples)
	assert.Empty(t, r.Epochs)
	assert.Zero(t, r.ENMO)
}
