package export

import (
	"context"
	"time"

	"github.com/banshee-data/gt3x/internal/gt3x"
)

// Columns is a column-oriented copy of a sample stream, for callers that
// want the whole recording as slices.
type Columns struct {
	Timestamps []time.Time // nil when timestamps were not requested
	X, Y, Z    []float64

	withTimestamps bool
}

// NewColumns returns an empty table, optionally keeping timestamps.
func NewColumns(withTimestamps bool) *Columns {
	return &Columns{withTimestamps: withTimestamps}
}

// WriteSample appends one row.
func (c *Columns) WriteSample(s gt3x.CalibratedSample) error {
	if c.withTimestamps {
		c.Timestamps = append(c.Timestamps, s.Timestamp)
	}
	c.X = append(c.X, s.X)
	c.Y = append(c.Y, s.Y)
	c.Z = append(c.Z, s.Z)
	return nil
}

// Close is a no-op.
func (c *Columns) Close() error { return nil }

// Len is the number of rows.
func (c *Columns) Len() int { return len(c.X) }

// Map returns the columns keyed by name: "timestamp" (when kept), "x", "y",
// "z".
func (c *Columns) Map() map[string]any {
	m := map[string]any{"x": c.X, "y": c.Y, "z": c.Z}
	if c.withTimestamps {
		m["timestamp"] = c.Timestamps
	}
	return m
}

// ReadColumns drains src into a new table.
func ReadColumns(ctx context.Context, src SampleSource, withTimestamps bool) (*Columns, error) {
	c := NewColumns(withTimestamps)
	if _, err := Run(ctx, src, c); err != nil {
		return c, err
	}
	return c, nil
}
