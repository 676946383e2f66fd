package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/monitoring"
)

// DefaultSampleBatch is the number of samples per insert transaction.
const DefaultSampleBatch = 1000

// SampleWriter streams samples for one recording into the samples table,
// committing every batch in its own transaction. The recording row must be
// saved first.
type SampleWriter struct {
	db        *DB
	id        string
	batchSize int
	buf       []gt3x.CalibratedSample
	seq       int64
}

// NewSampleWriter returns a writer for recording id.
func (db *DB) NewSampleWriter(id uuid.UUID, batchSize int) *SampleWriter {
	if batchSize <= 0 {
		batchSize = DefaultSampleBatch
	}
	return &SampleWriter{
		db:        db,
		id:        id.String(),
		batchSize: batchSize,
		buf:       make([]gt3x.CalibratedSample, 0, batchSize),
	}
}

// WriteSample buffers s and flushes a full batch.
func (w *SampleWriter) WriteSample(s gt3x.CalibratedSample) error {
	w.buf = append(w.buf, s)
	if len(w.buf) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush inserts the buffered samples.
func (w *SampleWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO samples (recording_id, seq, ts_unix_nano, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	seq := w.seq
	for _, s := range w.buf {
		if _, err := stmt.Exec(w.id, seq, s.Timestamp.UnixNano(), s.X, s.Y, s.Z); err != nil {
			return fmt.Errorf("insert sample %d: %w", seq, err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	monitoring.Debugf("db: %s: stored samples %d..%d", w.id, w.seq, seq-1)
	w.seq = seq
	w.buf = w.buf[:0]
	return nil
}

// Written is the number of samples committed so far.
func (w *SampleWriter) Written() int64 { return w.seq }

// Close flushes the final partial batch.
func (w *SampleWriter) Close() error { return w.Flush() }

// SampleCount returns how many samples are stored for id.
func (db *DB) SampleCount(id uuid.UUID) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM samples WHERE recording_id = ?`, id.String()).Scan(&n)
	return n, err
}

// Samples returns the stored samples of id with timestamps in [from, to), in
// stream order. Zero bounds are open.
func (db *DB) Samples(id uuid.UUID, from, to time.Time) ([]gt3x.CalibratedSample, error) {
	lo, hi := int64(-1<<63), int64(1<<63-1)
	if !from.IsZero() {
		lo = from.UnixNano()
	}
	if !to.IsZero() {
		hi = to.UnixNano()
	}
	rows, err := db.Query(`
		SELECT ts_unix_nano, x, y, z FROM samples
		WHERE recording_id = ? AND ts_unix_nano >= ? AND ts_unix_nano < ?
		ORDER BY seq`, id.String(), lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gt3x.CalibratedSample
	for rows.Next() {
		var (
			s  gt3x.CalibratedSample
			ns int64
		)
		if err := rows.Scan(&ns, &s.X, &s.Y, &s.Z); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(0, ns).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
