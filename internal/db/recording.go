package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/stats"
)

// ErrNotFound is returned when a recording ID has no row.
var ErrNotFound = errors.New("recording not found")

// Recording is one decoded .gt3x file.
type Recording struct {
	ID                uuid.UUID
	SourcePath        string
	SerialNumber      string
	DeviceType        string
	FirmwareVersion   string
	SampleRate        float64
	AccelerationScale float64
	StartTime         *time.Time
	StopTime          *time.Time
	DownloadTime      *time.Time
	TotalSamples      int64
	TotalRecords      int64
	Diagnostics       int64
	SoftwareVersion   string
	CreatedAt         time.Time

	// Summary is written alongside the row when set. EpochLength is the
	// window its epochs were computed over.
	Summary     *stats.Result
	EpochLength time.Duration
}

// NewRecording fills a Recording from decoder metadata with a fresh ID.
func NewRecording(sourcePath string, dev gt3x.DeviceInfo, info gt3x.RecordingInfo) *Recording {
	return &Recording{
		ID:                uuid.New(),
		SourcePath:        sourcePath,
		SerialNumber:      dev.SerialNumber,
		DeviceType:        dev.DeviceType,
		FirmwareVersion:   dev.FirmwareVersion,
		SampleRate:        dev.SampleRate,
		AccelerationScale: dev.AccelerationScale,
		StartTime:         info.StartTime,
		StopTime:          info.StopTime,
		DownloadTime:      info.DownloadTime,
		TotalSamples:      info.TotalSamples,
	}
}

// SaveRecording inserts or replaces the recording row and, when r.Summary is
// set, its summary and epochs, in one transaction. A zero ID is assigned a
// new one. Saving the same ID again updates totals without touching any
// samples already stored under it.
func (db *DB) SaveRecording(r *Recording) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO recordings (
			recording_id, source_path, serial_number, device_type, firmware_version,
			sample_rate, acceleration_scale, start_unix, stop_unix, download_unix,
			total_samples, total_records, diagnostics, software_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (recording_id) DO UPDATE SET
			source_path = excluded.source_path,
			serial_number = excluded.serial_number,
			device_type = excluded.device_type,
			firmware_version = excluded.firmware_version,
			sample_rate = excluded.sample_rate,
			acceleration_scale = excluded.acceleration_scale,
			start_unix = excluded.start_unix,
			stop_unix = excluded.stop_unix,
			download_unix = excluded.download_unix,
			total_samples = excluded.total_samples,
			total_records = excluded.total_records,
			diagnostics = excluded.diagnostics,
			software_version = excluded.software_version`,
		r.ID.String(), r.SourcePath, r.SerialNumber, r.DeviceType, r.FirmwareVersion,
		r.SampleRate, r.AccelerationScale, unixOrNull(r.StartTime), unixOrNull(r.StopTime), unixOrNull(r.DownloadTime),
		r.TotalSamples, r.TotalRecords, r.Diagnostics, r.SoftwareVersion,
	)
	if err != nil {
		return fmt.Errorf("save recording %s: %w", r.ID, err)
	}

	if r.Summary != nil {
		if err := saveSummary(tx, r.ID, r.Summary, r.EpochLength); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func saveSummary(tx *sql.Tx, id uuid.UUID, s *stats.Result, epoch time.Duration) error {
	if epoch <= 0 {
		epoch = stats.DefaultEpoch
	}
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO recording_summaries (
			recording_id, mean_x, mean_y, mean_z, sd_x, sd_y, sd_z,
			min_x, min_y, min_z, max_x, max_y, max_z, enmo, enmo_median, epoch_secs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), s.X.Mean, s.Y.Mean, s.Z.Mean, s.X.StdDev, s.Y.StdDev, s.Z.StdDev,
		s.X.Min, s.Y.Min, s.Z.Min, s.X.Max, s.Y.Max, s.Z.Max, s.ENMO, s.ENMOMedian, epoch.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("save summary %s: %w", id, err)
	}

	if _, err := tx.Exec(`DELETE FROM recording_epochs WHERE recording_id = ?`, id.String()); err != nil {
		return fmt.Errorf("clear epochs %s: %w", id, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO recording_epochs (recording_id, start_unix, sample_count, mean_x, mean_y, mean_z, enmo)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare epoch insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range s.Epochs {
		if _, err := stmt.Exec(id.String(), toUnix(e.Start), e.N, e.MeanX, e.MeanY, e.MeanZ, e.ENMO); err != nil {
			return fmt.Errorf("save epoch %s: %w", e.Start.Format(time.RFC3339), err)
		}
	}
	return nil
}

const recordingColumns = `recording_id, source_path, serial_number, device_type, firmware_version,
	sample_rate, acceleration_scale, start_unix, stop_unix, download_unix,
	total_samples, total_records, diagnostics, software_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*Recording, error) {
	var (
		r                     Recording
		id                    string
		start, stop, download sql.NullFloat64
		created               sql.NullString
	)
	if err := row.Scan(
		&id, &r.SourcePath, &r.SerialNumber, &r.DeviceType, &r.FirmwareVersion,
		&r.SampleRate, &r.AccelerationScale, &start, &stop, &download,
		&r.TotalSamples, &r.TotalRecords, &r.Diagnostics, &r.SoftwareVersion, &created,
	); err != nil {
		return nil, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("recording id %q: %w", id, err)
	}
	r.StartTime = fromNullUnix(start)
	r.StopTime = fromNullUnix(stop)
	r.DownloadTime = fromNullUnix(download)
	if created.Valid {
		r.CreatedAt = parseCreated(created.String)
	}
	return &r, nil
}

// Recording loads one recording row. Summary is not loaded; see Summary.
func (db *DB) Recording(id uuid.UUID) (*Recording, error) {
	row := db.QueryRow(`SELECT `+recordingColumns+` FROM recordings WHERE recording_id = ?`, id.String())
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, err
}

// Recordings lists recordings, most recent start first. An empty serial
// lists every device.
func (db *DB) Recordings(serial string) ([]*Recording, error) {
	rows, err := db.Query(`SELECT `+recordingColumns+` FROM recordings
		WHERE ? = '' OR serial_number = ?
		ORDER BY start_unix DESC, created_at DESC`, serial, serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary loads the stored summary for id, epochs included.
func (db *DB) Summary(id uuid.UUID) (*stats.Result, time.Duration, error) {
	var (
		s     stats.Result
		epoch float64
	)
	err := db.QueryRow(`
		SELECT r.total_samples, s.mean_x, s.mean_y, s.mean_z, s.sd_x, s.sd_y, s.sd_z,
			s.min_x, s.min_y, s.min_z, s.max_x, s.max_y, s.max_z, s.enmo, s.enmo_median, s.epoch_secs
		FROM recording_summaries s JOIN recordings r USING (recording_id)
		WHERE s.recording_id = ?`, id.String()).Scan(
		&s.Samples, &s.X.Mean, &s.Y.Mean, &s.Z.Mean, &s.X.StdDev, &s.Y.StdDev, &s.Z.StdDev,
		&s.X.Min, &s.Y.Min, &s.Z.Min, &s.X.Max, &s.Y.Max, &s.Z.Max, &s.ENMO, &s.ENMOMedian, &epoch,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("summary %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	if s.Epochs, err = db.Epochs(id); err != nil {
		return nil, 0, err
	}
	return &s, time.Duration(epoch * float64(time.Second)), nil
}

// Epochs loads the per-epoch aggregates for id in time order.
func (db *DB) Epochs(id uuid.UUID) ([]stats.Epoch, error) {
	rows, err := db.Query(`
		SELECT start_unix, sample_count, mean_x, mean_y, mean_z, enmo
		FROM recording_epochs WHERE recording_id = ? ORDER BY start_unix`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Epoch
	for rows.Next() {
		var (
			e     stats.Epoch
			start float64
		)
		if err := rows.Scan(&start, &e.N, &e.MeanX, &e.MeanY, &e.MeanZ, &e.ENMO); err != nil {
			return nil, err
		}
		e.Start = fromUnix(start)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording with its summary, epochs and samples.
func (db *DB) DeleteRecording(id uuid.UUID) error {
	res, err := db.Exec(`DELETE FROM recordings WHERE recording_id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// parseCreated reads created_at, which the driver may hand back either as
// SQLite's CURRENT_TIMESTAMP text or already formatted as RFC 3339.
func parseCreated(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func unixOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toUnix(*t)
}

func fromUnix(v float64) time.Time {
	sec := math.Floor(v)
	nsec := math.Round((v - sec) * 1e9)
	return time.Unix(int64(sec), int64(nsec)).UTC()
}

func fromNullUnix(v sql.NullFloat64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Float64)
	return &t
}
