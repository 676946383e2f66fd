package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gt3x/internal/config"
	"github.com/banshee-data/gt3x/internal/db"
	"github.com/banshee-data/gt3x/internal/export"
	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/stats"
	"github.com/banshee-data/gt3x/internal/timeutil"
	"github.com/banshee-data/gt3x/internal/units"
	"github.com/banshee-data/gt3x/internal/version"
)

// conversion describes one input file and where its samples go.
type conversion struct {
	Input  string
	Output string
	Config *config.ExportConfig
	FS     fsutil.FileSystem
	Clock  timeutil.Clock

	// NewKafkaWriter defaults to export.NewKafkaWriter.
	NewKafkaWriter func(brokers []string, topic string) export.MessageWriter

	// Progress, when set, receives every sample after the outputs do.
	Progress export.Sink
	// OnDiagnostic is called for each diagnostic as it is collected.
	OnDiagnostic func(gt3x.Diagnostic)
}

// result is what a conversion reports back.
type result struct {
	Device      gt3x.DeviceInfo
	Recording   gt3x.RecordingInfo
	Stats       gt3x.Accumulator
	Diagnostics gt3x.Diagnostics
	Rows        int64
	Summary     stats.Result
	RecordingID uuid.UUID // uuid.Nil unless stored in a database
	Messages    int64
}

// ChecksumMismatches counts records, and the log member, that failed
// validation.
func (r *result) ChecksumMismatches() int {
	return r.Diagnostics.Count(gt3x.DiagChecksumMismatch) + r.Diagnostics.Count(gt3x.DiagMemberChecksum)
}

// csvFile closes the output file after flushing the CSV writer.
type csvFile struct {
	*export.CSVWriter
	f io.Closer
}

func (c csvFile) Close() error {
	if err := c.CSVWriter.Close(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

func convert(ctx context.Context, c conversion) (*result, error) {
	cfg := c.Config
	if cfg == nil {
		cfg = config.EmptyExportConfig()
	}
	enc, err := gt3x.ParseEncoding(cfg.GetPayloadEncoding())
	if err != nil {
		return nil, err
	}

	opts := []gt3x.Option{gt3x.WithEncoding(enc), gt3x.WithRaw(cfg.GetRaw())}
	if c.OnDiagnostic != nil {
		opts = append(opts, gt3x.WithDiagnosticHandler(c.OnDiagnostic))
	}
	r, err := gt3x.Open(c.Input, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	dev := r.Device()

	loc, err := resolveLocation(cfg.GetTimezone(), dev)
	if err != nil {
		return nil, err
	}

	out, err := c.FS.Create(c.Output)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.Output, err)
	}
	csvOpts := export.CSVOptionsFromConfig(cfg, loc)
	if c.Clock != nil {
		csvOpts.Clock = c.Clock
	}
	w := export.NewCSVWriter(out, csvOpts)
	if err := w.WriteHeader(dev, r.Recording()); err != nil {
		out.Close()
		return nil, err
	}

	summary := stats.NewSummary(stats.DefaultEpoch)
	sinks := []export.Sink{csvFile{CSVWriter: w, f: out}, summary}

	var (
		store *db.DB
		rec   *db.Recording
	)
	if path := cfg.GetDBPath(); path != "" {
		if store, err = db.NewDB(path); err != nil {
			closeAll(sinks)
			return nil, err
		}
		defer store.Close()
		rec = db.NewRecording(c.Input, dev, r.Recording())
		rec.SoftwareVersion = version.String()
		if err := store.SaveRecording(rec); err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, store.NewSampleWriter(rec.ID, cfg.GetDBBatchSize()))
	}

	yUnit := units.G
	if cfg.GetRaw() {
		yUnit = "counts"
	}
	title := fmt.Sprintf("%s %s", dev.SerialNumber, dev.DeviceType)
	if path := cfg.GetPlotPath(); path != "" {
		sinks = append(sinks, export.NewPlotSink(c.FS, path, title, yUnit, export.DefaultPlotPoints))
	}
	if path := cfg.GetChartPath(); path != "" {
		subtitle := fmt.Sprintf("%g Hz", dev.SampleRate)
		sinks = append(sinks, export.NewChartSink(c.FS, path, title, subtitle, yUnit, loc, export.DefaultPlotPoints))
	}

	var pub *export.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		newWriter := c.NewKafkaWriter
		if newWriter == nil {
			newWriter = func(brokers []string, topic string) export.MessageWriter {
				return export.NewKafkaWriter(brokers, topic)
			}
		}
		id := uuid.Nil
		if rec != nil {
			id = rec.ID
		}
		pub = export.NewKafkaPublisher(ctx, newWriter(cfg.KafkaBrokers, cfg.GetKafkaTopic()), dev, id, cfg.GetKafkaBatchSize())
		sinks = append(sinks, pub)
	}

	if c.Progress != nil {
		sinks = append(sinks, c.Progress)
	}

	_, runErr := export.Run(ctx, r, sinks...)

	res := &result{
		Device:      dev,
		Recording:   r.Recording(),
		Stats:       r.Stats(),
		Diagnostics: r.Diagnostics(),
		Rows:        w.Rows(),
		Summary:     summary.Result(),
	}
	if pub != nil {
		res.Messages = pub.Messages()
	}
	if rec != nil {
		rec.TotalSamples = res.Recording.TotalSamples
		rec.TotalRecords = res.Stats.Records
		rec.Diagnostics = int64(len(res.Diagnostics))
		rec.Summary = &res.Summary
		rec.EpochLength = summary.EpochLength()
		if err := store.SaveRecording(rec); err != nil && runErr == nil {
			runErr = err
		}
		res.RecordingID = rec.ID
	}
	if runErr != nil {
		return res, fmt.Errorf("%s: %w", c.Input, runErr)
	}
	return res, nil
}

func closeAll(sinks []export.Sink) {
	for _, s := range sinks {
		s.Close()
	}
}

// resolveLocation maps the timezone setting to a location. "device" uses the
// fixed offset from info.txt, falling back to UTC when it is absent.
func resolveLocation(tz string, dev gt3x.DeviceInfo) (*time.Location, error) {
	if tz == units.DeviceTimezone {
		if dev.TimeZone == "" {
			return time.UTC, nil
		}
		loc, err := units.ParseUTCOffset(dev.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("device timezone: %w", err)
		}
		return loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

func printSummary(w io.Writer, r *result) {
	fmt.Fprintf(w, "device:      %s (%s, firmware %s)\n", r.Device.SerialNumber, r.Device.DeviceType, r.Device.FirmwareVersion)
	fmt.Fprintf(w, "sample rate: %g Hz\n", r.Device.SampleRate)
	fmt.Fprintf(w, "records:     %d\n", r.Stats.Records)
	fmt.Fprintf(w, "samples:     %d (%s)\n", r.Recording.TotalSamples, r.Recording.SampledDuration(r.Device.SampleRate))
	if r.Stats.Samples > 0 {
		fmt.Fprintf(w, "span:        %s .. %s\n",
			r.Stats.FirstSample.Format(time.RFC3339Nano), r.Stats.LastSample.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(w, "rows:        %d\n", r.Rows)
	if r.Summary.Samples > 0 {
		fmt.Fprintf(w, "mean g:      x=%.3f y=%.3f z=%.3f enmo=%.4f\n", r.Summary.X.Mean, r.Summary.Y.Mean, r.Summary.Z.Mean, r.Summary.ENMO)
	}
	if r.RecordingID != uuid.Nil {
		fmt.Fprintf(w, "recording:   %s\n", r.RecordingID)
	}
	if r.Messages > 0 {
		fmt.Fprintf(w, "kafka:       %d messages\n", r.Messages)
	}

	if len(r.Diagnostics) == 0 {
		fmt.Fprintln(w, "diagnostics: none")
		return
	}
	byKind := r.Diagnostics.ByKind()
	kinds := make([]gt3x.DiagnosticKind, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	fmt.Fprintln(w, "diagnostics:")
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-24s %d\n", k, byKind[k])
	}
}
