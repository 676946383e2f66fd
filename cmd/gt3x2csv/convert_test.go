package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gt3x/internal/config"
	"github.com/banshee-data/gt3x/internal/db"
	"github.com/banshee-data/gt3x/internal/export"
	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/testutil"
	"github.com/banshee-data/gt3x/internal/timeutil"
)

func fixture(t *testing.T, info []testutil.Field) string {
	t.Helper()
	return testutil.WriteGT3X(t, info,
		testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch,
			testutil.Int16Payload([3]int32{0, 250, -250}, [3]int32{250, 0, 0})),
		testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch+1,
			testutil.Int16Payload([3]int32{0, 0, 250}, [3]int32{-125, 0, 250})),
	)
}

func plainConfig() *config.ExportConfig {
	return &config.ExportConfig{Format: config.StringPtr(config.FormatPlain)}
}

func TestConvertPlain(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	res, err := convert(context.Background(), conversion{
		Input:  fixture(t, testutil.DefaultInfo()),
		Output: "/out/subject.csv",
		Config: plainConfig(),
		FS:     mfs,
	})
	require.NoError(t, err)

	data, err := mfs.ReadFile("/out/subject.csv")
	require.NoError(t, err)
	want := strings.Join([]string{
		"Timestamp,X,Y,Z",
		"2023-11-14 22:13:20.000,0.000,1.000,-1.000",
		"2023-11-14 22:13:20.010,1.000,0.000,0.000",
		"2023-11-14 22:13:21.000,0.000,0.000,1.000",
		"2023-11-14 22:13:21.010,-0.500,0.000,1.000",
		"",
	}, "\r\n")
	assert.Equal(t, want, string(data))

	assert.Equal(t, int64(4), res.Rows)
	assert.Equal(t, int64(4), res.Recording.TotalSamples)
	assert.Equal(t, int64(2), res.Stats.Records)
	assert.Equal(t, int64(4), res.Summary.Samples)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 0, res.ChecksumMismatches())
}

func TestConvertActiLifeHeader(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := convert(context.Background(), conversion{
		Input:  fixture(t, testutil.DefaultInfo()),
		Output: "/out.csv",
		FS:     mfs,
		Clock:  timeutil.NewMockClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	})
	require.NoError(t, err)

	data, err := mfs.ReadFile("/out.csv")
	require.NoError(t, err)
	lines := strings.Split(string(data), "\r\n")
	require.Len(t, lines, 16) // 10 header lines, column row, 4 samples, trailing empty
	assert.Equal(t, "Serial Number: MOS2E12345678", lines[1])
	assert.Equal(t, "Start Time 01:00:00", lines[2])
	assert.Equal(t, "Start Date 15/11/2023", lines[3])
	assert.Equal(t, "Accelerometer X,Accelerometer Y,Accelerometer Z", lines[10])
	assert.Equal(t, "0.000,1.000,-1.000", lines[11])
}

func TestConvertDeviceTimezone(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := plainConfig()
	cfg.Timezone = config.StringPtr("device")
	info := testutil.WithField(testutil.DefaultInfo(), "TimeZone", "-05:00:00")

	_, err := convert(context.Background(), conversion{Input: fixture(t, info), Output: "/tz.csv", Config: cfg, FS: mfs})
	require.NoError(t, err)

	data, err := mfs.ReadFile("/tz.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "\r\n2023-11-14 17:13:20.000,")
}

func TestConvertRaw(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := plainConfig()
	cfg.Raw = config.BoolPtr(true)
	info := testutil.WithoutField(testutil.DefaultInfo(), "Acceleration Scale")

	_, err := convert(context.Background(), conversion{Input: fixture(t, info), Output: "/raw.csv", Config: cfg, FS: mfs})
	require.NoError(t, err)

	data, err := mfs.ReadFile("/raw.csv")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2023-11-14 22:13:21.010,-125,0,250\r\n")
}

func TestConvertChecksumMismatch(t *testing.T) {
	path := testutil.WriteGT3X(t, testutil.DefaultInfo(),
		testutil.CorruptChecksum(testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch, testutil.Int16Payload([3]int32{1, 2, 3}))),
	)
	res, err := convert(context.Background(), conversion{Input: path, Output: "/c.csv", Config: plainConfig(), FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChecksumMismatches())
	assert.Equal(t, int64(1), res.Rows, "mismatched records are still decoded")

	var buf bytes.Buffer
	printSummary(&buf, res)
	assert.Contains(t, buf.String(), "checksum_mismatch")
}

func TestConvertDamagedStoredLog(t *testing.T) {
	rec := testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch, testutil.Int16Payload([3]int32{1, 2, 3}))
	archive := testutil.Members(t,
		testutil.Member{Name: gt3x.InfoMember, Data: testutil.InfoText(testutil.DefaultInfo())},
		testutil.Member{Name: gt3x.LogMember, Data: rec, Stored: true},
	)
	at := bytes.Index(archive, rec)
	require.GreaterOrEqual(t, at, 0)
	archive[at+gt3x.HeaderSize+3] ^= 0x04
	path := filepath.Join(t.TempDir(), "damaged.gt3x")
	require.NoError(t, os.WriteFile(path, archive, 0o644))

	res, err := convert(context.Background(), conversion{Input: path, Output: "/d.csv", Config: plainConfig(), FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err, "a damaged member decodes with diagnostics")
	assert.Equal(t, int64(1), res.Rows)
	assert.Equal(t, 1, res.Diagnostics.Count(gt3x.DiagChecksumMismatch))
	assert.Equal(t, 1, res.Diagnostics.Count(gt3x.DiagMemberChecksum))
	assert.Equal(t, 2, res.ChecksumMismatches())
}

func TestConvertCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mfs := fsutil.NewMemoryFileSystem()
	res, err := convert(ctx, conversion{Input: fixture(t, testutil.DefaultInfo()), Output: "/c.csv", Config: plainConfig(), FS: mfs})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Rows)

	data, err := mfs.ReadFile("/c.csv")
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,X,Y,Z\r\n", string(data), "the header is flushed and the file closed")
}

func TestConvertFramingError(t *testing.T) {
	second := testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch+1, testutil.Int16Payload([3]int32{2, 2, 2}))
	path := testutil.WriteGT3X(t, testutil.DefaultInfo(),
		testutil.Record(gt3x.TypeActivity2, testutil.FixtureEpoch, testutil.Int16Payload([3]int32{1, 1, 1})),
		second[:len(second)-3],
	)
	mfs := fsutil.NewMemoryFileSystem()
	res, err := convert(context.Background(), conversion{Input: path, Output: "/f.csv", Config: plainConfig(), FS: mfs})
	require.Error(t, err)
	assert.ErrorIs(t, err, gt3x.ErrFraming)
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.Rows)

	data, err := mfs.ReadFile("/f.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\r\n"), "rows before the bad record are flushed")
}

func TestConvertMissingInput(t *testing.T) {
	_, err := convert(context.Background(), conversion{
		Input:  filepath.Join(t.TempDir(), "absent.gt3x"),
		Output: "/x.csv",
		FS:     fsutil.NewMemoryFileSystem(),
	})
	assert.ErrorIs(t, err, gt3x.ErrNotFound)
}

func TestConvertStoresRecording(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gt3x.db")
	cfg := plainConfig()
	cfg.DBPath = config.StringPtr(dbPath)
	cfg.DBBatchSize = config.IntPtr(3)

	res, err := convert(context.Background(), conversion{Input: fixture(t, testutil.DefaultInfo()), Output: "/db.csv", Config: cfg, FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)

	store, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Recordings("")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.RecordingID, recs[0].ID)
	assert.Equal(t, "MOS2E12345678", recs[0].SerialNumber)
	assert.Equal(t, int64(4), recs[0].TotalSamples)
	assert.Equal(t, int64(2), recs[0].TotalRecords)
	assert.NotEmpty(t, recs[0].SoftwareVersion)

	n, err := store.SampleCount(res.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	sum, _, err := store.Summary(res.RecordingID)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, sum.X.Mean, 1e-9)
	assert.Len(t, sum.Epochs, 1)
}

func TestConvertPlotAndChart(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	cfg := plainConfig()
	cfg.PlotPath = config.StringPtr("/plots/axes.png")
	cfg.ChartPath = config.StringPtr("/plots/axes.html")

	_, err := convert(context.Background(), conversion{Input: fixture(t, testutil.DefaultInfo()), Output: "/p.csv", Config: cfg, FS: mfs})
	require.NoError(t, err)
	assert.Equal(t, []string{"/p.csv", "/plots/axes.html", "/plots/axes.png"}, mfs.Files())
}

type recordingWriter struct {
	msgs   []kafka.Message
	topic  string
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { w.closed = true; return nil }

func TestConvertPublishesToKafka(t *testing.T) {
	cfg := plainConfig()
	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.KafkaBatchSize = config.IntPtr(3)
	w := &recordingWriter{}

	res, err := convert(context.Background(), conversion{
		Input:  fixture(t, testutil.DefaultInfo()),
		Output: "/k.csv",
		Config: cfg,
		FS:     fsutil.NewMemoryFileSystem(),
		NewKafkaWriter: func(brokers []string, topic string) export.MessageWriter {
			w.topic = topic
			return w
		},
	})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultKafkaTopic, w.topic)
	assert.True(t, w.closed)
	assert.Len(t, w.msgs, 2)
	assert.Equal(t, int64(2), res.Messages)
}

func TestResolveLocation(t *testing.T) {
	loc, err := resolveLocation("UTC", gt3x.DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = resolveLocation("device", gt3x.DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc, "no device offset falls back to UTC")

	loc, err = resolveLocation("device", gt3x.DeviceInfo{TimeZone: "+01:30:00"})
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 90*60, offset)

	_, err = resolveLocation("device", gt3x.DeviceInfo{TimeZone: "garbage"})
	assert.Error(t, err)
	_, err = resolveLocation("Mars/Olympus", gt3x.DeviceInfo{})
	assert.Error(t, err)
}

func TestBuildConfigLayersFlagsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: plain\ndecimals: 2\nunits: mps2\n"), 0o644))

	flags := config.EmptyExportConfig()
	flags.Decimals = config.IntPtr(5)
	cfg, err := buildConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, config.FormatPlain, cfg.GetFormat())
	assert.Equal(t, 5, cfg.GetDecimals())
	assert.Equal(t, "mps2", cfg.GetUnits())

	flags.Decimals = config.IntPtr(-1)
	_, err = buildConfig("", flags)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092 "))
	assert.Nil(t, splitList(""))
}

func TestFlagDefaults(t *testing.T) {
	if *decimalsFlag != -1 {
		t.Errorf("decimals default = %d, want -1 (unset)", *decimalsFlag)
	}
	if *strictFlag {
		t.Error("strict should default to false")
	}
	cfg := flagConfig()
	if cfg.Format != nil || cfg.Decimals != nil || cfg.KafkaBrokers != nil {
		t.Errorf("unset flags leaked into config: %+v", cfg)
	}
}
