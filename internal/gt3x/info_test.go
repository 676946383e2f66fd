package gt3x

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gt3x/internal/testutil"
)

func parseFields(t *testing.T, fields []testutil.Field) (DeviceInfo, RecordingInfo, error) {
	t.Helper()
	return ParseInfo(bytes.NewReader(testutil.InfoText(fields)))
}

func TestParseInfo(t *testing.T) {
	t.Parallel()

	fields := testutil.WithField(testutil.DefaultInfo(), "Future Key", "ignored: value")
	dev, rec, err := parseFields(t, fields)
	require.NoError(t, err)

	assert.Equal(t, "MOS2E12345678", dev.SerialNumber)
	assert.Equal(t, "1.9.2", dev.FirmwareVersion)
	assert.Equal(t, "4.12", dev.BatteryVoltage)
	assert.Equal(t, "wGT3XBT", dev.DeviceType)
	assert.Equal(t, 100.0, dev.SampleRate)
	assert.Equal(t, 0.004, dev.AccelerationScale)

	v, ok := dev.Field("Future Key")
	assert.True(t, ok)
	assert.Equal(t, "ignored: value", v)
	assert.Len(t, dev.Metadata(), len(fields))

	require.NotNil(t, rec.StartTime)
	require.NotNil(t, rec.StopTime)
	assert.Equal(t, time.Date(2023, 11, 15, 1, 0, 0, 0, time.UTC), *rec.StartTime)
	assert.Equal(t, time.Hour, rec.Duration())
	assert.Nil(t, rec.DownloadTime)
	assert.Zero(t, rec.TotalSamples)
}

func TestParseInfoScaleNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  float64
	}{
		{"0.004", 0.004},
		{"256", 1.0 / 256},
		{"341.0", 1.0 / 341},
		{"1", 1},
	}
	for _, tt := range tests {
		dev, _, err := parseFields(t, testutil.WithField(testutil.DefaultInfo(), KeyAccelerationScale, tt.value))
		require.NoError(t, err, tt.value)
		assert.InDelta(t, tt.want, dev.AccelerationScale, 1e-15, tt.value)
	}

	dev, _, err := parseFields(t, testutil.WithoutField(testutil.DefaultInfo(), KeyAccelerationScale))
	require.NoError(t, err)
	assert.Zero(t, dev.AccelerationScale)
}

func TestParseInfoMissingFields(t *testing.T) {
	t.Parallel()

	for _, key := range []string{KeySerialNumber, KeySampleRate} {
		_, _, err := parseFields(t, testutil.WithoutField(testutil.DefaultInfo(), key))
		require.ErrorIs(t, err, ErrMissingField, key)
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, key, fe.Field)
		assert.Contains(t, err.Error(), key)
	}

	_, _, err := parseFields(t, testutil.WithField(testutil.DefaultInfo(), KeySampleRate, ""))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestParseInfoMalformedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value string
	}{
		{KeySampleRate, "fast"},
		{KeySampleRate, "NaN"},
		{KeyAccelerationScale, "0,004"},
		{KeyStartDate, "yesterday"},
		{KeyStopDate, "99999999999999999999"},
	}
	for _, tt := range tests {
		_, _, err := parseFields(t, testutil.WithField(testutil.DefaultInfo(), tt.key, tt.value))
		require.ErrorIs(t, err, ErrMalformedValue, "%s=%s", tt.key, tt.value)
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, tt.key, fe.Field)
	}
}

func TestParseInfoTextDates(t *testing.T) {
	t.Parallel()

	fields := testutil.DefaultInfo()
	fields = testutil.WithField(fields, KeyStartDate, "3/7/2015")
	fields = testutil.WithField(fields, KeyStartTime, "10:00:00")
	fields = testutil.WithField(fields, KeyStopDate, "2015-03-08")
	fields = testutil.WithField(fields, KeyLastSampleTime, "1425808800")

	_, rec, err := parseFields(t, fields)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 3, 7, 10, 0, 0, 0, time.UTC), *rec.StartTime)
	assert.Equal(t, time.Date(2015, 3, 8, 0, 0, 0, 0, time.UTC), *rec.StopTime)
	assert.Equal(t, time.Date(2015, 3, 8, 10, 0, 0, 0, time.UTC), *rec.LastSampleTime)
}

func TestParseInfoTolerantLines(t *testing.T) {
	t.Parallel()

	text := "\ufeffSerial Number: ABC\n\nnot a pair\n : orphan\nSample Rate:30\n"
	dev, _, err := ParseInfo(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, "ABC", dev.SerialNumber)
	assert.Equal(t, 30.0, dev.SampleRate)
}

func TestRecordingInfoSampledDuration(t *testing.T) {
	t.Parallel()

	r := RecordingInfo{TotalSamples: 250}
	assert.Equal(t, 2500*time.Millisecond, r.SampledDuration(100))
	assert.Zero(t, r.SampledDuration(0))
	assert.Zero(t, r.Duration())
}
