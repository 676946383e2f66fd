package gt3x

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// info.txt keys.
const (
	KeySerialNumber      = "Serial Number"
	KeyDeviceType        = "Device Type"
	KeyFirmware          = "Firmware"
	KeyFirmwareVersion   = "Firmware Version"
	KeyBatteryVoltage    = "Battery Voltage"
	KeySampleRate        = "Sample Rate"
	KeyAccelerationScale = "Acceleration Scale"
	KeyStartDate         = "Start Date"
	KeyStartTime         = "Start Time"
	KeyStopDate          = "Stop Date"
	KeyStopTime          = "Stop Time"
	KeyDownloadDate      = "Download Date"
	KeyDownloadTime      = "Download Time"
	KeyLastSampleTime    = "Last Sample Time"
	KeyBoardRevision     = "Board Revision"
	KeySubjectName       = "Subject Name"
	KeyTimeZone          = "TimeZone"
)

// DeviceInfo describes the device that produced a log. It is built once per
// file and not modified afterwards.
type DeviceInfo struct {
	SerialNumber    string
	FirmwareVersion string
	BatteryVoltage  string
	DeviceType      string
	BoardRevision   string
	SubjectName     string
	TimeZone        string

	SampleRate        float64 // Hz
	AccelerationScale float64 // g per raw unit

	fields map[string]string
}

// Field returns the raw info.txt value for key.
func (d DeviceInfo) Field(key string) (string, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// Metadata returns a copy of every key/value pair read from info.txt.
func (d DeviceInfo) Metadata() map[string]string {
	out := make(map[string]string, len(d.fields))
	for k, v := range d.fields {
		out[k] = v
	}
	return out
}

// RecordingInfo describes the recording window. TotalSamples is not known
// from the metadata and is filled in while the log is decoded.
type RecordingInfo struct {
	StartTime      *time.Time
	StopTime       *time.Time
	DownloadTime   *time.Time
	LastSampleTime *time.Time
	TotalSamples   int64
}

// Duration is StopTime-StartTime, or zero when either bound is unknown.
func (r RecordingInfo) Duration() time.Duration {
	if r.StartTime == nil || r.StopTime == nil {
		return 0
	}
	return r.StopTime.Sub(*r.StartTime)
}

// SampledDuration is the time covered by TotalSamples at the given rate.
func (r RecordingInfo) SampledDuration(sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(r.TotalSamples) / sampleRate * float64(time.Second)))
}

var dateLayouts = []string{"1/2/2006", "2006-01-02"}
var dateTimeLayouts = []string{"1/2/2006 15:04:05", "2006-01-02 15:04:05", "1/2/2006 15:04:05.000", "2006-01-02 15:04:05.000"}

// ParseInfo parses the info.txt member. Unknown keys are kept in Metadata but
// otherwise ignored.
func ParseInfo(r io.Reader) (DeviceInfo, RecordingInfo, error) {
	fields, err := readFields(r)
	if err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}

	dev := DeviceInfo{
		SerialNumber:    fields[KeySerialNumber],
		FirmwareVersion: fields[KeyFirmwareVersion],
		BatteryVoltage:  fields[KeyBatteryVoltage],
		DeviceType:      fields[KeyDeviceType],
		BoardRevision:   fields[KeyBoardRevision],
		SubjectName:     fields[KeySubjectName],
		TimeZone:        fields[KeyTimeZone],
		fields:          fields,
	}
	if dev.FirmwareVersion == "" {
		dev.FirmwareVersion = fields[KeyFirmware]
	}

	if dev.SerialNumber == "" {
		return DeviceInfo{}, RecordingInfo{}, missingField(KeySerialNumber)
	}

	rate, ok := fields[KeySampleRate]
	if !ok || rate == "" {
		return DeviceInfo{}, RecordingInfo{}, missingField(KeySampleRate)
	}
	if dev.SampleRate, err = parseNumber(KeySampleRate, rate); err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}

	if scale, ok := fields[KeyAccelerationScale]; ok && scale != "" {
		v, err := parseNumber(KeyAccelerationScale, scale)
		if err != nil {
			return DeviceInfo{}, RecordingInfo{}, err
		}
		dev.AccelerationScale = normalizeScale(v)
	}

	var rec RecordingInfo
	if rec.StartTime, err = parseDate(fields, KeyStartDate, KeyStartTime); err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}
	if rec.StopTime, err = parseDate(fields, KeyStopDate, KeyStopTime); err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}
	if rec.DownloadTime, err = parseDate(fields, KeyDownloadDate, KeyDownloadTime); err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}
	if rec.LastSampleTime, err = parseDate(fields, KeyLastSampleTime, ""); err != nil {
		return DeviceInfo{}, RecordingInfo{}, err
	}

	return dev, rec, nil
}

func readFields(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", InfoMember, err)
	}
	return fields, nil
}

func parseNumber(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, malformedValue(field, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformedValue(field, value, fmt.Errorf("not a finite number"))
	}
	return v, nil
}

// normalizeScale accepts both forms seen in the field: counts per g (256,
// 341, ...) and g per count (0.004 ...).
func normalizeScale(v float64) float64 {
	if v > 1 {
		return 1 / v
	}
	return v
}

// parseDate reads a date key, optionally combined with a separate time-of-day
// key. All-digit values are device timestamps (ticks or epoch seconds).
func parseDate(fields map[string]string, dateKey, timeKey string) (*time.Time, error) {
	date := fields[dateKey]
	if date == "" {
		return nil, nil
	}
	if isDigits(date) {
		raw, err := strconv.ParseInt(date, 10, 64)
		if err != nil {
			return nil, malformedValue(dateKey, date, err)
		}
		t := TimestampToTime(raw)
		return &t, nil
	}

	clock := ""
	if timeKey != "" {
		clock = fields[timeKey]
	}
	layouts := dateLayouts
	value := date
	if clock != "" {
		layouts = dateTimeLayouts
		value = date + " " + clock
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, malformedValue(dateKey, value, fmt.Errorf("unrecognised date format"))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
