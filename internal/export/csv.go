package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/gt3x/internal/config"
	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/timeutil"
	"github.com/banshee-data/gt3x/internal/units"
)

// ActiLife header constants. Downstream tools match on these strings.
const (
	actiLifeCreator     = "ActiGraph GT3X+ ActiLife v6.11.9"
	actiLifeDefaultFW   = "1.7.2"
	actiLifeDefaultBatt = "4.18"
	actiLifeDateLayout  = "02/01/2006"
	actiLifeTimeLayout  = "15:04:05"
)

// CSVOptions controls CSVWriter output.
type CSVOptions struct {
	Format          string // config.FormatActiLife or config.FormatPlain
	Decimals        int
	TimestampLayout string
	Units           string // units.G or units.MPS2; ignored when Raw
	Raw             bool   // samples are device units, written unconverted
	Location        *time.Location
	Clock           timeutil.Clock // fallback when the header has no start time
}

// CSVOptionsFromConfig maps an export config onto writer options. loc may be
// nil for UTC.
func CSVOptionsFromConfig(cfg *config.ExportConfig, loc *time.Location) CSVOptions {
	return CSVOptions{
		Format:          cfg.GetFormat(),
		Decimals:        cfg.GetDecimals(),
		TimestampLayout: cfg.GetTimestampLayout(),
		Units:           cfg.GetUnits(),
		Raw:             cfg.GetRaw(),
		Location:        loc,
	}
}

// CSVWriter wraps csv.Writer with methods for sample output.
type CSVWriter struct {
	w    *csv.Writer
	opts CSVOptions
	row  []string
	rows int64
}

// NewCSVWriter creates a CSVWriter. Rows end in CRLF as ActiLife writes them.
func NewCSVWriter(w io.Writer, opts CSVOptions) *CSVWriter {
	if opts.Format == "" {
		opts.Format = config.DefaultFormat
	}
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = config.DefaultTimestampLayout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	n := 3
	if opts.Format == config.FormatPlain {
		n = 4
	}
	return &CSVWriter{w: cw, opts: opts, row: make([]string, n)}
}

// WriteHeader writes the preamble and the column header row.
func (c *CSVWriter) WriteHeader(dev gt3x.DeviceInfo, rec gt3x.RecordingInfo) error {
	if c.opts.Format == config.FormatPlain {
		return c.write([]string{"Timestamp", "X", "Y", "Z"})
	}
	for _, line := range c.actiLifeHeader(dev, rec) {
		if err := c.write([]string{line}); err != nil {
			return err
		}
	}
	return c.write([]string{"Accelerometer X", "Accelerometer Y", "Accelerometer Z"})
}

func (c *CSVWriter) actiLifeHeader(dev gt3x.DeviceInfo, rec gt3x.RecordingInfo) []string {
	start := c.opts.Clock.Now()
	if rec.StartTime != nil {
		start = *rec.StartTime
	}
	start = start.In(c.opts.Location)
	download := start
	if rec.DownloadTime != nil {
		download = rec.DownloadTime.In(c.opts.Location)
	}
	fw := dev.FirmwareVersion
	if fw == "" {
		fw = actiLifeDefaultFW
	}
	batt := dev.BatteryVoltage
	if batt == "" {
		batt = actiLifeDefaultBatt
	}
	return []string{
		fmt.Sprintf("------------ Data File Created By %s Firmware v%s date format d/MM/yyyy at %d Hz  Filter Normal -----------",
			actiLifeCreator, fw, int(dev.SampleRate)),
		"Serial Number: " + dev.SerialNumber,
		"Start Time " + start.Format(actiLifeTimeLayout),
		"Start Date " + start.Format(actiLifeDateLayout),
		"Epoch Period (hh:mm:ss) 00:00:00",
		"Download Time " + download.Format(actiLifeTimeLayout),
		"Download Date " + download.Format(actiLifeDateLayout),
		"Current Memory Address: 0",
		"Current Battery Voltage: " + batt + "     Mode = 12",
		"--------------------------------------------------",
	}
}

// WriteSample writes one data row.
func (c *CSVWriter) WriteSample(s gt3x.CalibratedSample) error {
	x, y, z := s.X, s.Y, s.Z
	if !c.opts.Raw {
		x = units.ConvertAcceleration(x, c.opts.Units)
		y = units.ConvertAcceleration(y, c.opts.Units)
		z = units.ConvertAcceleration(z, c.opts.Units)
	}
	row := c.row
	if len(row) == 4 {
		row[0] = s.Timestamp.In(c.opts.Location).Format(c.opts.TimestampLayout)
		row = row[1:]
	}
	row[0] = c.formatValue(x)
	row[1] = c.formatValue(y)
	row[2] = c.formatValue(z)
	if err := c.write(c.row); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *CSVWriter) formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', c.opts.Decimals, 64)
}

func (c *CSVWriter) write(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Rows is the number of data rows written so far.
func (c *CSVWriter) Rows() int64 { return c.rows }

// Close flushes buffered rows. The underlying writer is not closed.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
