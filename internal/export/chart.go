package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/gt3x"
)

// ChartSink renders an interactive HTML line chart of the three axes.
type ChartSink struct {
	fs       fsutil.FileSystem
	path     string
	title    string
	subtitle string
	yUnit    string
	loc      *time.Location
	dec      *Decimator
}

// NewChartSink writes to path through fs when closed. loc may be nil for UTC.
func NewChartSink(fs fsutil.FileSystem, path, title, subtitle, yUnit string, loc *time.Location, maxPoints int) *ChartSink {
	if maxPoints <= 0 {
		maxPoints = DefaultPlotPoints
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ChartSink{fs: fs, path: path, title: title, subtitle: subtitle, yUnit: yUnit, loc: loc, dec: NewDecimator(maxPoints)}
}

// WriteSample offers one sample to the chart.
func (c *ChartSink) WriteSample(s gt3x.CalibratedSample) error {
	c.dec.Add(s)
	return nil
}

// Render writes the HTML page to w.
func (c *ChartSink) Render(w io.Writer) error {
	samples := c.dec.Samples()
	xAxis := make([]string, len(samples))
	series := [3][]opts.LineData{}
	for i := range series {
		series[i] = make([]opts.LineData, len(samples))
	}
	for i, s := range samples {
		xAxis[i] = s.Timestamp.In(c.loc).Format("2006-01-02 15:04:05.000")
		series[0][i] = opts.LineData{Value: s.X}
		series[1][i] = opts.LineData{Value: s.Y}
		series[2][i] = opts.LineData{Value: s.Z}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: c.title, Subtitle: fmt.Sprintf("%s stride=%d points=%d", c.subtitle, c.dec.Stride(), len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: c.yUnit, NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(xAxis).
		AddSeries("X", series[0]).
		AddSeries("Y", series[1]).
		AddSeries("Z", series[2]).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Close renders the chart and writes the file.
func (c *ChartSink) Close() error {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return err
	}
	if err := c.fs.WriteFile(c.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write chart %s: %w", c.path, err)
	}
	return nil
}
