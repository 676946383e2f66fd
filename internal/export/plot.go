package export

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gt3x/internal/fsutil"
	"github.com/banshee-data/gt3x/internal/gt3x"
)

// DefaultPlotPoints bounds how many samples a plot or chart draws.
const DefaultPlotPoints = 5000

var axisColors = []color.Color{
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

// PlotSink renders a PNG line plot of the three axes against elapsed time.
type PlotSink struct {
	fs    fsutil.FileSystem
	path  string
	title string
	yUnit string
	dec   *Decimator
}

// NewPlotSink writes to path through fs when closed.
func NewPlotSink(fs fsutil.FileSystem, path, title, yUnit string, maxPoints int) *PlotSink {
	if maxPoints <= 0 {
		maxPoints = DefaultPlotPoints
	}
	return &PlotSink{fs: fs, path: path, title: title, yUnit: yUnit, dec: NewDecimator(maxPoints)}
}

// WriteSample offers one sample to the plot.
func (p *PlotSink) WriteSample(s gt3x.CalibratedSample) error {
	p.dec.Add(s)
	return nil
}

// Render writes the PNG to w.
func (p *PlotSink) Render(w io.Writer) error {
	pl := plot.New()
	pl.Title.Text = p.title
	pl.X.Label.Text = "Elapsed (s)"
	pl.Y.Label.Text = fmt.Sprintf("Acceleration (%s)", p.yUnit)

	samples := p.dec.Samples()
	if len(samples) > 0 {
		start := samples[0].Timestamp
		pts := [3]plotter.XYs{}
		for i := range pts {
			pts[i] = make(plotter.XYs, 0, len(samples))
		}
		for _, s := range samples {
			x := s.Timestamp.Sub(start).Seconds()
			pts[0] = append(pts[0], plotter.XY{X: x, Y: s.X})
			pts[1] = append(pts[1], plotter.XY{X: x, Y: s.Y})
			pts[2] = append(pts[2], plotter.XY{X: x, Y: s.Z})
		}
		for i, name := range []string{"X", "Y", "Z"} {
			line, err := plotter.NewLine(pts[i])
			if err != nil {
				return err
			}
			line.Color = axisColors[i]
			line.Width = vg.Points(1)
			pl.Add(line)
			pl.Legend.Add(name, line)
		}
	}
	pl.Legend.Top = true
	pl.Legend.Left = false
	pl.Legend.XOffs = -10
	pl.Legend.YOffs = -10

	wt, err := pl.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Close renders the plot and writes the file.
func (p *PlotSink) Close() error {
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return err
	}
	if err := p.fs.WriteFile(p.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write plot %s: %w", p.path, err)
	}
	return nil
}
