package connect

import (
	"fmt"
	"image/color"
	"io"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var defaultBarColor = color.NRGBA{31, 120, 180, 255}

// RenderMetricChart writes a PNG bar chart with one bar per unit
func RenderMetricChart(w io.Writer, title string, ids []string, values []float64, barColor string) error {
	if len(values) == 0 {
		return fmt.Errorf("no values to chart")
	}
	if len(ids) != len(values) {
		return fmt.Errorf("%d unit ids for %d values", len(ids), len(values))
	}

	lo, hi := 0.0, values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		hi = lo + 1
	}

	fill := parseHexColor(barColor, defaultBarColor)
	style := chart.Style{
		FillColor:   drawing.Color{R: fill.R, G: fill.G, B: fill.B, A: fill.A},
		StrokeColor: drawing.Color{R: fill.R, G: fill.G, B: fill.B, A: fill.A},
		StrokeWidth: 1,
	}

	bars := make([]chart.Value, len(values))
	for i, v := range values {
		bars[i] = chart.Value{Value: v, Label: ids[i], Style: style}
	}

	width := 100 + 24*len(values)
	if width < 512 {
		width = 512
	}

	bc := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Width:      width,
		Height:     400,
		BarWidth:   16,
		BarSpacing: 8,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Bars: bars,
	}

	return bc.Render(chart.PNG, w)
}
