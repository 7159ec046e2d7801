package connect

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
)

// Colormap is a linear two-colour ramp normalized over a value range
type Colormap struct {
	Low  color.NRGBA
	High color.NRGBA
	Min  float64
	Max  float64
}

// NewColormap creates a ramp spanning the range of values
func NewColormap(low, high color.NRGBA, values []float64) Colormap {
	cm := Colormap{Low: low, High: high}
	if len(values) == 0 {
		return cm
	}
	cm.Min, cm.Max = values[0], values[0]
	for _, v := range values[1:] {
		cm.Min = math.Min(cm.Min, v)
		cm.Max = math.Max(cm.Max, v)
	}
	return cm
}

// Normalize maps v to [0, 1]; values outside the range are clipped. A
// degenerate range maps everything to 0.
func (c Colormap) Normalize(v float64) float64 {
	if c.Max <= c.Min || math.IsNaN(v) {
		return 0
	}
	t := (v - c.Min) / (c.Max - c.Min)
	return math.Max(0, math.Min(1, t))
}

// At returns the colour at normalized position t
func (c Colormap) At(t float64) color.NRGBA {
	t = math.Max(0, math.Min(1, t))
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.NRGBA{
		R: lerp(c.Low.R, c.High.R),
		G: lerp(c.Low.G, c.High.G),
		B: lerp(c.Low.B, c.High.B),
		A: 255,
	}
}

// Color returns the colour of value v
func (c Colormap) Color(v float64) color.NRGBA {
	return c.At(c.Normalize(v))
}

// Bins returns n evenly spaced legend boundaries from Min to Max
func (c Colormap) Bins(n int) []float64 {
	if n < 2 {
		return []float64{c.Min}
	}
	bins := make([]float64, n)
	step := (c.Max - c.Min) / float64(n-1)
	for i := range bins {
		bins[i] = c.Min + step*float64(i)
	}
	bins[n-1] = c.Max
	return bins
}

// BinLabels formats legend boundaries rounded to one decimal
func BinLabels(bins []float64) []string {
	labels := make([]string, len(bins))
	for i, b := range bins {
		labels[i] = strconv.FormatFloat(math.Round(b*10)/10, 'f', 1, 64)
	}
	return labels
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA". Unparseable input yields
// the fallback colour.
func parseHexColor(hex string, fallback color.NRGBA) color.NRGBA {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b uint8
	a := uint8(255)
	switch len(hex) {
	case 6:
		if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
			return fallback
		}
	case 8:
		if _, err := fmt.Sscanf(hex, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return fallback
		}
	default:
		return fallback
	}
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// withOpacity sets alpha from a 0-100 percent value
func withOpacity(c color.NRGBA, percent int) color.NRGBA {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	c.A = uint8(math.Round(float64(percent) * 255 / 100))
	return c
}

// nrgbaToRGBA converts color.NRGBA to premultiplied color.RGBA, which is what
// the canvas library expects.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}
