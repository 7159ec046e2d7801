package connect

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// label is text placed on a rendered figure, in canvas millimetres with the
// origin at the bottom left.
type label struct {
	X, Y   float64
	Text   string
	Center bool // centre horizontally on X
}

// drawText renders text onto an image with its baseline at pixel (x, y)
func drawText(img draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// textWidth returns the rendered width of text in pixels
func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

// drawLabels rasterizes labels onto img. height is the canvas height in mm
// and dpmm the raster resolution in dots per mm.
func drawLabels(img draw.Image, labels []label, height, dpmm float64) {
	for _, l := range labels {
		px := int(l.X * dpmm)
		py := int((height - l.Y) * dpmm)
		if l.Center {
			px -= textWidth(l.Text) / 2
		}
		drawText(img, px, py, l.Text, color.Black)
	}
}
