package connect

import (
	"fmt"
	"image/color"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// Colour bar placement as fractions of the figure: left, bottom, width, height
var colorbarRect = [4]float64{0.415, 0.15, 0.2, 0.04}

const colorbarBins = 10

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// MapRenderer draws planning and connectivity unit layers, optionally
// coloured by a metric, over a simple basemap.
type MapRenderer struct {
	PU      *Layer
	CU      *Layer
	Land    *Layer // optional coastline polygons for the basemap
	Metrics map[string][]float64
	Config  MapConfig

	// MetricIDs lists, per space, the unit IDs metric values are ordered by.
	// Without an entry values follow the layer's unit order.
	MetricIDs map[Space][]string
}

// NewMapRenderer creates a map renderer
func NewMapRenderer(pu, cu *Layer, metrics map[string][]float64, cfg MapConfig) *MapRenderer {
	return &MapRenderer{
		PU:        pu,
		CU:        cu,
		Metrics:   metrics,
		Config:    cfg,
		MetricIDs: map[Space][]string{},
	}
}

// drawLayer is a map layer resolved to per-unit fill colours
type drawLayer struct {
	layer    *Layer
	fills    []color.NRGBA
	colormap *Colormap
	opacity  int
}

// mapFrame converts lon/lat to canvas millimetres
type mapFrame struct {
	minX, minY float64 // projected origin
	scale      float64 // mm per projected unit
	width      float64
	height     float64
}

func (f mapFrame) toCanvas(p orb.Point) (float64, float64) {
	mp := project.Point(p, project.WGS84.ToMercator)
	return (mp.X() - f.minX) * f.scale, (mp.Y() - f.minY) * f.scale
}

func (r *MapRenderer) frame() (mapFrame, error) {
	lonMin, lonMax, latMin, latMax, err := BufferedBounds([]*Layer{r.PU, r.CU}, r.Config.Buffer)
	if err != nil {
		return mapFrame{}, err
	}
	if latMin < -85 {
		latMin = -85
	}
	if latMax > 85 {
		latMax = 85
	}

	lo := project.Point(orb.Point{lonMin, latMin}, project.WGS84.ToMercator)
	hi := project.Point(orb.Point{lonMax, latMax}, project.WGS84.ToMercator)
	spanX := hi.X() - lo.X()
	spanY := hi.Y() - lo.Y()
	if spanX <= 0 || spanY <= 0 {
		return mapFrame{}, fmt.Errorf("layers have an empty extent")
	}

	width := r.Config.Width
	if width <= 0 {
		width = 200
	}
	scale := width / spanX
	return mapFrame{
		minX:   lo.X(),
		minY:   lo.Y(),
		scale:  scale,
		width:  width,
		height: spanY * scale,
	}, nil
}

// resolveLayers turns the enabled layer configs into drawable layers
func (r *MapRenderer) resolveLayers() ([]drawLayer, error) {
	var out []drawLayer
	for i, lc := range r.Config.Layers {
		if !lc.Enabled {
			continue
		}

		var (
			layer *Layer
			space Space
		)
		switch lc.Kind {
		case LayerPUMetric, LayerPUSolid:
			layer, space = r.PU, SpacePU
		case LayerCUMetric, LayerCUSolid:
			layer, space = r.CU, SpaceCU
		default:
			return nil, fmt.Errorf("layer %d: unknown kind %q", i+1, lc.Kind)
		}
		if layer == nil {
			return nil, fmt.Errorf("layer %d: no %s layer loaded", i+1, space)
		}

		dl := drawLayer{layer: layer, opacity: lc.Opacity, fills: make([]color.NRGBA, len(layer.Units))}

		if lc.Kind == LayerPUMetric || lc.Kind == LayerCUMetric {
			key := MetricKey(Metric(lc.Metric), space)
			values, ok := r.Metrics[key]
			if !ok {
				return nil, fmt.Errorf("layer %d: %w: %s", i+1, ErrMetricNotCalculated, key)
			}
			if len(values) != len(layer.Units) {
				return nil, fmt.Errorf("layer %d: metric %s has %d values for %d units", i+1, key, len(values), len(layer.Units))
			}

			cm := NewColormap(
				parseHexColor(lc.LowColor, color.NRGBA{255, 255, 255, 255}),
				parseHexColor(lc.HighColor, color.NRGBA{139, 0, 0, 255}),
				values,
			)
			order, err := unitOrder(layer, r.MetricIDs[space])
			if err != nil {
				return nil, fmt.Errorf("layer %d: %s: %w", i+1, key, err)
			}
			for u, v := range values {
				dl.fills[order[u]] = withOpacity(cm.Color(v), lc.Opacity)
			}
			dl.colormap = &cm
		} else {
			solid := withOpacity(parseHexColor(lc.Color, color.NRGBA{0, 0, 128, 255}), lc.Opacity)
			for u := range dl.fills {
				dl.fills[u] = solid
			}
		}

		out = append(out, dl)
	}
	return out, nil
}

// unitOrder maps the position of each metric value to a unit of layer. Values
// listed by ids are matched on unit ID; with no usable ids they are taken in
// layer order.
func unitOrder(layer *Layer, ids []string) ([]int, error) {
	order := make([]int, len(layer.Units))
	for i := range order {
		order[i] = i
	}
	if len(ids) != len(layer.Units) {
		return order, nil
	}

	byID := make(map[string]int, len(layer.Units))
	for i, u := range layer.Units {
		if _, dup := byID[u.ID]; dup {
			return order, nil
		}
		byID[u.ID] = i
	}
	for i, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unit %q is not in layer %s", id, layer.Name)
		}
		order[i] = u
	}
	return order, nil
}

// RenderToSVG writes the map as SVG
func (r *MapRenderer) RenderToSVG(w io.Writer) error {
	f, err := r.frame()
	if err != nil {
		return err
	}
	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, f.width, f.height, nil)
	r.renderToCanvas(svgRenderer, f, layers)
	return svgRenderer.Close()
}

// RenderToPNG writes the map as PNG, including colour bar tick labels
func (r *MapRenderer) RenderToPNG(w io.Writer) error {
	f, err := r.frame()
	if err != nil {
		return err
	}
	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}

	dpmm := r.Config.Resolution
	if dpmm <= 0 {
		dpmm = 5
	}
	rast := rasterizer.New(f.width, f.height, canvas.DPMM(dpmm), canvas.DefaultColorSpace)
	labels := r.renderToCanvas(rast, f, layers)
	drawLabels(rast, labels, f.height, dpmm)

	return png.Encode(w, rast)
}

// renderToCanvas draws basemap, layers and legend. It returns the legend
// labels, which only raster output can draw.
func (r *MapRenderer) renderToCanvas(renderer canvasRenderer, f mapFrame, layers []drawLayer) []label {
	// Basemap
	bgStyle := canvas.DefaultStyle
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	if r.Config.Basemap {
		bgStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(parseHexColor(r.Config.OceanColor, color.NRGBA{166, 202, 224, 255}))}
	} else {
		bgStyle.Fill = canvas.Paint{Color: canvas.White}
	}
	renderer.RenderPath(canvas.Rectangle(f.width, f.height), bgStyle, canvas.Identity)

	if r.Config.Basemap && r.Land != nil {
		landStyle := canvas.DefaultStyle
		landStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(parseHexColor(r.Config.LandColor, color.NRGBA{224, 216, 176, 255}))}
		landStyle.Stroke = canvas.Paint{Color: canvas.Black}
		landStyle.StrokeWidth = 0.2
		landStyle.FillRule = canvas.EvenOdd
		for _, u := range r.Land.Units {
			renderer.RenderPath(multiPolygonPath(u.Geometry, f), landStyle, canvas.Identity)
		}
	}

	// Unit layers in configured order; the last metric layer owns the legend
	var legend *Colormap
	for _, dl := range layers {
		for i, u := range dl.layer.Units {
			style := canvas.DefaultStyle
			style.Fill = canvas.Paint{Color: nrgbaToRGBA(dl.fills[i])}
			style.Stroke = canvas.Paint{Color: nrgbaToRGBA(withOpacity(color.NRGBA{0, 0, 0, 255}, dl.opacity))}
			style.StrokeWidth = 0.1
			style.FillRule = canvas.EvenOdd
			renderer.RenderPath(multiPolygonPath(u.Geometry, f), style, canvas.Identity)
		}
		if dl.colormap != nil {
			legend = dl.colormap
		}
	}

	if legend == nil {
		return nil
	}
	return renderColorbar(renderer, *legend, f.width, f.height)
}

// renderColorbar draws a horizontal colour bar with colorbarBins boundaries.
// Each segment takes the colour of its midpoint.
func renderColorbar(renderer canvasRenderer, cm Colormap, figW, figH float64) []label {
	x0 := colorbarRect[0] * figW
	y0 := colorbarRect[1] * figH
	w := colorbarRect[2] * figW
	h := colorbarRect[3] * figH

	bins := cm.Bins(colorbarBins)
	segW := w / float64(len(bins)-1)
	for i := 0; i < len(bins)-1; i++ {
		mid := (bins[i] + bins[i+1]) / 2
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(cm.Color(mid))}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		seg := canvas.Rectangle(segW, h).Translate(x0+float64(i)*segW, y0)
		renderer.RenderPath(seg, style, canvas.Identity)
	}

	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Black}
	frameStyle.StrokeWidth = 0.2
	renderer.RenderPath(canvas.Rectangle(w, h).Translate(x0, y0), frameStyle, canvas.Identity)

	labels := make([]label, 0, len(bins))
	for i, text := range BinLabels(bins) {
		x := x0 + float64(i)*segW
		tick := &canvas.Path{}
		tick.MoveTo(x, y0)
		tick.LineTo(x, y0-1)
		renderer.RenderPath(tick, frameStyle, canvas.Identity)
		labels = append(labels, label{X: x, Y: y0 - 4, Text: text, Center: true})
	}
	return labels
}

// multiPolygonPath builds one canvas path holding every ring
func multiPolygonPath(mp orb.MultiPolygon, f mapFrame) *canvas.Path {
	p := &canvas.Path{}
	for _, poly := range mp {
		for _, ring := range poly {
			for i, pt := range ring {
				x, y := f.toCanvas(pt)
				if i == 0 {
					p.MoveTo(x, y)
				} else {
					p.LineTo(x, y)
				}
			}
			p.Close()
		}
	}
	return p
}
