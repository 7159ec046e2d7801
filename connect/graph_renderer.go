package connect

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// Edge joins two unit indices of a matrix
type Edge struct {
	From, To int
}

// UndirectedEdges returns one edge per unit pair connected in either
// direction. Self-connections are not edges.
func UndirectedEdges(m *Matrix) []Edge {
	n := m.Size()
	var edges []Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.At(i, j) != 0 || m.At(j, i) != 0 {
				edges = append(edges, Edge{From: i, To: j})
			}
		}
	}
	return edges
}

// SpringLayout places n nodes with the Fruchterman-Reingold force model and
// rescales the result into [-1, 1] on both axes. Same seed, same layout.
func SpringLayout(n int, edges []Edge, iterations int, seed int64) []orb.Point {
	pos := make([]orb.Point, n)
	if n < 2 {
		return pos
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range pos {
		pos[i] = orb.Point{rng.Float64(), rng.Float64()}
	}

	k := math.Sqrt(1 / float64(n))
	temp := 0.1
	cooling := temp / float64(iterations+1)

	disp := make([]orb.Point, n)
	for iter := 0; iter < iterations; iter++ {
		for i := range disp {
			disp[i] = orb.Point{}
		}

		// Repulsion between every pair
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := pos[i][0] - pos[j][0]
				dy := pos[i][1] - pos[j][1]
				d := math.Max(math.Hypot(dx, dy), 0.01)
				f := k * k / d
				disp[i][0] += dx / d * f
				disp[i][1] += dy / d * f
				disp[j][0] -= dx / d * f
				disp[j][1] -= dy / d * f
			}
		}

		// Attraction along edges
		for _, e := range edges {
			dx := pos[e.From][0] - pos[e.To][0]
			dy := pos[e.From][1] - pos[e.To][1]
			d := math.Max(math.Hypot(dx, dy), 0.01)
			f := d * d / k
			disp[e.From][0] -= dx / d * f
			disp[e.From][1] -= dy / d * f
			disp[e.To][0] += dx / d * f
			disp[e.To][1] += dy / d * f
		}

		for i := range pos {
			l := math.Max(math.Hypot(disp[i][0], disp[i][1]), 0.01)
			step := math.Min(l, temp)
			pos[i][0] += disp[i][0] / l * step
			pos[i][1] += disp[i][1] / l * step
		}
		temp -= cooling
	}

	return rescaleLayout(pos)
}

// rescaleLayout centres positions on the origin and scales the largest
// coordinate magnitude to 1.
func rescaleLayout(pos []orb.Point) []orb.Point {
	var cx, cy float64
	for _, p := range pos {
		cx += p[0]
		cy += p[1]
	}
	cx /= float64(len(pos))
	cy /= float64(len(pos))

	maxAbs := 0.0
	for i := range pos {
		pos[i][0] -= cx
		pos[i][1] -= cy
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(pos[i][0]), math.Abs(pos[i][1])))
	}
	if maxAbs == 0 {
		return pos
	}
	for i := range pos {
		pos[i][0] /= maxAbs
		pos[i][1] /= maxAbs
	}
	return pos
}

// GraphRenderer draws a connectivity matrix as a node-link diagram
type GraphRenderer struct {
	Matrix *Matrix
	Config GraphConfig

	positions []orb.Point
	edges     []Edge
}

// NewGraphRenderer lays out the matrix graph
func NewGraphRenderer(m *Matrix, cfg GraphConfig) (*GraphRenderer, error) {
	if m == nil || m.Size() == 0 {
		return nil, fmt.Errorf("no connectivity matrix to draw")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 50
	}
	if cfg.Size <= 0 {
		cfg.Size = 200
	}

	edges := UndirectedEdges(m)
	return &GraphRenderer{
		Matrix:    m,
		Config:    cfg,
		edges:     edges,
		positions: SpringLayout(m.Size(), edges, cfg.Iterations, cfg.Seed),
	}, nil
}

const (
	graphMargin     = 10.0 // mm
	graphNodeRadius = 2.5  // mm
)

// toCanvas maps a layout position in [-1, 1] to canvas millimetres
func (g *GraphRenderer) toCanvas(p orb.Point) (float64, float64) {
	half := (g.Config.Size - 2*graphMargin) / 2
	return graphMargin + half*(p[0]+1), graphMargin + half*(p[1]+1)
}

// RenderToSVG writes the graph as SVG
func (g *GraphRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, g.Config.Size, g.Config.Size, nil)
	g.renderToCanvas(svgRenderer)
	return svgRenderer.Close()
}

// RenderToPNG writes the graph as PNG with node labels
func (g *GraphRenderer) RenderToPNG(w io.Writer) error {
	dpmm := g.Config.Resolution
	if dpmm <= 0 {
		dpmm = 5
	}
	rast := rasterizer.New(g.Config.Size, g.Config.Size, canvas.DPMM(dpmm), canvas.DefaultColorSpace)
	labels := g.renderToCanvas(rast)
	drawLabels(rast, labels, g.Config.Size, dpmm)
	return png.Encode(w, rast)
}

func (g *GraphRenderer) renderToCanvas(renderer canvasRenderer) []label {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	renderer.RenderPath(canvas.Rectangle(g.Config.Size, g.Config.Size), bgStyle, canvas.Identity)

	edgeStyle := canvas.DefaultStyle
	edgeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	edgeStyle.Stroke = canvas.Paint{Color: nrgbaToRGBA(parseHexColor(g.Config.EdgeColor, color.NRGBA{211, 211, 211, 255}))}
	edgeStyle.StrokeWidth = 0.3

	for _, e := range g.edges {
		x1, y1 := g.toCanvas(g.positions[e.From])
		x2, y2 := g.toCanvas(g.positions[e.To])
		p := &canvas.Path{}
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		renderer.RenderPath(p, edgeStyle, canvas.Identity)
	}

	nodeStyle := canvas.DefaultStyle
	nodeStyle.Fill = canvas.Paint{Color: nrgbaToRGBA(parseHexColor(g.Config.NodeColor, color.NRGBA{31, 120, 180, 255}))}
	nodeStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	labels := make([]label, 0, len(g.positions))
	for i, p := range g.positions {
		cx, cy := g.toCanvas(p)
		renderer.RenderPath(canvas.Circle(graphNodeRadius).Translate(cx, cy), nodeStyle, canvas.Identity)
		labels = append(labels, label{X: cx, Y: cy - 1, Text: g.Matrix.IDs[i], Center: true})
	}
	return labels
}
