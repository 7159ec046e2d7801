package connect

import (
	"fmt"
	"log"
	"strings"
)

// Selection lists which metrics to compute, mirroring the metric checkboxes
type Selection struct {
	VertexDegree    bool  `json:"vertexDegree"`
	Betweenness     bool  `json:"betweenness"`
	Eigenvector     bool  `json:"eigenvector"`
	SelfRecruitment bool  `json:"selfRecruitment"`
	Boundary        bool  `json:"boundary"`
	Space           Space `json:"space,omitempty"` // defaults to pu
}

// Metrics returns the selected per-unit metrics in dispatch order
func (s Selection) Metrics() []Metric {
	var out []Metric
	if s.VertexDegree {
		out = append(out, MetricVertexDegree)
	}
	if s.Betweenness {
		out = append(out, MetricBetweenness)
	}
	if s.Eigenvector {
		out = append(out, MetricEigenvector)
	}
	if s.SelfRecruitment {
		out = append(out, MetricSelfRecruitment)
	}
	return out
}

// Empty reports whether nothing is selected
func (s Selection) Empty() bool {
	return len(s.Metrics()) == 0 && !s.Boundary
}

func (s Selection) space() Space {
	if s.Space == "" {
		return SpacePU
	}
	return s.Space
}

// ParseSelection parses a comma separated list such as
// "vertex_degree,eigenvector,boundary". "all" selects every metric and the
// boundary table.
func ParseSelection(list string, space Space) (Selection, error) {
	sel := Selection{Space: space}
	if space != "" && !space.Valid() {
		return sel, fmt.Errorf("unknown space %q (want pu or cu)", space)
	}

	for _, item := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(item)) {
		case "":
		case "all":
			sel.VertexDegree = true
			sel.Betweenness = true
			sel.Eigenvector = true
			sel.SelfRecruitment = true
			sel.Boundary = true
		case "vertex_degree", "degree":
			sel.VertexDegree = true
		case "betweenness_centrality", "betweenness":
			sel.Betweenness = true
		case "eigenvector_centrality", "eigenvector":
			sel.Eigenvector = true
		case "self_recruitment", "selfrecruit":
			sel.SelfRecruitment = true
		case "boundary":
			sel.Boundary = true
		default:
			return sel, fmt.Errorf("unknown metric %q", item)
		}
	}
	return sel, nil
}

// Result reports what a Calculate call did. When Warning is set nothing in
// the project was changed.
type Result struct {
	Updated  []string `json:"updated"`
	Boundary bool     `json:"boundary"`
	Warning  *Warning `json:"warning,omitempty"`
}

// Dispatcher runs selected metric functions against a project's matrices
type Dispatcher struct {
	Funcs      map[Metric]MetricFunc
	ReadMatrix func(path string) (*Matrix, error)
}

// NewDispatcher creates a dispatcher using the built-in metrics
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Funcs:      DefaultMetricFuncs(),
		ReadMatrix: ReadMatrixCSV,
	}
}

// Calculation holds the output of Compute until it is applied to a project
type Calculation struct {
	Result
	Values map[string][]float64
	Rows   []BoundaryRow
}

// Apply stores the computed metrics and boundary table in p. A calculation
// that carries a Warning changes nothing.
func (c *Calculation) Apply(p *Project) {
	if c.Warning != nil {
		return
	}
	for _, key := range c.Updated {
		p.Metrics[key] = c.Values[key]
	}
	if c.Boundary {
		p.Boundary = c.Rows
	}
}

// Compute reads the matrices p points at and computes every selected metric
// without modifying p. A missing matrix file yields a Warning.
func (d *Dispatcher) Compute(p *Project, sel Selection) (*Calculation, error) {
	calc := &Calculation{Values: map[string][]float64{}}
	if sel.Empty() {
		return calc, nil
	}

	space := sel.space()
	if !space.Valid() {
		return nil, fmt.Errorf("unknown space %q", space)
	}

	metrics := sel.Metrics()
	metricPath := p.MatrixPath(space)
	boundaryPath := p.PUCMFilepath()

	if len(metrics) > 0 {
		if w := missingFileWarning(matrixLabel(space), metricPath); w != nil {
			calc.Warning = w
			return calc, nil
		}
	}
	if sel.Boundary {
		if w := missingFileWarning(matrixLabel(SpacePU), boundaryPath); w != nil {
			calc.Warning = w
			return calc, nil
		}
	}

	if len(metrics) > 0 {
		m, err := d.ReadMatrix(metricPath)
		if err != nil {
			return nil, err
		}
		for _, metric := range metrics {
			fn, ok := d.Funcs[metric]
			if !ok {
				return nil, fmt.Errorf("no implementation for metric %s", metric)
			}
			values, err := fn(m)
			if err != nil {
				return nil, fmt.Errorf("computing %s: %w", metric, err)
			}
			key := MetricKey(metric, space)
			calc.Values[key] = values
			calc.Updated = append(calc.Updated, key)
			log.Printf("Computed %s over %d units", key, len(values))
		}
	}

	if sel.Boundary {
		m, err := d.ReadMatrix(boundaryPath)
		if err != nil {
			return nil, err
		}
		calc.Rows = m.Melt()
		calc.Boundary = true
		log.Printf("Derived boundary table with %d rows", len(calc.Rows))
	}

	return calc, nil
}

// Calculate computes every selected metric and stores each under its own key
// in p.Metrics; unselected keys are left alone. A missing matrix file yields
// a Warning and leaves p untouched. Any computation error also leaves p
// untouched.
func (d *Dispatcher) Calculate(p *Project, sel Selection) (Result, error) {
	calc, err := d.Compute(p, sel)
	if err != nil {
		return Result{}, err
	}
	calc.Apply(p)
	return calc.Result, nil
}

func matrixLabel(s Space) string {
	if s == SpaceCU {
		return "connectivity matrix"
	}
	return "planning unit connectivity matrix"
}
