package connect

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadMapRenderer loads the layers a map plot of p needs. A missing input
// file yields a Warning instead of a renderer.
func LoadMapRenderer(p *Project, cfg *Config) (*MapRenderer, *Warning, error) {
	puPath := p.Path(KeyPUFilepath)
	cuPath := p.Path(KeyCUFilepath)

	if w := missingFileWarning("planning unit file", puPath); w != nil {
		return nil, w, nil
	}

	needCU := false
	for _, lc := range cfg.Map.Layers {
		if lc.Enabled && (lc.Kind == LayerCUMetric || lc.Kind == LayerCUSolid) {
			needCU = true
		}
	}
	if needCU {
		if w := missingFileWarning("connectivity unit file", cuPath); w != nil {
			return nil, w, nil
		}
	}

	pu, err := LoadLayer(puPath, cfg.Rescale.IDField)
	if err != nil {
		return nil, nil, err
	}

	var cu *Layer
	if cuPath != "" {
		if _, statErr := os.Stat(cuPath); statErr == nil {
			cu, err = LoadLayer(cuPath, cfg.Rescale.IDField)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	r := NewMapRenderer(pu, cu, p.Metrics, cfg.Map)
	for _, lc := range cfg.Map.Layers {
		if !lc.Enabled {
			continue
		}
		switch lc.Kind {
		case LayerPUMetric:
			r.MetricIDs[SpacePU] = metricUnitIDs(p, SpacePU)
		case LayerCUMetric:
			r.MetricIDs[SpaceCU] = metricUnitIDs(p, SpaceCU)
		}
	}

	if cfg.Map.Basemap && cfg.Map.LandFile != "" {
		if w := missingFileWarning("basemap land file", cfg.Map.LandFile); w != nil {
			return nil, w, nil
		}
		land, err := LoadLayer(cfg.Map.LandFile, "")
		if err != nil {
			return nil, nil, err
		}
		r.Land = land
	}

	return r, nil, nil
}

// LoadGraphRenderer reads the planning unit connectivity matrix of p and lays
// it out as a graph.
func LoadGraphRenderer(p *Project, cfg *Config) (*GraphRenderer, *Warning, error) {
	path := p.PUCMFilepath()
	if w := missingFileWarning(matrixLabel(SpacePU), path); w != nil {
		return nil, w, nil
	}

	m, err := ReadMatrixCSV(path)
	if err != nil {
		return nil, nil, err
	}

	g, err := NewGraphRenderer(m, cfg.Graph)
	if err != nil {
		return nil, nil, err
	}
	return g, nil, nil
}

// metricUnitIDs returns the unit IDs of the matrix that metrics in space are
// computed from, or nil when it cannot be read.
func metricUnitIDs(p *Project, space Space) []string {
	m, err := ReadMatrixCSV(p.MatrixPath(space))
	if err != nil {
		return nil
	}
	return m.IDs
}

// ParseMetricKey splits a key such as "vertex_degree_pu" into metric and space
func ParseMetricKey(key string) (Metric, Space, error) {
	idx := strings.LastIndex(key, "_")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid metric key %q", key)
	}
	metric, space := Metric(key[:idx]), Space(key[idx+1:])
	if !space.Valid() {
		return "", "", fmt.Errorf("invalid metric key %q: unknown space %q", key, space)
	}
	for _, m := range AllMetrics() {
		if m == metric {
			return metric, space, nil
		}
	}
	return "", "", fmt.Errorf("invalid metric key %q: unknown metric %q", key, metric)
}

// RenderProjectMetricChart charts a stored metric. Bars are labelled with the
// unit IDs of the matching matrix when it is readable, else with positions.
func RenderProjectMetricChart(w io.Writer, p *Project, key string) error {
	metric, space, err := ParseMetricKey(key)
	if err != nil {
		return err
	}
	values, ok := p.Metric(metric, space)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMetricNotCalculated, key)
	}

	ids := metricUnitIDs(p, space)
	if len(ids) != len(values) {
		ids = make([]string, len(values))
		for i := range ids {
			ids[i] = strconv.Itoa(i + 1)
		}
	}

	return RenderMetricChart(w, key, ids, values, "")
}
