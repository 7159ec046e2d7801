package connect

// Well-known Project.Filepaths keys
const (
	KeyPUFilepath   = "pu_filepath"
	KeyCUFilepath   = "cu_filepath"
	KeyCMFilepath   = "cm_filepath"
	KeyPUCMFiledir  = "pucm_filedir"
	KeyPUCMFilename = "pucm_filename"
)

// Space identifies which unit grid a matrix or metric array is indexed by
type Space string

const (
	SpacePU Space = "pu" // planning units
	SpaceCU Space = "cu" // connectivity units
)

// Valid reports whether s is a known space
func (s Space) Valid() bool {
	return s == SpacePU || s == SpaceCU
}

// Metric names a per-unit connectivity metric
type Metric string

const (
	MetricVertexDegree    Metric = "vertex_degree"
	MetricBetweenness     Metric = "betweenness_centrality"
	MetricEigenvector     Metric = "eigenvector_centrality"
	MetricSelfRecruitment Metric = "self_recruitment"
)

// AllMetrics lists the metrics in dispatch order
func AllMetrics() []Metric {
	return []Metric{MetricVertexDegree, MetricBetweenness, MetricEigenvector, MetricSelfRecruitment}
}

// MetricKey returns the Project.Metrics key for a metric computed in a space,
// e.g. "eigenvector_centrality_pu".
func MetricKey(m Metric, s Space) string {
	return string(m) + "_" + string(s)
}

// BoundaryRow is one line of a Marxan boundary table
type BoundaryRow struct {
	ID1      string  `json:"id1"`
	ID2      string  `json:"id2"`
	Boundary float64 `json:"boundary"`
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Rescale RescaleConfig `yaml:"rescale" json:"rescale"`
	Map     MapConfig     `yaml:"map" json:"map"`
	Graph   GraphConfig   `yaml:"graph" json:"graph"`
	// Defaults seeds Filepaths of new projects
	Defaults map[string]string `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RescaleConfig controls CU to PU matrix rescaling
type RescaleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"` // false when PU and CU grids are identical
	Samples int    `yaml:"samples" json:"samples"` // sample points per axis per unit
	IDField string `yaml:"idField" json:"idField"` // attribute holding unit IDs
}

// MapLayerConfig describes one drawn layer of the map plot
type MapLayerConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Kind      string `yaml:"kind" json:"kind"`                         // pu_metric, cu_metric, pu_solid, cu_solid
	Metric    string `yaml:"metric,omitempty" json:"metric,omitempty"` // metric name for *_metric kinds
	LowColor  string `yaml:"lowColor,omitempty" json:"lowColor,omitempty"`
	HighColor string `yaml:"highColor,omitempty" json:"highColor,omitempty"`
	Color     string `yaml:"color,omitempty" json:"color,omitempty"`
	Opacity   int    `yaml:"opacity" json:"opacity"` // percent, 0-100
}

// MapConfig holds map plot settings
type MapConfig struct {
	Basemap    bool             `yaml:"basemap" json:"basemap"`
	OceanColor string           `yaml:"oceanColor" json:"oceanColor"`
	LandColor  string           `yaml:"landColor" json:"landColor"`
	LandFile   string           `yaml:"landFile,omitempty" json:"landFile,omitempty"` // GeoJSON coastline polygons
	Buffer     float64          `yaml:"buffer" json:"buffer"`                         // degrees around the layers
	Width      float64          `yaml:"width" json:"width"`                           // output width in mm
	Resolution float64          `yaml:"resolution" json:"resolution"`                 // PNG dots per mm
	Layers     []MapLayerConfig `yaml:"layers" json:"layers"`
}

// GraphConfig holds node-link plot settings
type GraphConfig struct {
	EdgeColor  string  `yaml:"edgeColor" json:"edgeColor"`
	NodeColor  string  `yaml:"nodeColor" json:"nodeColor"`
	Iterations int     `yaml:"iterations" json:"iterations"`
	Size       float64 `yaml:"size" json:"size"`
	Resolution float64 `yaml:"resolution" json:"resolution"`
	Seed       int64   `yaml:"seed" json:"seed"`
}
