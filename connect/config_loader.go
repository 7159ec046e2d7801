package connect

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer kinds for MapLayerConfig.Kind
const (
	LayerPUMetric = "pu_metric"
	LayerCUMetric = "cu_metric"
	LayerPUSolid  = "pu_solid"
	LayerCUSolid  = "cu_solid"
)

// DefaultConfig returns the configuration used when no config file exists
func DefaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			PublishPrefix: "marxanconnect",
			ClientID:      "marxanconnect",
		},
		Rescale: RescaleConfig{
			Enabled: true,
			Samples: 20,
			IDField: "ID",
		},
		Map: MapConfig{
			Basemap:    true,
			OceanColor: "#A6CAE0",
			LandColor:  "#E0D8B0",
			Buffer:     1.0,
			Width:      200.0,
			Resolution: 5.0,
			Layers: []MapLayerConfig{
				{
					Enabled:   true,
					Kind:      LayerPUMetric,
					Metric:    string(MetricEigenvector),
					LowColor:  "#FFFFFF",
					HighColor: "#8B0000",
					Opacity:   80,
				},
				{
					Enabled: false,
					Kind:    LayerCUSolid,
					Color:   "#000080",
					Opacity: 50,
				},
			},
		},
		Graph: GraphConfig{
			EdgeColor:  "#D3D3D3",
			NodeColor:  "#1F78B4",
			Iterations: 50,
			Size:       200.0,
			Resolution: 5.0,
			Seed:       1,
		},
		Defaults: map[string]string{},
	}
}

// LoadConfig loads the configuration from a YAML file. Fields absent from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks field ranges and layer definitions
func (c *Config) Validate() error {
	if c.Rescale.Samples < 1 {
		return fmt.Errorf("rescale.samples must be at least 1")
	}
	if c.Map.Buffer < 0 {
		return fmt.Errorf("map.buffer must not be negative")
	}
	if len(c.Map.Layers) > 2 {
		return fmt.Errorf("map.layers holds at most 2 layers, got %d", len(c.Map.Layers))
	}

	for i, lc := range c.Map.Layers {
		switch lc.Kind {
		case LayerPUMetric, LayerCUMetric:
			if lc.Metric == "" {
				return fmt.Errorf("map.layers[%d].metric is required for %s", i, lc.Kind)
			}
		case LayerPUSolid, LayerCUSolid:
		default:
			return fmt.Errorf("map.layers[%d].kind %q is not one of pu_metric, cu_metric, pu_solid, cu_solid", i, lc.Kind)
		}
		if lc.Opacity < 0 || lc.Opacity > 100 {
			return fmt.Errorf("map.layers[%d].opacity must be within 0-100", i)
		}
	}

	return nil
}

// LoadConfigOrDefault loads path when it exists and falls back to
// DefaultConfig otherwise. Parse and validation errors are still returned.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}
