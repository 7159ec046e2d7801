package connect

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Project is the whole working state of a session: input file paths,
// computed metric arrays and the derived boundary table. It is created empty,
// replaced wholesale on load and written wholesale on save.
//
// Field order matches the JSON key order so saved documents have sorted keys.
type Project struct {
	Boundary  []BoundaryRow        `json:"boundary"`
	Filepaths map[string]string    `json:"filepaths"`
	Metrics   map[string][]float64 `json:"metrics"`
	Options   map[string]string    `json:"options"`
}

// NewProject creates an empty project
func NewProject() *Project {
	return &Project{
		Filepaths: make(map[string]string),
		Metrics:   make(map[string][]float64),
		Options:   make(map[string]string),
	}
}

// NewProjectWithDefaults creates a project whose file paths are seeded from
// the config defaults.
func NewProjectWithDefaults(config *Config) *Project {
	p := NewProject()
	if config != nil {
		for k, v := range config.Defaults {
			p.Filepaths[k] = v
		}
	}
	return p
}

// Path returns a file path entry, or "" when unset
func (p *Project) Path(key string) string {
	return p.Filepaths[key]
}

// SetPath records a file path entry. An empty value removes the key.
func (p *Project) SetPath(key, value string) {
	if value == "" {
		delete(p.Filepaths, key)
		return
	}
	p.Filepaths[key] = value
}

// PUCMFilepath joins pucm_filedir and pucm_filename, the location of the
// planning-unit connectivity matrix. Empty when the filename is unset.
func (p *Project) PUCMFilepath() string {
	name := p.Filepaths[KeyPUCMFilename]
	if name == "" {
		return ""
	}
	return filepath.Join(p.Filepaths[KeyPUCMFiledir], name)
}

// MatrixPath returns the matrix file backing metrics of the given space
func (p *Project) MatrixPath(s Space) string {
	if s == SpaceCU {
		return p.Filepaths[KeyCMFilepath]
	}
	return p.PUCMFilepath()
}

// Metric returns a stored metric array
func (p *Project) Metric(m Metric, s Space) ([]float64, bool) {
	v, ok := p.Metrics[MetricKey(m, s)]
	return v, ok
}

// MetricKeys returns the stored metric keys in sorted order
func (p *Project) MetricKeys() []string {
	keys := make([]string, 0, len(p.Metrics))
	for k := range p.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy
func (p *Project) Clone() *Project {
	c := NewProject()
	for k, v := range p.Filepaths {
		c.Filepaths[k] = v
	}
	for k, v := range p.Options {
		c.Options[k] = v
	}
	for k, v := range p.Metrics {
		c.Metrics[k] = append([]float64(nil), v...)
	}
	if p.Boundary != nil {
		c.Boundary = append([]BoundaryRow{}, p.Boundary...)
	}
	return c
}

// SaveProject writes the project as indented JSON
func SaveProject(path string, p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing project file: %w", err)
	}

	return nil
}

// LoadProject reads a project written by SaveProject
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project file not found: %w", err)
		}
		return nil, fmt.Errorf("reading project file: %w", err)
	}

	return ParseProject(data)
}

// ParseProject decodes a project document
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project JSON: %w", err)
	}

	// Documents written by hand may omit sections
	if p.Filepaths == nil {
		p.Filepaths = make(map[string]string)
	}
	if p.Metrics == nil {
		p.Metrics = make(map[string][]float64)
	}
	if p.Options == nil {
		p.Options = make(map[string]string)
	}

	return &p, nil
}
