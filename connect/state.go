package connect

import (
	"sync"
)

// ProjectStore guards the current project for concurrent HTTP handlers,
// background jobs and MQTT commands.
type ProjectStore struct {
	mu      sync.RWMutex
	project *Project
	path    string // where Save writes; empty disables persistence
}

// NewProjectStore creates a store holding p. A nil project is replaced with
// an empty one.
func NewProjectStore(p *Project, path string) *ProjectStore {
	if p == nil {
		p = NewProject()
	}
	return &ProjectStore{project: p, path: path}
}

// Snapshot returns a deep copy of the current project
func (s *ProjectStore) Snapshot() *Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Clone()
}

// Replace swaps in a whole new project
func (s *ProjectStore) Replace(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = p
}

// Update runs fn with exclusive access to the live project
func (s *ProjectStore) Update(fn func(p *Project)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.project)
}

// Calculate runs d against a snapshot of the project and applies the results
// under the write lock, so readers are not held up while metrics compute.
func (s *ProjectStore) Calculate(d *Dispatcher, sel Selection) (Result, error) {
	calc, err := d.Compute(s.Snapshot(), sel)
	if err != nil {
		return Result{}, err
	}
	s.Update(calc.Apply)
	return calc.Result, nil
}

// Path returns the project file location
func (s *ProjectStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// SetPath changes the project file location
func (s *ProjectStore) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// Save writes the project to its file
func (s *ProjectStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.path == "" {
		return ErrNoProjectPath
	}
	return SaveProject(s.path, s.project)
}

// Load replaces the project with the contents of its file
func (s *ProjectStore) Load() error {
	path := s.Path()
	if path == "" {
		return ErrNoProjectPath
	}
	p, err := LoadProject(path)
	if err != nil {
		return err
	}
	s.Replace(p)
	return nil
}
