package connect

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrMatrixNotSquare is returned for connectivity tables whose row and
	// column counts differ.
	ErrMatrixNotSquare = errors.New("connectivity matrix is not square")

	// ErrNoProjectPath is returned when saving or loading a store that has
	// no project file.
	ErrNoProjectPath = errors.New("no project file path set")

	// ErrMetricNotCalculated is returned when a plot needs a metric key
	// the project does not hold yet.
	ErrMetricNotCalculated = errors.New("metric has not been calculated")
)

// Warning is a user-facing notice that an operation was skipped because an
// input file is missing. It is not an error: the caller shows it and carries on.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Message
}

// missingFileWarning returns a Warning when path is empty or does not exist
func missingFileWarning(label, path string) *Warning {
	if path == "" {
		return &Warning{Message: fmt.Sprintf("No %s has been selected", label)}
	}
	if _, err := os.Stat(path); err != nil {
		return &Warning{
			Path:    path,
			Message: fmt.Sprintf("The %s (%s) does not exist", label, path),
		}
	}
	return nil
}
