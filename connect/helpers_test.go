package connect

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// writeTestMatrix writes a matrix CSV into dir and returns its path
func writeTestMatrix(t *testing.T, dir, name string, ids []string, values []float64) string {
	t.Helper()
	m, err := NewMatrix(ids, values)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := WriteMatrixCSV(path, m); err != nil {
		t.Fatalf("WriteMatrixCSV: %v", err)
	}
	return path
}

// square returns an axis aligned square polygon with its lower left corner
// at (x, y)
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

// gridLayer builds a cols x rows grid of square cells starting at origin.
// IDs run 1..n row by row from the bottom left.
func gridLayer(cols, rows int, size float64, origin orb.Point) *Layer {
	l := &Layer{Name: "grid"}
	id := 1
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			poly := square(origin.X()+float64(c)*size, origin.Y()+float64(r)*size, size)
			l.Units = append(l.Units, Unit{ID: strconv.Itoa(id), Geometry: orb.MultiPolygon{poly}})
			id++
		}
	}
	return l
}

// writeGridGeoJSON writes gridLayer as a FeatureCollection with an ID property
func writeGridGeoJSON(t *testing.T, dir, name string, cols, rows int, size float64, origin orb.Point) string {
	t.Helper()
	layer := gridLayer(cols, rows, size, origin)
	fc := geojson.NewFeatureCollection()
	for _, u := range layer.Units {
		f := geojson.NewFeature(u.Geometry[0])
		f.Properties["ID"] = u.ID
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal geojson: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write geojson: %v", err)
	}
	return path
}
