package connect

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Unit is one spatial cell of a layer
type Unit struct {
	ID       string
	Geometry orb.MultiPolygon
}

// Layer is an ordered set of planning or connectivity units in lon/lat
type Layer struct {
	Name  string
	Units []Unit
}

// IDs returns unit IDs in layer order
func (l *Layer) IDs() []string {
	ids := make([]string, len(l.Units))
	for i, u := range l.Units {
		ids[i] = u.ID
	}
	return ids
}

// Bound returns the bounding box of all units
func (l *Layer) Bound() (orb.Bound, bool) {
	if len(l.Units) == 0 {
		return orb.Bound{}, false
	}
	b := l.Units[0].Geometry.Bound()
	for _, u := range l.Units[1:] {
		b = b.Union(u.Geometry.Bound())
	}
	return b, true
}

// Locate returns the index of the first unit containing pt, or -1
func (l *Layer) Locate(pt orb.Point) int {
	for i, u := range l.Units {
		if !u.Geometry.Bound().Contains(pt) {
			continue
		}
		if planar.MultiPolygonContains(u.Geometry, pt) {
			return i
		}
	}
	return -1
}

// LoadLayer reads a polygon layer from an ESRI shapefile (.shp) or a GeoJSON
// FeatureCollection (.geojson, .json). Unit IDs come from the idField
// attribute, falling back to the 1-based feature position.
func LoadLayer(path, idField string) (*Layer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		layer *Layer
		err   error
	)
	switch ext {
	case ".shp":
		layer, err = loadShapefile(path, idField)
	case ".geojson", ".json":
		layer, err = loadGeoJSON(path, idField)
	default:
		return nil, fmt.Errorf("unsupported layer format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	layer.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return layer, nil
}

func loadGeoJSON(path, idField string) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layer file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GeoJSON layer %s: %w", path, err)
	}

	layer := &Layer{Units: make([]Unit, 0, len(fc.Features))}
	for i, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		case nil:
			return nil, fmt.Errorf("feature %d has no geometry", i)
		default:
			return nil, fmt.Errorf("feature %d: geometry %s is not a polygon", i, f.Geometry.GeoJSONType())
		}

		id := strconv.Itoa(i + 1)
		if v, ok := f.Properties[idField]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		layer.Units = append(layer.Units, Unit{ID: id, Geometry: mp})
	}

	return layer, nil
}

func loadShapefile(path, idField string) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile: %w", err)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := -1
	for i, f := range reader.Fields() {
		if strings.EqualFold(f.String(), idField) {
			fieldIdx = i
			break
		}
	}

	layer := &Layer{}
	for reader.Next() {
		n, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			return nil, fmt.Errorf("shape %d: %T is not a polygon", n, shape)
		}

		id := strconv.Itoa(n + 1)
		if fieldIdx >= 0 {
			if v := strings.TrimSpace(reader.ReadAttribute(n, fieldIdx)); v != "" {
				id = v
			}
		}

		layer.Units = append(layer.Units, Unit{ID: id, Geometry: shpPolygonToOrb(poly)})
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}

	return layer, nil
}

// shpPolygonToOrb groups shapefile rings into polygons. Outer rings are
// clockwise; each counter-clockwise ring is a hole of the preceding outer ring.
func shpPolygonToOrb(p *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for k := 0; k < len(p.Parts); k++ {
		start := int(p.Parts[k])
		end := len(p.Points)
		if k+1 < len(p.Parts) {
			end = int(p.Parts[k+1])
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if len(ring) < 3 {
			continue
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

// BufferedBounds returns the combined extent of the layers padded by buffer
// degrees on every side, as lonmin, lonmax, latmin, latmax.
func BufferedBounds(layers []*Layer, buffer float64) (lonMin, lonMax, latMin, latMax float64, err error) {
	var (
		bound orb.Bound
		found bool
	)
	for _, l := range layers {
		if l == nil {
			continue
		}
		b, ok := l.Bound()
		if !ok {
			continue
		}
		if !found {
			bound = b
			found = true
		} else {
			bound = bound.Union(b)
		}
	}
	if !found {
		return 0, 0, 0, 0, fmt.Errorf("no geometry in layers")
	}

	bound = bound.Pad(buffer)
	return bound.Min.X(), bound.Max.X(), bound.Min.Y(), bound.Max.Y(), nil
}
