package simcore

import (
	"encoding/json"
	"sort"

	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
)

// Area is a serviced location and its outline.
type Area struct {
	Location string
	Outline  *geo.Polygon
}

// AreaIndex answers which serviced locations cover or are near a coordinate.
type AreaIndex struct {
	areas []Area
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Properties map[string]interface{} `json:"properties"`
		Geometry   struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ParseAreas reads a GeoJSON FeatureCollection of Polygon or MultiPolygon features. The location of
// a feature is its "location" property, falling back to "name". Only outer rings are used.
func ParseAreas(geoJSON string) (*AreaIndex, error) {
	idx := &AreaIndex{}
	if geoJSON == "" {
		return idx, nil
	}
	var fc featureCollection
	if err := json.Unmarshal([]byte(geoJSON), &fc); err != nil {
		return nil, errors.Wrap(err, "invalid area geojson")
	}
	if fc.Type != "FeatureCollection" {
		return nil, errors.Errorf("expected a FeatureCollection, got %q", fc.Type)
	}
	for i, f := range fc.Features {
		location, _ := f.Properties["location"].(string)
		if location == "" {
			location, _ = f.Properties["name"].(string)
		}
		if location == "" {
			return nil, errors.Errorf("feature %d has no location", i)
		}
		var rings [][][2]float64
		switch f.Geometry.Type {
		case "Polygon":
			var poly [][][2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &poly); err != nil {
				return nil, errors.Wrapf(err, "feature %d", i)
			}
			if len(poly) > 0 {
				rings = append(rings, poly[0])
			}
		case "MultiPolygon":
			var multi [][][][2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &multi); err != nil {
				return nil, errors.Wrapf(err, "feature %d", i)
			}
			for _, poly := range multi {
				if len(poly) > 0 {
					rings = append(rings, poly[0])
				}
			}
		default:
			return nil, errors.Errorf("feature %d: unsupported geometry %q", i, f.Geometry.Type)
		}
		for _, ring := range rings {
			points := make([]*geo.Point, 0, len(ring))
			for _, c := range ring {
				// geojson positions are longitude first.
				points = append(points, geo.NewPoint(c[1], c[0]))
			}
			idx.areas = append(idx.areas, Area{Location: location, Outline: geo.NewPolygon(points)})
		}
	}
	return idx, nil
}

// Len returns the number of outlines in the index.
func (idx *AreaIndex) Len() int {
	return len(idx.areas)
}

// Find returns the first location whose outline contains the coordinate.
func (idx *AreaIndex) Find(lat, lon float64) (string, bool) {
	p := geo.NewPoint(lat, lon)
	for _, a := range idx.areas {
		if a.Outline.Contains(p) {
			return a.Location, true
		}
	}
	return "", false
}

// Within returns, sorted and without duplicates, the locations whose outline contains the
// coordinate or has a vertex within radius meters of it.
func (idx *AreaIndex) Within(lat, lon, radius float64) []string {
	p := geo.NewPoint(lat, lon)
	seen := map[string]bool{}
	for _, a := range idx.areas {
		if seen[a.Location] {
			continue
		}
		if a.Outline.Contains(p) {
			seen[a.Location] = true
			continue
		}
		for _, v := range a.Outline.Points() {
			// GreatCircleDistance is in kilometers.
			if p.GreatCircleDistance(v)*1000 <= radius {
				seen[a.Location] = true
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}
