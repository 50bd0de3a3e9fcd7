package wfs

import (
	"encoding/json"
	"io"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func decode(r io.Reader, fc *geojson.FeatureCollection) error {
	return json.NewDecoder(r).Decode(fc)
}

// OuterRing extracts the exterior ring of a Polygon, or of the first polygon
// of a MultiPolygon, as (lon, lat) pairs. Other geometry types yield nil.
func OuterRing(g geom.T) [][2]float64 {
	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil
		}
		poly = t.Polygon(0)
	default:
		return nil
	}
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil
	}

	coords := poly.LinearRing(0).Coords()
	ring := make([][2]float64, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, [2]float64{c.X(), c.Y()})
	}
	if len(ring) == 0 {
		return nil
	}
	return ring
}

// StringProp returns the property as a string when it is a non-empty string.
func StringProp(props map[string]any, key string) (string, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
