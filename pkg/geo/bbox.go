package geo

import "fmt"

// BBox is an axis-aligned box in EPSG:4326 degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// AroundDegrees builds a box extending d degrees on each side of the point.
func AroundDegrees(lat, lon, d float64) BBox {
	return BBox{MinLon: lon - d, MinLat: lat - d, MaxLon: lon + d, MaxLat: lat + d}
}

// AroundMeters builds a box extending roughly m meters on each side of the point.
func AroundMeters(lat, lon, m float64) BBox {
	dLat, dLon := DegForMeters(lat, m)
	return BBox{MinLon: lon - dLon, MinLat: lat - dLat, MaxLon: lon + dLon, MaxLat: lat + dLat}
}

// String renders "minLon,minLat,maxLon,maxLat".
func (b BBox) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", ftoa(b.MinLon), ftoa(b.MinLat), ftoa(b.MaxLon), ftoa(b.MaxLat))
}

// WithCRS appends the CRS name, as WFS 2.0 expects in its BBOX parameter.
func (b BBox) WithCRS(crs string) string {
	return b.String() + "," + crs
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

func ftoa(f float64) string {
	return fmt.Sprintf("%g", f)
}
