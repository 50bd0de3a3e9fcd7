// Package cadastre finds the cadastral parcel under a point using the IGN
// Parcellaire Express layer.
package cadastre

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"urbanlens/pkg/geo"
	"urbanlens/pkg/wfs"
)

const (
	TypeName       = "CADASTRALPARCELS.PARCELLAIRE_EXPRESS:parcelle"
	searchDegrees  = 0.001
	maxFeatures    = 10
	demoOffsetDegs = 0.0003
)

// ErrNoParcel is returned when no polygon feature lies around the point.
var ErrNoParcel = errors.New("cadastre: no parcel found")

// Parcel is the closest cadastral parcel to a point.
type Parcel struct {
	// Coords is the exterior ring as (lat, lon) pairs, ready for map display.
	Coords [][2]float64 `json:"coords"`
	// AreaM2 is the registered area, when an attribute carries it.
	AreaM2 *float64 `json:"area_m2,omitempty"`
	// EstimatedAreaM2 is computed from the ring geometry.
	EstimatedAreaM2 float64        `json:"estimated_area_m2"`
	Properties      map[string]any `json:"properties"`
	Demo            bool           `json:"demo,omitempty"`
}

// Area returns the registered area, falling back to the geometric estimate.
func (p *Parcel) Area() (float64, bool) {
	if p == nil {
		return 0, false
	}
	if p.AreaM2 != nil {
		return *p.AreaM2, true
	}
	if p.EstimatedAreaM2 > 0 && !p.Demo {
		return p.EstimatedAreaM2, true
	}
	return 0, false
}

// FeatureSource is satisfied by *wfs.Client.
type FeatureSource interface {
	GetFeatures(ctx context.Context, q wfs.Query) (*geojson.FeatureCollection, error)
}

type Service struct {
	wfs FeatureSource
}

func NewService(src FeatureSource) *Service {
	return &Service{wfs: src}
}

// Lookup queries parcels in a small box around the point and returns the one
// whose ring centroid is nearest.
func (s *Service) Lookup(ctx context.Context, lat, lon float64) (*Parcel, error) {
	fc, err := s.wfs.GetFeatures(ctx, wfs.Query{
		TypeName: TypeName,
		BBox:     geo.AroundDegrees(lat, lon, searchDegrees),
		Count:    maxFeatures,
	})
	if err != nil {
		return nil, eris.Wrap(err, "cadastre: lookup")
	}

	var (
		bestRing  [][2]float64
		bestProps map[string]any
		bestD2    = math.Inf(1)
	)
	for _, feat := range fc.Features {
		if feat == nil || feat.Geometry == nil {
			continue
		}
		ring := wfs.OuterRing(feat.Geometry)
		cLon, cLat, ok := geo.RingCentroid(ring)
		if !ok {
			continue
		}
		dx, dy := cLon-lon, cLat-lat
		if d2 := dx*dx + dy*dy; d2 < bestD2 {
			bestD2 = d2
			bestRing = ring
			bestProps = feat.Properties
		}
	}
	if bestRing == nil {
		return nil, ErrNoParcel
	}
	if bestProps == nil {
		bestProps = map[string]any{}
	}

	coords := make([][2]float64, len(bestRing))
	for i, pt := range bestRing {
		coords[i] = [2]float64{pt[1], pt[0]}
	}

	return &Parcel{
		Coords:          coords,
		AreaM2:          AreaFromProperties(bestProps),
		EstimatedAreaM2: EstimateAreaM2(bestRing),
		Properties:      bestProps,
	}, nil
}

// AreaFromProperties reads the first attribute (in key order) whose name
// mentions "contenance" or "surface" and parses as a number. Decimal commas
// are accepted.
func AreaFromProperties(props map[string]any) *float64 {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "contenance") && !strings.Contains(lk, "surface") {
			continue
		}
		v := props[k]
		if v == nil {
			continue
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(fmt.Sprint(v), ",", "."), 64)
		if err != nil {
			continue
		}
		return &f
	}
	return nil
}

// EstimateAreaM2 projects a (lon, lat) ring onto a local equirectangular
// plane centred on its centroid and returns the planar area in square meters.
func EstimateAreaM2(ring [][2]float64) float64 {
	cLon, cLat, ok := geo.RingCentroid(ring)
	if !ok || len(ring) < 3 {
		return 0
	}
	mLat, mLon := geo.MetersPerDegree(cLat)

	flat := make([]float64, 0, 2*len(ring)+2)
	for _, pt := range ring {
		flat = append(flat, (pt[0]-cLon)*mLon, (pt[1]-cLat)*mLat)
	}
	if ring[0] != ring[len(ring)-1] {
		flat = append(flat, flat[0], flat[1])
	}

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	return math.Abs(poly.Area())
}

// DemoSquare returns a small placeholder square around the point, flagged as
// demo, for display when no parcel was found.
func DemoSquare(lat, lon float64) *Parcel {
	o := demoOffsetDegs
	return &Parcel{
		Coords: [][2]float64{
			{lat - o, lon - o},
			{lat - o, lon + o},
			{lat + o, lon + o},
			{lat + o, lon - o},
		},
		Properties: map[string]any{},
		Demo:       true,
	}
}
