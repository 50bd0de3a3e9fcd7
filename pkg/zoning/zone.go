// Package zoning looks up the PLU zone covering a point through the
// Géoportail de l'Urbanisme (GPU) WFS layer and builds links to the zone's
// regulation document.
package zoning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"urbanlens/pkg/geo"
	"urbanlens/pkg/wfs"
)

const (
	TypeName       = "wfs_du:zone_urba"
	DefaultGPUBase = "https://www.geoportail-urbanisme.gouv.fr"
	searchDegrees  = 0.002
	maxFeatures    = 10
	maxFallbackLen = 10
)

// ErrNoZone is returned when the layer has no zone around the point.
var ErrNoZone = errors.New("zoning: no PLU zone found")

var (
	codeKeys = []string{
		"libelle", "LIBELLE", "ZONE", "zone", "CODE_ZONE", "code_zone", "CODEZONE", "codezone", "typezone",
	}
	labelKeys = []string{
		"libelong", "LIBELLE_LONG", "LIBELLELONG", "LIBELLE", "libelle", "LIB_ZONE", "LIBELLE_ZONE", "NOM_ZONE", "nom_zone",
	}
)

// Zone is the PLU zone found at a point.
type Zone struct {
	Code       string         `json:"zone_code,omitempty"`
	Label      string         `json:"zone_label,omitempty"`
	Properties map[string]any `json:"raw_properties"`
}

// Type returns the GPU zone type (U, AU, A, N...).
func (z *Zone) Type() string {
	s, _ := wfs.StringProp(z.Properties, "typezone")
	return s
}

// LastUpdate returns the date part of gpu_timestamp.
func (z *Zone) LastUpdate() string {
	s, _ := wfs.StringProp(z.Properties, "gpu_timestamp")
	if len(s) > 10 {
		return s[:10]
	}
	return s
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

// Lookup returns the first zone feature intersecting a small box around the point.
func (s *Service) Lookup(ctx context.Context, lat, lon float64) (*Zone, error) {
	fc, err := s.wfs.GetFeatures(ctx, wfs.Query{
		TypeName: TypeName,
		BBox:     geo.AroundDegrees(lat, lon, searchDegrees),
		Count:    maxFeatures,
	})
	if err != nil {
		return nil, eris.Wrap(err, "zoning: lookup")
	}
	if len(fc.Features) == 0 || fc.Features[0] == nil {
		return nil, ErrNoZone
	}
	return FromProperties(fc.Features[0].Properties), nil
}

// FromProperties derives code and label from raw zone_urba attributes,
// trying the attribute spellings seen across GPU exports.
func FromProperties(props map[string]any) *Zone {
	if props == nil {
		props = map[string]any{}
	}
	z := &Zone{
		Code:       firstString(props, codeKeys),
		Label:      firstString(props, labelKeys),
		Properties: props,
	}
	if z.Code == "" {
		z.Code = fallbackCode(props)
	}
	return z
}

// firstString returns the first non-empty value among keys. Some exports
// carry numeric zone codes, which are formatted as text.
func firstString(props map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// fallbackCode picks any short string attribute whose name mentions "zone".
func fallbackCode(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !strings.Contains(strings.ToLower(k), "zone") {
			continue
		}
		if s, ok := wfs.StringProp(props, k); ok && len(s) <= maxFallbackLen {
			return s
		}
	}
	return ""
}
