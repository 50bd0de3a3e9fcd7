// Package report holds the result of one address lookup and the summary
// sheet derived from it.
package report

import (
	"fmt"
	"math"
	"sync"
	"time"

	"urbanlens/internal/imagery"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/zoning"
)

const (
	unknown      = "Unknown"
	notAvailable = "Not available"
)

// Report accumulates everything found for an address. Pipeline steps of the
// same stage write to distinct fields; Warn is safe for concurrent use.
type Report struct {
	Query     string           `json:"query"`
	Settings  imagery.Settings `json:"settings"`
	Location  *models.Location `json:"location,omitempty"`
	CreatedAt time.Time        `json:"created_at"`

	Zone          *zoning.Zone     `json:"zone,omitempty"`
	RegulationURL string           `json:"regulation_url,omitempty"`
	RegulationKey string           `json:"regulation_key,omitempty"`
	Parcel        *cadastre.Parcel `json:"parcel,omitempty"`
	Imagery       *imagery.Result  `json:"imagery,omitempty"`
	PanoramaKey   string           `json:"panorama_key,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	mu sync.Mutex
}

// New starts an empty report for a query.
func New(query string, settings imagery.Settings) *Report {
	return &Report{Query: query, Settings: settings, CreatedAt: time.Now().UTC()}
}

// Found reports whether the address was geocoded.
func (r *Report) Found() bool {
	return r.Location != nil
}

// Warn records a non-fatal problem.
func (r *Report) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// MapParcel returns the polygon to draw: the cadastral parcel, or a demo
// square around the point when none was found.
func (r *Report) MapParcel() *cadastre.Parcel {
	if r.Parcel != nil && len(r.Parcel.Coords) > 0 {
		return r.Parcel
	}
	if r.Location == nil {
		return nil
	}
	return cadastre.DemoSquare(r.Location.Coordinates.Lat, r.Location.Coordinates.Lon)
}

// ZoneFields is the labelled zoning attribute list, or nil without a zone.
func (r *Report) ZoneFields() []zoning.Field {
	if r.Zone == nil {
		return nil
	}
	return zoning.Readable(r.Zone.Properties)
}

// Sheet is the four-field summary shown above the details.
type Sheet struct {
	Address       string `json:"address"`
	Zone          string `json:"zone"`
	ZoneKnown     bool   `json:"zone_known"`
	Regulation    string `json:"regulation"`
	RegulationURL string `json:"regulation_url,omitempty"`
	ParcelArea    string `json:"parcel_area"`
}

// Summary builds the summary sheet. Missing values read "Unknown" for the
// zone and "Not available" for the regulation and parcel area.
func (r *Report) Summary() Sheet {
	s := Sheet{
		Address:    r.Query,
		Zone:       unknown,
		Regulation: notAvailable,
		ParcelArea: notAvailable,
	}
	if r.Location != nil && r.Location.Label != "" {
		s.Address = r.Location.Label
	}
	if r.Zone != nil && r.Zone.Code != "" {
		s.Zone = r.Zone.Code
		s.ZoneKnown = true
	}
	if r.RegulationURL != "" {
		s.Regulation = "Open regulation (PDF)"
		s.RegulationURL = r.RegulationURL
	}
	if area, ok := r.Parcel.Area(); ok && area > 0 {
		s.ParcelArea = FormatArea(area)
	}
	return s
}

// FormatArea renders an area as "≈ N m²" rounded to the square meter.
func FormatArea(m2 float64) string {
	return fmt.Sprintf("≈ %.0f m²", math.Round(m2))
}
