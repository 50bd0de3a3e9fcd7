package report

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/imagery"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/zoning"
)

func located() *Report {
	r := New("eiffel", imagery.DefaultSettings())
	r.Location = &models.Location{Label: "Tour Eiffel", Coordinates: models.Coordinates{Lat: 48.8584, Lon: 2.2945}}
	return r
}

func TestSummary_Defaults(t *testing.T) {
	s := New("nowhere", imagery.DefaultSettings()).Summary()
	assert.Equal(t, Sheet{Address: "nowhere", Zone: "Unknown", Regulation: "Not available", ParcelArea: "Not available"}, s)
}

func TestSummary_Filled(t *testing.T) {
	area := 1234.6
	r := located()
	r.Zone = &zoning.Zone{Code: "UA"}
	r.RegulationURL = "https://example.test/reg.pdf"
	r.Parcel = &cadastre.Parcel{AreaM2: &area}

	s := r.Summary()
	assert.Equal(t, "Tour Eiffel", s.Address)
	assert.Equal(t, "UA", s.Zone)
	assert.True(t, s.ZoneKnown)
	assert.Equal(t, "https://example.test/reg.pdf", s.RegulationURL)
	assert.Equal(t, "≈ 1235 m²", s.ParcelArea)
}

func TestSummary_ZeroAreaIsNotAvailable(t *testing.T) {
	zero := 0.0
	r := located()
	r.Zone = &zoning.Zone{Label: "only a label"}
	r.Parcel = &cadastre.Parcel{AreaM2: &zero}

	s := r.Summary()
	assert.Equal(t, "Unknown", s.Zone)
	assert.Equal(t, "Not available", s.ParcelArea)
}

func TestSummary_EstimatedArea(t *testing.T) {
	r := located()
	r.Parcel = &cadastre.Parcel{EstimatedAreaM2: 99.5}
	assert.Equal(t, "≈ 100 m²", r.Summary().ParcelArea)
}

func TestMapParcel(t *testing.T) {
	assert.Nil(t, New("x", imagery.DefaultSettings()).MapParcel())

	r := located()
	demo := r.MapParcel()
	require.NotNil(t, demo)
	assert.True(t, demo.Demo)
	require.Len(t, demo.Coords, 4)
	assert.InDelta(t, 48.8581, demo.Coords[0][0], 1e-9)
	assert.InDelta(t, 2.2942, demo.Coords[0][1], 1e-9)

	r.Parcel = &cadastre.Parcel{Coords: [][2]float64{{1, 2}, {3, 4}, {5, 6}}}
	assert.Same(t, r.Parcel, r.MapParcel())
}

func TestWarnConcurrent(t *testing.T) {
	r := located()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Warn("step %d failed", i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Warnings, 20)
}

func TestZoneFields(t *testing.T) {
	r := located()
	assert.Nil(t, r.ZoneFields())

	r.Zone = &zoning.Zone{Properties: map[string]any{"libelle": "UA", "typezone": "NULL"}}
	assert.Equal(t, []zoning.Field{{Label: "Zone code", Value: "UA"}}, r.ZoneFields())
}
