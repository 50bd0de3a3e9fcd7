package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/imagery"
	"urbanlens/internal/report"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/mapillary"
	"urbanlens/pkg/zoning"
)

func fullReport() *report.Report {
	area := 412.4
	r := report.New("tour eiffel", imagery.DefaultSettings())
	r.Location = &models.Location{
		Label:       "Tour Eiffel, Paris",
		Coordinates: models.Coordinates{Lat: 48.8584, Lon: 2.2945},
		Source:      "nominatim",
	}
	r.Zone = &zoning.Zone{
		Code:  "UG",
		Label: "Zone urbaine générale",
		Properties: map[string]any{
			"libelle": "UG", "typezone": "U", "libelong": "Zone urbaine générale",
			"nomfic": "75056_reglement.pdf", "gpu_timestamp": "2023-06-01T10:00:00Z", "destoui": "NULL",
		},
	}
	r.RegulationURL = "https://www.geoportail-urbanisme.gouv.fr/api/document/abc/download-file/75056_reglement.pdf"
	r.Parcel = &cadastre.Parcel{
		Coords:     [][2]float64{{48.858, 2.294}, {48.858, 2.295}, {48.859, 2.295}},
		AreaM2:     &area,
		Properties: map[string]any{"idu": "75107000AB0001"},
	}
	r.Imagery = &imagery.Result{
		Provider:    models.ProviderMapillary,
		Image:       &mapillary.Image{ID: "img1", IsPano: true},
		CaptureDate: "2021-01-01",
		Deeplink:    mapillary.Deeplink("img1"),
		Preview:     []byte{0xff, 0xd8},
		Panorama:    []byte{0xff, 0xd8, 0xff},
		Notes:       []imagery.Note{{Level: imagery.LevelInfo, Message: "hello | world"}},
	}
	r.Warn("zoning: %s", "slow")
	return r
}

func TestMarkdown_Full(t *testing.T) {
	md := Markdown(fullReport())

	assert.Contains(t, md, "| Tour Eiffel, Paris | `UG` | [Open regulation (PDF)](https://www.geoportail-urbanisme.gouv.fr/api/document/abc/download-file/75056_reglement.pdf) | ≈ 412 m² |")
	assert.Contains(t, md, "Coordinates: `48.858400, 2.294500`")
	assert.Contains(t, md, "- **Zone type:** U")
	assert.Contains(t, md, "- **Last update:** 2023-06-01")
	assert.Contains(t, md, "- **Parcel id:** 75107000AB0001")
	assert.Contains(t, md, "- **Image:** img1 (360° panorama)")
	assert.Contains(t, md, "- **Captured:** 2021-01-01")
	assert.Contains(t, md, "[Open in Mapillary](https://www.mapillary.com/app/?focus=photo&pKey=img1)")
	assert.Contains(t, md, "> **info:** hello | world")
	assert.Contains(t, md, "- zoning: slow")
	assert.NotContains(t, md, "PLU reference")
}

func TestMarkdown_Empty(t *testing.T) {
	r := report.New("somewhere", imagery.DefaultSettings())
	r.Location = &models.Location{Label: "A | B", Coordinates: models.Coordinates{Lat: 1, Lon: 2}}
	md := Markdown(r)

	assert.Contains(t, md, `| A \| B | _Unknown_ | _Not available_ | _Not available_ |`)
	assert.Contains(t, md, "No PLU zoning found at this location.")
	assert.Contains(t, md, "No parcel found; the map shows a demo square.")
	assert.Contains(t, md, "Street imagery was not requested.")
	assert.NotContains(t, md, "### Warnings")
}

func TestMarkdown_NotFound(t *testing.T) {
	md := Markdown(report.New("zzzz", imagery.DefaultSettings()))
	assert.Contains(t, md, "Address not found")
	assert.Contains(t, md, "zzzz")
}

func TestTerminal(t *testing.T) {
	out, err := Terminal(fullReport(), 100)
	require.NoError(t, err)
	assert.Contains(t, out, "Summary")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, fullReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	summary := doc["summary"].(map[string]any)
	assert.Equal(t, "UG", summary["zone"])
	assert.Equal(t, "≈ 412 m²", summary["parcel_area"])
	assert.Equal(t, "tour eiffel", doc["query"])

	img := doc["imagery"].(map[string]any)
	assert.NotContains(t, img, "Preview")
	assert.NotContains(t, img, "Panorama")
}

func TestNewPanoramaConfig(t *testing.T) {
	cfg := NewPanoramaConfig([]byte("abc"))
	assert.Equal(t, "equirectangular", cfg.Type)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", cfg.Panorama)
	assert.True(t, cfg.AutoLoad)
	assert.InDelta(t, -2, cfg.AutoRotate, 0)
	assert.True(t, cfg.ShowZoomCtrl)
	assert.InDelta(t, 90, cfg.HFOV, 0)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"autoRotate":-2`)
	assert.Contains(t, string(data), `"hfov":90`)
}

func TestHTML_ParcelAndPanorama(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, fullReport()))
	page := buf.String()

	assert.Contains(t, page, `<div id="map"></div>`)
	assert.Contains(t, page, `Parcel (IGN Parcellaire Express)`)
	assert.Contains(t, page, `"red"`)
	assert.Contains(t, page, `<div id="pano"></div>`)
	assert.Contains(t, page, "pannellum.js")
	assert.Contains(t, page, "equirectangular")
	assert.Contains(t, page, "<code>UG</code>")
	assert.Contains(t, page, "Open in Mapillary")
	assert.NotContains(t, page, "<iframe")
}

func TestHTML_DemoParcelAndGoogle(t *testing.T) {
	r := report.New("x", imagery.DefaultSettings())
	r.Location = &models.Location{Label: "Somewhere", Coordinates: models.Coordinates{Lat: 45, Lon: 5}}
	r.Imagery = &imagery.Result{
		Provider: models.ProviderGoogle,
		EmbedURL: "https://www.google.com/maps/embed/v1/streetview?fov=80&key=k&location=45%2C5",
	}

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, r))
	page := buf.String()

	assert.Contains(t, page, `Parcel (demo, no cadastre found)`)
	assert.Contains(t, page, `"orange"`)
	assert.Contains(t, page, `<iframe src="https://www.google.com/maps/embed/v1/streetview?fov=80&amp;key=k&amp;location=45%2C5"`)
	assert.NotContains(t, page, "pannellum")
	assert.Contains(t, page, "No PLU zoning found at this location.")
	assert.Equal(t, 1, strings.Count(page, "<h2>Summary sheet</h2>"))
}

func TestHTML_NotFound(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, report.New("<b>nowhere</b>", imagery.DefaultSettings())))
	page := buf.String()

	assert.Contains(t, page, "Address not found.")
	assert.Contains(t, page, "&lt;b&gt;nowhere&lt;/b&gt;")
	assert.NotContains(t, page, `id="map"`)
}
