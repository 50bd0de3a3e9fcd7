package render

import (
	"encoding/base64"
	"html/template"
	"io"

	"github.com/rotisserie/eris"

	"urbanlens/internal/imagery"
	"urbanlens/internal/report"
	"urbanlens/pkg/zoning"
)

// PanoramaConfig is the Pannellum viewer configuration.
type PanoramaConfig struct {
	Type         string  `json:"type"`
	Panorama     string  `json:"panorama"`
	AutoLoad     bool    `json:"autoLoad"`
	AutoRotate   float64 `json:"autoRotate"`
	ShowZoomCtrl bool    `json:"showZoomCtrl"`
	HFOV         float64 `json:"hfov"`
}

// JPEGDataURI inlines image bytes as a base64 data URI.
func JPEGDataURI(img []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
}

// NewPanoramaConfig builds a slowly rotating equirectangular viewer for the image.
func NewPanoramaConfig(img []byte) PanoramaConfig {
	return PanoramaConfig{
		Type:         "equirectangular",
		Panorama:     JPEGDataURI(img),
		AutoLoad:     true,
		AutoRotate:   -2,
		ShowZoomCtrl: true,
		HFOV:         90,
	}
}

type mapData struct {
	Lat         float64      `json:"lat"`
	Lon         float64      `json:"lon"`
	Label       string       `json:"label"`
	Polygon     [][2]float64 `json:"polygon,omitempty"`
	Color       string       `json:"color"`
	FillOpacity float64      `json:"fillOpacity"`
	Tooltip     string       `json:"tooltip"`
}

type page struct {
	Report     *report.Report
	Sheet      report.Sheet
	Map        *mapData
	Zoning     []zoning.Field
	Simplified []zoning.Field
	Imagery    *imagery.Result
	Preview    template.URL
	Panorama   *PanoramaConfig
}

// HTML writes a self-contained report page with a Leaflet map, the zoning
// details and the street-level view.
func HTML(w io.Writer, r *report.Report) error {
	p := page{Report: r, Sheet: r.Summary(), Imagery: r.Imagery}

	if r.Location != nil {
		m := &mapData{
			Lat:   r.Location.Coordinates.Lat,
			Lon:   r.Location.Coordinates.Lon,
			Label: r.Location.Label,
		}
		if parcel := r.MapParcel(); parcel != nil {
			m.Polygon = parcel.Coords
			if parcel.Demo {
				m.Color, m.FillOpacity, m.Tooltip = "orange", 0.1, "Parcel (demo, no cadastre found)"
			} else {
				m.Color, m.FillOpacity, m.Tooltip = "red", 0.2, "Parcel (IGN Parcellaire Express)"
			}
		}
		p.Map = m
	}
	if r.Zone != nil {
		p.Zoning = r.ZoneFields()
		p.Simplified = zoning.Simplified(r.Zone)
	}
	if r.Imagery != nil {
		if len(r.Imagery.Preview) > 0 {
			p.Preview = template.URL(JPEGDataURI(r.Imagery.Preview))
		}
		if len(r.Imagery.Panorama) > 0 {
			cfg := NewPanoramaConfig(r.Imagery.Panorama)
			p.Panorama = &cfg
		}
	}

	if err := pageTemplate.Execute(w, p); err != nil {
		return eris.Wrap(err, "render: html")
	}
	return nil
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>urbanlens: {{.Sheet.Address}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
{{- if .Panorama}}
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/pannellum/build/pannellum.css">
<script src="https://cdn.jsdelivr.net/npm/pannellum/build/pannellum.js"></script>
{{- end}}
<style>
body { font-family: sans-serif; margin: 2rem; }
.sheet { display: grid; grid-template-columns: 2fr 1fr 1fr 1fr; gap: 1rem; }
.muted { color: #777; font-style: italic; }
.note-warning { color: #a60; } .note-error { color: #b00; }
#map, #pano { width: 100%; height: 450px; border-radius: 10px; overflow: hidden; }
</style>
</head>
<body>
{{- if not .Report.Found}}
<p><strong>Address not found.</strong> Please try another query.</p>
<p>Searched: {{.Report.Query}}</p>
{{- else}}
<h2>Summary sheet</h2>
<div class="sheet">
  <div><strong>Searched address:</strong><br>{{.Sheet.Address}}</div>
  <div><strong>PLU zone:</strong><br>{{if .Sheet.ZoneKnown}}<code>{{.Sheet.Zone}}</code>{{else}}<span class="muted">{{.Sheet.Zone}}</span>{{end}}</div>
  <div><strong>Regulation:</strong><br>{{if .Sheet.RegulationURL}}<a href="{{.Sheet.RegulationURL}}">{{.Sheet.Regulation}}</a>{{else}}<span class="muted">{{.Sheet.Regulation}}</span>{{end}}</div>
  <div><strong>Parcel area:</strong><br>{{.Sheet.ParcelArea}}</div>
</div>
<p>Coordinates: <code>{{.Report.Location.Coordinates}}</code></p>

<h2>Map &amp; cadastral parcel</h2>
<div id="map"></div>
<script>
(function() {
  var d = {{.Map}};
  var map = L.map("map").setView([d.lat, d.lon], 18);
  L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
    maxZoom: 19, attribution: "&copy; OpenStreetMap contributors"
  }).addTo(map);
  L.control.scale().addTo(map);
  L.marker([d.lat, d.lon]).bindTooltip(d.label).bindPopup(d.label).addTo(map);
  if (d.polygon) {
    L.polygon(d.polygon, {color: d.color, weight: 2, fill: true, fillOpacity: d.fillOpacity})
      .bindTooltip(d.tooltip).addTo(map);
  }
})();
</script>

<h2>PLU / Zoning</h2>
{{- if .Report.Zone}}
<ul>
{{- range .Zoning}}
  <li><strong>{{.Label}}:</strong> {{.Value}}</li>
{{- end}}
</ul>
{{- if .Report.RegulationURL}}
<p>Regulation PDF: <a href="{{.Report.RegulationURL}}">Open document</a></p>
{{- else}}
<p class="muted">No regulation PDF available for this zone.</p>
{{- end}}
<h3>Details (simplified)</h3>
<dl>
{{- range .Simplified}}
  <dt>{{.Label}}</dt><dd>{{if .Value}}{{.Value}}{{else}}<span class="muted">n/a</span>{{end}}</dd>
{{- end}}
</dl>
{{- else}}
<p class="muted">No PLU zoning found at this location.</p>
{{- end}}

<h2>Street-level view</h2>
{{- with .Imagery}}
{{- range .Notes}}
<p class="note-{{.Level}}">{{.Message}}</p>
{{- end}}
{{- if .EmbedURL}}
<iframe src="{{.EmbedURL}}" width="100%" height="450" style="border:0" allowfullscreen loading="lazy"></iframe>
<p><a href="{{.EmbedURL}}" target="_blank">Open Street View in a new tab</a></p>
{{- end}}
{{- if .Deeplink}}
<p>Provider: Mapillary{{if .CaptureDate}}, captured {{.CaptureDate}}{{end}}. <a href="{{.Deeplink}}" target="_blank">Open in Mapillary</a></p>
{{- end}}
{{- end}}
{{- if .Panorama}}
<div id="pano"></div>
<script>
(function() {
  var cfg = {{.Panorama}};
  function init() { window.pannellum && pannellum.viewer("pano", cfg); }
  if (document.readyState === "complete") init(); else window.addEventListener("load", init);
})();
</script>
{{- else if .Preview}}
<img src="{{.Preview}}" alt="Street-level image" style="max-width:100%">
{{- end}}
{{- if .Report.Warnings}}
<h2>Warnings</h2>
<ul>
{{- range .Report.Warnings}}
  <li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
{{- end}}
</body>
</html>
`))
