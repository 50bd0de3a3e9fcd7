// Package render turns a lookup report into markdown, terminal output, JSON
// or a standalone HTML page.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rotisserie/eris"

	"urbanlens/internal/imagery"
	"urbanlens/internal/report"
	"urbanlens/pkg/zoning"
)

// Markdown renders the report as a markdown document.
func Markdown(r *report.Report) string {
	var b strings.Builder

	if !r.Found() {
		fmt.Fprintf(&b, "**Address not found.** Please try another query.\n\n")
		fmt.Fprintf(&b, "Searched: %s\n", r.Query)
		return b.String()
	}

	sheet := r.Summary()
	zone := "_" + sheet.Zone + "_"
	if sheet.ZoneKnown {
		zone = "`" + sheet.Zone + "`"
	}
	regulation := "_" + sheet.Regulation + "_"
	if sheet.RegulationURL != "" {
		regulation = fmt.Sprintf("[%s](%s)", sheet.Regulation, sheet.RegulationURL)
	}
	area := sheet.ParcelArea
	if area == "Not available" {
		area = "_" + area + "_"
	}

	b.WriteString("### Summary sheet\n\n")
	b.WriteString("| Searched address | PLU zone | Regulation | Parcel area |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s |\n\n", cell(sheet.Address), zone, regulation, area)
	fmt.Fprintf(&b, "Coordinates: `%s`\n\n", r.Location.Coordinates)

	b.WriteString("### PLU / Zoning\n\n")
	if r.Zone == nil {
		b.WriteString("No PLU zoning found at this location.\n\n")
	} else {
		writeFields(&b, zoning.Simplified(r.Zone))
		if r.RegulationURL != "" {
			fmt.Fprintf(&b, "\nRegulation PDF: [Open document](%s)\n\n", r.RegulationURL)
		} else {
			b.WriteString("\nNo regulation PDF available for this zone.\n\n")
		}
	}

	b.WriteString("### Cadastral parcel\n\n")
	if r.Parcel == nil {
		b.WriteString("No parcel found; the map shows a demo square.\n\n")
	} else {
		if id, ok := r.Parcel.Properties["idu"]; ok {
			fmt.Fprintf(&b, "- **Parcel id:** %v\n", id)
		}
		fmt.Fprintf(&b, "- **Area:** %s\n", sheet.ParcelArea)
		if r.Parcel.AreaM2 == nil && r.Parcel.EstimatedAreaM2 > 0 {
			b.WriteString("- _Area estimated from the parcel outline._\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("### Street-level view\n\n")
	writeImagery(&b, r.Imagery)

	if len(r.Warnings) > 0 {
		b.WriteString("### Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields []zoning.Field) {
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		fmt.Fprintf(b, "- **%s:** %s\n", f.Label, f.Value)
	}
}

func writeImagery(b *strings.Builder, res *imagery.Result) {
	if res == nil {
		b.WriteString("Street imagery was not requested.\n\n")
		return
	}
	fmt.Fprintf(b, "- **Provider:** %s\n", res.Provider)
	if res.Image != nil {
		kind := "standard photo"
		if res.Image.IsPano {
			kind = "360° panorama"
		}
		fmt.Fprintf(b, "- **Image:** %s (%s)\n", res.Image.ID, kind)
	}
	if res.CaptureDate != "" {
		fmt.Fprintf(b, "- **Captured:** %s\n", res.CaptureDate)
	}
	if res.Deeplink != "" {
		fmt.Fprintf(b, "- [Open in Mapillary](%s)\n", res.Deeplink)
	}
	if res.EmbedURL != "" {
		b.WriteString("- Google Street View is available in the HTML report.\n")
	}
	for _, n := range res.Notes {
		fmt.Fprintf(b, "\n> **%s:** %s\n", n.Level, n.Message)
	}
	b.WriteString("\n")
}

// cell escapes a value for a markdown table cell.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Terminal renders the markdown for an ANSI terminal.
func Terminal(r *report.Report, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", eris.Wrap(err, "render: terminal renderer")
	}
	out, err := renderer.Render(Markdown(r))
	if err != nil {
		return "", eris.Wrap(err, "render: terminal")
	}
	return out, nil
}

// Document is the JSON shape of a report: the report itself plus its summary sheet.
type Document struct {
	*report.Report
	Summary report.Sheet `json:"summary"`
}

// JSON writes the report as indented JSON.
func JSON(w io.Writer, r *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{Report: r, Summary: r.Summary()}); err != nil {
		return eris.Wrap(err, "render: json")
	}
	return nil
}
