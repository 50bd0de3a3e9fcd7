package zoning

import (
	"fmt"
	"net/url"
	"strings"

	"urbanlens/pkg/wfs"
)

// Field is one labelled attribute in display order.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var readableFields = []struct{ label, key string }{
	{"Zone code", "libelle"},
	{"Zone type", "typezone"},
	{"Zone description", "libelong"},
	{"Validation date", "datvalid"},
	{"Regulation file", "nomfic"},
	{"Authorized uses", "destoui"},
	{"Prohibited uses", "destnon"},
}

// Readable converts raw GPU attributes into labelled fields, dropping null,
// empty and "NULL" values.
func Readable(props map[string]any) []Field {
	var out []Field
	for _, f := range readableFields {
		if v, ok := displayValue(props[f.key]); ok {
			out = append(out, Field{Label: f.label, Value: v})
		}
	}
	return out
}

// Simplified is the short zoning digest shown next to the summary.
func Simplified(z *Zone) []Field {
	if z == nil {
		return nil
	}
	file, _ := wfs.StringProp(z.Properties, "nomfic")
	ref, _ := wfs.StringProp(z.Properties, "idurba")
	return []Field{
		{"Zone code", z.Code},
		{"Zone type", z.Type()},
		{"Zone description", z.Label},
		{"Regulation file", file},
		{"Last update", z.LastUpdate()},
		{"PLU reference", ref},
	}
}

func displayValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	if s == "" || s == "NULL" {
		return "", false
	}
	return s, true
}

// RegulationDoc returns the GPU document id and regulation file name of a
// zone. The document id is "gpu_doc_id", falling back to "id".
func RegulationDoc(props map[string]any) (docID, file string, ok bool) {
	if len(props) == 0 {
		return "", "", false
	}
	docID, ok = wfs.StringProp(props, "gpu_doc_id")
	if !ok {
		docID, ok = idString(props["id"])
	}
	if !ok {
		return "", "", false
	}
	file, ok = wfs.StringProp(props, "nomfic")
	if !ok {
		return "", "", false
	}
	return docID, file, true
}

// RegulationURL builds the download link of the zone's regulation PDF:
// <base>/api/document/<docID>/download-file/<nomfic>. It returns "" when
// either part is missing.
func RegulationURL(base string, props map[string]any) string {
	docID, file, ok := RegulationDoc(props)
	if !ok {
		return ""
	}
	if base == "" {
		base = DefaultGPUBase
	}
	return strings.TrimRight(base, "/") + "/api/document/" + url.PathEscape(docID) + "/download-file/" + url.PathEscape(file)
}

func idString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		if t == 0 {
			return "", false
		}
		return fmt.Sprintf("%.0f", t), true
	default:
		return "", false
	}
}
