package mapillary

import (
	"encoding/json"
	"fmt"
	"time"
)

// CaptureDate formats captured_at as an ISO date.
func (im *Image) CaptureDate() string {
	if len(im.CapturedAt) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(im.CapturedAt, &v); err != nil {
		return ""
	}
	return FormatCaptureDate(v)
}

// FormatCaptureDate converts a Mapillary timestamp (epoch seconds or
// milliseconds, or an ISO-8601 string) to YYYY-MM-DD. Unparsable strings are
// cut to their first ten characters; empty values give "".
func FormatCaptureDate(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return epochDate(t)
	case int64:
		return epochDate(float64(t))
	case int:
		return epochDate(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return ""
		}
		return epochDate(f)
	case string:
		return stringDate(t)
	default:
		return fmt.Sprint(t)
	}
}

func epochDate(f float64) string {
	if f == 0 {
		return ""
	}
	if f > 1e12 {
		f /= 1000
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.DateOnly)
}

var isoLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}

func stringDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format(time.DateOnly)
		}
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// Deeplink returns the Mapillary web viewer URL for an image.
func Deeplink(imageID string) string {
	if imageID == "" {
		return ""
	}
	return "https://www.mapillary.com/app/?focus=photo&pKey=" + imageID
}
