// Package keys names the objects the archive stores.
package keys

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"
)

// Object key prefixes.
const (
	ReportsPrefix     = "reports/"
	RegulationsPrefix = "regulations/"
	PanoramasPrefix   = "panoramas/"
	RequestsPrefix    = "requests/"
)

// sanitizeKey lowercases s and turns every run of characters other than
// letters and digits into a single hyphen.
func sanitizeKey(s string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}

// Slug is the sanitized form of an address used in keys.
func Slug(address string) string {
	return sanitizeKey(address)
}

// Report returns the key of a lookup report taken at the given time.
func Report(address string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s.json", ReportsPrefix, Slug(address), at.UTC().Format("20060102T150405Z"))
}

// Regulation returns the key of an archived regulation PDF.
func Regulation(docID, file string) string {
	return RegulationsPrefix + sanitizeKey(docID) + "/" + path.Base(file)
}

// Panorama returns the key of a street-level image.
func Panorama(imageID string) string {
	return PanoramasPrefix + sanitizeKey(imageID) + ".jpg"
}

// Request returns the key of a queued lookup request.
func Request(address string) string {
	return RequestsPrefix + Slug(address) + ".json"
}

// IsRequest reports whether key names a queued lookup request.
func IsRequest(key string) bool {
	return strings.HasPrefix(key, RequestsPrefix) && strings.HasSuffix(key, ".json")
}
