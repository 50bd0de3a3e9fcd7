// Package streetview builds Google Maps Embed API Street View URLs.
package streetview

import (
	"fmt"
	"net/url"
)

const (
	embedURL   = "https://www.google.com/maps/embed/v1/streetview"
	DefaultFOV = 80
)

// EmbedURL returns an iframe-ready Street View URL, or "" without an API key.
// A non-positive fov selects DefaultFOV.
func EmbedURL(lat, lon float64, apiKey string, fov int) string {
	if apiKey == "" {
		return ""
	}
	if fov <= 0 {
		fov = DefaultFOV
	}
	qs := url.Values{}
	qs.Set("key", apiKey)
	qs.Set("location", fmt.Sprintf("%v,%v", lat, lon))
	qs.Set("fov", fmt.Sprint(fov))
	return embedURL + "?" + qs.Encode()
}
