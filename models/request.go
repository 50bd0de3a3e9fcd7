package models

import "strings"

// Provider selects the street imagery backend.
type Provider string

const (
	ProviderAuto      Provider = "auto"
	ProviderMapillary Provider = "mapillary"
	ProviderGoogle    Provider = "google"
	ProviderNone      Provider = "none"
)

// ParseProvider maps user input onto a Provider. Unknown values fall back to auto.
func ParseProvider(s string) Provider {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderMapillary:
		return ProviderMapillary
	case ProviderGoogle:
		return ProviderGoogle
	default:
		return ProviderAuto
	}
}

// LookupRequest is one address to resolve, as submitted through the queue or the API.
type LookupRequest struct {
	Address    string   `json:"address"`
	Provider   Provider `json:"provider,omitempty"`
	RadiusM    int      `json:"radius_m,omitempty"`
	PreferPano *bool    `json:"prefer_pano,omitempty"`
}

// LookupResult is published once a request has been processed.
type LookupResult struct {
	Address   string `json:"address"`
	Found     bool   `json:"found"`
	ReportKey string `json:"report_key,omitempty"`
	Error     string `json:"error,omitempty"`
}
