package location

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"urbanlens/internal/metrics"
)

type nominatimReverseResponse struct {
	PlaceID     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse labels a coordinate pair. The returned Place keeps the input
// coordinates; only the label comes from Nominatim.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (place *Place, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("nominatim", start, ignoreNotFound(err)) }()

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("zoom", "18")

	var resp nominatimReverseResponse
	if err := c.getJSON(ctx, "/reverse", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" || resp.DisplayName == "" {
		return nil, ErrNotFound
	}
	return &Place{Latitude: lat, Longitude: lon, Label: resp.DisplayName}, nil
}
