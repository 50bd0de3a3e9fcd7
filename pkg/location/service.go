// Package location geocodes free-text addresses through Nominatim.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"urbanlens/internal/metrics"
	"urbanlens/internal/resilience"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "MapExplorer/1.0 (educational-demo)"
)

// ErrNotFound is returned when Nominatim has no match for the query.
var ErrNotFound = errors.New("location: address not found")

// Place is a geocoded address.
type Place struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Label     string  `json:"label"`
}

// NominatimResponse is shaped for the /search API response
type NominatimResponse []struct {
	PlaceID     int64    `json:"place_id"`
	OsmType     string   `json:"osm_type"`
	OsmID       int64    `json:"osm_id"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	Class       string   `json:"class"`
	Type        string   `json:"type"`
	Importance  float64  `json:"importance"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"`
}

// Client talks to a Nominatim instance. The public instance allows one
// request per second, which the default limiter enforces.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent overrides the User-Agent header required by the usage policy.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit sets the requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry sets the attempt count and the delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = attempts
		c.retry.Delay = delay
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(1, 1),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.ShouldRetry = func(err error) bool { return !errors.Is(err, ErrNotFound) }
	c.retry.OnRetry = resilience.RetryLogger("nominatim", "search")
	return c
}

// Geocode resolves a free-text address to its best match. A blank address or
// an empty result yields ErrNotFound; transport and decoding failures are
// retried before being returned.
func (c *Client) Geocode(ctx context.Context, address string) (*Place, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrNotFound
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Place, error) {
		return c.search(ctx, address)
	})
}

func (c *Client) search(ctx context.Context, address string) (place *Place, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("nominatim", start, ignoreNotFound(err)) }()

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")

	var results NominatimResponse
	if err := c.getJSON(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	first := results[0]
	lat, err := strconv.ParseFloat(first.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "location: parse lat %q", first.Lat)
	}
	lon, err := strconv.ParseFloat(first.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "location: parse lon %q", first.Lon)
	}

	label := first.DisplayName
	if label == "" {
		label = address
	}
	return &Place{Latitude: lat, Longitude: lon, Label: label}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "location: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "location: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "location: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckStatus("location", resp.StatusCode); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "location: decode response")
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
