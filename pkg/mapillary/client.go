// Package mapillary searches the Mapillary Graph API for the street-level
// image that best covers a point.
package mapillary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"urbanlens/internal/metrics"
	"urbanlens/internal/resilience"
	"urbanlens/pkg/geo"
)

const (
	DefaultBaseURL = "https://graph.mapillary.com"
	Fields         = "id,computed_geometry,thumb_1024_url,thumb_2048_url,captured_at,is_pano"
	tokenPrefix    = "MLY|"
	closeToLimit   = 20
	bboxLimit      = 50
	maxImageBytes  = 32 << 20
)

var (
	// ErrInvalidToken is returned when the access token is missing or malformed.
	ErrInvalidToken = errors.New("mapillary: missing or malformed token (should start with MLY|)")
	// ErrNoImage is returned when no search step found an image.
	ErrNoImage = errors.New("mapillary: no image found")
)

// DefaultRadii is the bbox search ladder used when none is given.
var DefaultRadii = []float64{150, 300, 600, 1200, 3000, 6000, 10000}

// Radii builds the search ladder starting from a user-chosen radius.
func Radii(radius float64) []float64 {
	return []float64{radius, math.Max(radius*2, 300), 600, 1200, 3000, 6000, 10000}
}

// Geometry is a GeoJSON point as returned in computed_geometry.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Image is one entry of the /images endpoint.
type Image struct {
	ID               string          `json:"id"`
	ComputedGeometry *Geometry       `json:"computed_geometry,omitempty"`
	Thumb1024URL     string          `json:"thumb_1024_url,omitempty"`
	Thumb2048URL     string          `json:"thumb_2048_url,omitempty"`
	CapturedAt       json.RawMessage `json:"captured_at,omitempty"`
	IsPano           bool            `json:"is_pano"`
}

// ThumbURL prefers the 1024px thumbnail.
func (im *Image) ThumbURL() string {
	if im.Thumb1024URL != "" {
		return im.Thumb1024URL
	}
	return im.Thumb2048URL
}

// PanoURL prefers the 2048px thumbnail, which is large enough for a 360° viewer.
func (im *Image) PanoURL() string {
	if im.Thumb2048URL != "" {
		return im.Thumb2048URL
	}
	return im.ThumbURL()
}

// Position returns (lat, lon) of the image when computed_geometry is a point.
func (im *Image) Position() (lat, lon float64, ok bool) {
	if im.ComputedGeometry == nil || len(im.ComputedGeometry.Coordinates) != 2 {
		return 0, 0, false
	}
	return im.ComputedGeometry.Coordinates[1], im.ComputedGeometry.Coordinates[0], true
}

type imagesResponse struct {
	Data []Image `json:"data"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// HasToken reports whether any token was configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// Configured reports whether the client holds a well-formed token.
func (c *Client) Configured() bool {
	return strings.HasPrefix(c.token, tokenPrefix)
}

// FindBest looks for the best image near the point: first a closeto search,
// then bounding boxes of growing radius. Within the first non-empty answer,
// panoramas come first and then the closest image; with requirePano the best
// panorama is returned when one exists, else the best image overall.
func (c *Client) FindBest(ctx context.Context, lat, lon float64, radii []float64, requirePano bool) (*Image, error) {
	if !c.Configured() {
		return nil, ErrInvalidToken
	}
	if len(radii) == 0 {
		radii = DefaultRadii
	}

	items, err := c.search(ctx, closeToLimit, "closeto", fmt.Sprintf("%s,%s", ftoa(lat), ftoa(lon)))
	if err != nil {
		zap.L().Warn("mapillary closeto search failed", zap.Error(err))
	} else if len(items) > 0 {
		return pick(items, lat, lon, requirePano), nil
	}

	for _, radius := range radii {
		bbox := geo.AroundMeters(lat, lon, radius)
		items, err := c.search(ctx, bboxLimit, "bbox", bbox.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("mapillary bbox search failed", zap.Float64("radius_m", radius), zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}
		return pick(items, lat, lon, requirePano), nil
	}
	return nil, ErrNoImage
}

func (c *Client) search(ctx context.Context, limit int, key, value string) (items []Image, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("mapillary", start, err) }()

	params := url.Values{}
	params.Set("access_token", c.token)
	params.Set("fields", Fields)
	params.Set("limit", strconv.Itoa(limit))
	params.Set(key, value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "mapillary: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mapillary: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckStatus("mapillary", resp.StatusCode); err != nil {
		return nil, err
	}

	var body imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "mapillary: decode response")
	}
	return body.Data, nil
}

// FetchImage downloads a thumbnail.
func (c *Client) FetchImage(ctx context.Context, imageURL string) (data []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("mapillary-image", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mapillary: build image request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mapillary: image request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckStatus("mapillary", resp.StatusCode); err != nil {
		return nil, err
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "mapillary: read image")
	}
	return data, nil
}

type ranked struct {
	image *Image
	dist  float64
}

// Rank orders images panoramas first, then by distance to the point. Images
// without a usable position sort last among their group.
func Rank(items []Image, lat, lon float64) []*Image {
	rs := make([]ranked, len(items))
	for i := range items {
		d := math.Inf(1)
		if iLat, iLon, ok := items[i].Position(); ok {
			d = geo.Haversine(lat, lon, iLat, iLon)
		}
		rs[i] = ranked{image: &items[i], dist: d}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].image.IsPano != rs[j].image.IsPano {
			return rs[i].image.IsPano
		}
		return rs[i].dist < rs[j].dist
	})

	out := make([]*Image, len(rs))
	for i, r := range rs {
		out[i] = r.image
	}
	return out
}

func pick(items []Image, lat, lon float64, requirePano bool) *Image {
	order := Rank(items, lat, lon)
	if requirePano {
		for _, im := range order {
			if im.IsPano {
				return im
			}
		}
	}
	return order[0]
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
