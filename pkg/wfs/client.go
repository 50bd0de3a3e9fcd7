// Package wfs issues WFS 2.0 GetFeature requests against the Géoplateforme
// and decodes the GeoJSON answer.
package wfs

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"urbanlens/internal/metrics"
	"urbanlens/internal/resilience"
	"urbanlens/pkg/geo"
)

const (
	DefaultBaseURL = "https://data.geopf.fr/wfs/ows"
	CRS            = "EPSG:4326"
)

// Query selects features of one layer intersecting a bounding box.
type Query struct {
	TypeName string
	BBox     geo.BBox
	Count    int
}

// Params renders the GetFeature query string.
func (q Query) Params() url.Values {
	params := url.Values{}
	params.Set("SERVICE", "WFS")
	params.Set("VERSION", "2.0.0")
	params.Set("REQUEST", "GetFeature")
	params.Set("TYPENAMES", q.TypeName)
	params.Set("SRSNAME", CRS)
	params.Set("BBOX", q.BBox.WithCRS(CRS))
	params.Set("OUTPUTFORMAT", "application/json")
	params.Set("COUNT", strconv.Itoa(q.Count))
	return params
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a WFS client. An empty baseURL selects the Géoplateforme endpoint.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// GetFeatures runs the query and returns the decoded collection, which may be empty.
func (c *Client) GetFeatures(ctx context.Context, q Query) (fc *geojson.FeatureCollection, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("wfs:"+q.TypeName, start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Params().Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wfs: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "wfs: get %s", q.TypeName)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckStatus("wfs", resp.StatusCode); err != nil {
		return nil, err
	}

	fc = &geojson.FeatureCollection{}
	if err := decode(resp.Body, fc); err != nil {
		return nil, eris.Wrapf(err, "wfs: decode %s", q.TypeName)
	}
	return fc, nil
}
