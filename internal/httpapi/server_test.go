package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/history"
	"urbanlens/internal/imagery"
	"urbanlens/internal/lookup"
	"urbanlens/internal/report"
	"urbanlens/models"
)

type fakeLooker struct {
	err  error
	last models.LookupRequest
}

func (f *fakeLooker) Lookup(_ context.Context, req models.LookupRequest) (*report.Report, error) {
	f.last = req
	r := report.New(req.Address, imagery.DefaultSettings())
	if errors.Is(f.err, lookup.ErrNotFound) || errors.Is(f.err, lookup.ErrGeocoderUnavailable) {
		return r, f.err
	}
	if f.err != nil {
		return nil, f.err
	}
	r.Location = &models.Location{Label: "Tour Eiffel, Paris", Coordinates: models.Coordinates{Lat: 48.8583701, Lon: 2.2944813}}
	return r, nil
}

func (f *fakeLooker) LookupAt(_ context.Context, lat, lon float64, req models.LookupRequest) (*report.Report, error) {
	if lat > 90 {
		return nil, lookup.ErrInvalidCoordinates
	}
	f.last = req
	c := models.Coordinates{Lat: lat, Lon: lon}
	r := report.New(c.String(), imagery.DefaultSettings())
	r.Location = &models.Location{Label: c.String(), Coordinates: c, Source: "coordinates"}
	return r, nil
}

func (f *fakeLooker) LookupMany(ctx context.Context, reqs []models.LookupRequest, _ int) []lookup.Outcome {
	out := make([]lookup.Outcome, len(reqs))
	for i, req := range reqs {
		r, err := f.Lookup(ctx, req)
		if req.Address == "nowhere" {
			err = lookup.ErrNotFound
		}
		out[i] = lookup.Outcome{Request: req, Report: r, Err: err}
	}
	return out
}

type fakeHistory struct{ limit int }

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]history.Lookup, error) {
	h.limit = limit
	return []history.Lookup{{ID: 1, Address: "Tour Eiffel", Found: true, ZoneCode: "UG"}}, nil
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, New(&fakeLooker{}, nil, 1, 0), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLookup_OK(t *testing.T) {
	looker := &fakeLooker{}
	rec := serve(t, New(looker, nil, 1, 0), http.MethodGet, "/api/lookup?address=Tour+Eiffel&provider=google&radius=300&pano=false", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Tour Eiffel", doc["query"])
	summary := doc["summary"].(map[string]any)
	assert.Equal(t, "Tour Eiffel, Paris", summary["address"])

	assert.Equal(t, models.Provider("google"), looker.last.Provider)
	assert.Equal(t, 300, looker.last.RadiusM)
	require.NotNil(t, looker.last.PreferPano)
	assert.False(t, *looker.last.PreferPano)
}

func TestLookup_Errors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		msg    string
	}{
		{"blank", "/api/lookup?address=%20%20", nil, http.StatusBadRequest, "address is required"},
		{"bad radius", "/api/lookup?address=x&radius=far", nil, http.StatusBadRequest, "radius must be a positive integer"},
		{"bad coordinates", "/api/lookup?lat=48.8&lon=east", nil, http.StatusBadRequest, "lat and lon must both be numbers"},
		{"out of range", "/api/lookup?lat=95&lon=2", nil, http.StatusBadRequest, "coordinates out of range"},
		{"bad pano", "/api/lookup?address=x&pano=maybe", nil, http.StatusBadRequest, "pano must be true or false"},
		{"not found", "/api/lookup?address=nowhere", lookup.ErrNotFound, http.StatusNotFound, "address not found"},
		{"upstream", "/api/lookup?address=x", eris.Wrap(lookup.ErrGeocoderUnavailable, "status 503"), http.StatusBadGateway, "geocoding service unavailable"},
		{"internal", "/api/lookup?address=x", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, New(&fakeLooker{err: tc.err}, nil, 1, 0), http.MethodGet, tc.target, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.msg+`"}`, rec.Body.String())
		})
	}
}

func TestLookup_Coordinates(t *testing.T) {
	rec := serve(t, New(&fakeLooker{}, nil, 1, 0), http.MethodGet, "/api/lookup?lat=48.8583701&lon=2.2944813", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source": "coordinates"`)
}

func TestBatch(t *testing.T) {
	s := New(&fakeLooker{}, nil, 2, 0)
	rec := serve(t, s, http.MethodPost, "/api/lookups", `[{"address":"Tour Eiffel"},{"address":"nowhere"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []batchItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.True(t, items[0].Found)
	assert.False(t, items[1].Found)
	assert.Equal(t, "address not found", items[1].Error)
}

func TestBatch_Invalid(t *testing.T) {
	s := New(&fakeLooker{}, nil, 1, 0)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, "/api/lookups", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, "/api/lookups", `[]`).Code)

	tooMany := "[" + strings.Repeat(`{"address":"a"},`, maxBatch) + `{"address":"a"}]`
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(t, s, http.MethodPost, "/api/lookups", tooMany).Code)
}

func TestHistory(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(t, New(&fakeLooker{}, nil, 1, 0), http.MethodGet, "/api/history", "").Code)

	hist := &fakeHistory{}
	s := New(&fakeLooker{}, hist, 1, 0)
	rec := serve(t, s, http.MethodGet, "/api/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)
	assert.Contains(t, rec.Body.String(), `"zone_code":"UG"`)

	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodGet, "/api/history?limit=-1", "").Code)
}

func TestReport(t *testing.T) {
	rec := serve(t, New(&fakeLooker{}, nil, 1, 0), http.MethodGet, "/report?address=Tour+Eiffel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "leaflet")
}

func TestReport_NotFound(t *testing.T) {
	rec := serve(t, New(&fakeLooker{err: lookup.ErrNotFound}, nil, 1, 0), http.MethodGet, "/report?address=nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestMetrics(t *testing.T) {
	rec := serve(t, New(&fakeLooker{}, nil, 1, 0), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
