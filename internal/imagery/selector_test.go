package imagery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/models"
	"urbanlens/pkg/mapillary"
)

type findCall struct {
	radii       []float64
	requirePano bool
}

type fakeFinder struct {
	token    bool
	pano     *mapillary.Image
	any      *mapillary.Image
	fetchErr map[string]error
	calls    []findCall
	fetched  []string
}

func (f *fakeFinder) HasToken() bool { return f.token }

func (f *fakeFinder) FindBest(_ context.Context, _, _ float64, radii []float64, requirePano bool) (*mapillary.Image, error) {
	f.calls = append(f.calls, findCall{radii: radii, requirePano: requirePano})
	if requirePano && f.pano != nil {
		return f.pano, nil
	}
	if !requirePano && f.any != nil {
		return f.any, nil
	}
	return nil, mapillary.ErrNoImage
}

func (f *fakeFinder) FetchImage(_ context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	if err := f.fetchErr[url]; err != nil {
		return nil, err
	}
	return []byte(url), nil
}

func messages(r *Result) []string {
	var out []string
	for _, n := range r.Notes {
		out = append(out, string(n.Level)+": "+n.Message)
	}
	return out
}

func TestSelect_AutoPrefersMapillaryPanorama(t *testing.T) {
	f := &fakeFinder{
		token: true,
		pano:  &mapillary.Image{ID: "p1", IsPano: true, Thumb1024URL: "t1024", Thumb2048URL: "t2048", CapturedAt: []byte(`1609459200000`)},
	}
	res := NewSelector(f, "gkey").Select(context.Background(), 48.85, 2.29, DefaultSettings())

	assert.Equal(t, models.ProviderMapillary, res.Provider)
	require.NotNil(t, res.Image)
	assert.Equal(t, "p1", res.Image.ID)
	assert.Equal(t, "2021-01-01", res.CaptureDate)
	assert.Equal(t, "https://www.mapillary.com/app/?focus=photo&pKey=p1", res.Deeplink)
	assert.Equal(t, []byte("t1024"), res.Preview)
	assert.Equal(t, []byte("t2048"), res.Panorama)
	assert.Empty(t, res.EmbedURL)
	assert.Empty(t, res.Notes)

	require.Len(t, f.calls, 1)
	assert.True(t, f.calls[0].requirePano)
	assert.Equal(t, []float64{150, 300, 600, 1200, 3000, 6000, 10000}, f.calls[0].radii)
}

func TestSelect_AutoRetriesWithoutPano(t *testing.T) {
	f := &fakeFinder{token: true, any: &mapillary.Image{ID: "flat", Thumb1024URL: "t"}}
	res := NewSelector(f, "").Select(context.Background(), 0, 0, Settings{Provider: models.ProviderAuto, RadiusM: 400, PreferPano: true})

	assert.Equal(t, models.ProviderMapillary, res.Provider)
	require.Len(t, f.calls, 2)
	assert.True(t, f.calls[0].requirePano)
	assert.False(t, f.calls[1].requirePano)
	assert.Equal(t, 800.0, f.calls[0].radii[1])
	assert.Equal(t, []string{"info: This image is not panoramic (standard street-level photo)."}, messages(res))
	assert.Nil(t, res.Panorama)
}

func TestSelect_AutoFallsBackToGoogle(t *testing.T) {
	f := &fakeFinder{token: true}
	res := NewSelector(f, "gkey").Select(context.Background(), 48.8584, 2.2945, DefaultSettings())

	assert.Equal(t, models.ProviderGoogle, res.Provider)
	assert.Contains(t, res.EmbedURL, "https://www.google.com/maps/embed/v1/streetview?")
	assert.Contains(t, res.EmbedURL, "key=gkey")
	assert.Len(t, f.calls, 2)
}

func TestSelect_AutoSkipsImageWithoutThumbnail(t *testing.T) {
	bare := &mapillary.Image{ID: "42"}
	f := &fakeFinder{token: true, pano: bare, any: bare}
	res := NewSelector(f, "gkey").Select(context.Background(), 48.8584, 2.2945, DefaultSettings())

	assert.Equal(t, models.ProviderGoogle, res.Provider)
	assert.Nil(t, res.Image)
	assert.Contains(t, res.EmbedURL, "key=gkey")
	assert.Empty(t, f.fetched)
	assert.Len(t, f.calls, 2)

	f = &fakeFinder{token: true, any: bare}
	res = NewSelector(f, "").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderMapillary})
	assert.Equal(t, []string{"error: No Mapillary imagery found near this point."}, messages(res))
}

func TestSelect_AutoWithoutMapillaryToken(t *testing.T) {
	f := &fakeFinder{token: false}
	res := NewSelector(f, "gkey").Select(context.Background(), 1, 2, DefaultSettings())

	assert.Equal(t, models.ProviderGoogle, res.Provider)
	assert.Empty(t, f.calls)
}

func TestSelect_AutoNothingAvailable(t *testing.T) {
	res := NewSelector(&fakeFinder{token: true}, "").Select(context.Background(), 1, 2, DefaultSettings())

	assert.Equal(t, models.ProviderNone, res.Provider)
	assert.Equal(t, []string{"info: No street imagery provider is available, or no image was found near this location."}, messages(res))

	res = NewSelector(nil, "").Select(context.Background(), 1, 2, DefaultSettings())
	assert.Equal(t, models.ProviderNone, res.Provider)
}

func TestSelect_MapillaryExplicit(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		res := NewSelector(&fakeFinder{}, "gkey").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderMapillary})
		assert.Equal(t, models.ProviderMapillary, res.Provider)
		assert.Equal(t, []string{"warning: Please configure MAPILLARY_TOKEN to use Mapillary imagery."}, messages(res))
	})

	t.Run("pano missed note", func(t *testing.T) {
		f := &fakeFinder{token: true, any: &mapillary.Image{ID: "flat", Thumb1024URL: "t"}}
		res := NewSelector(f, "").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderMapillary, PreferPano: true})
		assert.Equal(t, "flat", res.Image.ID)
		assert.Equal(t, []string{
			"info: No panoramic image found nearby; showing the closest available image.",
			"info: This image is not panoramic (standard street-level photo).",
		}, messages(res))
	})

	t.Run("nothing found", func(t *testing.T) {
		res := NewSelector(&fakeFinder{token: true}, "gkey").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderMapillary})
		assert.Equal(t, models.ProviderMapillary, res.Provider)
		assert.Equal(t, []string{"error: No Mapillary imagery found near this point."}, messages(res))
		assert.Empty(t, res.EmbedURL)
	})

	t.Run("image fetch failures become warnings", func(t *testing.T) {
		f := &fakeFinder{
			token:    true,
			pano:     &mapillary.Image{ID: "p", IsPano: true, Thumb1024URL: "small", Thumb2048URL: "big"},
			fetchErr: map[string]error{"small": errors.New("timeout"), "big": errors.New("reset")},
		}
		res := NewSelector(f, "").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderMapillary, PreferPano: true})
		assert.Equal(t, []string{
			"warning: Error loading static image: timeout",
			"warning: Error loading panorama (showing static image only): reset",
		}, messages(res))
		assert.Nil(t, res.Preview)
		assert.Nil(t, res.Panorama)
	})
}

func TestSelect_GoogleExplicit(t *testing.T) {
	res := NewSelector(&fakeFinder{token: true}, "").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderGoogle})
	assert.Equal(t, models.ProviderGoogle, res.Provider)
	assert.Equal(t, []string{"warning: Please configure GOOGLE_MAPS_API_KEY to use Google Street View."}, messages(res))

	res = NewSelector(nil, "gkey").Select(context.Background(), 1, 2, Settings{Provider: models.ProviderGoogle})
	assert.NotEmpty(t, res.EmbedURL)
	assert.Empty(t, res.Notes)
}
