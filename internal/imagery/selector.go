// Package imagery chooses a street-level imagery provider for a point:
// Mapillary when it has an image nearby, Google Street View otherwise.
package imagery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"urbanlens/models"
	"urbanlens/pkg/mapillary"
	"urbanlens/pkg/streetview"
)

// ImageFinder is satisfied by *mapillary.Client.
type ImageFinder interface {
	HasToken() bool
	FindBest(ctx context.Context, lat, lon float64, radii []float64, requirePano bool) (*mapillary.Image, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Settings are the user-facing imagery knobs.
type Settings struct {
	Provider   models.Provider `json:"provider"`
	RadiusM    float64         `json:"radius_m"`
	PreferPano bool            `json:"prefer_pano"`
}

// DefaultSettings mirror the sidebar defaults: auto provider, 150 m, panoramas preferred.
func DefaultSettings() Settings {
	return Settings{Provider: models.ProviderAuto, RadiusM: 150, PreferPano: true}
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Note is a user-facing message attached to the imagery result.
type Note struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Result is what the street view panel shows.
type Result struct {
	Provider    models.Provider  `json:"provider"`
	Image       *mapillary.Image `json:"image,omitempty"`
	CaptureDate string           `json:"capture_date,omitempty"`
	Deeplink    string           `json:"deeplink,omitempty"`
	EmbedURL    string           `json:"embed_url,omitempty"`
	Preview     []byte           `json:"-"`
	Panorama    []byte           `json:"-"`
	Notes       []Note           `json:"notes,omitempty"`
}

func (r *Result) note(level Level, msg string) {
	r.Notes = append(r.Notes, Note{Level: level, Message: msg})
}

type Selector struct {
	finder    ImageFinder
	googleKey string
}

func NewSelector(finder ImageFinder, googleKey string) *Selector {
	return &Selector{finder: finder, googleKey: googleKey}
}

// Select resolves the provider for the point and gathers what it needs to display.
func (s *Selector) Select(ctx context.Context, lat, lon float64, settings Settings) *Result {
	if settings.RadiusM <= 0 {
		settings.RadiusM = DefaultSettings().RadiusM
	}
	radii := mapillary.Radii(settings.RadiusM)
	res := &Result{Provider: settings.Provider}

	var found *mapillary.Image
	if settings.Provider == models.ProviderAuto {
		res.Provider = models.ProviderNone
		if s.finder != nil && s.finder.HasToken() {
			found, _ = s.search(ctx, lat, lon, radii, settings.PreferPano)
			if found != nil {
				res.Provider = models.ProviderMapillary
			}
		}
		if found == nil && s.googleKey != "" {
			res.Provider = models.ProviderGoogle
		}
	}

	switch res.Provider {
	case models.ProviderMapillary:
		s.mapillary(ctx, res, found, lat, lon, radii, settings.PreferPano)
	case models.ProviderGoogle:
		if s.googleKey == "" {
			res.note(LevelWarning, "Please configure GOOGLE_MAPS_API_KEY to use Google Street View.")
			break
		}
		res.EmbedURL = streetview.EmbedURL(lat, lon, s.googleKey, streetview.DefaultFOV)
	default:
		res.Provider = models.ProviderNone
		res.note(LevelInfo, "No street imagery provider is available, or no image was found near this location.")
	}
	return res
}

// search runs the pano-preferring search and retries without the pano
// preference when it comes back empty. panoMissed reports that retry.
func (s *Selector) search(ctx context.Context, lat, lon float64, radii []float64, preferPano bool) (im *mapillary.Image, panoMissed bool) {
	im, err := s.find(ctx, lat, lon, radii, preferPano)
	if im != nil || !preferPano || errors.Is(err, mapillary.ErrInvalidToken) {
		return im, false
	}
	im, _ = s.find(ctx, lat, lon, radii, false)
	return im, true
}

// find treats an image without any thumbnail as not found, since there is
// nothing to display for it.
func (s *Selector) find(ctx context.Context, lat, lon float64, radii []float64, requirePano bool) (*mapillary.Image, error) {
	im, err := s.finder.FindBest(ctx, lat, lon, radii, requirePano)
	logSearchErr(err)
	if err != nil || im == nil {
		return nil, err
	}
	if im.ThumbURL() == "" {
		zap.L().Debug("mapillary image has no thumbnail", zap.String("id", im.ID))
		return nil, mapillary.ErrNoImage
	}
	return im, nil
}

func (s *Selector) mapillary(ctx context.Context, res *Result, found *mapillary.Image, lat, lon float64, radii []float64, preferPano bool) {
	if s.finder == nil || !s.finder.HasToken() {
		res.note(LevelWarning, "Please configure MAPILLARY_TOKEN to use Mapillary imagery.")
		return
	}

	if found == nil {
		var panoMissed bool
		found, panoMissed = s.search(ctx, lat, lon, radii, preferPano)
		if panoMissed {
			res.note(LevelInfo, "No panoramic image found nearby; showing the closest available image.")
		}
	}
	if found == nil {
		res.note(LevelError, "No Mapillary imagery found near this point.")
		return
	}

	res.Image = found
	res.CaptureDate = found.CaptureDate()
	res.Deeplink = mapillary.Deeplink(found.ID)

	if u := found.ThumbURL(); u != "" {
		preview, err := s.finder.FetchImage(ctx, u)
		if err != nil {
			res.note(LevelWarning, "Error loading static image: "+err.Error())
		} else {
			res.Preview = preview
		}
	}

	if !found.IsPano {
		res.note(LevelInfo, "This image is not panoramic (standard street-level photo).")
		return
	}
	pano, err := s.finder.FetchImage(ctx, found.PanoURL())
	if err != nil {
		res.note(LevelWarning, "Error loading panorama (showing static image only): "+err.Error())
		return
	}
	res.Panorama = pano
}

func logSearchErr(err error) {
	if err == nil || errors.Is(err, mapillary.ErrNoImage) {
		return
	}
	zap.L().Warn("mapillary search failed", zap.Error(err))
}
