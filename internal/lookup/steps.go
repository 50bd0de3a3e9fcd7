package lookup

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"urbanlens/internal/cache"
	"urbanlens/internal/keys"
	"urbanlens/internal/report"
	"urbanlens/internal/storage"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/location"
	"urbanlens/pkg/zoning"
)

func (s *Service) geocode(ctx context.Context, r *report.Report) error {
	if r.Location != nil {
		return nil
	}
	place, err := s.resolve(ctx, r.Query)
	if errors.Is(err, location.ErrNotFound) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "geocoding failed")
	}
	r.Location = &models.Location{
		Label:       place.Label,
		Coordinates: models.Coordinates{Lat: place.Latitude, Lon: place.Longitude},
		Source:      "nominatim",
	}
	return nil
}

// resolve checks the persistent history first, then the TTL cache, then the
// geocoder. Fresh geocoder answers are written back to the history.
func (s *Service) resolve(ctx context.Context, address string) (*location.Place, error) {
	if s.opts.History != nil {
		p, err := s.opts.History.CachedGeocode(ctx, address)
		if err != nil {
			zap.L().Warn("geocode history unavailable", zap.Error(err))
		} else if p != nil {
			return p, nil
		}
	}

	return cache.GetOrLoad(ctx, s.opts.Cache, "geocode", cache.Key("geocode", address), s.opts.TTL.Geocode,
		func(ctx context.Context) (*location.Place, error) {
			p, err := s.opts.Geocoder.Geocode(ctx, address)
			if err != nil {
				return nil, err
			}
			if s.opts.History != nil {
				if err := s.opts.History.StoreGeocode(ctx, address, p); err != nil {
					zap.L().Warn("failed to store geocode", zap.Error(err))
				}
			}
			return p, nil
		})
}

func (s *Service) zoning(ctx context.Context, r *report.Report) error {
	c := r.Location.Coordinates
	zone, err := cache.GetOrLoad(ctx, s.opts.Cache, "zoning", cache.Key("zoning", c.Lat, c.Lon), s.opts.TTL.Zoning,
		func(ctx context.Context) (*zoning.Zone, error) {
			z, err := s.opts.Zones.Lookup(ctx, c.Lat, c.Lon)
			if errors.Is(err, zoning.ErrNoZone) {
				return nil, nil
			}
			return z, err
		})
	if err != nil {
		return eris.Wrap(err, "zoning lookup failed")
	}
	r.Zone = zone
	if zone != nil {
		r.RegulationURL = zoning.RegulationURL(s.opts.GPUBaseURL, zone.Properties)
	}
	return nil
}

func (s *Service) parcel(ctx context.Context, r *report.Report) error {
	c := r.Location.Coordinates
	parcel, err := cache.GetOrLoad(ctx, s.opts.Cache, "parcel", cache.Key("parcel", c.Lat, c.Lon), s.opts.TTL.Parcel,
		func(ctx context.Context) (*cadastre.Parcel, error) {
			p, err := s.opts.Parcels.Lookup(ctx, c.Lat, c.Lon)
			if errors.Is(err, cadastre.ErrNoParcel) {
				return nil, nil
			}
			return p, err
		})
	if err != nil {
		return eris.Wrap(err, "parcel lookup failed")
	}
	r.Parcel = parcel
	return nil
}

func (s *Service) imagery(ctx context.Context, r *report.Report) error {
	c := r.Location.Coordinates
	r.Imagery = s.opts.Imagery.Select(ctx, c.Lat, c.Lon, r.Settings)
	return nil
}

func (s *Service) archiveRegulation(ctx context.Context, r *report.Report) error {
	if r.Zone == nil || r.RegulationURL == "" || s.opts.Regulations == nil {
		return nil
	}
	docID, file, ok := zoning.RegulationDoc(r.Zone.Properties)
	if !ok {
		return nil
	}
	key := keys.Regulation(docID, file)
	stored, err := s.opts.Archive.PutIfAbsent(ctx, key, storage.ContentTypePDF, func(ctx context.Context) ([]byte, error) {
		return s.opts.Regulations.Download(ctx, r.RegulationURL)
	})
	if err != nil {
		return eris.Wrap(err, "regulation archiving failed")
	}
	zap.L().Debug("regulation archived", zap.String("key", key), zap.Bool("new", stored))
	r.RegulationKey = key
	return nil
}

func (s *Service) archivePanorama(ctx context.Context, r *report.Report) error {
	res := r.Imagery
	if res == nil || res.Image == nil {
		return nil
	}
	data := res.Panorama
	if len(data) == 0 {
		data = res.Preview
	}
	if len(data) == 0 {
		return nil
	}
	key := keys.Panorama(res.Image.ID)
	if _, err := s.opts.Archive.PutIfAbsent(ctx, key, storage.ContentTypeJPEG, func(context.Context) ([]byte, error) {
		return data, nil
	}); err != nil {
		return eris.Wrap(err, "panorama archiving failed")
	}
	r.PanoramaKey = key
	return nil
}
