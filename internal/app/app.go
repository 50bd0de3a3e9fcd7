// Package app builds the lookup service and its optional backends from
// configuration. Both binaries share it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"urbanlens/internal/cache"
	"urbanlens/internal/config"
	"urbanlens/internal/history"
	"urbanlens/internal/imagery"
	"urbanlens/internal/lookup"
	"urbanlens/internal/storage"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/location"
	"urbanlens/pkg/mapillary"
	"urbanlens/pkg/wfs"
	"urbanlens/pkg/zoning"
)

const regulationTimeout = 60 * time.Second

// App holds the initialized clients. Storage and History are nil when not
// configured. Callers should defer Close.
type App struct {
	Lookup   *lookup.Service
	Geocoder *location.Client
	Storage  *storage.S3Service
	History  *history.Store

	closers []func()
}

// Close releases every backend connection.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects the configured backends and wires the lookup service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	a.Geocoder = location.NewClient(
		location.WithHTTPClient(&http.Client{Timeout: cfg.Nominatim.Timeout}),
		location.WithBaseURL(cfg.Nominatim.BaseURL),
		location.WithUserAgent(cfg.Nominatim.UserAgent),
		location.WithRateLimit(cfg.Nominatim.RPS),
		location.WithRetry(cfg.Nominatim.Retries, cfg.Nominatim.RetryDelay),
	)

	features := wfs.NewClient(&http.Client{Timeout: cfg.WFS.Timeout}, cfg.WFS.BaseURL)
	street := mapillary.NewClient(&http.Client{Timeout: cfg.Mapillary.Timeout}, cfg.Mapillary.BaseURL, cfg.Mapillary.Token)
	if !street.HasToken() {
		zap.L().Info("no Mapillary token configured, street imagery falls back to Google")
	}

	opts := lookup.Options{
		Geocoder:    a.Geocoder,
		Reverser:    a.Geocoder,
		Zones:       zoning.NewService(features),
		Parcels:     cadastre.NewService(features),
		Imagery:     imagery.NewSelector(street, cfg.Google.APIKey),
		Regulations: zoning.NewDownloader(&http.Client{Timeout: regulationTimeout}),
		TTL: lookup.TTLs{
			Geocode: cfg.Cache.TTL.Geocode,
			Parcel:  cfg.Cache.TTL.Parcel,
			Zoning:  cfg.Cache.TTL.Zoning,
		},
		GPUBaseURL: cfg.GPU.BaseURL,
		Defaults: imagery.Settings{
			Provider:   models.ParseProvider(cfg.Imagery.Provider),
			RadiusM:    cfg.Imagery.RadiusM,
			PreferPano: cfg.Imagery.PreferPano,
		},
	}

	if cfg.Cache.Address != "" {
		vk, err := cache.NewValkey(cfg.Cache.Address)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vk.Close)
		opts.Cache = vk
		zap.L().Info("using valkey cache", zap.String("address", cfg.Cache.Address))
	} else {
		opts.Cache = cache.NewMemory()
	}

	if cfg.Database.URL != "" {
		st, err := history.Open(ctx, cfg.Database.URL, cfg.Database.GeocodeTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			a.Close()
			return nil, eris.Wrap(err, "app: migrate history")
		}
		a.History = st
		opts.History = st
	}

	if cfg.Storage.Enabled() {
		s3, err := storage.NewS3Service(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.Storage = s3
		opts.Archive = s3
	}

	a.Lookup = lookup.New(opts)
	return a, nil
}
