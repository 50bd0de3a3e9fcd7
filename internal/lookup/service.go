// Package lookup resolves an address into a report: geocoding first, then
// zoning, parcel and street imagery side by side, then archiving of the
// regulation PDF and panorama.
package lookup

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"urbanlens/internal/cache"
	"urbanlens/internal/enrich"
	"urbanlens/internal/history"
	"urbanlens/internal/imagery"
	"urbanlens/internal/keys"
	"urbanlens/internal/metrics"
	"urbanlens/internal/render"
	"urbanlens/internal/report"
	"urbanlens/internal/storage"
	"urbanlens/models"
	"urbanlens/pkg/cadastre"
	"urbanlens/pkg/location"
	"urbanlens/pkg/zoning"
)

var (
	// ErrBlankAddress is returned for an empty or whitespace-only address.
	ErrBlankAddress = errors.New("lookup: address is blank")
	// ErrNotFound is returned when the geocoder has no match.
	ErrNotFound = errors.New("lookup: address not found")
	// ErrGeocoderUnavailable is returned when geocoding failed for another
	// reason than a missing match.
	ErrGeocoderUnavailable = errors.New("lookup: geocoder unavailable")
	// ErrInvalidCoordinates is returned by LookupAt for out-of-range input.
	ErrInvalidCoordinates = errors.New("lookup: coordinates out of range")
)

type Geocoder interface {
	Geocode(ctx context.Context, address string) (*location.Place, error)
}

type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (*location.Place, error)
}

type ZoneFinder interface {
	Lookup(ctx context.Context, lat, lon float64) (*zoning.Zone, error)
}

type ParcelFinder interface {
	Lookup(ctx context.Context, lat, lon float64) (*cadastre.Parcel, error)
}

type ImagerySelector interface {
	Select(ctx context.Context, lat, lon float64, settings imagery.Settings) *imagery.Result
}

type RegulationFetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Archive is satisfied by *storage.S3Service.
type Archive interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	PutIfAbsent(ctx context.Context, key, contentType string, fetch func(context.Context) ([]byte, error)) (bool, error)
}

// History is satisfied by *history.Store.
type History interface {
	CachedGeocode(ctx context.Context, address string) (*location.Place, error)
	StoreGeocode(ctx context.Context, address string, p *location.Place) error
	RecordLookup(ctx context.Context, l history.Lookup) error
}

// TTLs bounds how long each kind of upstream answer is cached.
type TTLs struct {
	Geocode time.Duration
	Parcel  time.Duration
	Zoning  time.Duration
}

// Options wires the service. Only Geocoder is required; a nil dependency
// turns its step off.
type Options struct {
	Geocoder    Geocoder
	Reverser    Reverser
	Zones       ZoneFinder
	Parcels     ParcelFinder
	Imagery     ImagerySelector
	Regulations RegulationFetcher
	Archive     Archive
	History     History
	Cache       cache.Store
	TTL         TTLs
	GPUBaseURL  string
	Defaults    imagery.Settings
}

// Service runs lookups.
type Service struct {
	opts     Options
	pipeline *enrich.Pipeline[report.Report]
}

func New(opts Options) *Service {
	if opts.Defaults.Provider == "" {
		opts.Defaults = imagery.DefaultSettings()
	}
	s := &Service{opts: opts}

	found := func(r *report.Report) bool { return r.Found() }
	var features []enrich.Step[report.Report]
	if opts.Zones != nil {
		features = append(features, enrich.When(found, s.zoning))
	}
	if opts.Parcels != nil {
		features = append(features, enrich.When(found, s.parcel))
	}
	if opts.Imagery != nil {
		features = append(features, enrich.When(found, s.imagery))
	}

	stages := []enrich.Stage[report.Report]{
		enrich.NewStage[report.Report](s.geocode),
		enrich.NewStage(features...),
	}
	if opts.Archive != nil {
		stages = append(stages, enrich.NewStage(
			enrich.When(found, s.archiveRegulation),
			enrich.When(found, s.archivePanorama),
		))
	}

	s.pipeline = enrich.NewPipeline(stages...).OnError(func(_ context.Context, r *report.Report, err error) {
		zap.L().Warn("lookup step failed", zap.String("address", r.Query), zap.Error(err))
		r.Warn("%s", err)
	})
	return s
}

// Settings merges a request's imagery options over the defaults.
func (s *Service) Settings(req models.LookupRequest) imagery.Settings {
	st := s.opts.Defaults
	if req.Provider != "" {
		st.Provider = models.ParseProvider(string(req.Provider))
	}
	if req.RadiusM > 0 {
		st.RadiusM = float64(req.RadiusM)
	}
	if req.PreferPano != nil {
		st.PreferPano = *req.PreferPano
	}
	return st
}

// Lookup resolves one address. When the address cannot be geocoded the
// returned report is still usable for rendering and the error is
// ErrNotFound or ErrGeocoderUnavailable.
func (s *Service) Lookup(ctx context.Context, req models.LookupRequest) (*report.Report, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, ErrBlankAddress
	}

	r := report.New(address, s.Settings(req))
	if err := s.run(ctx, r); err != nil {
		return nil, err
	}

	if !r.Found() {
		// Only the geocode stage ran, so any warning comes from it.
		if len(r.Warnings) > 0 {
			return r, eris.Wrap(ErrGeocoderUnavailable, r.Warnings[0])
		}
		return r, ErrNotFound
	}
	return r, nil
}

// LookupAt builds a report for raw coordinates. The geocoder is skipped; the
// label comes from reverse geocoding when available and falls back to the
// formatted coordinates.
func (s *Service) LookupAt(ctx context.Context, lat, lon float64, req models.LookupRequest) (*report.Report, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, ErrInvalidCoordinates
	}
	c := models.Coordinates{Lat: lat, Lon: lon}
	r := report.New(c.String(), s.Settings(req))

	label := c.String()
	if s.opts.Reverser != nil {
		p, err := s.opts.Reverser.Reverse(ctx, lat, lon)
		switch {
		case err == nil:
			label = p.Label
		case !errors.Is(err, location.ErrNotFound):
			r.Warn("%s", eris.Wrap(err, "reverse geocoding failed"))
		}
	}
	r.Location = &models.Location{Label: label, Coordinates: c, Source: "coordinates"}

	if err := s.run(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) run(ctx context.Context, r *report.Report) error {
	start := time.Now()
	if err := s.pipeline.Run(ctx, r); err != nil {
		return eris.Wrap(err, "lookup: run")
	}
	metrics.LookupDuration.WithLabelValues(strconv.FormatBool(r.Found())).Observe(time.Since(start).Seconds())
	s.record(ctx, r)
	return nil
}

// Archive stores the report as JSON and returns its key. Without an archive
// it does nothing and returns "".
func (s *Service) Archive(ctx context.Context, r *report.Report) (string, error) {
	if s.opts.Archive == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := render.JSON(&buf, r); err != nil {
		return "", err
	}
	key := keys.Report(r.Query, r.CreatedAt)
	if err := s.opts.Archive.Put(ctx, key, storage.ContentTypeJSON, buf.Bytes()); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) record(ctx context.Context, r *report.Report) {
	if s.opts.History == nil {
		return
	}
	entry := history.Lookup{Address: r.Query, Found: r.Found()}
	if r.Zone != nil {
		entry.ZoneCode = r.Zone.Code
	}
	if area, ok := r.Parcel.Area(); ok {
		entry.ParcelAreaM2 = &area
	}
	if r.Imagery != nil {
		entry.Provider = string(r.Imagery.Provider)
	}
	if err := s.opts.History.RecordLookup(ctx, entry); err != nil {
		zap.L().Warn("failed to record lookup", zap.String("address", r.Query), zap.Error(err))
	}
}

// Outcome pairs a request with its lookup result.
type Outcome struct {
	Request models.LookupRequest
	Report  *report.Report
	Err     error
}

// LookupMany resolves requests with at most concurrency lookups in flight.
// Outcomes keep the order of reqs; one failed lookup does not stop the others.
func (s *Service) LookupMany(ctx context.Context, reqs []models.LookupRequest, concurrency int) []Outcome {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]Outcome, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			r, err := s.Lookup(ctx, req)
			out[i] = Outcome{Request: req, Report: r, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
