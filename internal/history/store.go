// Package history persists geocoding results and a log of processed lookups
// in Postgres.
package history

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"urbanlens/pkg/location"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	label        TEXT NOT NULL,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS lookups (
	id             BIGSERIAL PRIMARY KEY,
	address        TEXT NOT NULL,
	found          BOOLEAN NOT NULL,
	zone_code      TEXT,
	parcel_area_m2 DOUBLE PRECISION,
	provider       TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Lookup is one row of the lookup log.
type Lookup struct {
	ID           int64     `json:"id"`
	Address      string    `json:"address"`
	Found        bool      `json:"found"`
	ZoneCode     string    `json:"zone_code,omitempty"`
	ParcelAreaM2 *float64  `json:"parcel_area_m2,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store reads and writes the history tables.
type Store struct {
	pool       Pool
	geocodeTTL time.Duration
	close      func()
}

// New wraps an existing pool. A zero geocodeTTL keeps cached geocodes forever.
func New(pool Pool, geocodeTTL time.Duration) *Store {
	return &Store{pool: pool, geocodeTTL: geocodeTTL, close: func() {}}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, geocodeTTL time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "history: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "history: ping")
	}
	s := New(pool, geocodeTTL)
	s.close = pool.Close
	return s, nil
}

// Close releases the pool when the store opened it.
func (s *Store) Close() {
	s.close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "history: migrate")
	}
	return nil
}

// AddressHash returns the SHA-256 hex digest of the normalized address.
func AddressHash(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// CachedGeocode returns the stored geocode for address, or nil when there is
// none or it is older than the TTL.
func (s *Store) CachedGeocode(ctx context.Context, address string) (*location.Place, error) {
	key := AddressHash(address)
	query := "SELECT latitude, longitude, label FROM geocode_cache WHERE address_hash = $1"
	args := []any{key}
	if s.geocodeTTL > 0 {
		query += " AND cached_at > now() - make_interval(secs => $2)"
		args = append(args, s.geocodeTTL.Seconds())
	}

	var p location.Place
	err := s.pool.QueryRow(ctx, query, args...).Scan(&p.Latitude, &p.Longitude, &p.Label)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "history: read geocode cache")
	}

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]))
	return &p, nil
}

// StoreGeocode upserts a geocode result.
func (s *Store) StoreGeocode(ctx context.Context, address string, p *location.Place) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, label, cached_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			label = EXCLUDED.label,
			cached_at = now()`,
		AddressHash(address), p.Latitude, p.Longitude, p.Label,
	)
	if err != nil {
		return eris.Wrap(err, "history: store geocode cache")
	}
	return nil
}

// RecordLookup appends a row to the lookup log.
func (s *Store) RecordLookup(ctx context.Context, l Lookup) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lookups (address, found, zone_code, parcel_area_m2, provider)
		VALUES ($1, $2, $3, $4, $5)`,
		l.Address, l.Found, nilIfEmpty(l.ZoneCode), l.ParcelAreaM2, nilIfEmpty(l.Provider),
	)
	if err != nil {
		return eris.Wrap(err, "history: record lookup")
	}
	return nil
}

// Recent returns the latest lookups, newest first. limit defaults to 20 and
// is capped at MaxRecent.
func (s *Store) Recent(ctx context.Context, limit int) ([]Lookup, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > MaxRecent:
		limit = MaxRecent
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, address, found, zone_code, parcel_area_m2, provider, created_at
		FROM lookups ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "history: query lookups")
	}
	defer rows.Close()

	var out []Lookup
	for rows.Next() {
		var (
			l        Lookup
			zone     *string
			provider *string
		)
		if err := rows.Scan(&l.ID, &l.Address, &l.Found, &zone, &l.ParcelAreaM2, &provider, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "history: scan lookup")
		}
		if zone != nil {
			l.ZoneCode = *zone
		}
		if provider != nil {
			l.Provider = *provider
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "history: iterate lookups")
	}
	return out, nil
}

// MaxRecent is the largest page Recent returns.
const MaxRecent = 100

// nilIfEmpty returns nil for empty strings, allowing NULL storage in Postgres.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
