package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nav-relay-service/internal/domain"
	"nav-relay-service/internal/platform/obs"
)

// SQLGeocodeCache is a Postgres-backed geocode cache. Unlike the in-memory
// backend it has no TTL: resolved addresses are stable and survive restarts.
type SQLGeocodeCache struct {
	DB *sql.DB
}

func NewSQLGeocodeCache(db *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db}
}

// InitSchema creates the geocode_cache table if it does not exist.
func (s *SQLGeocodeCache) InitSchema(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}

	q := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address      TEXT PRIMARY KEY,
		lon          DOUBLE PRECISION NOT NULL,
		lat          DOUBLE PRECISION NOT NULL,
		display_name TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("init geocode cache schema: %w", err)
	}
	return nil
}

// Get fetches the cached resolution for the given address.
func (s *SQLGeocodeCache) Get(ctx context.Context, address string) (_ *domain.Destination, err error) {
	defer obs.Time(ctx, "geocode.cache.Get")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	q := `
	SELECT lon, lat, display_name
	FROM geocode_cache
	WHERE address = $1;
	`

	var lon, lat float64
	var display string
	err = s.DB.QueryRowContext(ctx, q, address).Scan(&lon, &lat, &display)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query geocode_cache table: %w", err)
	}

	return &domain.Destination{
		Coords:  domain.Coordinates{Lon: lon, Lat: lat},
		Address: display,
	}, nil
}

// Put stores an address -> destination mapping in the cache.
func (s *SQLGeocodeCache) Put(ctx context.Context, address string, d domain.Destination) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}

	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("insert geocode cache: empty address key")
	}

	q := `
	INSERT INTO geocode_cache (address, lon, lat, display_name)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (address) DO UPDATE
	SET lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		display_name = EXCLUDED.display_name;
	`

	if _, err := s.DB.ExecContext(ctx, q, address, d.Coords.Lon, d.Coords.Lat, d.Address); err != nil {
		return fmt.Errorf("insert geocode cache addr=%q: %w", address, err)
	}
	return nil
}
