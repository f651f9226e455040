package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nav-relay-service/internal/domain"
	"nav-relay-service/internal/platform/httpretry"
	"nav-relay-service/internal/platform/obs"
	"nav-relay-service/internal/ports"
)

// NominatimGeocoder implements Geocoder using the Nominatim search API.
//
// It coordinates:
//   - Address normalization and an optional disambiguating region hint
//   - A pluggable geocode cache checked before external calls
//   - External API calls with bounded retry
//
// The geocoder is safe for concurrent use.
type NominatimGeocoder struct {
	session     *http.Client
	baseURL     string
	userAgent   string
	regionHint  string
	maxAttempts int
	cache       ports.GeocodeCache
}

type Options struct {
	BaseURL    string
	UserAgent  string
	RegionHint string
	Timeout    time.Duration
	MaxRetries int
	Cache      ports.GeocodeCache
}

func NewNominatimGeocoder(opts Options) (*NominatimGeocoder, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("nominatim base URL is empty")
	}
	if opts.UserAgent == "" {
		return nil, errors.New("nominatim user agent is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	return &NominatimGeocoder{
		session:     &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		regionHint:  strings.TrimSpace(opts.RegionHint),
		maxAttempts: opts.MaxRetries,
		cache:       opts.Cache,
	}, nil
}

// normalize ensures consistent cache keys by collapsing whitespace.
func (g *NominatimGeocoder) normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a free-text address to coordinates.
func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (_ domain.Destination, err error) {
	defer obs.Time(ctx, "nominatim.Geocode")(&err)

	norm := g.normalize(address)
	if norm == "" {
		return domain.Destination{}, fmt.Errorf("%w: empty address", domain.ErrGeocodeNotFound)
	}

	if g.cache != nil {
		cached, err := g.cache.Get(ctx, norm)
		if err != nil {
			log.Printf("geocode cache read failed: addr=%q err=%v", norm, err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	query := norm
	if g.regionHint != "" {
		query = norm + " " + g.regionHint
	}

	endpoint := g.baseURL + "/search"
	resp, err := httpretry.Do(ctx, g.session, g.maxAttempts, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", g.userAgent)
		req.Header.Set("Accept", "application/json")

		q := req.URL.Query()
		q.Set("q", query)
		q.Set("format", "json")
		q.Set("limit", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return domain.Destination{}, fmt.Errorf("%w: search %q: %v", domain.ErrGeocodeUnavailable, norm, err)
	}
	defer resp.Body.Close()

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return domain.Destination{}, fmt.Errorf("%w: decode search response: %v", domain.ErrGeocodeUnavailable, err)
	}

	if len(results) == 0 {
		return domain.Destination{}, fmt.Errorf("%w: %q", domain.ErrGeocodeNotFound, norm)
	}

	// Nominatim encodes coordinates as strings.
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return domain.Destination{}, fmt.Errorf("%w: malformed coordinates for %q", domain.ErrGeocodeUnavailable, norm)
	}

	dest := domain.Destination{
		Coords:  domain.Coordinates{Lat: lat, Lon: lon},
		Address: results[0].DisplayName,
	}

	if g.cache != nil {
		if err := g.cache.Put(ctx, norm, dest); err != nil {
			log.Printf("geocode cache write failed: addr=%q err=%v", norm, err)
		}
	}

	return dest, nil
}
