package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nav-relay-service/internal/domain"
)

// RedisGeocodeCache stores resolved addresses in Redis with server-side TTL
// expiry, letting several relay instances share one geocode cache.
type RedisGeocodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGeocodeCache(client *redis.Client, ttl time.Duration) *RedisGeocodeCache {
	return &RedisGeocodeCache{client: client, ttl: ttl}
}

type redisGeocodeValue struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	Address string  `json:"address"`
}

func geocodeKey(address string) string {
	return "geocode:" + address
}

// Get fetches the cached resolution for the given address.
func (c *RedisGeocodeCache) Get(ctx context.Context, address string) (*domain.Destination, error) {
	raw, err := c.client.Get(ctx, geocodeKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geocode cache addr=%q: %w", address, err)
	}

	var v redisGeocodeValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode geocode cache addr=%q: %w", address, err)
	}

	return &domain.Destination{
		Coords:  domain.Coordinates{Lon: v.Lon, Lat: v.Lat},
		Address: v.Address,
	}, nil
}

// Put stores a resolution with the configured TTL.
func (c *RedisGeocodeCache) Put(ctx context.Context, address string, d domain.Destination) error {
	payload, err := json.Marshal(redisGeocodeValue{
		Lon:     d.Coords.Lon,
		Lat:     d.Coords.Lat,
		Address: d.Address,
	})
	if err != nil {
		return fmt.Errorf("encode geocode cache addr=%q: %w", address, err)
	}

	if err := c.client.Set(ctx, geocodeKey(address), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("insert geocode cache addr=%q: %w", address, err)
	}
	return nil
}
