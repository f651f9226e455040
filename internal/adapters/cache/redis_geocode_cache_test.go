package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"nav-relay-service/internal/domain"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisGeocodeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisGeocodeCache(client, ttl), mr
}

func TestRedisGeocodeCachePutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t, 5*time.Minute)

	got, err := c.Get(ctx, "부산 남구 대연동")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatal("unexpected hit on empty cache")
	}

	dest := domain.Destination{
		Coords:  domain.Coordinates{Lon: 129.091565, Lat: 35.1349964},
		Address: "대연역, 부산광역시",
	}
	if err := c.Put(ctx, "부산 남구 대연동", dest); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err = c.Get(ctx, "부산 남구 대연동")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit after Put")
	}
	if got.Coords != dest.Coords || got.Address != dest.Address {
		t.Errorf("cached destination = %+v, want %+v", got, dest)
	}
}

func TestRedisGeocodeCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t, time.Minute)

	dest := domain.Destination{Coords: domain.Coordinates{Lon: 129.1, Lat: 35.1}}
	if err := c.Put(ctx, "addr", dest); err != nil {
		t.Fatalf("Put: %v", err)
	}

	mr.FastForward(59 * time.Second)
	if got, _ := c.Get(ctx, "addr"); got == nil {
		t.Fatal("entry expired before TTL")
	}

	mr.FastForward(2 * time.Second)
	if got, _ := c.Get(ctx, "addr"); got != nil {
		t.Fatal("entry survived past TTL")
	}
}

func TestRedisGeocodeCacheCorruptValue(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t, time.Minute)

	mr.Set("geocode:addr", "not json")
	if _, err := c.Get(ctx, "addr"); err == nil {
		t.Fatal("expected decode error for corrupt value")
	}
}
