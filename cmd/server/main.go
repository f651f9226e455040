package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"nav-relay-service/internal/adapters/cache"
	"nav-relay-service/internal/adapters/geocode"
	"nav-relay-service/internal/adapters/routing"
	"nav-relay-service/internal/api"
	"nav-relay-service/internal/config"
	"nav-relay-service/internal/guidance"
	"nav-relay-service/internal/nav"
	"nav-relay-service/internal/platform/db"
	"nav-relay-service/internal/ports"
)

// Resolved addresses are stable; five minutes matches the route cache
// horizon and keeps repeated voice queries for the same place cheap.
const geocodeTTL = 5 * time.Minute

// main is the application composition root.
// It wires concrete adapters (Nominatim, OSRM, the selected geocode cache
// backend) behind ports and starts the relay server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	geoCache, closeCache, err := buildGeocodeCache(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeCache()

	geocoder, err := geocode.NewNominatimGeocoder(geocode.Options{
		BaseURL:    cfg.Geocoding.NominatimURL,
		UserAgent:  cfg.Geocoding.UserAgent,
		RegionHint: cfg.Geocoding.RegionHint,
		Timeout:    cfg.Geocoding.Timeout,
		MaxRetries: cfg.Geocoding.MaxRetries,
		Cache:      geoCache,
	})
	if err != nil {
		log.Fatal(err)
	}

	routeClient, err := routing.NewOSRMClient(cfg.Routing.OSRMURL, cfg.Routing.APITimeout, cfg.Routing.MaxRetries)
	if err != nil {
		log.Fatal(err)
	}

	engine := nav.NewEngine(
		nav.Config{
			RerouteThreshold: cfg.Routing.RerouteThreshold,
			ArrivalThreshold: cfg.Routing.ArrivalThreshold,
			RequestInterval:  cfg.Routing.RequestInterval,
			RouteTimeout:     cfg.Routing.APITimeout,
		},
		geocoder,
		routeClient,
		cache.NewRouteCache(cfg.Routing.CacheSize, cfg.Routing.CacheDuration),
		guidance.NewFormatter(nil),
	)

	router := api.NewRouter(engine, cfg.Server.WSPath)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server listening addr=%s ws_path=%s", addr, cfg.Server.WSPath)

	// No ReadTimeout/WriteTimeout: those would cut long-lived websocket
	// sessions. Per-message deadlines live in the websocket handler.
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// buildGeocodeCache selects the geocode cache backend from config: the
// in-process LRU by default, or Postgres/Redis for caches shared across
// restarts and instances.
func buildGeocodeCache(cfg *config.AppConfig) (ports.GeocodeCache, func(), error) {
	switch cfg.Geocoding.CacheBackend {
	case "postgres":
		databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if databaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres geocode cache")
		}

		conn, err := db.Open(databaseURL)
		if err != nil {
			return nil, nil, err
		}

		c := cache.NewSQLGeocodeCache(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.InitSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}

		log.Printf("geocode cache backend=postgres")
		return c, func() { conn.Close() }, nil

	case "redis":
		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}

		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("verify redis connection to %q: %w", redisAddr, err)
		}

		log.Printf("geocode cache backend=redis addr=%s", redisAddr)
		return cache.NewRedisGeocodeCache(client, geocodeTTL), func() { client.Close() }, nil

	default:
		log.Printf("geocode cache backend=memory size=%d", cfg.Geocoding.CacheSize)
		return cache.NewMemoryGeocodeCache(cfg.Geocoding.CacheSize, geocodeTTL), func() {}, nil
	}
}
