package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host   string
	Port   int
	WSPath string
}

// Thresholds and timing knobs consumed by the navigation engine.
type RoutingConfig struct {
	OSRMURL          string
	RerouteThreshold float64 // meters off-route before recomputing
	ArrivalThreshold float64 // meters to destination counted as arrived
	CacheDuration    time.Duration
	CacheSize        int
	RequestInterval  time.Duration // engine-global route request budget
	APITimeout       time.Duration
	MaxRetries       int
}

type GeocodingConfig struct {
	NominatimURL string
	UserAgent    string
	RegionHint   string
	Timeout      time.Duration
	MaxRetries   int
	CacheSize    int
	CacheBackend string // memory | postgres | redis
}

// AppConfig holds entire service configuration.
type AppConfig struct {
	Server    ServerConfig
	Routing   RoutingConfig
	Geocoding GeocodingConfig
}

// Load reads config from the given YAML file, overlaying environment
// variables (NAV_ROUTING_OSRM_URL style). A missing file is not an error:
// defaults apply, matching the original deployment behavior.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("nav")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
	}

	cfg := &AppConfig{
		Server: ServerConfig{
			Host:   v.GetString("server.host"),
			Port:   v.GetInt("server.port"),
			WSPath: v.GetString("server.ws_path"),
		},
		Routing: RoutingConfig{
			OSRMURL:          v.GetString("routing.osrm_url"),
			RerouteThreshold: v.GetFloat64("routing.reroute_threshold"),
			ArrivalThreshold: v.GetFloat64("routing.arrival_threshold"),
			CacheDuration:    seconds(v.GetFloat64("routing.cache_duration")),
			CacheSize:        v.GetInt("routing.cache_size"),
			RequestInterval:  seconds(v.GetFloat64("routing.request_interval")),
			APITimeout:       seconds(v.GetFloat64("routing.api_timeout")),
			MaxRetries:       v.GetInt("routing.max_retries"),
		},
		Geocoding: GeocodingConfig{
			NominatimURL: v.GetString("geocoding.nominatim_url"),
			UserAgent:    v.GetString("geocoding.user_agent"),
			RegionHint:   v.GetString("geocoding.region_hint"),
			Timeout:      seconds(v.GetFloat64("geocoding.timeout")),
			MaxRetries:   v.GetInt("geocoding.max_retries"),
			CacheSize:    v.GetInt("geocoding.cache_size"),
			CacheBackend: v.GetString("geocoding.cache_backend"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.ws_path", "/ws")

	v.SetDefault("routing.osrm_url", "http://localhost:5000")
	v.SetDefault("routing.reroute_threshold", 10.0)
	v.SetDefault("routing.arrival_threshold", 20.0)
	v.SetDefault("routing.cache_duration", 300.0)
	v.SetDefault("routing.cache_size", 100)
	v.SetDefault("routing.request_interval", 1.0)
	v.SetDefault("routing.api_timeout", 10.0)
	v.SetDefault("routing.max_retries", 3)

	v.SetDefault("geocoding.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.user_agent", "nav-relay-service/1.0")
	v.SetDefault("geocoding.region_hint", "")
	v.SetDefault("geocoding.timeout", 10.0)
	v.SetDefault("geocoding.max_retries", 3)
	v.SetDefault("geocoding.cache_size", 100)
	v.SetDefault("geocoding.cache_backend", "memory")
}

func (c *AppConfig) validate() error {
	if c.Routing.RerouteThreshold <= 0 {
		return fmt.Errorf("routing.reroute_threshold must be positive, got %v", c.Routing.RerouteThreshold)
	}
	if c.Routing.ArrivalThreshold <= 0 {
		return fmt.Errorf("routing.arrival_threshold must be positive, got %v", c.Routing.ArrivalThreshold)
	}
	if c.Routing.RequestInterval <= 0 {
		return fmt.Errorf("routing.request_interval must be positive, got %v", c.Routing.RequestInterval)
	}
	if c.Routing.CacheSize < 1 {
		return fmt.Errorf("routing.cache_size must be at least 1, got %d", c.Routing.CacheSize)
	}
	switch c.Geocoding.CacheBackend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("geocoding.cache_backend must be memory, postgres or redis, got %q", c.Geocoding.CacheBackend)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
