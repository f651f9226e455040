package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nav-relay-service/internal/domain"
	"nav-relay-service/internal/platform/httpretry"
	"nav-relay-service/internal/platform/obs"
)

// OSRMClient implements RouteProvider against an OSRM route service
// (/route/v1/driving). It requests full GeoJSON geometry with per-step
// maneuvers and is safe for concurrent use.
type OSRMClient struct {
	session     *http.Client
	baseURL     string
	profile     string
	maxAttempts int
}

func NewOSRMClient(baseURL string, timeout time.Duration, maxRetries int) (*OSRMClient, error) {
	if baseURL == "" {
		return nil, errors.New("OSRM base URL is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &OSRMClient{
		session:     &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		profile:     "driving",
		maxAttempts: maxRetries,
	}, nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64      `json:"distance"`
		Duration float64      `json:"duration"`
		Geometry osrmGeometry `json:"geometry"`
		Legs     []struct {
			Steps []struct {
				Distance float64      `json:"distance"`
				Name     string       `json:"name"`
				Geometry osrmGeometry `json:"geometry"`
				Maneuver struct {
					Type     string    `json:"type"`
					Modifier string    `json:"modifier"`
					Location []float64 `json:"location"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type osrmGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

// GetRoute fetches a driving route from origin to destination.
func (c *OSRMClient) GetRoute(ctx context.Context, origin, destination domain.Coordinates) (_ *domain.Route, err error) {
	defer obs.Time(ctx, "osrm.GetRoute")(&err)

	// OSRM expects lon,lat pairs.
	endpoint := fmt.Sprintf(
		"%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson&steps=true",
		c.baseURL, c.profile,
		origin.Lon, origin.Lat,
		destination.Lon, destination.Lat,
	)

	resp, err := httpretry.Do(ctx, c.session, c.maxAttempts, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRouteUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode route response: %v", domain.ErrRouteUnavailable, err)
	}

	if decoded.Code != "Ok" || len(decoded.Routes) == 0 {
		return nil, fmt.Errorf("%w: no route found (code=%q)", domain.ErrRouteUnavailable, decoded.Code)
	}

	raw := decoded.Routes[0]
	route := &domain.Route{
		Meters:   raw.Distance,
		Seconds:  raw.Duration,
		Geometry: toCoordinates(raw.Geometry.Coordinates),
	}

	for _, leg := range raw.Legs {
		for _, s := range leg.Steps {
			step := domain.RouteStep{
				Type:     s.Maneuver.Type,
				Modifier: s.Maneuver.Modifier,
				Meters:   s.Distance,
				RoadName: s.Name,
				Geometry: toCoordinates(s.Geometry.Coordinates),
			}
			if len(s.Maneuver.Location) == 2 {
				step.Location = domain.Coordinates{Lon: s.Maneuver.Location[0], Lat: s.Maneuver.Location[1]}
			} else if len(step.Geometry) > 0 {
				step.Location = step.Geometry[0]
			}
			route.Steps = append(route.Steps, step)
		}
	}

	if len(route.Steps) == 0 {
		return nil, fmt.Errorf("%w: route has no steps", domain.ErrRouteUnavailable)
	}

	return route, nil
}

func toCoordinates(pairs [][]float64) []domain.Coordinates {
	out := make([]domain.Coordinates, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			continue
		}
		out = append(out, domain.Coordinates{Lon: p[0], Lat: p[1]})
	}
	return out
}
