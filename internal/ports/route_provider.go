package ports

import (
	"context"

	"nav-relay-service/internal/domain"
)

// Contract for fetching a driving route between two points.
type RouteProvider interface {
	// Compute a route from origin to destination. Returns
	// domain.ErrRouteUnavailable when the service fails or finds no route;
	// never substitutes default data.
	GetRoute(ctx context.Context, origin, destination domain.Coordinates) (*domain.Route, error)
}
