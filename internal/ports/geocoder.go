package ports

import (
	"context"

	"nav-relay-service/internal/domain"
)

// Contract for resolving a free-text address into geographic coordinates.
type Geocoder interface {
	// Resolve an address. Returns domain.ErrGeocodeNotFound when the service
	// has no match and domain.ErrGeocodeUnavailable on service failure.
	Geocode(ctx context.Context, address string) (domain.Destination, error)
}
