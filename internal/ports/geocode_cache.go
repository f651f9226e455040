package ports

import (
	"context"

	"nav-relay-service/internal/domain"
)

// Port: a boundary for memoizing resolved addresses. Address keys are
// expected to be consistent (e.g., normalized) by the caller.
type GeocodeCache interface {
	// Get returns the cached resolution for address, or nil on a miss.
	Get(ctx context.Context, address string) (*domain.Destination, error)
	// Put stores a resolution. Failures are non-fatal to the caller.
	Put(ctx context.Context, address string, d domain.Destination) error
}
