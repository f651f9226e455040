package domain

import "errors"

// Failure kinds surfaced by the navigation core. Callers match them with
// errors.Is; adapters wrap them with additional context.
var (
	// Latitude or longitude outside the valid range. No state changes.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// Address resolution succeeded but produced no result.
	ErrGeocodeNotFound = errors.New("geocode: address not found")

	// The geocoding service failed after retries or rejected the request.
	ErrGeocodeUnavailable = errors.New("geocode: service unavailable")

	// The routing service failed after retries or returned no route.
	ErrRouteUnavailable = errors.New("route: service unavailable")

	// Event referenced an unknown or disconnected session.
	ErrSessionNotFound = errors.New("session not found")
)
