package domain

// DestinationRequest carries an unresolved destination: either a free-text
// address that still needs geocoding, or coordinates supplied directly.
// The two constructors are the only way to build one; callers inspect the
// variant with Address / Coords.
type DestinationRequest struct {
	address string
	coords  *Coordinates
}

// AddressDestination builds a request from a free-text address.
func AddressDestination(address string) DestinationRequest {
	return DestinationRequest{address: address}
}

// CoordinateDestination builds a request from explicit coordinates.
func CoordinateDestination(c Coordinates) DestinationRequest {
	return DestinationRequest{coords: &c}
}

// Address returns the free-text address, or "" for the coordinate variant.
func (r DestinationRequest) Address() string { return r.address }

// Coords returns the coordinates and whether this is the coordinate variant.
func (r DestinationRequest) Coords() (Coordinates, bool) {
	if r.coords == nil {
		return Coordinates{}, false
	}
	return *r.coords, true
}
