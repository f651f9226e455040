package domain

// A single maneuver along a computed route, as reported by the routing engine.
// Location is the point at which the maneuver takes place; Geometry traces the
// segment from this maneuver to the next one.
type RouteStep struct {
	Type     string
	Modifier string
	Meters   float64
	RoadName string
	Location Coordinates
	Geometry []Coordinates
}

// A computed route between two points.
// A Route is immutable planning data: recomputation always produces a new
// Route rather than mutating an existing one.
type Route struct {
	Steps    []RouteStep
	Meters   float64
	Seconds  float64
	Geometry []Coordinates
}

// RemainingMeters returns the sum of step distances from the step at index
// from through the last step.
func (r *Route) RemainingMeters(from int) float64 {
	var total float64
	for i := from; i >= 0 && i < len(r.Steps); i++ {
		total += r.Steps[i].Meters
	}
	return total
}

// The resolved endpoint of a navigation session.
type Destination struct {
	Coords  Coordinates
	Address string
}
