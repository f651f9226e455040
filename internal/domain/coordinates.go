package domain

import "math"

// Mean Earth radius in meters, used for great-circle distances.
const EarthRadiusMeters = 6371000

// Immutable geographic coordinates (longitude, latitude).
type Coordinates struct {
	Lon float64
	Lat float64
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lon, c.Lat} }

// Valid reports whether the coordinates fall inside the WGS84 value ranges.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// DistanceToSegment returns the distance in meters from p to the segment [a, b].
// The projection ratio is computed on raw degree values, which is adequate at
// city scale; the distance to the resulting closest point is great-circle.
func DistanceToSegment(p, a, b Coordinates) float64 {
	if a == b {
		return Haversine(p, a)
	}

	segLon := b.Lon - a.Lon
	segLat := b.Lat - a.Lat

	dot := segLon*(p.Lon-a.Lon) + segLat*(p.Lat-a.Lat)
	lenSq := segLon*segLon + segLat*segLat

	t := dot / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Coordinates{
		Lon: a.Lon + t*segLon,
		Lat: a.Lat + t*segLat,
	}

	return Haversine(p, closest)
}

// DistanceToPath returns the minimum distance in meters from p to any segment
// of the given path. Returns +Inf for paths with fewer than two points.
func DistanceToPath(p Coordinates, path []Coordinates) float64 {
	min := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		d := DistanceToSegment(p, path[i], path[i+1])
		if d < min {
			min = d
		}
	}
	return min
}
