// Package geo decides whether a bip was posted "around" a place, either by
// sharing its name or by falling inside a small lat/lon rectangle.
//
// The rectangle is an approximation: it over-matches along the diagonals and
// its longitude half-width diverges near the poles.
package geo

import "math"

const (
	// Sentinel is the reserved location meaning "match by coordinates only".
	Sentinel = "geoloc"

	// EarthRadius in meters.
	EarthRadius = 6371e3

	// DefaultProximity is the half side of the matching box, in meters.
	DefaultProximity = 50.0
)

// Point is a position in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Query is what a caller is looking around: a place name, optionally a position.
type Query struct {
	Location string
	Point    *Point
}

// Candidate is a stored bip reduced to what matching needs.
type Candidate struct {
	Location string
	Point    *Point
}

// HalfDimensions returns the half height and half width, in degrees, of the
// box of the given radius (meters) centered on latitude lat.
func HalfDimensions(lat, distance float64) (dLat, dLon float64) {
	toRadians := math.Pi / 180

	dLat = distance / EarthRadius * (180 / math.Pi)
	dLon = distance / (EarthRadius * math.Cos(lat*toRadians)) * (180 / math.Pi)
	return dLat, dLon
}

// Box is an axis-aligned rectangle in lat/lon space.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox builds the box of the given radius around center.
func BoundingBox(center Point, distance float64) Box {
	dLat, dLon := HalfDimensions(center.Lat, distance)
	return Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
}

// Contains reports whether p lies inside b, bounds included.
func (b Box) Contains(p Point) bool {
	return b.MinLat <= p.Lat && p.Lat <= b.MaxLat &&
		b.MinLon <= p.Lon && p.Lon <= b.MaxLon
}

// NameMatch is true when the candidate was posted at the queried place name.
// It never fires for the sentinel.
func NameMatch(q Query, c Candidate) bool {
	if q.Location == Sentinel {
		return false
	}
	return c.Location == q.Location
}

// ProximityMatch is true when both sides carry coordinates and the candidate
// falls inside the box of radius distance around the query point.
func ProximityMatch(q Query, c Candidate, distance float64) bool {
	if q.Point == nil || c.Point == nil {
		return false
	}
	return BoundingBox(*q.Point, distance).Contains(*c.Point)
}

// Matcher combines both predicates.
type Matcher struct {
	// Proximity is the box radius in meters.
	Proximity float64
}

// NewMatcher returns a Matcher using distance, or DefaultProximity when
// distance is not positive.
func NewMatcher(distance float64) Matcher {
	if distance <= 0 {
		distance = DefaultProximity
	}
	return Matcher{Proximity: distance}
}

// Matches reports NameMatch OR ProximityMatch.
func (m Matcher) Matches(q Query, c Candidate) bool {
	return NameMatch(q, c) || ProximityMatch(q, c, m.Proximity)
}
