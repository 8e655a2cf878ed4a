package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean Earth radius (IUGG).
const EarthRadiusMeters = 6371008.8

// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or
// longitudes outside [-180, 180], and for NaN values.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate reports whether the point lies on the globe.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) ||
		p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// Geohash returns the coarse public geohash for the point.
func (p Point) Geohash() string {
	return Encode(p.Lat, p.Lng, DefaultPrecision)
}

// DistanceMeters returns the great-circle distance between a and b using the
// haversine formula.
func DistanceMeters(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, h)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Within reports whether p lies within radiusMeters of center.
func Within(center, p Point, radiusMeters float64) bool {
	return DistanceMeters(center, p) <= radiusMeters
}

// OffsetMeters returns the point reached by moving north and east from p by
// the given distances. It uses a local flat-earth approximation and is only
// meant for small offsets (fixtures, bounding boxes).
func OffsetMeters(p Point, north, east float64) Point {
	dLat := north / EarthRadiusMeters
	dLng := east / (EarthRadiusMeters * math.Cos(toRadians(p.Lat)))
	return Point{
		Lat: p.Lat + dLat*180/math.Pi,
		Lng: p.Lng + dLng*180/math.Pi,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
