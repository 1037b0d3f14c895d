package geo

import (
	"errors"
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

var (
	// ErrInvalidLatitude indicates a latitude outside [-90, 90] degrees.
	ErrInvalidLatitude = errors.New("geo: invalid latitude")
	// ErrInvalidLongitude indicates a longitude outside [-180, 180] degrees.
	ErrInvalidLongitude = errors.New("geo: invalid longitude")
	// ErrInvalidRadius indicates a negative search radius.
	ErrInvalidRadius = errors.New("geo: invalid radius")
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewPoint validates coordinate ranges and returns a Point.
func NewPoint(latitude, longitude float64) (Point, error) {
	if latitude < -90 || latitude > 90 || math.IsNaN(latitude) {
		return Point{}, fmt.Errorf("%w: %f", ErrInvalidLatitude, latitude)
	}
	if longitude < -180 || longitude > 180 || math.IsNaN(longitude) {
		return Point{}, fmt.Errorf("%w: %f", ErrInvalidLongitude, longitude)
	}
	return Point{Latitude: latitude, Longitude: longitude}, nil
}

// DistanceMeters computes the haversine great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
