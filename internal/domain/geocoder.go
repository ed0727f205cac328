package domain

import "context"

// Geocoder resolves a coordinate to structured address components.
type Geocoder interface {
	// ReverseGeocode converts a coordinate to place details. An empty
	// Address with a nil error means the provider found nothing there.
	ReverseGeocode(ctx context.Context, lat, lon float64) (Address, error)
}
