package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Postcode         string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider returned a usable match.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" && (r.Lat != 0 || r.Lon != 0)
}

// Geocoder resolves free-text addresses the city datasets do not cover.
type Geocoder interface {
	// ForwardGeocode converts an address query, biased to a region, to coordinates.
	ForwardGeocode(ctx context.Context, query, region string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
