package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider matched anything.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" || r.Lat != 0 || r.Lon != 0
}

// Coordinates returns the matched position.
func (r GeocodingResult) Coordinates() Coordinates {
	return Coordinates{Lat: r.Lat, Lng: r.Lon}
}

// Geocoder translates free-text locations into coordinates.
type Geocoder interface {
	// ForwardGeocode returns a zero result, not an error, when nothing matches.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
}
