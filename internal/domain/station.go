package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Station is a fixed sensing location from the upstream catalog.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	Network   string  `json:"network,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`

	// DistanceKm is set on copies returned by FindNearest.
	DistanceKm float64 `json:"distanceKm,omitempty"`
}

// Coordinates returns the station position.
func (s Station) Coordinates() Coordinates {
	return Coordinates{Lat: s.Latitude, Lng: s.Longitude}
}

// Coordinates is a WGS-84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are within their degree ranges.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lng)
}

// WeatherPoint is a single station reading.
type WeatherPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   float64   `json:"temperature"`
	WindX         float64   `json:"windX"`
	WindY         float64   `json:"windY"`
	Dewpoint      float64   `json:"dewpoint"`
	Pressure      float64   `json:"pressure"`
	Precipitation *float64  `json:"precipitation,omitempty"`
}

// WindSpeed derives the horizontal wind speed from the two components.
func (p WeatherPoint) WindSpeed() float64 {
	return math.Hypot(p.WindX, p.WindY)
}

// StationSeries is the reading history of one station, owned by a single
// analysis request.
type StationSeries struct {
	StationID   string         `json:"stationId"`
	StationName string         `json:"stationName"`
	Points      []WeatherPoint `json:"points"`
}

// SortSeries orders the points chronologically in place.
func SortSeries(s *StationSeries) {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Timestamp.Before(s.Points[j].Timestamp)
	})
}
