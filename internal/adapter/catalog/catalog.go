// Package catalog holds the read-only station catalog for the lifetime of the
// process.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/couchcryptid/station-insight-service/internal/domain"
)

// ErrEmpty is returned by CheckReadiness when no stations are loaded.
var ErrEmpty = errors.New("station catalog is empty")

// Catalog is an immutable in-memory snapshot of the station catalog.
type Catalog struct {
	stations  []domain.Station
	timezones []string
}

// New builds a catalog from stations. The slice is copied.
func New(stations []domain.Station) *Catalog {
	owned := make([]domain.Station, len(stations))
	copy(owned, stations)
	for i := range owned {
		owned[i].DistanceKm = 0
	}
	return &Catalog{stations: owned, timezones: distinctTimezones(owned)}
}

// LoadFile reads a JSON array of stations from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station catalog: %w", err)
	}
	var stations []domain.Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("decode station catalog %s: %w", path, err)
	}
	return New(stations), nil
}

// Snapshot copies the current catalog of src.
func Snapshot(ctx context.Context, src domain.StationCatalog) (*Catalog, error) {
	stations, err := src.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	return New(stations), nil
}

// ListStations returns a copy of every station in catalog order.
func (c *Catalog) ListStations(context.Context) ([]domain.Station, error) {
	return slices.Clone(c.stations), nil
}

// Len returns the number of stations.
func (c *Catalog) Len() int {
	return len(c.stations)
}

// Timezones returns the sorted distinct station timezones. Stations without a
// timezone are skipped.
func (c *Catalog) Timezones() []string {
	return slices.Clone(c.timezones)
}

// CheckReadiness reports whether any stations are loaded.
func (c *Catalog) CheckReadiness(context.Context) error {
	if len(c.stations) == 0 {
		return ErrEmpty
	}
	return nil
}

func distinctTimezones(stations []domain.Station) []string {
	seen := make(map[string]struct{})
	for _, s := range stations {
		if s.Timezone != "" {
			seen[s.Timezone] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tz := range seen {
		out = append(out, tz)
	}
	sort.Strings(out)
	return out
}
