package domain

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres between two points.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h just outside [0, 1] for near-antipodal points.
	h = min(max(h, 0), 1)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FindNearest returns up to maxCount candidates within maxDistanceKm of origin,
// nearest first, each annotated with DistanceKm. Candidates at equal distance
// keep their input order. The input slice is not modified.
func FindNearest(origin Coordinates, candidates []Station, maxDistanceKm float64, maxCount int) []Station {
	if maxCount <= 0 || len(candidates) == 0 {
		return []Station{}
	}

	within := make([]Station, 0, len(candidates))
	for _, s := range candidates {
		d := Haversine(origin, s.Coordinates())
		if d > maxDistanceKm {
			continue
		}
		s.DistanceKm = d
		within = append(within, s)
	}

	sort.SliceStable(within, func(i, j int) bool {
		return within[i].DistanceKm < within[j].DistanceKm
	})

	if len(within) > maxCount {
		within = within[:maxCount]
	}
	return within
}
