// Package domain models weather stations, their time-series readings, and the
// pure decision logic that sits between a free-text location query and an
// analysis of nearby station data.
//
// # Stations
//
// A station is a fixed sensing location from the upstream catalog. The catalog
// is read-only reference data for the lifetime of the process; a station's
// DistanceKm is only populated on copies returned by [FindNearest].
//
// # Readings
//
// Each [WeatherPoint] carries two orthogonal wind components (WindX, WindY).
// Wind speed is derived on consumption as sqrt(x²+y²) and never stored
// upstream. Upstream series are not guaranteed to be chronological, so every
// consumer sorts first (see [SortSeries]).
//
// # Distances
//
// Great-circle distance uses the haversine formula on a sphere with the mean
// Earth radius (6371 km). Results are deterministic: candidates at equal
// distance keep their catalog order.
//
// # Data quality
//
// [QualityGate] rejects a batch whose newest point is older than the staleness
// ceiling or whose total point count is below the configured minimum. The
// defaults (1 year, 1 point) are the most lenient variants seen in practice;
// both are configuration.
//
// # Provider output
//
// The completion provider returns loosely structured text. [ParseLocation]
// and [ParseSelection] extract the first JSON object or array from that text
// and never fail: malformed output yields an empty value, and callers apply
// their documented fallbacks.
package domain
