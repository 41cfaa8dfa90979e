package domain

import (
	"fmt"
	"time"
)

// Default gate policy.
const (
	DefaultStalenessCeiling = 365 * 24 * time.Hour
	DefaultMinPoints        = 1
)

// ValidationVerdict is the outcome of a quality check over one request's series.
type ValidationVerdict struct {
	Valid        bool      `json:"valid"`
	Reason       string    `json:"reason,omitempty"`
	DataAgeHours float64   `json:"dataAgeHours"`
	PointCount   int       `json:"pointCount"`
	Newest       time.Time `json:"newest"`
}

// QualityGate rejects series batches that are empty, too small, or stale.
type QualityGate struct {
	StalenessCeiling time.Duration
	MinPoints        int
}

// NewQualityGate returns a gate with the default policy.
func NewQualityGate() QualityGate {
	return QualityGate{
		StalenessCeiling: DefaultStalenessCeiling,
		MinPoints:        DefaultMinPoints,
	}
}

// Validate inspects every point of every series relative to now.
func (g QualityGate) Validate(series []StationSeries, now time.Time) ValidationVerdict {
	var (
		count  int
		newest time.Time
	)
	for _, s := range series {
		for _, p := range s.Points {
			count++
			if p.Timestamp.After(newest) {
				newest = p.Timestamp
			}
		}
	}

	if count == 0 {
		return ValidationVerdict{Reason: "no data points available"}
	}

	age := now.Sub(newest)
	if age < 0 {
		age = 0
	}
	v := ValidationVerdict{
		DataAgeHours: age.Hours(),
		PointCount:   count,
		Newest:       newest,
	}

	minPoints := max(g.MinPoints, 1)
	if count < minPoints {
		v.Reason = fmt.Sprintf("insufficient data points: %d (minimum %d)", count, minPoints)
		return v
	}

	if g.StalenessCeiling > 0 && age > g.StalenessCeiling {
		v.Reason = fmt.Sprintf("data is too old: newest reading is %.0f days old (limit %.0f days)",
			age.Hours()/24, g.StalenessCeiling.Hours()/24)
		return v
	}

	v.Valid = true
	return v
}
