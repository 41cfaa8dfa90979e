package domain

import "time"

// Stream event types, emitted in this order.
const (
	EventCharts   = "charts"
	EventAnalysis = "analysis"
	EventSummary  = "summary"
)

// Event is one frame of a streaming analysis.
type Event struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Charts  *ChartsData `json:"charts,omitempty"`
}

// ChartsData is the chart-ready dataset sent before analysis begins.
type ChartsData struct {
	DataAgeHours float64       `json:"dataAgeHours"`
	PointCount   int           `json:"pointCount"`
	Series       []ChartSeries `json:"series"`
}

// ChartSeries is one station's readings in chronological order.
type ChartSeries struct {
	StationID   string       `json:"stationId"`
	StationName string       `json:"stationName"`
	Points      []ChartPoint `json:"points"`
}

// ChartPoint is a WeatherPoint with derived wind speed.
type ChartPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   float64   `json:"temperature"`
	WindSpeed     float64   `json:"windSpeed"`
	Dewpoint      float64   `json:"dewpoint"`
	Pressure      float64   `json:"pressure"`
	Precipitation *float64  `json:"precipitation,omitempty"`
}

// BuildCharts converts sorted series into the charts payload.
func BuildCharts(series []StationSeries, verdict ValidationVerdict) *ChartsData {
	out := &ChartsData{
		DataAgeHours: verdict.DataAgeHours,
		PointCount:   verdict.PointCount,
		Series:       make([]ChartSeries, 0, len(series)),
	}
	for _, s := range series {
		cs := ChartSeries{
			StationID:   s.StationID,
			StationName: s.StationName,
			Points:      make([]ChartPoint, 0, len(s.Points)),
		}
		for _, p := range s.Points {
			cs.Points = append(cs.Points, ChartPoint{
				Timestamp:     p.Timestamp,
				Temperature:   p.Temperature,
				WindSpeed:     p.WindSpeed(),
				Dewpoint:      p.Dewpoint,
				Pressure:      p.Pressure,
				Precipitation: p.Precipitation,
			})
		}
		out.Series = append(out.Series, cs)
	}
	return out
}

// AnalysisRecord describes one completed streaming analysis.
type AnalysisRecord struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	StationIDs  []string          `json:"stationIds"`
	Verdict     ValidationVerdict `json:"verdict"`
	Summary     string            `json:"summary"`
	CompletedAt time.Time         `json:"completedAt"`
}
