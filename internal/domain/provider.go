package domain

import (
	"context"
	"iter"
)

// Completer is an external text-completion provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteStream yields text chunks as they arrive. A non-nil error ends
	// the sequence.
	CompleteStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// StationCatalog lists every known station.
type StationCatalog interface {
	ListStations(ctx context.Context) ([]Station, error)
}

// HistoryProvider fetches the recent readings of one station.
type HistoryProvider interface {
	History(ctx context.Context, stationID string) ([]WeatherPoint, error)
}
