// Package resolve turns a free-text query into a bounded set of nearby
// stations: location extraction, geocoding, nearest-station search, and a
// provider-driven relevance filter.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/observability"
	"github.com/couchcryptid/station-insight-service/internal/prompt"
)

// Failure reasons surfaced to callers.
const (
	ReasonQueryRequired   = "query is required"
	ReasonNoLocation      = "could not extract location"
	ReasonNotGeocoded     = "could not geocode location"
	ReasonNoStationsFound = "no stations found near location"
)

// Default policy values.
const (
	DefaultRadiusKm         = 200.0
	DefaultMaxStations      = 20
	DefaultFallbackStations = 10
)

// LocationResolver extracts a location from a query and prior turns.
type LocationResolver interface {
	ResolveLocation(ctx context.Context, query string, turns []domain.ConversationTurn) (string, error)
}

// Policy bounds the station search.
type Policy struct {
	RadiusKm         float64
	MaxStations      int
	FallbackStations int
}

// DefaultPolicy returns the default search policy.
func DefaultPolicy() Policy {
	return Policy{
		RadiusKm:         DefaultRadiusKm,
		MaxStations:      DefaultMaxStations,
		FallbackStations: DefaultFallbackStations,
	}
}

// Request is one resolution request.
type Request struct {
	Query      string
	PriorTurns []domain.ConversationTurn
}

// Resolution is a successful resolution result.
type Resolution struct {
	Query                string             `json:"query"`
	ResolvedLocation     string             `json:"resolvedLocation"`
	PlaceName            string             `json:"placeName,omitempty"`
	Coordinates          domain.Coordinates `json:"coordinates"`
	CandidatesConsidered int                `json:"candidatesConsidered"`
	SelectedStations     []domain.Station   `json:"selectedStations"`
}

// Service runs the resolution stages in order. Any stage that yields nothing
// ends the request with a stage-specific reason.
type Service struct {
	locations LocationResolver
	geocoder  domain.Geocoder
	catalog   domain.StationCatalog
	ranker    domain.Completer
	policy    Policy
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService creates a Service. ranker should be the shared throttled provider.
func NewService(
	locations LocationResolver,
	geocoder domain.Geocoder,
	catalog domain.StationCatalog,
	ranker domain.Completer,
	policy Policy,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		locations: locations,
		geocoder:  geocoder,
		catalog:   catalog,
		ranker:    ranker,
		policy:    policy,
		logger:    logger,
		metrics:   metrics,
	}
}

// Resolve runs ExtractLocation, Geocode, FindStations and FilterRelevant.
func (s *Service) Resolve(ctx context.Context, req Request) (Resolution, error) {
	res, err := s.resolve(ctx, req)
	s.metrics.ResolveRequests.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (s *Service) resolve(ctx context.Context, req Request) (Resolution, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Resolution{}, domain.InputError(ReasonQueryRequired)
	}

	location, err := s.locations.ResolveLocation(ctx, query, req.PriorTurns)
	if err != nil {
		return Resolution{}, err
	}
	if location == "" {
		return Resolution{}, domain.ResolutionError(ReasonNoLocation)
	}

	geo, err := s.geocoder.ForwardGeocode(ctx, location)
	if err != nil {
		return Resolution{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	if !geo.Found() || !geo.Coordinates().Valid() {
		s.logger.Info("location not geocoded", "location", location)
		return Resolution{}, domain.ResolutionError(ReasonNotGeocoded)
	}
	origin := geo.Coordinates()

	stations, err := s.catalog.ListStations(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list stations: %w", err)
	}
	candidates := domain.FindNearest(origin, stations, s.policy.RadiusKm, s.policy.MaxStations)
	if len(candidates) == 0 {
		s.logger.Info("no stations in range",
			"location", location,
			"coordinates", origin.String(),
			"radius_km", s.policy.RadiusKm,
		)
		return Resolution{}, domain.ResolutionError(ReasonNoStationsFound)
	}

	selected := s.filterRelevant(ctx, query, location, candidates)

	s.logger.Info("query resolved",
		"location", location,
		"place", geo.PlaceName,
		"candidates", len(candidates),
		"selected", len(selected),
	)
	return Resolution{
		Query:                query,
		ResolvedLocation:     location,
		PlaceName:            geo.PlaceName,
		Coordinates:          origin,
		CandidatesConsidered: len(candidates),
		SelectedStations:     selected,
	}, nil
}

// filterRelevant asks the ranker for a selection. Unparseable output, an
// empty selection, or a provider error fall back to the nearest candidates.
// The result is always in ascending distance order.
func (s *Service) filterRelevant(ctx context.Context, query, location string, candidates []domain.Station) []domain.Station {
	p := prompt.Relevance(prompt.RelevanceInput{Query: query, Location: location, Candidates: candidates})
	text, err := s.ranker.Complete(ctx, p)
	if err != nil {
		return s.fallback(candidates, "provider error", "error", err)
	}

	indices, ok := domain.ParseSelection(text, len(candidates))
	if !ok {
		return s.fallback(candidates, "unparseable selection", "response", truncate(text, 200))
	}
	if len(indices) == 0 {
		return s.fallback(candidates, "empty selection", "response", truncate(text, 200))
	}

	slices.Sort(indices)
	selected := make([]domain.Station, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, candidates[i])
	}
	return selected
}

func (s *Service) fallback(candidates []domain.Station, reason string, attrs ...any) []domain.Station {
	n := min(s.policy.FallbackStations, len(candidates))
	s.metrics.RelevanceFallbacks.Inc()
	s.logger.Warn("relevance filter fallback",
		append([]any{"reason", reason, "kept", n}, attrs...)...,
	)
	return slices.Clone(candidates[:n])
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
