// Package conversation resolves the location a query refers to, using the
// caller's prior turns to disambiguate follow-ups.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/prompt"
)

// Resolver extracts a location from a query through a completion provider.
type Resolver struct {
	extractor domain.Completer
	logger    *slog.Logger
}

// NewResolver creates a Resolver. The extractor should be the shared
// throttled provider.
func NewResolver(extractor domain.Completer, logger *slog.Logger) *Resolver {
	return &Resolver{extractor: extractor, logger: logger}
}

// ResolveLocation returns the location the query refers to, or "" when none
// can be determined. An empty result is not an error. Provider failures are
// returned as errors.
func (r *Resolver) ResolveLocation(ctx context.Context, query string, turns []domain.ConversationTurn) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.InputError("query is required")
	}
	if err := domain.ValidateTurns(turns); err != nil {
		return "", err
	}

	p := prompt.Extraction(prompt.ExtractionInput{Query: query, Turns: turns})
	text, err := r.extractor.Complete(ctx, p)
	if err != nil {
		return "", fmt.Errorf("extract location: %w", err)
	}

	loc := domain.ParseLocation(text)
	if loc == "" {
		r.logger.Info("no location extracted",
			"prior_turns", len(turns),
			"last_location", domain.LastResolvedLocation(turns),
		)
	}
	return loc, nil
}
