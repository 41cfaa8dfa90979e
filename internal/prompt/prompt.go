// Package prompt builds the provider prompts used by resolution and analysis.
// Each builder takes a typed input and returns an opaque prompt string, so
// orchestration code never formats provider text itself.
package prompt

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/station-insight-service/internal/domain"
)

// ExtractionInput is the input to Extraction.
type ExtractionInput struct {
	Query string
	Turns []domain.ConversationTurn
}

// Extraction asks the provider for the location a query refers to, as a
// JSON object with a single "location" field.
func Extraction(in ExtractionInput) string {
	var b strings.Builder
	b.WriteString("Extract the geographic location the user is asking about.\n")

	if len(in.Turns) > 0 {
		b.WriteString("\nConversation so far (oldest first):\n")
		for i, t := range in.Turns {
			loc := t.Location()
			if loc == "" {
				loc = "(unresolved)"
			}
			fmt.Fprintf(&b, "%d. %q -> %s\n", i+1, t.Query, loc)
		}
		b.WriteString("\nIf the current query is a follow-up that does not name a place " +
			"(for example \"what about tomorrow?\"), reuse the most recent resolved location above. " +
			"Otherwise extract the new location from the current query.\n")
	}

	fmt.Fprintf(&b, "\nCurrent query: %q\n", in.Query)
	b.WriteString("\nRespond with JSON only, in the form {\"location\": \"<place>\"}. " +
		"Use {\"location\": \"\"} if no location can be determined.\n")
	return b.String()
}

// RelevanceInput is the input to Relevance. Candidates are expected in
// ascending distance order with DistanceKm populated.
type RelevanceInput struct {
	Query      string
	Location   string
	Candidates []domain.Station
}

// Relevance asks the provider to pick the candidates relevant to the query,
// answering with a JSON array of 1-based indices into the numbered list.
func Relevance(in RelevanceInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A user asked: %q\n", in.Query)
	if in.Location != "" {
		fmt.Fprintf(&b, "The query was resolved to: %s\n", in.Location)
	}
	b.WriteString("\nNearby weather stations, closest first:\n")
	for i, s := range in.Candidates {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, s.Name, s.ID)
		if s.Network != "" {
			fmt.Fprintf(&b, " network=%s", s.Network)
		}
		fmt.Fprintf(&b, " elevation=%.0fm distance=%.1fkm\n", s.Elevation, s.DistanceKm)
	}
	b.WriteString("\nSelect the stations whose readings best answer the query. " +
		"Respond with a JSON array of the selected station numbers only, for example [1, 3, 4].\n")
	return b.String()
}

// AnalysisInput carries the validated data an analysis prompt describes.
// Series must be sorted chronologically.
type AnalysisInput struct {
	Query   string
	Series  []domain.StationSeries
	Verdict domain.ValidationVerdict
}

// QuickAnalysis asks for a short streaming commentary on the data.
func QuickAnalysis(in AnalysisInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A user asked: %q\n\n", in.Query)
	writeFreshness(&b, in.Verdict)
	writeDigest(&b, in.Series)
	b.WriteString("\nGive a brief first impression of current conditions in two or three sentences. " +
		"Mention notable differences between stations if there are any.\n")
	return b.String()
}

// SummaryInput is the input to Summary.
type SummaryInput struct {
	AnalysisInput

	// QuickAnalysis is the text already streamed to the user.
	QuickAnalysis string

	// PlausibilityNote is the advisory plausibility finding, if any.
	PlausibilityNote string
}

// Summary asks for the final, detailed synthesis.
func Summary(in SummaryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A user asked: %q\n\n", in.Query)
	writeFreshness(&b, in.Verdict)
	writeDigest(&b, in.Series)
	if in.QuickAnalysis != "" {
		fmt.Fprintf(&b, "\nFirst impression already given to the user:\n%s\n", in.QuickAnalysis)
	}
	if in.PlausibilityNote != "" {
		fmt.Fprintf(&b, "\nData review note: %s\n", in.PlausibilityNote)
	}
	b.WriteString("\nWrite a complete summary answering the query. Cover temperature, wind, " +
		"humidity via dewpoint, and pressure trends. Do not repeat the first impression verbatim. " +
		"State clearly if the data is not recent.\n")
	return b.String()
}

// Plausibility asks the provider whether the readings look physically
// plausible. The answer is advisory.
func Plausibility(in AnalysisInput) string {
	var b strings.Builder
	writeFreshness(&b, in.Verdict)
	writeDigest(&b, in.Series)
	b.WriteString("\nDo these readings look physically plausible for real weather stations? " +
		"Answer in one sentence, starting with \"plausible\" or \"suspect\".\n")
	return b.String()
}

func writeFreshness(b *strings.Builder, v domain.ValidationVerdict) {
	fmt.Fprintf(b, "Data: %d readings, newest is %s old.\n", v.PointCount, formatAge(v.DataAgeHours))
}

func formatAge(hours float64) string {
	switch {
	case hours < 1:
		return fmt.Sprintf("%.0f minutes", hours*60)
	case hours < 48:
		return fmt.Sprintf("%.1f hours", hours)
	default:
		return fmt.Sprintf("%.0f days", hours/24)
	}
}

// writeDigest summarizes each station's series instead of dumping every
// point into the prompt.
func writeDigest(b *strings.Builder, series []domain.StationSeries) {
	for _, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		first, last := s.Points[0], s.Points[len(s.Points)-1]
		minT, maxT := math.Inf(1), math.Inf(-1)
		var windSum, maxWind, precip float64
		for _, p := range s.Points {
			minT = math.Min(minT, p.Temperature)
			maxT = math.Max(maxT, p.Temperature)
			w := p.WindSpeed()
			windSum += w
			maxWind = math.Max(maxWind, w)
			if p.Precipitation != nil {
				precip += *p.Precipitation
			}
		}
		fmt.Fprintf(b, "\nStation %s (%s), %d readings from %s to %s:\n",
			s.StationName, s.StationID, len(s.Points),
			first.Timestamp.UTC().Format("2006-01-02 15:04"), last.Timestamp.UTC().Format("2006-01-02 15:04"))
		fmt.Fprintf(b, "  latest: temperature %.1f, dewpoint %.1f, pressure %.1f, wind %.1f\n",
			last.Temperature, last.Dewpoint, last.Pressure, last.WindSpeed())
		fmt.Fprintf(b, "  range: temperature %.1f to %.1f, mean wind %.1f, max wind %.1f, pressure change %+.1f",
			minT, maxT, windSum/float64(len(s.Points)), maxWind, last.Pressure-first.Pressure)
		if precip > 0 {
			fmt.Fprintf(b, ", precipitation total %.1f", precip)
		}
		b.WriteString("\n")
	}
}
