// Package analysis streams a multi-phase analysis of station readings:
// charts, then incremental analysis text, then a summary.
package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/observability"
	"github.com/couchcryptid/station-insight-service/internal/prompt"
)

// Inline replacements for provider failures after streaming has begun.
const (
	AnalysisErrorText = "error generating analysis"
	SummaryErrorText  = "error generating summary"
)

// ReasonNoData is returned when every station history fetch failed.
const ReasonNoData = "no weather data available"

// Sink delivers events to one client. TrySend reports false once the sink is
// closed, and every call after closure is a no-op. Close is idempotent.
type Sink interface {
	TrySend(ev domain.Event) bool
	Close()
	Closed() bool
}

// Recorder receives a record of each completed analysis. Record hands the
// record off for delivery and must not wait for it.
type Recorder interface {
	Record(ctx context.Context, rec domain.AnalysisRecord) error
}

// Request is one analysis request.
type Request struct {
	Query    string
	Stations []domain.Station
}

// Options configures optional Service behavior.
type Options struct {
	Gate domain.QualityGate

	// PlausibilityCheck asks the provider to review the data before charts
	// are sent. The result only informs the summary prompt.
	PlausibilityCheck bool

	// Recorder is nil when records are not kept.
	Recorder Recorder

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Service runs Fetch, Validate, StreamQuickAnalysis, GenerateSummary and
// Close for each request.
type Service struct {
	history  domain.HistoryProvider
	provider domain.Completer
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService creates a Service. provider should be the shared throttled
// provider so analysis calls queue behind resolution calls.
func NewService(history domain.HistoryProvider, provider domain.Completer, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{
		history:  history,
		provider: provider,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Analyze streams events for req to sink.
//
// An error is returned only before the first event is sent, leaving the sink
// untouched so the caller can answer with a plain error response. Once the
// charts event is out, provider failures are reported inline, a closed sink
// ends the request quietly, and Analyze returns nil.
func (s *Service) Analyze(ctx context.Context, req Request, sink Sink) error {
	start := s.opts.Clock.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.countOutcome(string(domain.KindInput))
		return domain.InputError("query is required")
	}
	if len(req.Stations) == 0 {
		s.countOutcome(string(domain.KindInput))
		return domain.InputError("at least one station is required")
	}

	series := s.fetchSeries(ctx, req.Stations)
	if len(series) == 0 {
		s.countOutcome(string(domain.KindNoData))
		return domain.NoDataError(ReasonNoData)
	}
	for i := range series {
		domain.SortSeries(&series[i])
	}

	verdict := s.opts.Gate.Validate(series, s.opts.Clock.Now())
	if !verdict.Valid {
		s.logger.Info("data quality rejection",
			"reason", verdict.Reason,
			"points", verdict.PointCount,
			"stations", len(series),
		)
		s.countOutcome(string(domain.KindDataQuality))
		return domain.QualityError(verdict.Reason)
	}

	in := prompt.AnalysisInput{Query: query, Series: series, Verdict: verdict}
	rec := domain.AnalysisRecord{
		ID:         uuid.NewString(),
		Query:      query,
		StationIDs: stationIDs(series),
		Verdict:    verdict,
	}
	defer func() {
		sink.Close()
		s.metrics.AnalysisDuration.Observe(s.opts.Clock.Since(start).Seconds())
	}()

	note := s.plausibility(ctx, in)

	if !sink.TrySend(domain.Event{Type: domain.EventCharts, Charts: domain.BuildCharts(series, verdict)}) {
		s.disconnected(rec.ID, "charts")
		return nil
	}

	quick, ok := s.streamQuickAnalysis(ctx, in, sink)
	if !ok || sink.Closed() {
		s.disconnected(rec.ID, "analysis")
		return nil
	}

	summary, err := s.provider.Complete(ctx, prompt.Summary(prompt.SummaryInput{
		AnalysisInput:    in,
		QuickAnalysis:    quick,
		PlausibilityNote: note,
	}))
	if err != nil {
		s.logger.Warn("summary generation failed", "analysis_id", rec.ID, "error", err)
		summary = SummaryErrorText
	}
	rec.Summary = summary

	if !sink.TrySend(domain.Event{Type: domain.EventSummary, Content: summary}) {
		s.disconnected(rec.ID, "summary")
		return nil
	}

	s.record(ctx, rec)
	s.countOutcome("ok")
	s.logger.Info("analysis complete",
		"analysis_id", rec.ID,
		"stations", len(series),
		"points", verdict.PointCount,
		"data_age_hours", verdict.DataAgeHours,
	)
	return nil
}

// fetchSeries fetches every station's history concurrently. Failed fetches
// are logged and dropped. Input order is preserved.
func (s *Service) fetchSeries(ctx context.Context, stations []domain.Station) []domain.StationSeries {
	results := make([]*domain.StationSeries, len(stations))

	var g errgroup.Group
	for i, st := range stations {
		g.Go(func() error {
			points, err := s.history.History(ctx, st.ID)
			if err != nil {
				s.metrics.StationFetchErrors.Inc()
				s.logger.Warn("station history fetch failed, dropping station",
					"station_id", st.ID,
					"error", err,
				)
				return nil
			}
			results[i] = &domain.StationSeries{
				StationID:   st.ID,
				StationName: st.Name,
				Points:      points,
			}
			return nil
		})
	}
	_ = g.Wait()

	series := make([]domain.StationSeries, 0, len(stations))
	for _, r := range results {
		if r != nil {
			series = append(series, *r)
		}
	}
	return series
}

// plausibility runs the advisory check when enabled. Failures are ignored.
func (s *Service) plausibility(ctx context.Context, in prompt.AnalysisInput) string {
	if !s.opts.PlausibilityCheck {
		return ""
	}
	note, err := s.provider.Complete(ctx, prompt.Plausibility(in))
	if err != nil {
		s.logger.Warn("plausibility check failed", "error", err)
		return ""
	}
	note = strings.TrimSpace(note)
	if strings.HasPrefix(strings.ToLower(note), "suspect") {
		s.logger.Warn("provider flagged data as suspect", "note", note)
	}
	return note
}

// streamQuickAnalysis forwards provider chunks as analysis events and returns
// the accumulated text. ok is false when the sink stopped accepting events.
func (s *Service) streamQuickAnalysis(ctx context.Context, in prompt.AnalysisInput, sink Sink) (text string, ok bool) {
	var b strings.Builder
	for chunk, err := range s.provider.CompleteStream(ctx, prompt.QuickAnalysis(in)) {
		if err != nil {
			if ctx.Err() != nil {
				return b.String(), false
			}
			s.logger.Warn("quick analysis stream failed", "error", err)
			return b.String(), sink.TrySend(domain.Event{Type: domain.EventAnalysis, Content: AnalysisErrorText})
		}
		if chunk == "" {
			continue
		}
		b.WriteString(chunk)
		if !sink.TrySend(domain.Event{Type: domain.EventAnalysis, Content: chunk}) {
			return b.String(), false
		}
	}
	return b.String(), true
}

func (s *Service) disconnected(id, phase string) {
	s.metrics.StreamDisconnects.Inc()
	s.countOutcome("disconnected")
	s.logger.Info("client disconnected", "analysis_id", id, "phase", phase)
}

func (s *Service) record(ctx context.Context, rec domain.AnalysisRecord) {
	if s.opts.Recorder == nil {
		return
	}
	rec.CompletedAt = s.opts.Clock.Now().UTC()

	if err := s.opts.Recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to record analysis", "analysis_id", rec.ID, "error", err)
	}
}

func (s *Service) countOutcome(outcome string) {
	s.metrics.AnalysisRequests.WithLabelValues(outcome).Inc()
}

func stationIDs(series []domain.StationSeries) []string {
	ids := make([]string, 0, len(series))
	for _, s := range series {
		ids = append(ids, s.StationID)
	}
	return ids
}
