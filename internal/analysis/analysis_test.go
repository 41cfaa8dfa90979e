package analysis

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/observability"
	"github.com/couchcryptid/station-insight-service/internal/queue"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeSink records events and closes itself after closeAfter accepted events
// when closeAfter > 0.
type fakeSink struct {
	mu         sync.Mutex
	events     []domain.Event
	closed     bool
	closeAfter int
	closeCalls int
}

func (s *fakeSink) TrySend(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, ev)
	if s.closeAfter > 0 && len(s.events) >= s.closeAfter {
		s.closed = true
	}
	return true
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCalls++
}

func (s *fakeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeHistory struct {
	points map[string][]domain.WeatherPoint
	errs   map[string]error
}

func (h *fakeHistory) History(_ context.Context, id string) ([]domain.WeatherPoint, error) {
	if err := h.errs[id]; err != nil {
		return nil, err
	}
	return h.points[id], nil
}

type fakeProvider struct {
	mu          sync.Mutex
	completions []string
	completeErr error
	summary     string
	plausible   string
	chunks      []string
	streamErr   error
	streamCalls int
}

func (p *fakeProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, prompt)
	if p.completeErr != nil {
		return "", p.completeErr
	}
	if strings.Contains(prompt, "physically plausible") {
		return p.plausible, nil
	}
	return p.summary, nil
}

func (p *fakeProvider) CompleteStream(context.Context, string) iter.Seq2[string, error] {
	p.mu.Lock()
	p.streamCalls++
	p.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, c := range p.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if p.streamErr != nil {
			yield("", p.streamErr)
		}
	}
}

func (p *fakeProvider) completeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completions)
}

type fakeRecorder struct {
	records []domain.AnalysisRecord
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rec domain.AnalysisRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

func freshPoints(newest time.Time) []domain.WeatherPoint {
	// Deliberately out of order.
	return []domain.WeatherPoint{
		{Timestamp: newest, Temperature: 12, WindX: 3, WindY: 4},
		{Timestamp: newest.Add(-2 * time.Hour), Temperature: 9},
		{Timestamp: newest.Add(-1 * time.Hour), Temperature: 10},
	}
}

func testvilleStations() []domain.Station {
	return []domain.Station{
		{ID: "ST01", Name: "Testville North"},
		{ID: "ST02", Name: "Testville Airport"},
		{ID: "ST03", Name: "Testville Ridge"},
	}
}

func freshHistory() *fakeHistory {
	newest := now.Add(-30 * time.Minute)
	return &fakeHistory{points: map[string][]domain.WeatherPoint{
		"ST01": freshPoints(newest),
		"ST02": freshPoints(newest.Add(-10 * time.Minute)),
		"ST03": freshPoints(newest.Add(-20 * time.Minute)),
	}}
}

type fixture struct {
	history  *fakeHistory
	provider *fakeProvider
	recorder *fakeRecorder
	metrics  *observability.Metrics
	opts     Options
}

func newFixture() *fixture {
	return &fixture{
		history: freshHistory(),
		provider: &fakeProvider{
			chunks:  []string{"Mild ", "and ", "breezy."},
			summary: "Full summary.",
		},
		recorder: &fakeRecorder{},
		metrics:  observability.NewMetricsForTesting(),
		opts: Options{
			Gate:  domain.NewQualityGate(),
			Clock: clockwork.NewFakeClockAt(now),
		},
	}
}

func (f *fixture) service(provider domain.Completer) *Service {
	f.opts.Recorder = f.recorder
	return NewService(f.history, provider, f.opts, slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics)
}

func TestAnalyze_FreshDataStreamsAllPhases(t *testing.T) {
	f := newFixture()
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"charts", "analysis", "analysis", "analysis", "summary"}, sink.types())
	assert.True(t, sink.Closed())

	charts := sink.events[0].Charts
	require.NotNil(t, charts)
	assert.Equal(t, 9, charts.PointCount)
	assert.InDelta(t, 0.5, charts.DataAgeHours, 1e-9)
	require.Len(t, charts.Series, 3)
	assert.Equal(t, "ST01", charts.Series[0].StationID)
	pts := charts.Series[0].Points
	assert.True(t, pts[0].Timestamp.Before(pts[1].Timestamp) && pts[1].Timestamp.Before(pts[2].Timestamp),
		"points must be chronological")
	assert.InDelta(t, 5.0, pts[2].WindSpeed, 1e-9)

	assert.Equal(t, "Mild ", sink.events[1].Content)
	assert.Equal(t, "Full summary.", sink.events[4].Content)

	require.Len(t, f.provider.completions, 1)
	assert.Contains(t, f.provider.completions[0], "Mild and breezy.")

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, []string{"ST01", "ST02", "ST03"}, rec.StationIDs)
	assert.Equal(t, "Full summary.", rec.Summary)
	assert.Equal(t, now, rec.CompletedAt)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AnalysisRequests.WithLabelValues("ok")), 0)
}

func TestAnalyze_StaleDataRejectedBeforeStreaming(t *testing.T) {
	f := newFixture()
	old := now.Add(-400 * 24 * time.Hour)
	f.history = &fakeHistory{points: map[string][]domain.WeatherPoint{
		"ST01": freshPoints(old),
		"ST02": freshPoints(old),
		"ST03": freshPoints(old),
	}}
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

	require.Error(t, err)
	assert.Equal(t, domain.KindDataQuality, domain.KindOf(err))
	assert.Contains(t, err.Error(), "400 days")
	assert.Empty(t, sink.events)
	assert.False(t, sink.Closed(), "sink is left to the transport on early errors")
	assert.Zero(t, f.provider.streamCalls)
	assert.Zero(t, f.provider.completeCount())
	assert.Empty(t, f.recorder.records)
}

func TestAnalyze_PartialFetchFailureTolerated(t *testing.T) {
	f := newFixture()
	f.history.errs = map[string]error{"ST02": errors.New("timeout")}
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	charts := sink.events[0].Charts
	require.Len(t, charts.Series, 2)
	assert.Equal(t, "ST01", charts.Series[0].StationID)
	assert.Equal(t, "ST03", charts.Series[1].StationID)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StationFetchErrors), 0)
}

func TestAnalyze_AllFetchesFail(t *testing.T) {
	f := newFixture()
	boom := errors.New("upstream down")
	f.history.errs = map[string]error{"ST01": boom, "ST02": boom, "ST03": boom}
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

	require.Error(t, err)
	assert.Equal(t, domain.KindNoData, domain.KindOf(err))
	assert.EqualError(t, err, "no weather data available")
	assert.Empty(t, sink.events)
}

func TestAnalyze_EmptyHistoriesRejectedByGate(t *testing.T) {
	f := newFixture()
	f.history = &fakeHistory{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, &fakeSink{})

	assert.Equal(t, domain.KindDataQuality, domain.KindOf(err))
	assert.EqualError(t, err, "no data points available")
}

func TestAnalyze_InputValidation(t *testing.T) {
	f := newFixture()
	svc := f.service(f.provider)

	err := svc.Analyze(context.Background(), Request{Query: " ", Stations: testvilleStations()}, &fakeSink{})
	assert.Equal(t, domain.KindInput, domain.KindOf(err))

	err = svc.Analyze(context.Background(), Request{Query: "weather"}, &fakeSink{})
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}

func TestAnalyze_StreamErrorBecomesInlineToken(t *testing.T) {
	f := newFixture()
	f.provider.chunks = []string{"Partial "}
	f.provider.streamErr = errors.New("stream reset")
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"charts", "analysis", "analysis", "summary"}, sink.types())
	assert.Equal(t, AnalysisErrorText, sink.events[2].Content)
}

func TestAnalyze_SummaryErrorBecomesInlineText(t *testing.T) {
	f := newFixture()
	f.provider.completeErr = errors.New("quota exceeded")
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	types := sink.types()
	assert.Equal(t, "summary", types[len(types)-1])
	assert.Equal(t, SummaryErrorText, sink.events[len(sink.events)-1].Content)
}

func TestAnalyze_PlausibilityNoteReachesSummary(t *testing.T) {
	f := newFixture()
	f.opts.PlausibilityCheck = true
	f.provider.plausible = "plausible: readings are consistent"
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	require.Len(t, f.provider.completions, 2)
	assert.Contains(t, f.provider.completions[0], "physically plausible")
	assert.Contains(t, f.provider.completions[1], "Data review note: plausible: readings are consistent")
	assert.Equal(t, "charts", sink.types()[0])
}

func TestAnalyze_DisconnectAfterChartsSkipsSummary(t *testing.T) {
	f := newFixture()
	metrics := observability.NewMetricsForTesting()
	q := queue.New(0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	throttled := queue.NewThrottled(f.provider, q, metrics)
	// Closes after charts and one analysis chunk.
	sink := &fakeSink{closeAfter: 2}

	err := f.service(throttled).Analyze(context.Background(),
		Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"charts", "analysis"}, sink.types())
	assert.Zero(t, f.provider.completeCount(), "summary must not be requested after disconnect")

	assert.Empty(t, f.recorder.records)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StreamDisconnects), 0)

	// The queue keeps serving the next caller.
	next := queue.Enqueue(q, func() (string, error) { return "next caller", nil })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := next.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "next caller", v)
}

func TestAnalyze_DisconnectBeforeCharts(t *testing.T) {
	f := newFixture()
	sink := &fakeSink{}
	sink.Close()

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	assert.Empty(t, sink.events)
	assert.Zero(t, f.provider.streamCalls)
	assert.Zero(t, f.provider.completeCount())
	assert.Empty(t, f.recorder.records)
}

func TestAnalyze_NoRecordAfterDisconnect(t *testing.T) {
	tests := []struct {
		name       string
		closeAfter int
		want       []string
	}{
		{"after charts", 1, []string{"charts"}},
		{"mid analysis", 2, []string{"charts", "analysis"}},
		{"before summary", 4, []string{"charts", "analysis", "analysis", "analysis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			sink := &fakeSink{closeAfter: tt.closeAfter}

			err := f.service(f.provider).Analyze(context.Background(),
				Request{Query: "weather in Testville", Stations: testvilleStations()}, sink)

			require.NoError(t, err)
			assert.Equal(t, tt.want, sink.types())
			assert.Empty(t, f.recorder.records)
			assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.AnalysisRequests.WithLabelValues("ok")), 0)
		})
	}
}

func TestAnalyze_RecorderFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.recorder.err = errors.New("broker unavailable")
	sink := &fakeSink{}

	err := f.service(f.provider).Analyze(context.Background(),
		Request{Query: "weather", Stations: testvilleStations()}, sink)

	require.NoError(t, err)
	assert.Equal(t, "summary", sink.types()[len(sink.types())-1])
}

func TestAnalyze_EventOrderAcrossRuns(t *testing.T) {
	for range 20 {
		f := newFixture()
		sink := &fakeSink{}
		require.NoError(t, f.service(f.provider).Analyze(context.Background(),
			Request{Query: "weather", Stations: testvilleStations()}, sink))

		types := sink.types()
		require.NotEmpty(t, types)
		assert.Equal(t, "charts", types[0])
		assert.Equal(t, "summary", types[len(types)-1])
		for _, tp := range types[1 : len(types)-1] {
			assert.Equal(t, "analysis", tp)
		}
	}
}
