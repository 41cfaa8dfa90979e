// Package stationapi reads the station catalog and station histories from the
// upstream sensor-data HTTP API.
package stationapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/station-insight-service/internal/domain"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("station API circuit open")

	errUnexpectedStatus = errors.New("unexpected status code")
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	HistoryHours int
}

// Client implements domain.StationCatalog and domain.HistoryProvider.
type Client struct {
	baseURL      string
	historyHours int
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       *slog.Logger
}

// NewClient creates a station API client guarded by a circuit breaker.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		historyHours: cfg.HistoryHours,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "station-api",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: countsAsHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// ListStations fetches the full catalog.
func (c *Client) ListStations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	if err := c.getJSON(ctx, c.baseURL+"/stations", &stations); err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	out := stations[:0]
	for _, s := range stations {
		if s.ID == "" || !s.Coordinates().Valid() {
			c.logger.Warn("skipping invalid catalog station", "station_id", s.ID)
			continue
		}
		s.DistanceKm = 0
		out = append(out, s)
	}
	return out, nil
}

// History fetches the recent readings of one station. Points whose timestamp
// cannot be parsed are dropped.
func (c *Client) History(ctx context.Context, stationID string) ([]domain.WeatherPoint, error) {
	u := fmt.Sprintf("%s/stations/%s/history", c.baseURL, url.PathEscape(stationID))
	if c.historyHours > 0 {
		u += "?" + url.Values{"hours": {strconv.Itoa(c.historyHours)}}.Encode()
	}

	var body historyResponse
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, fmt.Errorf("history %s: %w", stationID, err)
	}

	points := make([]domain.WeatherPoint, 0, len(body.Points))
	dropped := 0
	for _, p := range body.Points {
		ts, ok := parseTimestamp(p.Timestamp)
		if !ok {
			dropped++
			continue
		}
		points = append(points, domain.WeatherPoint{
			Timestamp:     ts,
			Temperature:   p.Temperature,
			WindX:         p.WindX,
			WindY:         p.WindY,
			Dewpoint:      p.Dewpoint,
			Pressure:      p.Pressure,
			Precipitation: p.Precipitation,
		})
	}
	if dropped > 0 {
		c.logger.Warn("dropped readings with unparseable timestamps", "station_id", stationID, "dropped", dropped)
	}
	return points, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &statusError{code: resp.StatusCode, body: string(body)}
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return err
	}

	body, ok := result.([]byte)
	if !ok {
		return errors.New("unexpected result type from circuit breaker")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d: %s", errUnexpectedStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return errUnexpectedStatus }

// countsAsHealthy reports whether err leaves the breaker's failure count alone.
// Client errors for caller-supplied IDs and cancelled requests say nothing
// about upstream health.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests
	}
	return false
}

// Station API response types.

type historyResponse struct {
	StationID string       `json:"stationId"`
	Points    []pointEntry `json:"points"`
}

type pointEntry struct {
	Timestamp     string   `json:"timestamp"`
	Temperature   float64  `json:"temperature"`
	WindX         float64  `json:"windX"`
	WindY         float64  `json:"windY"`
	Dewpoint      float64  `json:"dewpoint"`
	Pressure      float64  `json:"pressure"`
	Precipitation *float64 `json:"precipitation"`
}

// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
