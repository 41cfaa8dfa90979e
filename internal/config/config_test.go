package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMapboxToken = "pk.test-token"
	testGeminiKey   = "gm-test-key"
	testStationAPI  = "http://stations.internal"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("GEMINI_API_KEY", testGeminiKey)
	t.Setenv("STATION_API_URL", testStationAPI)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, testGeminiKey, cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, time.Second, cfg.InferenceMinInterval)
	assert.Equal(t, 60*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, testStationAPI, cfg.StationAPIURL)
	assert.Equal(t, 10*time.Second, cfg.StationAPITimeout)
	assert.Empty(t, cfg.StationsFile)
	assert.Equal(t, 24, cfg.HistoryHours)
	assert.InDelta(t, 200.0, cfg.SearchRadiusKm, 0)
	assert.Equal(t, 20, cfg.MaxStations)
	assert.Equal(t, 10, cfg.FallbackStations)
	assert.Equal(t, 365*24*time.Hour, cfg.StalenessCeiling)
	assert.Equal(t, 1, cfg.MinDataPoints)
	assert.False(t, cfg.PlausibilityCheck)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "station-analyses", cfg.KafkaAnalysisTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("MAPBOX_TIMEOUT", "2s")
	t.Setenv("MAPBOX_CACHE_SIZE", "50")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("INFERENCE_MIN_INTERVAL", "250ms")
	t.Setenv("INFERENCE_TIMEOUT", "2m")
	t.Setenv("STATION_API_TIMEOUT", "3s")
	t.Setenv("STATIONS_FILE", "/data/stations.json")
	t.Setenv("HISTORY_HOURS", "72")
	t.Setenv("SEARCH_RADIUS_KM", "75.5")
	t.Setenv("MAX_STATIONS", "12")
	t.Setenv("FALLBACK_STATIONS", "5")
	t.Setenv("STALENESS_CEILING", "2160h")
	t.Setenv("MIN_DATA_POINTS", "3")
	t.Setenv("PLAUSIBILITY_CHECK", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_ANALYSIS_TOPIC", "analyses")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 50, cfg.MapboxCacheSize)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiModel)
	assert.Equal(t, 250*time.Millisecond, cfg.InferenceMinInterval)
	assert.Equal(t, 2*time.Minute, cfg.InferenceTimeout)
	assert.Equal(t, 3*time.Second, cfg.StationAPITimeout)
	assert.Equal(t, "/data/stations.json", cfg.StationsFile)
	assert.Equal(t, 72, cfg.HistoryHours)
	assert.InDelta(t, 75.5, cfg.SearchRadiusKm, 0)
	assert.Equal(t, 12, cfg.MaxStations)
	assert.Equal(t, 5, cfg.FallbackStations)
	assert.Equal(t, 90*24*time.Hour, cfg.StalenessCeiling)
	assert.Equal(t, 3, cfg.MinDataPoints)
	assert.True(t, cfg.PlausibilityCheck)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "analyses", cfg.KafkaAnalysisTopic)
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"MAPBOX_TOKEN", "GEMINI_API_KEY", "STATION_API_URL"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"INFERENCE_MIN_INTERVAL", "-1s"},
		{"INFERENCE_TIMEOUT", "0s"},
		{"STALENESS_CEILING", "forever"},
		{"MAPBOX_CACHE_SIZE", "0"},
		{"HISTORY_HOURS", "abc"},
		{"MAX_STATIONS", "-3"},
		{"MIN_DATA_POINTS", "zero"},
		{"SEARCH_RADIUS_KM", "-10"},
		{"PLAUSIBILITY_CHECK", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_FallbackExceedsMax(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_STATIONS", "5")
	t.Setenv("FALLBACK_STATIONS", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FALLBACK_STATIONS")
}
