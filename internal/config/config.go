package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Completion provider and its throttle.
	GeminiAPIKey         string
	GeminiModel          string
	InferenceMinInterval time.Duration
	InferenceTimeout     time.Duration

	// Upstream station data.
	StationAPIURL     string
	StationAPITimeout time.Duration
	StationsFile      string
	HistoryHours      int

	// Resolution and analysis policy.
	SearchRadiusKm    float64
	MaxStations       int
	FallbackStations  int
	StalenessCeiling  time.Duration
	MinDataPoints     int
	PlausibilityCheck bool

	// Analysis record publishing, enabled when KafkaBrokers is non-empty.
	KafkaBrokers       []string
	KafkaAnalysisTopic string
}

// KafkaEnabled reports whether analysis records are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:  os.Getenv("MAPBOX_TOKEN"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  sharedcfg.EnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),

		StationAPIURL: os.Getenv("STATION_API_URL"),
		StationsFile:  os.Getenv("STATIONS_FILE"),

		KafkaAnalysisTopic: sharedcfg.EnvOrDefault("KAFKA_ANALYSIS_TOPIC", "station-analyses"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout},
		{"INFERENCE_MIN_INTERVAL", "1s", &cfg.InferenceMinInterval},
		{"INFERENCE_TIMEOUT", "60s", &cfg.InferenceTimeout},
		{"STATION_API_TIMEOUT", "10s", &cfg.StationAPITimeout},
		{"STALENESS_CEILING", "8760h", &cfg.StalenessCeiling},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"MAPBOX_CACHE_SIZE", 1000, &cfg.MapboxCacheSize},
		{"HISTORY_HOURS", 24, &cfg.HistoryHours},
		{"MAX_STATIONS", 20, &cfg.MaxStations},
		{"FALLBACK_STATIONS", 10, &cfg.FallbackStations},
		{"MIN_DATA_POINTS", 1, &cfg.MinDataPoints},
	}
	for _, n := range ints {
		if *n.dst, err = parsePositiveInt(n.key, n.def); err != nil {
			return nil, err
		}
	}

	if cfg.SearchRadiusKm, err = parsePositiveFloat("SEARCH_RADIUS_KM", 200); err != nil {
		return nil, err
	}
	if cfg.PlausibilityCheck, err = parseBool("PLAUSIBILITY_CHECK", false); err != nil {
		return nil, err
	}

	if cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_TOKEN is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.StationAPIURL == "" {
		return nil, errors.New("STATION_API_URL is required")
	}
	if cfg.FallbackStations > cfg.MaxStations {
		return nil, errors.New("FALLBACK_STATIONS must not exceed MAX_STATIONS")
	}
	if cfg.KafkaEnabled() && cfg.KafkaAnalysisTopic == "" {
		return nil, errors.New("KAFKA_ANALYSIS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
