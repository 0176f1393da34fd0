package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/metevents/internal/domain"
)

// Default station network endpoints.
const (
	DefaultNRCSBaseURL     = "https://wcc.sc.egov.usda.gov/awdbRestApi/services/v1"
	DefaultCDECBaseURL     = "https://cdec.water.ca.gov/dynamicapp/req/JSONDataServlet"
	DefaultMesowestBaseURL = "https://api.synopticdata.com/v2"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	APIRateLimit    int // requests per minute per client IP

	Stations     []domain.Station
	PollInterval time.Duration
	Lookback     time.Duration
	Storm        domain.StormParams

	FetchConcurrency int
	FetchTimeout     time.Duration
	FetchRateLimit   float64 // requests per second per station network
	NRCSBaseURL      string
	CDECBaseURL      string
	MesowestBaseURL  string
	MesowestToken    string

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
	BatchSize      int

	SQLitePath string

	// Series cache configuration.
	CacheBackend  string // "memory", "redis" or "none"
	CacheSize     int
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NRCSBaseURL:     sharedcfg.EnvOrDefault("NRCS_BASE_URL", DefaultNRCSBaseURL),
		CDECBaseURL:     sharedcfg.EnvOrDefault("CDEC_BASE_URL", DefaultCDECBaseURL),
		MesowestBaseURL: sharedcfg.EnvOrDefault("MESOWEST_BASE_URL", DefaultMesowestBaseURL),
		MesowestToken:   os.Getenv("MESOWEST_TOKEN"),

		KafkaEnabled:   sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "storm-events"),
		BatchSize:      batchSize,

		SQLitePath: sharedcfg.EnvOrDefault("SQLITE_PATH", "metevents.db"),

		CacheBackend:  sharedcfg.EnvOrDefault("CACHE_BACKEND", "memory"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"POLL_INTERVAL", "1h", &cfg.PollInterval},
		{"LOOKBACK", "720h", &cfg.Lookback},
		{"FETCH_TIMEOUT", "10s", &cfg.FetchTimeout},
		{"CACHE_TTL", "15m", &cfg.CacheTTL},
		{"STORM_HOURS_TO_STOP", "24h", &cfg.Storm.HoursToStop},
		{"STORM_MAX_DURATION", "336h", &cfg.Storm.MaxStormDuration},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.Storm.InstantMassToStart, err = parseFloat("STORM_INSTANT_MASS", 0.1); err != nil {
		return nil, err
	}
	if cfg.Storm.MinStormTotal, err = parseFloat("STORM_MIN_TOTAL", 0.5); err != nil {
		return nil, err
	}
	if cfg.FetchRateLimit, err = parseFloat("FETCH_RATE_LIMIT", 2); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = parsePositiveInt("FETCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = parsePositiveInt("CACHE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = parsePositiveInt("API_RATE_LIMIT", 120); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseNonNegativeInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.Stations, err = loadStations(os.Getenv("STATIONS_FILE"), os.Getenv("STATIONS"))
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Stations) == 0 {
		return errors.New("no stations configured: set STATIONS or STATIONS_FILE")
	}
	if err := c.Storm.Validate(); err != nil {
		return err
	}
	if c.FetchRateLimit <= 0 {
		return errors.New("invalid FETCH_RATE_LIMIT: must be positive")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	switch c.CacheBackend {
	case "memory", "none":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("CACHE_BACKEND is redis but REDIS_ADDR is not set")
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: use memory, redis or none", c.CacheBackend)
	}
	for _, st := range c.Stations {
		if st.Source == domain.SourceMesowest && c.MesowestToken == "" {
			return fmt.Errorf("station %s requires MESOWEST_TOKEN", st)
		}
	}
	return nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := parseNonNegativeInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}
