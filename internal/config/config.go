// Package config provides configuration loading and validation for the feed service.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the feed service.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Stores. Both are optional: without a database the service runs on
	// in-memory stores; without Redis views live in the primary store and
	// nothing is cached.
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Ranking
	RankingCalibrationPath string        `koanf:"ranking_calibration_path"`
	CandidateCacheTTL      time.Duration `koanf:"candidate_cache_ttl"`
	CandidateHorizonDays   int           `koanf:"candidate_horizon_days"`
	RecordImpressions      bool          `koanf:"record_impressions"`
	Timezone               string        `koanf:"timezone"`

	// Circuit breakers around store reads
	BreakerFailureThreshold int           `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`

	IdempotencyTTL time.Duration `koanf:"idempotency_ttl"`

	// MetricsToken guards /metrics via X-Internal-Token. Empty leaves it open.
	MetricsToken string `koanf:"metrics_token"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidDuration        = errors.New("value must be a valid duration")
	ErrInvalidFloat           = errors.New("value must be a valid number")
	ErrInvalidTimezone        = errors.New("TIMEZONE must be a valid IANA time zone")
	ErrInvalidHorizon         = errors.New("CANDIDATE_HORIZON_DAYS must be positive")
	ErrInvalidSampleRate      = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidTracingExporter = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultCandidateCacheTTL       = 5 * time.Minute
	DefaultCandidateHorizonDays    = 14
	DefaultTimezone                = "UTC"
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerTimeout          = 30 * time.Second
	DefaultIdempotencyTTL          = 24 * time.Hour
	DefaultTracingExporter         = "otlp-http"
	DefaultTracingSampleRate       = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error
	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try CITYPULSE_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"CITYPULSE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	horizonDays, err := getEnvIntOrDefault("CANDIDATE_HORIZON_DAYS", k.Int("candidate_horizon_days"), DefaultCandidateHorizonDays)
	collect(err)
	breakerThreshold, err := getEnvIntOrDefault("BREAKER_FAILURE_THRESHOLD", k.Int("breaker_failure_threshold"), DefaultBreakerFailureThreshold)
	collect(err)

	cacheTTL, err := getEnvDurationOrDefault("CANDIDATE_CACHE_TTL", k, "candidate_cache_ttl", DefaultCandidateCacheTTL)
	collect(err)
	breakerTimeout, err := getEnvDurationOrDefault("BREAKER_TIMEOUT", k, "breaker_timeout", DefaultBreakerTimeout)
	collect(err)
	idempotencyTTL, err := getEnvDurationOrDefault("IDEMPOTENCY_TTL", k, "idempotency_ttl", DefaultIdempotencyTTL)
	collect(err)

	sampleRate := DefaultTracingSampleRate
	if k.Exists("tracing_sample_rate") {
		sampleRate = k.Float64("tracing_sample_rate")
	}
	sampleRate, err = getEnvFloatOrDefault("TRACING_SAMPLE_RATE", sampleRate)
	collect(err)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                    port,
		Env:                     getEnvOrDefaultMulti([]string{"CITYPULSE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:             getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:                getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:               getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:       getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		RankingCalibrationPath:  getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		CandidateCacheTTL:       cacheTTL,
		CandidateHorizonDays:    horizonDays,
		RecordImpressions:       getEnvBoolOrKoanf("RECORD_IMPRESSIONS", k, "record_impressions", true),
		Timezone:                getEnvOrDefault("TIMEZONE", k.String("timezone"), DefaultTimezone),
		BreakerFailureThreshold: breakerThreshold,
		BreakerTimeout:          breakerTimeout,
		IdempotencyTTL:          idempotencyTTL,
		MetricsToken:            getEnvOrKoanf("METRICS_TOKEN", k, "metrics_token"),
		TracingEnabled:          getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:         getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:            getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSampleRate:       sampleRate,
		TracingInsecure:         getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// CandidateHorizon returns the event window as a duration.
func (c *Config) CandidateHorizon() time.Duration {
	return time.Duration(c.CandidateHorizonDays) * 24 * time.Hour
}

// Location resolves Timezone. Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: A value of 0 from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise fallback.
func getEnvFloatOrDefault(envKey string, fallback float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	return fallback, nil
}

// getEnvDurationOrDefault parses a Go duration ("90s", "5m") from the
// environment, then the file, then falls back to the default.
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		raw = k.String(koanfKey)
	}
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
	}
	return d, nil
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off from the
// environment. Unrecognized env values leave the file value in place.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.CandidateHorizonDays <= 0 {
		errs = append(errs, ErrInvalidHorizon)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, ErrInvalidTimezone)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingEnabled && c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidTracingExporter)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      strconv.Itoa(c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"jwt_secret":                maskSecret(c.JWTSecret),
		"jwt_previous_secret":       maskSecret(c.JWTPreviousSecret),
		"ranking_calibration_path":  c.RankingCalibrationPath,
		"candidate_cache_ttl":       c.CandidateCacheTTL.String(),
		"candidate_horizon_days":    strconv.Itoa(c.CandidateHorizonDays),
		"record_impressions":        strconv.FormatBool(c.RecordImpressions),
		"timezone":                  c.Timezone,
		"breaker_failure_threshold": strconv.Itoa(c.BreakerFailureThreshold),
		"breaker_timeout":           c.BreakerTimeout.String(),
		"idempotency_ttl":           c.IdempotencyTTL.String(),
		"metrics_token":             maskSecret(c.MetricsToken),
		"tracing_enabled":           strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":          c.TracingExporter,
		"otlp_endpoint":             c.OTLPEndpoint,
		"tracing_sample_rate":       strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres://, postgresql:// and redis:// alike.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
