package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	defaultBackendURL         = "http://localhost:8080"
	defaultCacheTTL           = 5 * time.Minute
	defaultCacheMaxSize       = 150
	defaultHTTPTimeout        = 10 * time.Second
	defaultRetryAttempts      = 3
	defaultRateLimitPerSecond = 20
	defaultRateLimitBurst     = 40
)

type Config struct {
	backendURL         string
	jwt                string
	sentryDSN          string
	cacheTTL           time.Duration
	cacheMaxSize       int
	logLevel           slog.Level
	logFile            string
	httpTimeout        time.Duration
	retryAttempts      int
	rateLimitPerSecond int
	rateLimitBurst     int
	otelEnabled        bool
	env                environment
}

func (c *Config) BackendURL() string {
	return c.backendURL
}

// GraphQLURL is the endpoint all GraphQL operations are posted to
func (c *Config) GraphQLURL() string {
	return c.backendURL + "/query"
}

func (c *Config) JWT() string {
	return c.jwt
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) CacheTTL() time.Duration {
	return c.cacheTTL
}

func (c *Config) CacheMaxSize() int {
	return c.cacheMaxSize
}

func (c *Config) LogLevel() slog.Level {
	return c.logLevel
}

func (c *Config) LogFile() string {
	return c.logFile
}

func (c *Config) HTTPTimeout() time.Duration {
	return c.httpTimeout
}

func (c *Config) RetryAttempts() int {
	return c.retryAttempts
}

func (c *Config) RateLimitPerSecond() int {
	return c.rateLimitPerSecond
}

func (c *Config) RateLimitBurst() int {
	return c.rateLimitBurst
}

func (c *Config) OTelEnabled() bool {
	return c.otelEnabled
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, backendURL: %s, cacheTTL: %s, cacheMaxSize: %d, jwt: %t, ...}",
		string(c.env), c.backendURL, c.cacheTTL, c.cacheMaxSize, c.jwt != "",
	)
}

func nonNegativeIntFromEnv(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, raw)
	}
	return value, nil
}

func millisecondsFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, err := nonNegativeIntFromEnv(key, int(fallback.Milliseconds()))
	if err != nil {
		return 0, err
	}
	return time.Duration(value) * time.Millisecond, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: CC_LOG_LEVEL (%s)", ErrInvalidValue, raw)
	}
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("CC_ENVIRONMENT")
	if !ok {
		return missingKey("CC_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: CC_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}

	backendURL := strings.TrimRight(os.Getenv("CC_BACKEND_URL"), "/")
	jwt := os.Getenv("CC_JWT")
	sentryDSN := os.Getenv("SENTRY_DSN")
	logFile := os.Getenv("CC_LOG_FILE")

	if env == production || env == staging {
		if backendURL == "" {
			return missingKey("CC_BACKEND_URL")
		}
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}
	if backendURL == "" {
		backendURL = defaultBackendURL
	}
	if !strings.HasPrefix(backendURL, "http://") && !strings.HasPrefix(backendURL, "https://") {
		return Config{}, fmt.Errorf("%w: CC_BACKEND_URL (%s)", ErrInvalidValue, backendURL)
	}

	cacheTTL, err := millisecondsFromEnv("CC_CACHE_TTL_MS", defaultCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cacheMaxSize, err := nonNegativeIntFromEnv("CC_CACHE_MAX_SIZE", defaultCacheMaxSize)
	if err != nil {
		return Config{}, err
	}
	httpTimeout, err := millisecondsFromEnv("CC_HTTP_TIMEOUT_MS", defaultHTTPTimeout)
	if err != nil {
		return Config{}, err
	}
	retryAttempts, err := nonNegativeIntFromEnv("CC_RETRY_ATTEMPTS", defaultRetryAttempts)
	if err != nil {
		return Config{}, err
	}
	rateLimitPerSecond, err := nonNegativeIntFromEnv("CC_RATE_LIMIT_PER_SECOND", defaultRateLimitPerSecond)
	if err != nil {
		return Config{}, err
	}
	rateLimitBurst, err := nonNegativeIntFromEnv("CC_RATE_LIMIT_BURST", defaultRateLimitBurst)
	if err != nil {
		return Config{}, err
	}

	logLevel, err := parseLogLevel(os.Getenv("CC_LOG_LEVEL"))
	if err != nil {
		return Config{}, err
	}

	var otelEnabled bool
	switch rawOTel := os.Getenv("OTEL_ENABLED"); rawOTel {
	case "", "false":
		otelEnabled = false
	case "true":
		otelEnabled = true
	default:
		return Config{}, fmt.Errorf("%w: OTEL_ENABLED (%s)", ErrInvalidValue, rawOTel)
	}

	return Config{
		backendURL:         backendURL,
		jwt:                jwt,
		sentryDSN:          sentryDSN,
		cacheTTL:           cacheTTL,
		cacheMaxSize:       cacheMaxSize,
		logLevel:           logLevel,
		logFile:            logFile,
		httpTimeout:        httpTimeout,
		retryAttempts:      retryAttempts,
		rateLimitPerSecond: rateLimitPerSecond,
		rateLimitBurst:     rateLimitBurst,
		otelEnabled:        otelEnabled,
		env:                env,
	}, nil
}
