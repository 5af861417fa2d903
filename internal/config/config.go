package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Context store backends.
const (
	ContextBackendRedis  = "redis"
	ContextBackendMemory = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Server      ServerConfig
	Context     ContextConfig
	Generator   GeneratorConfig
	Synthesizer SynthesizerConfig
	Extraction  ExtractionConfig
	Telemetry   TelemetryConfig
	SelfHosted  bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	WSWriteTimeout   time.Duration
	CORSOrigins      []string
	RateLimitPerSec  float64
	RateLimitBurst   int
	ShutdownDeadline time.Duration
}

// ContextConfig selects where live session contexts are kept.
type ContextConfig struct {
	Backend string
	TTL     time.Duration
}

// GeneratorConfig holds the caller-reply language model settings.
type GeneratorConfig struct {
	APIKey            string //nolint:gosec // G117: LLM API key config
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// SynthesizerConfig holds the Coqui TTS server settings.
type SynthesizerConfig struct {
	URL     string
	Model   string
	Vocoder string
	Timeout time.Duration
}

// ExtractionConfig bounds entity extraction.
type ExtractionConfig struct {
	Timeout time.Duration
}

// TelemetryConfig controls OTLP export of turn traces and metrics.
type TelemetryConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	MetricInterval time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; variables already set in
// the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: .env: %w", err)
	}

	dbPort, err := getEnvInt("CALLSIM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CALLSIM_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CALLSIM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CALLSIM_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CALLSIM_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsWriteTimeout, err := getEnvDuration("CALLSIM_WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("CALLSIM_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("CALLSIM_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	shutdown, err := getEnvDuration("CALLSIM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	contextTTL, err := getEnvDuration("CALLSIM_CONTEXT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	temperature, err := getEnvFloat("CALLSIM_LLM_TEMPERATURE", 0.8)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTokens, err := getEnvInt("CALLSIM_LLM_MAX_TOKENS", 150)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rpm, err := getEnvInt("CALLSIM_LLM_REQUESTS_PER_MINUTE", 60)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	generateTimeout, err := getEnvDuration("CALLSIM_LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	synthTimeout, err := getEnvDuration("CALLSIM_TTS_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	extractTimeout, err := getEnvDuration("CALLSIM_EXTRACTION_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	otelEnabled, err := getEnvBool("CALLSIM_OTEL_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	otelInterval, err := getEnvDuration("CALLSIM_OTEL_METRIC_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("CALLSIM_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("CALLSIM_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CALLSIM_DB_USER", "callsim"),
			Password: getEnv("CALLSIM_DB_PASSWORD", ""),
			DBName:   getEnv("CALLSIM_DB_NAME", "callsim_dev"),
			SSLMode:  getEnv("CALLSIM_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CALLSIM_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CALLSIM_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:             getEnv("CALLSIM_SERVER_ADDR", ":8080"),
			ReadTimeout:      readTimeout,
			WriteTimeout:     writeTimeout,
			WSWriteTimeout:   wsWriteTimeout,
			CORSOrigins:      getEnvList("CALLSIM_CORS_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSec:  rateLimit,
			RateLimitBurst:   rateBurst,
			ShutdownDeadline: shutdown,
		},
		Context: ContextConfig{
			Backend: strings.ToLower(getEnv("CALLSIM_CONTEXT_BACKEND", ContextBackendRedis)),
			TTL:     contextTTL,
		},
		Generator: GeneratorConfig{
			APIKey:            getEnv("CALLSIM_LLM_API_KEY", ""),
			BaseURL:           getEnv("CALLSIM_LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:             getEnv("CALLSIM_LLM_MODEL", "anthropic/claude-3-haiku"),
			Temperature:       temperature,
			MaxTokens:         maxTokens,
			RequestsPerMinute: rpm,
			Timeout:           generateTimeout,
		},
		Synthesizer: SynthesizerConfig{
			URL:     getEnv("CALLSIM_TTS_URL", "http://localhost:5002"),
			Model:   getEnv("CALLSIM_TTS_MODEL", "tts_models/en/ljspeech/tacotron2-DDC"),
			Vocoder: getEnv("CALLSIM_TTS_VOCODER", ""),
			Timeout: synthTimeout,
		},
		Extraction: ExtractionConfig{
			Timeout: extractTimeout,
		},
		Telemetry: TelemetryConfig{
			Enabled:        otelEnabled,
			Endpoint:       getEnv("CALLSIM_OTEL_ENDPOINT", "http://localhost:4318"),
			ServiceName:    getEnv("CALLSIM_OTEL_SERVICE_NAME", "callsim"),
			MetricInterval: otelInterval,
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Generator.APIKey == "" {
		return errors.New("CALLSIM_LLM_API_KEY is required")
	}

	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("CALLSIM_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("CALLSIM_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CALLSIM_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CALLSIM_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CALLSIM_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.WSWriteTimeout <= 0 {
		return fmt.Errorf("CALLSIM_WS_WRITE_TIMEOUT must be positive, got %s", c.Server.WSWriteTimeout)
	}
	if c.Server.RateLimitPerSec <= 0 {
		return fmt.Errorf("CALLSIM_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitPerSec)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("CALLSIM_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}

	switch c.Context.Backend {
	case ContextBackendRedis, ContextBackendMemory:
	default:
		return fmt.Errorf("CALLSIM_CONTEXT_BACKEND must be %q or %q, got %q",
			ContextBackendRedis, ContextBackendMemory, c.Context.Backend)
	}
	if c.Context.TTL <= 0 {
		return fmt.Errorf("CALLSIM_CONTEXT_TTL must be positive, got %s", c.Context.TTL)
	}

	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("CALLSIM_LLM_TEMPERATURE must be 0-2, got %g", c.Generator.Temperature)
	}
	if c.Generator.MaxTokens < 1 {
		return fmt.Errorf("CALLSIM_LLM_MAX_TOKENS must be >= 1, got %d", c.Generator.MaxTokens)
	}
	if c.Generator.RequestsPerMinute < 0 {
		return fmt.Errorf("CALLSIM_LLM_REQUESTS_PER_MINUTE must be >= 0, got %d", c.Generator.RequestsPerMinute)
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("CALLSIM_LLM_TIMEOUT must be positive, got %s", c.Generator.Timeout)
	}
	if c.Synthesizer.Timeout <= 0 {
		return fmt.Errorf("CALLSIM_TTS_TIMEOUT must be positive, got %s", c.Synthesizer.Timeout)
	}
	if c.Extraction.Timeout <= 0 {
		return fmt.Errorf("CALLSIM_EXTRACTION_TIMEOUT must be positive, got %s", c.Extraction.Timeout)
	}

	if c.Telemetry.Enabled {
		u, err := url.Parse(c.Telemetry.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("CALLSIM_OTEL_ENDPOINT must be an http(s) URL, got %q", c.Telemetry.Endpoint)
		}
		if c.Telemetry.MetricInterval <= 0 {
			return fmt.Errorf("CALLSIM_OTEL_METRIC_INTERVAL must be positive, got %s", c.Telemetry.MetricInterval)
		}
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
