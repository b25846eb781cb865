package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// Config contains all runtime settings for the AgriGenius backend.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":5000"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"agrigenius"`
	LogLevel         string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"APP_LOG_FORMAT" envDefault:"text"`
	CORSOrigins      []string      `env:"APP_CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	MaxBodyBytes     int64         `env:"APP_MAX_BODY_BYTES" envDefault:"1048576"`

	TTSProvider           string        `env:"TTS_PROVIDER" envDefault:"gtts"`
	TTSCacheCapacity      int           `env:"TTS_CACHE_CAPACITY" envDefault:"64"`
	GTTSTLD               string        `env:"TTS_GTTS_TLD" envDefault:"com"`
	GTTSSlow              bool          `env:"TTS_GTTS_SLOW" envDefault:"false"`
	GTTSTimeout           time.Duration `env:"TTS_GTTS_TIMEOUT" envDefault:"30s"`
	GTTSRequestsPerMinute int           `env:"TTS_GTTS_REQUESTS_PER_MINUTE" envDefault:"0"`

	ChatProvider           string        `env:"CHAT_PROVIDER" envDefault:"gemini"`
	ChatCredentialEnv      string        `env:"CHAT_CREDENTIAL_ENV" envDefault:"AGRIGENIUS_TOKEN"`
	ChatDefaultModel       string        `env:"CHAT_DEFAULT_MODEL" envDefault:"gemini-2.5-flash"`
	ChatDefaultTemperature float64       `env:"CHAT_DEFAULT_TEMPERATURE" envDefault:"0.6"`
	ChatStreamChunkRunes   int           `env:"CHAT_STREAM_CHUNK_RUNES" envDefault:"48"`
	GeminiBaseURL          string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiTimeout          time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`
}

// Load reads environment variables, applies defaults and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.BindAddr = strings.TrimSpace(cfg.BindAddr)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	cfg.ChatProvider = strings.ToLower(strings.TrimSpace(cfg.ChatProvider))
	cfg.ChatCredentialEnv = strings.TrimSpace(cfg.ChatCredentialEnv)
	cfg.ChatDefaultModel = strings.TrimSpace(cfg.ChatDefaultModel)
	cfg.CORSOrigins = trimList(cfg.CORSOrigins)

	if cfg.BindAddr == "" {
		return Config{}, fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("APP_LOG_LEVEL must be one of debug, info, warn, error: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json", "logfmt":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be text, json or logfmt")
	}
	if len(cfg.CORSOrigins) == 0 {
		return Config{}, fmt.Errorf("APP_CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_BODY_BYTES must be positive")
	}
	switch cfg.TTSProvider {
	case "gtts", "mock":
	default:
		return Config{}, fmt.Errorf("TTS_PROVIDER must be gtts or mock")
	}
	if cfg.TTSCacheCapacity <= 0 {
		return Config{}, fmt.Errorf("TTS_CACHE_CAPACITY must be positive")
	}
	if cfg.GTTSTimeout <= 0 {
		return Config{}, fmt.Errorf("TTS_GTTS_TIMEOUT must be positive")
	}
	if cfg.GTTSRequestsPerMinute < 0 {
		return Config{}, fmt.Errorf("TTS_GTTS_REQUESTS_PER_MINUTE must be >= 0")
	}
	switch cfg.ChatProvider {
	case "gemini", "mock", "disabled":
	default:
		return Config{}, fmt.Errorf("CHAT_PROVIDER must be gemini, mock or disabled")
	}
	if cfg.ChatCredentialEnv == "" {
		return Config{}, fmt.Errorf("CHAT_CREDENTIAL_ENV must not be empty")
	}
	if cfg.ChatDefaultModel == "" {
		return Config{}, fmt.Errorf("CHAT_DEFAULT_MODEL must not be empty")
	}
	if cfg.ChatDefaultTemperature < 0 || cfg.ChatDefaultTemperature > 2 {
		return Config{}, fmt.Errorf("CHAT_DEFAULT_TEMPERATURE must be within [0, 2]")
	}
	if cfg.ChatStreamChunkRunes <= 0 {
		return Config{}, fmt.Errorf("CHAT_STREAM_CHUNK_RUNES must be positive")
	}
	if cfg.GeminiTimeout <= 0 {
		return Config{}, fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}

	return cfg, nil
}

// AllowAnyOrigin reports whether CORS is open to every origin.
func (c Config) AllowAnyOrigin() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// NewLogger builds the process logger from the configured level and format.
func (c Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	switch c.LogFormat {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
	return logger
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
