package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DetectorNameModel     = "model_detector"
	DetectorNameRegex     = "regex_detector"
	DetectorNameONNXModel = "onnx_model_detector"
)

// ServerConfig holds HTTP listener limits
type ServerConfig struct {
	MaxRequestBytes int64 `json:"max_request_bytes"` // Request bodies above this size are rejected with 413
	ReadTimeout     int   `json:"read_timeout"`      // Seconds
	WriteTimeout    int   `json:"write_timeout"`     // Seconds
	IdleTimeout     int   `json:"idle_timeout"`      // Seconds
	ShutdownTimeout int   `json:"shutdown_timeout"`  // Seconds
}

// CORSConfig holds the optional cross-origin policy
type CORSConfig struct {
	Enabled        bool     `json:"enabled"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// RateLimitConfig holds the optional global request rate limit
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or console
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
}

// Config holds all configuration for the NER service
type Config struct {
	ServerPort         string            `json:"server_port"`
	ModelDir           string            `json:"model_dir"`
	DetectorName       string            `json:"detector_name"`
	ModelBaseURL       string            `json:"model_base_url"`
	ONNXRuntimeLibPath string            `json:"onnxruntime_lib_path"`
	MinConfidence      float64           `json:"min_confidence"`
	Patterns           map[string]string `json:"patterns,omitempty"`
	Server             ServerConfig      `json:"server"`
	CORS               CORSConfig        `json:"cors"`
	RateLimit          RateLimitConfig   `json:"rate_limit"`
	Logging            LoggingConfig     `json:"logging"`
	Sentry             SentryConfig      `json:"sentry"`
}

// DefaultCORSOrigins are the origins allowed when CORS is switched on without an explicit list
var DefaultCORSOrigins = []string{
	"http://localhost",
	"http://localhost:3000",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerPort:    ":8000",
		ModelDir:      "model/model-best",
		DetectorName:  DetectorNameONNXModel,
		ModelBaseURL:  "http://localhost:8001",
		MinConfidence: 0.5,
		Server: ServerConfig{
			MaxRequestBytes: 1 << 20,
			ReadTimeout:     15,
			WriteTimeout:    60,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
		},
		CORS: CORSConfig{
			Enabled:        false,
			AllowedOrigins: append([]string(nil), DefaultCORSOrigins...),
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sentry: SentryConfig{
			Environment: "development",
		},
	}
}

// Validate checks the configuration for values the service cannot start with
func (c *Config) Validate() error {
	if err := validatePort(c.ServerPort, "ServerPort"); err != nil {
		return err
	}

	switch c.DetectorName {
	case DetectorNameONNXModel:
		if c.ModelDir == "" {
			return fmt.Errorf("ModelDir: model directory cannot be empty")
		}
	case DetectorNameModel:
		if err := validateURL(c.ModelBaseURL, "ModelBaseURL"); err != nil {
			return err
		}
	case DetectorNameRegex:
	default:
		return fmt.Errorf("DetectorName: unknown detector %q", c.DetectorName)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MinConfidence: must be between 0 and 1 (current value: %g)", c.MinConfidence)
	}
	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("Server.MaxRequestBytes: must be positive (current value: %d)", c.Server.MaxRequestBytes)
	}

	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("CORS.AllowedOrigins: at least one origin is required when CORS is enabled")
		}
		for _, origin := range c.CORS.AllowedOrigins {
			if err := validateURL(origin, "CORS.AllowedOrigins"); err != nil {
				return err
			}
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("RateLimit.RequestsPerSecond: must be positive (current value: %g)", c.RateLimit.RequestsPerSecond)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("RateLimit.Burst: must be positive (current value: %d)", c.RateLimit.Burst)
		}
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("Logging.Format: must be json or console (current value: %s)", c.Logging.Format)
	}

	return nil
}

// validatePort checks that a port is in the ':PORT' form
func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	p, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, p)
	}
	return nil
}

// validateURL checks that a value is an absolute http(s) URL
func validateURL(raw, fieldName string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL format: %w", fieldName, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute http(s) URL (current value: %s)", fieldName, raw)
	}
	return nil
}
