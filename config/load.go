package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const TRUE = "true"

// LoadFromFile reads a JSON config file over the values already in cfg.
// Fields absent from the file keep their current value.
func LoadFromFile(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("config path is not set")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", path)
	}

	// #nosec G304 - Config file path comes from the operator's command line
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overrides configuration with environment variables
func LoadFromEnv(cfg *Config) {
	loadApplicationConfig(cfg)
	loadDetectorConfig(cfg)
	loadServerConfig(cfg)
	loadLoggingConfig(cfg)
}

// loadApplicationConfig loads listener, CORS and error reporting settings
func loadApplicationConfig(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.ServerPort = port
	}

	if enabled := os.Getenv("CORS_ENABLED"); enabled != "" {
		cfg.CORS.Enabled = enabled == TRUE
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = splitList(origins)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Sentry.DSN = dsn
	}

	if env := os.Getenv("SENTRY_ENVIRONMENT"); env != "" {
		cfg.Sentry.Environment = env
	}
}

// loadDetectorConfig loads model and detector settings
func loadDetectorConfig(cfg *Config) {
	if dir := os.Getenv("MODEL_DIR"); dir != "" {
		cfg.ModelDir = dir
	}

	if detectorName := os.Getenv("DETECTOR_NAME"); detectorName != "" {
		cfg.DetectorName = detectorName
	}

	if modelBaseURL := os.Getenv("MODEL_BASE_URL"); modelBaseURL != "" {
		cfg.ModelBaseURL = modelBaseURL
	}

	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		cfg.ONNXRuntimeLibPath = libPath
	}

	if minConfidence := os.Getenv("MIN_CONFIDENCE"); minConfidence != "" {
		if v, err := strconv.ParseFloat(minConfidence, 64); err == nil {
			cfg.MinConfidence = v
		}
	}
}

// loadServerConfig loads request limits
func loadServerConfig(cfg *Config) {
	if maxBytes := os.Getenv("MAX_REQUEST_BYTES"); maxBytes != "" {
		if v, err := strconv.ParseInt(maxBytes, 10, 64); err == nil {
			cfg.Server.MaxRequestBytes = v
		}
	}

	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		cfg.RateLimit.Enabled = enabled == TRUE
	}

	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = v
		}
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = v
		}
	}
}

// loadLoggingConfig loads logging configuration from environment variables
func loadLoggingConfig(cfg *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = strings.ToLower(format)
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
