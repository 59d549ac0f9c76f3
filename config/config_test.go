package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePort(t *testing.T) {
	testCases := []struct {
		name      string
		port      string
		fieldName string
		expectErr bool
		errString string
	}{
		{
			name:      "valid port",
			port:      ":8000",
			fieldName: "ServerPort",
			expectErr: false,
		},
		{
			name:      "empty port",
			port:      "",
			fieldName: "ServerPort",
			expectErr: true,
			errString: "ServerPort: port cannot be empty",
		},
		{
			name:      "no colon",
			port:      "8000",
			fieldName: "ServerPort",
			expectErr: true,
			errString: "ServerPort: port must be in format ':PORT' where PORT is numeric (current value: 8000)",
		},
		{
			name:      "non-numeric",
			port:      ":abcd",
			fieldName: "ServerPort",
			expectErr: true,
			errString: "ServerPort: port must be in format ':PORT' where PORT is numeric (current value: :abcd)",
		},
		{
			name:      "port out of range (low)",
			port:      ":0",
			fieldName: "ServerPort",
			expectErr: true,
			errString: "ServerPort: port must be between 1 and 65535 (current value: 0)",
		},
		{
			name:      "port out of range (high)",
			port:      ":65536",
			fieldName: "ServerPort",
			expectErr: true,
			errString: "ServerPort: port must be between 1 and 65535 (current value: 65536)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePort(tc.port, tc.fieldName)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelDir != "model/model-best" {
		t.Errorf("expected default model dir 'model/model-best', got '%s'", cfg.ModelDir)
	}
	if cfg.DetectorName != DetectorNameONNXModel {
		t.Errorf("expected default detector '%s', got '%s'", DetectorNameONNXModel, cfg.DetectorName)
	}
	if cfg.CORS.Enabled {
		t.Error("expected CORS to be disabled by default")
	}
	if len(cfg.CORS.AllowedOrigins) != 2 ||
		cfg.CORS.AllowedOrigins[0] != "http://localhost" ||
		cfg.CORS.AllowedOrigins[1] != "http://localhost:3000" {
		t.Errorf("unexpected default origins: %v", cfg.CORS.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}

	// The default origin list must not alias the package variable
	cfg.CORS.AllowedOrigins[0] = "http://example.com"
	if DefaultCORSOrigins[0] != "http://localhost" {
		t.Error("DefaultConfig shares its origin slice with DefaultCORSOrigins")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(cfg *Config)
		errSubstr string
	}{
		{
			name:      "unknown detector",
			mutate:    func(cfg *Config) { cfg.DetectorName = "spacy" },
			errSubstr: "DetectorName",
		},
		{
			name:      "empty model dir",
			mutate:    func(cfg *Config) { cfg.ModelDir = "" },
			errSubstr: "ModelDir",
		},
		{
			name: "remote detector with relative URL",
			mutate: func(cfg *Config) {
				cfg.DetectorName = DetectorNameModel
				cfg.ModelBaseURL = "localhost:8001"
			},
			errSubstr: "ModelBaseURL",
		},
		{
			name:      "confidence out of range",
			mutate:    func(cfg *Config) { cfg.MinConfidence = 1.5 },
			errSubstr: "MinConfidence",
		},
		{
			name:      "zero request size",
			mutate:    func(cfg *Config) { cfg.Server.MaxRequestBytes = 0 },
			errSubstr: "MaxRequestBytes",
		},
		{
			name: "cors enabled without origins",
			mutate: func(cfg *Config) {
				cfg.CORS.Enabled = true
				cfg.CORS.AllowedOrigins = nil
			},
			errSubstr: "AllowedOrigins",
		},
		{
			name: "cors origin without scheme",
			mutate: func(cfg *Config) {
				cfg.CORS.Enabled = true
				cfg.CORS.AllowedOrigins = []string{"localhost:3000"}
			},
			errSubstr: "AllowedOrigins",
		},
		{
			name: "rate limit without burst",
			mutate: func(cfg *Config) {
				cfg.RateLimit.Enabled = true
				cfg.RateLimit.Burst = 0
			},
			errSubstr: "RateLimit.Burst",
		},
		{
			name:      "bad log format",
			mutate:    func(cfg *Config) { cfg.Logging.Format = "xml" },
			errSubstr: "Logging.Format",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected an error containing '%s', got nil", tc.errSubstr)
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Errorf("expected error containing '%s', got '%s'", tc.errSubstr, err.Error())
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("MODEL_DIR", "/models/ner")
	t.Setenv("DETECTOR_NAME", DetectorNameRegex)
	t.Setenv("MIN_CONFIDENCE", "0.7")
	t.Setenv("CORS_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test:3000,")
	t.Setenv("MAX_REQUEST_BYTES", "2048")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_RPS", "5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "CONSOLE")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.ServerPort != ":9000" {
		t.Errorf("expected port ':9000', got '%s'", cfg.ServerPort)
	}
	if cfg.ModelDir != "/models/ner" {
		t.Errorf("expected model dir '/models/ner', got '%s'", cfg.ModelDir)
	}
	if cfg.DetectorName != DetectorNameRegex {
		t.Errorf("expected detector '%s', got '%s'", DetectorNameRegex, cfg.DetectorName)
	}
	if cfg.MinConfidence != 0.7 {
		t.Errorf("expected min confidence 0.7, got %g", cfg.MinConfidence)
	}
	if !cfg.CORS.Enabled {
		t.Error("expected CORS to be enabled")
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://b.test:3000" {
		t.Errorf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Server.MaxRequestBytes != 2048 {
		t.Errorf("expected max request bytes 2048, got %d", cfg.Server.MaxRequestBytes)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected env config to be valid, got: %v", err)
	}
}

func TestLoadFromEnv_IgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("MIN_CONFIDENCE", "high")
	t.Setenv("MAX_REQUEST_BYTES", "lots")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.MinConfidence != 0.5 {
		t.Errorf("expected min confidence to stay 0.5, got %g", cfg.MinConfidence)
	}
	if cfg.Server.MaxRequestBytes != 1<<20 {
		t.Errorf("expected max request bytes to stay %d, got %d", 1<<20, cfg.Server.MaxRequestBytes)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"model_dir": "/srv/model",
		"cors": {"enabled": true},
		"patterns": {"EMAIL": "[a-z]+@[a-z]+\\.com"}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.ModelDir != "/srv/model" {
		t.Errorf("expected model dir '/srv/model', got '%s'", cfg.ModelDir)
	}
	if !cfg.CORS.Enabled {
		t.Error("expected CORS to be enabled from file")
	}
	// Fields absent from the file keep their defaults
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("expected default origins to survive, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.ServerPort != ":8000" {
		t.Errorf("expected default port to survive, got '%s'", cfg.ServerPort)
	}
	if cfg.Patterns["EMAIL"] == "" {
		t.Error("expected EMAIL pattern to be loaded")
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := LoadFromFile("", DefaultConfig()); err == nil {
		t.Error("expected error for empty path")
	}

	if err := LoadFromFile(filepath.Join(dir, "missing.json"), DefaultConfig()); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	err := LoadFromFile(bad, DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}
