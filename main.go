package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/hannes/yaak-ner/config"
	"github.com/hannes/yaak-ner/logger"
	"github.com/hannes/yaak-ner/ner"
	"github.com/hannes/yaak-ner/server"
)

func main() {
	// Bootstrap logger so config errors are visible
	if err := logger.Init(config.DefaultConfig().Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	envErr := godotenv.Load()

	configPath := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			logger.Fatal("failed to load config file", "path", *configPath, "error", err)
		}
	}
	config.LoadFromEnv(cfg)

	if err := logger.Init(cfg.Logging); err != nil {
		logger.Fatal("failed to initialize logger", "error", err)
	}
	defer logger.Sync()

	if envErr == nil {
		logger.Info("loaded .env file")
	} else {
		logger.Debug(".env file not loaded", "error", envErr)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			logger.Fatal("failed to initialize sentry", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if cfg.DetectorName == config.DetectorNameONNXModel && modelEmbedded {
		if err := extractEmbeddedModelFiles(modelFiles, cfg.ModelDir); err != nil {
			logger.Warn("failed to extract embedded model files, using files on disk", "error", err)
		}
	}

	// The service never starts without a working model
	models, err := ner.NewModelManager(cfg)
	if err != nil {
		logger.Fatal("failed to load model", "detector", cfg.DetectorName, "model_dir", cfg.ModelDir, "error", err)
	}
	info := models.Info()
	logger.Info("model ready",
		"detector", info.Detector,
		"directory", info.Directory,
		"loaded_at", info.LoadedAt,
	)
	defer func() {
		if err := models.Close(); err != nil {
			logger.Error("failed to close model", "error", err)
		}
	}()

	srv, err := server.NewServer(cfg, models)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		return
	}
	logger.Info("server stopped")
}

// extractEmbeddedModelFiles writes the embedded model artifacts into dir.
// Files already present on disk are left alone.
func extractEmbeddedModelFiles(modelFS fs.FS, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	return fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		targetPath := filepath.Join(dir, filepath.Base(path))
		if _, err := os.Stat(targetPath); err == nil {
			logger.Debug("model file already present", "path", targetPath)
			return nil
		}

		content, err := fs.ReadFile(modelFS, path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(targetPath, content, 0600); err != nil {
			return err
		}

		logger.Info("extracted model file", "path", targetPath, "bytes", len(content))
		return nil
	})
}
