package ner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hannes/yaak-ner/config"
	"github.com/hannes/yaak-ner/logger"
	"github.com/hannes/yaak-ner/ner/detectors"
)

// ErrModelNotLoaded is returned when the model holder has been closed
var ErrModelNotLoaded = errors.New("model is not loaded")

// Files that must be present in an ONNX model directory
const (
	ModelFileName     = "model.onnx"
	TokenizerFileName = "tokenizer.json"
	LabelMapFileName  = "config.json"
)

// validationText is run once through a freshly loaded model
const validationText = "Barack Obama was born in Hawaii."

// ModelManager holds the process-wide model. It is loaded once by
// NewModelManager and is read-only afterwards.
type ModelManager struct {
	mu       sync.RWMutex
	detector detectors.Detector
	info     ModelInfo
}

// ModelInfo describes the loaded model for startup logging
type ModelInfo struct {
	Detector  string
	Directory string
	LoadedAt  time.Time
}

// ModelConfig holds paths to required model files
type ModelConfig struct {
	ModelPath     string
	TokenizerPath string
	LabelMapPath  string
}

// NewModelManager loads the detector named in cfg and runs a validation
// inference. Any error means the service must not start.
func NewModelManager(cfg *config.Config) (*ModelManager, error) {
	opts := detectors.Options{
		LibraryPath:   cfg.ONNXRuntimeLibPath,
		MinConfidence: cfg.MinConfidence,
		BaseURL:       cfg.ModelBaseURL,
		Patterns:      cfg.Patterns,
	}

	directory := ""
	if cfg.DetectorName == config.DetectorNameONNXModel {
		modelConfig, err := validateDirectory(cfg.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		opts.ModelPath = modelConfig.ModelPath
		opts.TokenizerPath = modelConfig.TokenizerPath
		opts.LabelMapPath = modelConfig.LabelMapPath
		directory = filepath.Dir(modelConfig.ModelPath)
	}

	logger.Info("loading model", "detector", cfg.DetectorName, "directory", directory)
	detector, err := detectors.NewDetector(cfg.DetectorName, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	return newModelManager(detector, directory)
}

// NewModelManagerWithDetector wraps an already constructed detector. The
// validation inference still runs.
func NewModelManagerWithDetector(detector detectors.Detector) (*ModelManager, error) {
	return newModelManager(detector, "")
}

func newModelManager(detector detectors.Detector, directory string) (*ModelManager, error) {
	if detector == nil {
		return nil, errors.New("detector is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := detector.Detect(ctx, detectors.DetectorInput{Text: validationText}); err != nil {
		if closeErr := detector.Close(); closeErr != nil {
			logger.Warn("failed to close detector after validation failure", "error", closeErr)
		}
		return nil, fmt.Errorf("model validation failed: %w", err)
	}

	mm := &ModelManager{
		detector: detector,
		info: ModelInfo{
			Detector:  detector.GetName(),
			Directory: directory,
			LoadedAt:  time.Now().UTC(),
		},
	}
	return mm, nil
}

// GetDetector returns the loaded detector
func (mm *ModelManager) GetDetector() (detectors.Detector, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if mm.detector == nil {
		return nil, ErrModelNotLoaded
	}
	return mm.detector, nil
}

// Detect runs the model over text and returns entities in input order.
// Empty text returns an empty slice.
func (mm *ModelManager) Detect(ctx context.Context, text string) ([]detectors.Entity, error) {
	if text == "" {
		return []detectors.Entity{}, nil
	}

	detector, err := mm.GetDetector()
	if err != nil {
		return nil, err
	}

	output, err := detector.Detect(ctx, detectors.DetectorInput{Text: text})
	if err != nil {
		return nil, err
	}
	if output.Entities == nil {
		return []detectors.Entity{}, nil
	}
	return output.Entities, nil
}

// Info returns information about the loaded model
func (mm *ModelManager) Info() ModelInfo {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.info
}

// validateDirectory checks that the directory exists and contains all required files
func validateDirectory(dir string) (*ModelConfig, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory does not exist: %s", dir)
		}
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	requiredFiles := []string{
		ModelFileName,
		TokenizerFileName,
		LabelMapFileName,
	}

	var missingFiles []string
	for _, filename := range requiredFiles {
		fullPath := filepath.Join(dir, filename)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			missingFiles = append(missingFiles, filename)
		}
	}

	if len(missingFiles) > 0 {
		return nil, fmt.Errorf("missing required files in directory: %v", missingFiles)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir // Fall back to original if abs fails
	}

	return &ModelConfig{
		ModelPath:     filepath.Join(absDir, ModelFileName),
		TokenizerPath: filepath.Join(absDir, TokenizerFileName),
		LabelMapPath:  filepath.Join(absDir, LabelMapFileName),
	}, nil
}

// Close releases the detector. Detect returns ErrModelNotLoaded afterwards.
func (mm *ModelManager) Close() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.detector == nil {
		return nil
	}

	logger.Info("closing model", "detector", mm.info.Detector)
	err := mm.detector.Close()
	mm.detector = nil
	if err != nil {
		return fmt.Errorf("failed to close detector: %w", err)
	}
	return nil
}
