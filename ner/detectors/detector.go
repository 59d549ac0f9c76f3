package detectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/hannes/yaak-ner/config"
)

var ErrDetectorClosed = errors.New("detector is closed")

type Detector interface {
	GetName() string
	Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error)
	Close() error
}

// Options carries everything a detector factory may need. Each factory reads
// only the fields relevant to it.
type Options struct {
	ModelPath     string
	TokenizerPath string
	LabelMapPath  string
	LibraryPath   string
	MinConfidence float64
	BaseURL       string
	HTTPClient    *http.Client
	Patterns      map[string]string
}

type NewDetectorFunc func(opts Options) (Detector, error)

var (
	factoriesMu       sync.RWMutex
	detectorFactories = make(map[string]NewDetectorFunc)
)

func RegisterDetectorFactory(name string, factory NewDetectorFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	detectorFactories[name] = factory
}

// registeredDetectors returns the names of all registered factories, sorted
func registeredDetectors() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(detectorFactories))
	for name := range detectorFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewDetector(name string, opts Options) (Detector, error) {
	factoriesMu.RLock()
	factory, ok := detectorFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("detector factory not found for name: %s (registered: %s)",
			name, strings.Join(registeredDetectors(), ", "))
	}
	return factory(opts)
}

func init() {
	RegisterDetectorFactory(config.DetectorNameModel, func(opts Options) (Detector, error) {
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required for model detector")
		}
		return NewModelDetector(opts.BaseURL, opts.HTTPClient), nil
	})

	RegisterDetectorFactory(config.DetectorNameRegex, func(opts Options) (Detector, error) {
		patterns := opts.Patterns
		if len(patterns) == 0 {
			patterns = DefaultPatterns
		}
		return NewRegexDetector(patterns)
	})

	RegisterDetectorFactory(config.DetectorNameONNXModel, func(opts Options) (Detector, error) {
		if opts.ModelPath == "" {
			return nil, fmt.Errorf("model_path is required for ONNX model detector")
		}
		if opts.TokenizerPath == "" {
			return nil, fmt.Errorf("tokenizer_path is required for ONNX model detector")
		}
		if opts.LabelMapPath == "" {
			return nil, fmt.Errorf("label_map_path is required for ONNX model detector")
		}
		return NewONNXModelDetector(opts)
	})
}
