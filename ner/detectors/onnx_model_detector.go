package detectors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/hannes/yaak-ner/config"
	"github.com/hannes/yaak-ner/logger"
)

const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	tokenTypeIDsName  = "token_type_ids"
)

// Library locations tried when neither config nor environment names one
var onnxLibraryCandidates = []string{
	"./libonnxruntime.so",
	"./build/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"./libonnxruntime.dylib",
	"./build/libonnxruntime.dylib",
}

// ONNXModelDetector runs a token-classification model in process.
//
// The session is bound to fixed-size tensors that are rewritten for every
// window, so inference is serialized by mu.
type ONNXModelDetector struct {
	mu            sync.Mutex
	tokenizer     *tokenizers.Tokenizer
	session       *onnxruntime.AdvancedSession
	inputTensor   *onnxruntime.Tensor[int64]
	maskTensor    *onnxruntime.Tensor[int64]
	typeTensor    *onnxruntime.Tensor[int64]
	outputTensor  *onnxruntime.Tensor[float32]
	id2label      map[int]string
	numLabels     int
	minConfidence float64
	modelPath     string
}

// NewONNXModelDetector loads the tokenizer, label map and ONNX session.
// Everything is loaded eagerly so a broken artifact fails at startup.
func NewONNXModelDetector(opts Options) (*ONNXModelDetector, error) {
	if err := initializeEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	labelData, err := os.ReadFile(opts.LabelMapPath)
	if err != nil {
		destroyEnvironment()
		return nil, fmt.Errorf("failed to read label config: %w", err)
	}
	id2label, numLabels, err := parseLabelMap(labelData)
	if err != nil {
		destroyEnvironment()
		return nil, err
	}

	tk, err := loadTokenizer(opts.TokenizerPath)
	if err != nil {
		destroyEnvironment()
		return nil, err
	}

	detector := &ONNXModelDetector{
		tokenizer:     tk,
		id2label:      id2label,
		numLabels:     numLabels,
		minConfidence: opts.MinConfidence,
		modelPath:     opts.ModelPath,
	}

	if err := detector.initializeSession(); err != nil {
		if closeErr := tk.Close(); closeErr != nil {
			logger.Warn("failed to close tokenizer during cleanup", "error", closeErr)
		}
		destroyEnvironment()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	logger.Info("ONNX model loaded",
		"model_path", opts.ModelPath,
		"labels", numLabels,
		"max_seq_len", maxSeqLen,
	)
	return detector, nil
}

// loadTokenizer loads tokenizer.json with truncation and padding cleared so
// every token reaches the windowing step.
func loadTokenizer(path string) (*tokenizers.Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer: %w", err)
	}

	data, cleared, err := clearLengthPolicies(data)
	if err != nil {
		return nil, err
	}
	if len(cleared) > 0 {
		logger.Warn("ignoring tokenizer length policies", "path", path, "sections", cleared)
	}

	tk, err := tokenizers.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return tk, nil
}

// initializeEnvironment points onnxruntime at its shared library and starts
// the process-wide environment once.
func initializeEnvironment(libPath string) error {
	if onnxruntime.IsInitialized() {
		return nil
	}

	if libPath == "" {
		libPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if libPath == "" {
		for _, path := range onnxLibraryCandidates {
			if _, err := os.Stat(path); err == nil {
				libPath = path
				break
			}
		}
	}
	if libPath != "" {
		onnxruntime.SetSharedLibraryPath(libPath)
	}

	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return nil
}

func destroyEnvironment() {
	if err := onnxruntime.DestroyEnvironment(); err != nil {
		logger.Warn("failed to destroy ONNX Runtime environment", "error", err)
	}
}

// GetName returns the name of this detector
func (d *ONNXModelDetector) GetName() string {
	return config.DetectorNameONNXModel
}

// Detect tokenizes the input, runs every window through the model and
// decodes the token labels into entities in input order.
func (d *ONNXModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	if input.Text == "" {
		return DetectorOutput{Text: input.Text, Entities: []Entity{}}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return DetectorOutput{}, ErrDetectorClosed
	}

	encoding := d.tokenizer.EncodeWithOptions(input.Text, true, tokenizers.WithReturnOffsets())
	predictions := make([]tokenPrediction, len(encoding.IDs))

	for _, chunk := range chunkTokens(encoding.IDs, encoding.Offsets) {
		if err := ctx.Err(); err != nil {
			return DetectorOutput{}, err
		}

		d.updateInputTensors(chunk.tokenIDs)

		if err := d.session.Run(); err != nil {
			return DetectorOutput{}, fmt.Errorf("failed to run inference: %w", err)
		}

		d.collectPredictions(chunk, predictions)
	}

	entities := decodeEntities(input.Text, encoding.Offsets, predictions)
	logger.Debug("ONNX inference complete",
		"tokens", len(encoding.IDs),
		"entities", len(entities),
	)

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// collectPredictions reads the output tensor for the tokens this chunk owns
func (d *ONNXModelDetector) collectPredictions(chunk tokenChunk, predictions []tokenPrediction) {
	outputData := d.outputTensor.GetData()
	from, to := chunk.ownedRange()

	for global := from; global < to && global < len(predictions); global++ {
		local := global - chunk.startTokenIndex
		startIdx := local * d.numLabels
		endIdx := startIdx + d.numLabels
		if endIdx > len(outputData) {
			break
		}

		classID, confidence := predictToken(outputData[startIdx:endIdx])
		label, exists := d.id2label[classID]
		if !exists || confidence < d.minConfidence {
			label = outsideLabel
		}
		predictions[global] = tokenPrediction{label: label, confidence: confidence}
	}
}

// initializeSession creates the fixed-size tensors and binds them to a session
func (d *ONNXModelDetector) initializeSession() error {
	inputsInfo, outputsInfo, err := onnxruntime.GetInputOutputInfo(d.modelPath)
	if err != nil {
		return fmt.Errorf("failed to read model inputs: %w", err)
	}
	if len(outputsInfo) == 0 {
		return errors.New("model declares no outputs")
	}

	needsTokenTypes := false
	for _, info := range inputsInfo {
		if info.Name == tokenTypeIDsName {
			needsTokenTypes = true
		}
	}

	batchSize := int64(1)
	inputShape := onnxruntime.NewShape(batchSize, maxSeqLen)

	var created []interface{ Destroy() error }
	cleanup := func() {
		for _, t := range created {
			if err := t.Destroy(); err != nil {
				logger.Warn("failed to destroy tensor during cleanup", "error", err)
			}
		}
	}

	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	created = append(created, inputTensor)

	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to create mask tensor: %w", err)
	}
	created = append(created, maskTensor)

	inputNames := []string{inputIDsName, attentionMaskName}
	inputs := []onnxruntime.Value{inputTensor, maskTensor}

	var typeTensor *onnxruntime.Tensor[int64]
	if needsTokenTypes {
		typeTensor, err = onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to create token type tensor: %w", err)
		}
		created = append(created, typeTensor)
		inputNames = append(inputNames, tokenTypeIDsName)
		inputs = append(inputs, typeTensor)
	}

	outputShape := onnxruntime.NewShape(batchSize, maxSeqLen, int64(d.numLabels))
	outputTensor, err := onnxruntime.NewEmptyTensor[float32](outputShape)
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	created = append(created, outputTensor)

	session, err := onnxruntime.NewAdvancedSession(d.modelPath,
		inputNames,
		[]string{outputsInfo[0].Name},
		inputs,
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to create session: %w", err)
	}

	d.session = session
	d.inputTensor = inputTensor
	d.maskTensor = maskTensor
	d.typeTensor = typeTensor
	d.outputTensor = outputTensor

	return nil
}

// updateInputTensors writes one window into the bound input tensors
func (d *ONNXModelDetector) updateInputTensors(tokenIDs []uint32) {
	inputData := d.inputTensor.GetData()
	maskData := d.maskTensor.GetData()

	// Clear previous data
	for i := range inputData {
		inputData[i] = 0
		maskData[i] = 0
	}

	for i, id := range tokenIDs {
		inputData[i] = int64(id)
		maskData[i] = 1
	}
}

// Close implements the Detector interface
func (d *ONNXModelDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
		d.session = nil
	}
	if d.inputTensor != nil {
		if err := d.inputTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy input tensor: %w", err))
		}
		d.inputTensor = nil
	}
	if d.maskTensor != nil {
		if err := d.maskTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy mask tensor: %w", err))
		}
		d.maskTensor = nil
	}
	if d.typeTensor != nil {
		if err := d.typeTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy token type tensor: %w", err))
		}
		d.typeTensor = nil
	}
	if d.outputTensor != nil {
		if err := d.outputTensor.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy output tensor: %w", err))
		}
		d.outputTensor = nil
	}
	if d.tokenizer != nil {
		if err := d.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tokenizer: %w", err))
		}
		d.tokenizer = nil
	}
	if onnxruntime.IsInitialized() {
		if err := onnxruntime.DestroyEnvironment(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy environment: %w", err))
		}
	}

	return errors.Join(errs...)
}
