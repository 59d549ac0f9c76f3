package detectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hannes/yaak-ner/config"
)

const modelDetectorTimeout = 30 * time.Second

// ModelDetector delegates detection to a model server reachable over HTTP
type ModelDetector struct {
	baseURL string
	client  *http.Client
}

type modelDetectRequest struct {
	Text string `json:"text"`
}

type modelDetectResponse struct {
	Entities []Entity `json:"entities"`
}

func NewModelDetector(baseURL string, client *http.Client) *ModelDetector {
	if client == nil {
		client = &http.Client{Timeout: modelDetectorTimeout}
	}
	return &ModelDetector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// GetName returns the name of this detector
func (m *ModelDetector) GetName() string {
	return config.DetectorNameModel
}

// Detect sends the input to {baseURL}/detect and returns the server's entities
func (m *ModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	if input.Text == "" {
		return DetectorOutput{Text: input.Text, Entities: []Entity{}}, nil
	}

	jsonData, err := json.Marshal(modelDetectRequest{Text: input.Text})
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/detect", bytes.NewReader(jsonData))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := m.client.Do(req)
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("model server request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return DetectorOutput{}, fmt.Errorf("model server returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	entities, err := convertResponseToEntities(response.Body, input.Text)
	if err != nil {
		return DetectorOutput{}, err
	}

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// convertResponseToEntities decodes the model server body and checks every
// entity's offsets against the submitted text.
func convertResponseToEntities(body io.Reader, text string) ([]Entity, error) {
	var decoded modelDetectResponse
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode model server response: %w", err)
	}

	entities := make([]Entity, 0, len(decoded.Entities))
	for _, entity := range decoded.Entities {
		if entity.StartPos < 0 || entity.EndPos > len(text) || entity.StartPos >= entity.EndPos {
			return nil, fmt.Errorf("model server returned invalid span [%d:%d] for %q", entity.StartPos, entity.EndPos, entity.Text)
		}
		// Offsets are authoritative; the text is taken from the input verbatim.
		entity.Text = text[entity.StartPos:entity.EndPos]
		entities = append(entities, entity)
	}
	return entities, nil
}

// Close implements the Detector interface
func (m *ModelDetector) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
