package detectors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/daulet/tokenizers"
)

const (
	maxSeqLen = 512 // Based on config max_position_embeddings
	overlap   = 64
	stride    = maxSeqLen - overlap

	outsideLabel = "O"
)

// tokenChunk is one model window over the full token sequence
type tokenChunk struct {
	tokenIDs        []uint32
	offsets         []tokenizers.Offset
	startTokenIndex int
	isFirst         bool
	isLast          bool
}

// tokenPrediction is the label chosen for a single token
type tokenPrediction struct {
	label      string
	confidence float64
}

// safeUintToInt safely converts a uint to int with bounds checking
// Returns maxInt if the value would overflow
func safeUintToInt(val uint) int {
	const maxInt = int(^uint(0) >> 1)
	if val <= uint(maxInt) {
		// #nosec G115 - Safe conversion with bounds checking
		return int(val)
	}
	return maxInt
}

// chunkTokens splits a token sequence into windows of at most maxSeqLen
// tokens, each starting stride tokens after the previous one.
func chunkTokens(tokenIDs []uint32, offsets []tokenizers.Offset) []tokenChunk {
	n := len(tokenIDs)
	if len(offsets) < n {
		n = len(offsets)
	}

	if n <= maxSeqLen {
		return []tokenChunk{{
			tokenIDs:        tokenIDs[:n],
			offsets:         offsets[:n],
			startTokenIndex: 0,
			isFirst:         true,
			isLast:          true,
		}}
	}

	var chunks []tokenChunk
	for start := 0; ; start += stride {
		end := start + maxSeqLen
		if end > n {
			end = n
		}
		chunks = append(chunks, tokenChunk{
			tokenIDs:        tokenIDs[start:end],
			offsets:         offsets[start:end],
			startTokenIndex: start,
			isFirst:         start == 0,
			isLast:          end == n,
		})
		if end == n {
			break
		}
	}
	return chunks
}

// ownedRange returns the half-open range of global token indices whose
// prediction is taken from this chunk. Tokens in an overlap belong to the
// chunk in which they sit further from the edge.
func (c tokenChunk) ownedRange() (int, int) {
	from := c.startTokenIndex
	to := c.startTokenIndex + len(c.tokenIDs)
	if !c.isFirst {
		from += overlap / 2
	}
	if !c.isLast {
		to -= overlap / 2
	}
	return from, to
}

// predictToken picks the highest scoring class and its softmax probability
func predictToken(logits []float32) (int, float64) {
	if len(logits) == 0 {
		return 0, 0
	}

	best := 0
	maxLogit := float64(logits[0])
	for j, logit := range logits {
		if float64(logit) > maxLogit {
			maxLogit = float64(logit)
			best = j
		}
	}

	var sum float64
	for _, logit := range logits {
		sum += math.Exp(float64(logit) - maxLogit)
	}
	return best, 1 / sum
}

// splitLabel separates a tagging-scheme prefix from the entity type.
// "B-PERSON" -> ("B", "PERSON"), "GPE" -> ("", "GPE"), "O" -> ("", "").
func splitLabel(label string) (string, string) {
	if label == "" || label == outsideLabel {
		return "", ""
	}
	if len(label) > 2 && label[1] == '-' && strings.ContainsRune("BIELUS", rune(label[0])) {
		return label[:1], label[2:]
	}
	return "", label
}

// decodeEntities groups per-token predictions into entity spans over text.
// Tokens with empty offsets (special tokens) are treated as outside.
func decodeEntities(text string, offsets []tokenizers.Offset, predictions []tokenPrediction) []Entity {
	entities := []Entity{}

	var current *Entity
	var tokens int

	flush := func() {
		if current == nil {
			return
		}
		current.Text = text[current.StartPos:current.EndPos]
		entities = append(entities, *current)
		current = nil
		tokens = 0
	}

	n := len(predictions)
	if len(offsets) < n {
		n = len(offsets)
	}

	for i := 0; i < n; i++ {
		start := safeUintToInt(offsets[i][0])
		end := safeUintToInt(offsets[i][1])
		if end <= start || end > len(text) {
			flush()
			continue
		}

		prefix, base := splitLabel(predictions[i].label)
		if base == "" {
			flush()
			continue
		}

		continues := prefix == "" || prefix == "I" || prefix == "L" || prefix == "E"
		if current != nil && current.Label == base && continues && start >= current.EndPos {
			current.EndPos = end
			tokens++
			current.Confidence += (predictions[i].confidence - current.Confidence) / float64(tokens)
		} else {
			flush()
			current = &Entity{
				Label:      base,
				StartPos:   start,
				EndPos:     end,
				Confidence: predictions[i].confidence,
			}
			tokens = 1
		}

		// Single-token and closing tags end the span.
		switch prefix {
		case "L", "E", "U", "S":
			flush()
		}
	}
	flush()

	return entities
}

// parseLabelMap reads id2label from a HuggingFace style config.json and
// returns the labels by class index plus the number of classes.
func parseLabelMap(data []byte) (map[int]string, int, error) {
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, 0, fmt.Errorf("failed to parse label config: %w", err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, 0, fmt.Errorf("label config has no id2label entries")
	}

	labels := make(map[int]string, len(cfg.ID2Label))
	numLabels := 0
	for idStr, label := range cfg.ID2Label {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid label id %q: %w", idStr, err)
		}
		// Skip special labels like "-100" for IGNORE
		if id < 0 {
			continue
		}
		labels[id] = label
		if id >= numLabels {
			numLabels = id + 1
		}
	}
	if numLabels == 0 {
		return nil, 0, fmt.Errorf("label config has no usable labels")
	}
	return labels, numLabels, nil
}

// lengthPolicyKeys are tokenizer.json sections that cut or pad encodings.
// Windowing owns sequence length, so both are cleared before loading.
var lengthPolicyKeys = []string{"truncation", "padding"}

// clearLengthPolicies nulls any truncation or padding block in a serialized
// tokenizer. It reports which blocks were cleared.
func clearLengthPolicies(data []byte) ([]byte, []string, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tokenizer config: %w", err)
	}

	var cleared []string
	for _, key := range lengthPolicyKeys {
		raw, ok := sections[key]
		if !ok || string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		sections[key] = json.RawMessage("null")
		cleared = append(cleared, key)
	}
	if len(cleared) == 0 {
		return data, nil, nil
	}

	out, err := json.Marshal(sections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rewrite tokenizer config: %w", err)
	}
	return out, cleared, nil
}
