package detectors

// DetectorInput represents the input for entity detection
type DetectorInput struct {
	Text string `json:"text"`
}

// DetectorOutput represents the output of entity detection
type DetectorOutput struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity represents a detected named entity. StartPos and EndPos are byte
// offsets into the input and Text is always Input[StartPos:EndPos].
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}
