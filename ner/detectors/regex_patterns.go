package detectors

// DefaultPatterns are used by the regex detector when no patterns are configured
var DefaultPatterns = map[string]string{
	"EMAIL":   `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
	"URL":     `\bhttps?://[^\s<>"]+[^\s<>".,;:!?)]`,
	"DATE":    `\b(?:\d{4}-\d{2}-\d{2}|(?:0?[1-9]|1[0-2])/(?:0?[1-9]|[12][0-9]|3[01])/(?:19|20)\d{2})\b`,
	"TIME":    `\b(?:[01]?[0-9]|2[0-3]):[0-5][0-9](?:\s?[AaPp][Mm])?\b`,
	"MONEY":   `[$€£]\s?\d+(?:,\d{3})*(?:\.\d+)?`,
	"PERCENT": `\b\d+(?:\.\d+)?\s?%`,
}
