package detectors

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/hannes/yaak-ner/config"
)

// RegexDetector implements Detector using regular expressions
type RegexDetector struct {
	patterns map[string]*regexp.Regexp
}

func NewRegexDetector(patterns map[string]string) (*RegexDetector, error) {
	regexMap := make(map[string]*regexp.Regexp, len(patterns))
	for label, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for label %s: %w", label, err)
		}
		regexMap[label] = re
	}

	return &RegexDetector{
		patterns: regexMap,
	}, nil
}

// GetName returns the name of this detector
func (r *RegexDetector) GetName() string {
	return config.DetectorNameRegex
}

// Detect returns every pattern match ordered by position in the input
func (r *RegexDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	entities := []Entity{}

	for label, pattern := range r.patterns {
		if err := ctx.Err(); err != nil {
			return DetectorOutput{}, err
		}
		for _, match := range pattern.FindAllStringIndex(input.Text, -1) {
			startPos, endPos := match[0], match[1]
			if endPos == startPos {
				continue
			}
			entities = append(entities, Entity{
				Text:       input.Text[startPos:endPos],
				Label:      label,
				StartPos:   startPos,
				EndPos:     endPos,
				Confidence: 1.0,
			})
		}
	}

	// Map iteration order is random; sort so output is left to right and stable.
	sort.Slice(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.StartPos != b.StartPos {
			return a.StartPos < b.StartPos
		}
		if a.EndPos != b.EndPos {
			return a.EndPos > b.EndPos
		}
		return a.Label < b.Label
	})

	return DetectorOutput{
		Text:     input.Text,
		Entities: entities,
	}, nil
}

// Close implements the Detector interface
func (r *RegexDetector) Close() error {
	// Regex detector doesn't need cleanup
	return nil
}
