package salvage

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/statement-extract/bank-statement-api/internal/utils"
)

const (
	// RawPreviewLimit bounds the joined-text preview attached to a failure.
	RawPreviewLimit = 32000
	// CandidatePreviewLimit bounds the serialized-candidate preview.
	CandidatePreviewLimit = 2000
)

// Failure describes an exhausted salvage attempt. Everything in it is
// diagnostic: the original parse error plus bounded previews of what the
// model actually sent back.
type Failure struct {
	ParseError       string         `json:"parse_error"`
	RawPreview       string         `json:"raw_preview"`
	PiecesCollected  int            `json:"pieces_collected"`
	UsageMetadata    map[string]any `json:"usage_metadata,omitempty"`
	CandidatePreview string         `json:"candidate_preview,omitempty"`
}

// Parse recovers a JSON object from model output text. Strategies run in
// order, first success wins:
//
//  1. parse the text as-is;
//  2. parse the span from the first '{' to the last '}', trimming prose on
//     both ends;
//  3. parse from the start through the last '}', trimming a truncated or
//     malformed tail.
//
// Strategy 2 runs before 3 because it handles both leading and trailing
// noise; 3 only helps when generation was cut off after at least one
// complete closing brace.
func Parse(text string) (map[string]any, *Failure) {
	result, firstErr := tryParse(text)
	if firstErr == nil {
		return result, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if result, err := tryParse(text[start : end+1]); err == nil {
			return result, nil
		}
	}

	if end > 0 {
		if result, err := tryParse(text[:end+1]); err == nil {
			return result, nil
		}
	}

	return nil, &Failure{
		ParseError: firstErr.Error(),
		RawPreview: utils.Truncate(text, RawPreviewLimit),
	}
}

// tryParse allocates a fresh map per attempt: Unmarshal may partially fill
// its target before failing, and stale keys must not leak between strategies.
// JSON null unmarshals into a nil map without error; that is not a usable
// statement, so it counts as a failure and the next strategy gets its turn.
func tryParse(text string) (map[string]any, error) {
	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("parsed value is not a JSON object")
	}
	return result, nil
}
