package llm

import (
	"context"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// FieldValue is one extracted invoice field. The model explains itself in
// Reasoning and self-reports a confidence tier per field.
type FieldValue struct {
	Value      string                   `json:"value"`
	Reasoning  string                   `json:"reasoning,omitempty"`
	Confidence constants.ConfidenceTier `json:"confidence"`
}

// ExtractionResult is the structured outcome of one extraction call.
// Fields the model did not emit are absent from the map, never defaulted.
// TokensUsed is reported even when extraction fails semantically, for cost
// accounting.
type ExtractionResult struct {
	Fields     map[string]FieldValue
	TokensUsed int
}

// FieldExtractor is Stage 2: OCR text -> structured invoice fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (ExtractionResult, error)
}
