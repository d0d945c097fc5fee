package pipeline

import (
	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// tierWeights turns the closed confidence tiers into numeric contributions.
var tierWeights = map[constants.ConfidenceTier]float32{
	constants.ConfidenceHigh:   1.0,
	constants.ConfidenceMedium: 0.6,
	constants.ConfidenceLow:    0.3,
}

// OverallConfidence derives a single score from the per-field tier
// distribution. The extraction stage owns this derivation, not the adapter.
// Unknown tiers contribute nothing; no fields means zero.
func OverallConfidence(fields map[string]llm.FieldValue) float32 {
	if len(fields) == 0 {
		return 0
	}
	var sum float32
	for _, f := range fields {
		sum += tierWeights[f.Confidence]
	}
	return sum / float32(len(fields))
}
