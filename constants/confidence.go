package constants

// ConfidenceTier is the closed set of per-field confidence labels the
// extraction model may emit.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

func (t ConfidenceTier) Valid() bool {
	switch t {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}
