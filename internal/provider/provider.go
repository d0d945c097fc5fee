package provider

import (
	"context"
	"log/slog"
	"time"
)

// Provider IDs accepted by the factory. These are the values the
// OCR_PROVIDER selector may take.
const (
	NameDocling = "docling"
	NameMarker  = "marker"
)

// Provider converts one document into text. Implementations hold no
// job-specific state between invocations; the calling environment may tear
// the process down between pipeline steps.
type Provider interface {
	// Extract fetches and converts the document at url, returning the
	// normalized text and call metadata, or a *Error.
	Extract(ctx context.Context, url string) (Result, error)
}

// Result is the transient outcome of one provider invocation. It is owned by
// the calling step and never persisted as-is.
type Result struct {
	Text     string
	Metadata Metadata
}

// Metadata describes how the result was produced.
type Metadata struct {
	Provider   string
	Duration   time.Duration
	Confidence float32 // 0 when the provider reports none
	Pages      int     // 0 when unknown
	Bytes      int64   // 0 when unknown
	TraceID    string  // most recent provider trace id, if any
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // NameDocling | NameMarker
	Docling  DoclingConfig
	Marker   MarkerConfig
}

// New resolves the configured provider id to an adapter. Unknown ids fail
// fast with category validation.
func New(cfg Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case NameDocling:
		return NewDocling(cfg.Docling, logger), nil
	case NameMarker:
		return NewMarker(cfg.Marker, logger), nil
	default:
		return nil, NewError(cfg.Provider, CategoryValidation,
			"unknown OCR provider", nil)
	}
}
