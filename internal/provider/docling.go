package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// traceHeader is the provider-supplied request correlation header we capture
// on every call. It is attached to outcomes but never logged with content.
const traceHeader = "X-Request-Id"

// DoclingConfig parameterizes the synchronous docling-serve adapter.
type DoclingConfig struct {
	BaseURL string // e.g. http://docling:5001
	APIKey  string // optional; sent as a bearer token when set

	// RequestOptions is merged over the fixed conversion options, letting
	// deployments tune the OCR engine or backend without a code change.
	RequestOptions map[string]any

	// StripImageLinks removes image-placeholder-only lines from the output.
	StripImageLinks bool

	Timeout time.Duration // per-request HTTP timeout
}

// Docling converts a document in a single request/response exchange.
type Docling struct {
	cfg    DoclingConfig
	http   *http.Client
	logger *slog.Logger
}

func NewDocling(cfg DoclingConfig, logger *slog.Logger) *Docling {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Docling{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type doclingResponse struct {
	Status   string `json:"status"`
	Document struct {
		MDContent      string `json:"md_content"`
		TextContent    string `json:"text_content"`
		HTMLContent    string `json:"html_content"`
		DoctagsContent string `json:"doctags_content"`
		Metadata       struct {
			Pages int   `json:"pages"`
			Bytes int64 `json:"bytes"`
		} `json:"metadata"`
	} `json:"document"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Extract POSTs the conversion request and parses the in-band status.
// Transport success does not imply task success: a 2xx response with a
// non-"success" status is a failed_status error, not a server error.
func (d *Docling) Extract(ctx context.Context, url string) (Result, error) {
	start := time.Now()

	if strings.TrimSpace(url) == "" {
		return Result{}, NewError(NameDocling, CategoryValidation, "empty source url", nil)
	}
	if d.cfg.BaseURL == "" {
		return Result{}, NewError(NameDocling, CategoryValidation, "docling base URL not configured", nil)
	}

	body := map[string]any{
		"options": d.convertOptions(),
		"sources": []map[string]any{
			{"kind": "http", "url": url},
		},
	}

	d.logger.Info("docling.convert.start", "options_overrides", len(d.cfg.RequestOptions))

	raw, traceID, err := d.post(ctx, strings.TrimRight(d.cfg.BaseURL, "/")+"/v1/convert/source", body)
	if err != nil {
		return Result{}, err
	}

	var resp doclingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, &Error{
			Category: CategoryServer,
			Provider: NameDocling,
			TraceID:  traceID,
			Message:  "decode response",
			Cause:    err,
		}
	}

	if resp.Status != "success" {
		msg := "conversion failed"
		if len(resp.Errors) > 0 && resp.Errors[0].Message != "" {
			msg = resp.Errors[0].Message
		}
		d.logger.Error("docling.convert.failed_status", "status", resp.Status, "trace_id", traceID)
		return Result{}, &Error{
			Category: CategoryFailedStatus,
			Provider: NameDocling,
			TraceID:  traceID,
			Message:  msg,
		}
	}

	// Probe content fields in order of preference and take the first
	// non-empty one.
	text := firstNonEmpty(
		resp.Document.MDContent,
		resp.Document.TextContent,
		resp.Document.HTMLContent,
		resp.Document.DoctagsContent,
	)
	if text == "" {
		return Result{}, &Error{
			Category: CategoryFailedStatus,
			Provider: NameDocling,
			TraceID:  traceID,
			Message:  "empty output",
		}
	}
	if d.cfg.StripImageLinks {
		text = stripImagePlaceholders(text)
	}

	dur := time.Since(start)
	d.logger.Info("docling.convert.ok",
		"pages", resp.Document.Metadata.Pages,
		"bytes", resp.Document.Metadata.Bytes,
		"text_len", len(text),
		"trace_id", traceID,
		"elapsed_ms", dur.Milliseconds(),
	)

	return Result{
		Text: text,
		Metadata: Metadata{
			Provider: NameDocling,
			Duration: dur,
			Pages:    resp.Document.Metadata.Pages,
			Bytes:    resp.Document.Metadata.Bytes,
			TraceID:  traceID,
		},
	}, nil
}

// convertOptions builds the fixed options payload: PDF in, markdown out, OCR
// forced on. Config overrides are applied last.
func (d *Docling) convertOptions() map[string]any {
	opts := map[string]any{
		"from_formats": []string{"pdf"},
		"to_formats":   []string{"md"},
		"do_ocr":       true,
		"ocr_engine":   "easyocr",
		"pdf_backend":  "dlparse_v2",
	}
	for k, v := range d.cfg.RequestOptions {
		opts[k] = v
	}
	return opts
}

func (d *Docling) post(ctx context.Context, url string, body map[string]any) ([]byte, string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, "", NewError(NameDocling, CategoryValidation, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, "", NewError(NameDocling, CategoryValidation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", NewError(NameDocling, CategoryTimeout, "request deadline exceeded", err)
		}
		return nil, "", NewError(NameDocling, CategoryServer, "transport failure", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			d.logger.Warn("docling.response_body_close_error", "error", cerr)
		}
	}()

	traceID := resp.Header.Get(traceHeader)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, traceID, &Error{
			Category: CategoryServer,
			Provider: NameDocling,
			TraceID:  traceID,
			Message:  "read response body",
			Cause:    err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := NewHTTPError(NameDocling, resp.StatusCode,
			fmt.Sprintf("convert returned status %d", resp.StatusCode), nil)
		e.TraceID = traceID
		return nil, traceID, e
	}
	return raw, traceID, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// reImageLine matches lines that carry nothing but an image placeholder:
// either docling's "<!-- image -->" comment or a bare markdown image link.
var reImageLine = regexp.MustCompile(`^\s*(<!--\s*image\s*-->|!\[[^\]]*\]\([^)]*\))\s*$`)

func stripImagePlaceholders(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if reImageLine.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
