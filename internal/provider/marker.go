package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	// markerDeadline caps one Extract invocation end to end. The ceiling is
	// absolute wall-clock time, not a retry count.
	markerDeadline = 5 * time.Minute

	// markerJitterMax bounds the random noise added to each backoff step so
	// concurrently polling jobs do not synchronize.
	markerJitterMax = 250 * time.Millisecond
)

// markerBackoff is the base delay schedule. The index advances by one on
// every poll regardless of outcome and never resets; past the end the last
// entry repeats.
var markerBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
}

// MarkerConfig parameterizes the asynchronous create-then-poll adapter.
type MarkerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-request HTTP timeout, not the overall deadline
}

// Marker submits a conversion job and polls it to completion. All polling
// state lives inside one Extract call; nothing is carried across invocations.
type Marker struct {
	cfg    MarkerConfig
	http   *http.Client
	logger *slog.Logger

	clock  Clock
	jitter func() time.Duration
}

func NewMarker(cfg MarkerConfig, logger *slog.Logger) *Marker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Marker{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		clock:  realClock{},
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(markerJitterMax)))
		},
	}
}

type markerStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"` // queued | processing | succeeded | failed
	Result *struct {
		Markdown   string  `json:"markdown"`
		Confidence float32 `json:"confidence"`
		Pages      int     `json:"pages"`
	} `json:"result"`
	Error string `json:"error"`
}

// Extract creates the remote job and polls until it settles or the deadline
// passes. Transient (retryable) poll failures are swallowed and consume one
// backoff step; terminal categories abort immediately.
func (m *Marker) Extract(ctx context.Context, url string) (Result, error) {
	start := m.clock.Now()
	deadline := start.Add(markerDeadline)

	if strings.TrimSpace(url) == "" {
		return Result{}, NewError(NameMarker, CategoryValidation, "empty source url", nil)
	}
	if m.cfg.BaseURL == "" {
		return Result{}, NewError(NameMarker, CategoryValidation, "marker base URL not configured", nil)
	}

	created, traceID, err := m.create(ctx, url)
	if err != nil {
		return Result{}, err
	}
	m.logger.Info("marker.job.created", "provider_job_id", created.ID, "status", created.Status, "trace_id", traceID)

	if created.Status == "failed" {
		return Result{}, &Error{
			Category: CategoryFailedStatus,
			Provider: NameMarker,
			TraceID:  traceID,
			Message:  firstNonEmpty(created.Error, "job failed on submission"),
		}
	}

	lastTrace := traceID
	for attempt := 0; ; attempt++ {
		m.clock.Sleep(ctx, backoffDelay(attempt)+m.jitter())

		now := m.clock.Now()
		if ctx.Err() != nil || now.After(deadline) {
			m.logger.Warn("marker.job.deadline_exceeded",
				"provider_job_id", created.ID,
				"polls", attempt,
				"elapsed_ms", now.Sub(start).Milliseconds(),
				"trace_id", lastTrace,
			)
			return Result{}, &Error{
				Category: CategoryTimeout,
				Provider: NameMarker,
				TraceID:  lastTrace,
				Message:  fmt.Sprintf("job did not settle within %s", markerDeadline),
			}
		}

		st, pollTrace, pollErr := m.poll(ctx, created.ID)
		if pollTrace != "" {
			lastTrace = pollTrace
		}
		if pollErr != nil {
			var perr *Error
			if errors.As(pollErr, &perr) && perr.Retryable() {
				m.logger.Warn("marker.poll.transient_error",
					"provider_job_id", created.ID,
					"category", perr.Category,
					"attempt", attempt,
					"trace_id", lastTrace,
				)
				continue
			}
			return Result{}, pollErr
		}

		switch st.Status {
		case "queued", "processing":
			m.logger.Debug("marker.poll.pending", "provider_job_id", created.ID, "status", st.Status, "attempt", attempt)
		case "succeeded":
			if st.Result == nil || strings.TrimSpace(st.Result.Markdown) == "" {
				return Result{}, &Error{
					Category: CategoryFailedStatus,
					Provider: NameMarker,
					TraceID:  lastTrace,
					Message:  "empty output",
				}
			}
			dur := m.clock.Now().Sub(start)
			m.logger.Info("marker.job.succeeded",
				"provider_job_id", created.ID,
				"polls", attempt+1,
				"pages", st.Result.Pages,
				"confidence", st.Result.Confidence,
				"trace_id", lastTrace,
				"elapsed_ms", dur.Milliseconds(),
			)
			return Result{
				Text: st.Result.Markdown,
				Metadata: Metadata{
					Provider:   NameMarker,
					Duration:   dur,
					Confidence: st.Result.Confidence,
					Pages:      st.Result.Pages,
					TraceID:    lastTrace,
				},
			}, nil
		case "failed":
			m.logger.Error("marker.job.failed", "provider_job_id", created.ID, "trace_id", lastTrace)
			return Result{}, &Error{
				Category: CategoryFailedStatus,
				Provider: NameMarker,
				TraceID:  lastTrace,
				Message:  firstNonEmpty(st.Error, "job failed"),
			}
		default:
			return Result{}, &Error{
				Category: CategoryFailedStatus,
				Provider: NameMarker,
				TraceID:  lastTrace,
				Message:  fmt.Sprintf("unexpected job status %q", st.Status),
			}
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	if attempt >= len(markerBackoff) {
		return markerBackoff[len(markerBackoff)-1]
	}
	return markerBackoff[attempt]
}

func (m *Marker) create(ctx context.Context, url string) (*markerStatus, string, error) {
	body := map[string]any{
		"url":           url,
		"output_format": "markdown",
		"force_ocr":     true,
	}
	raw, traceID, err := m.do(ctx, http.MethodPost, strings.TrimRight(m.cfg.BaseURL, "/")+"/api/v1/convert", body)
	if err != nil {
		return nil, traceID, err
	}
	var st markerStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, traceID, &Error{
			Category: CategoryServer,
			Provider: NameMarker,
			TraceID:  traceID,
			Message:  "decode create response",
			Cause:    err,
		}
	}
	if st.ID == "" {
		return nil, traceID, &Error{
			Category: CategoryServer,
			Provider: NameMarker,
			TraceID:  traceID,
			Message:  "create response missing job id",
		}
	}
	return &st, traceID, nil
}

func (m *Marker) poll(ctx context.Context, id string) (*markerStatus, string, error) {
	raw, traceID, err := m.do(ctx, http.MethodGet, strings.TrimRight(m.cfg.BaseURL, "/")+"/api/v1/convert/"+id, nil)
	if err != nil {
		return nil, traceID, err
	}
	var st markerStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, traceID, &Error{
			Category: CategoryServer,
			Provider: NameMarker,
			TraceID:  traceID,
			Message:  "decode status response",
			Cause:    err,
		}
	}
	return &st, traceID, nil
}

func (m *Marker) do(ctx context.Context, method, url string, body map[string]any) ([]byte, string, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", NewError(NameMarker, CategoryValidation, "marshal request", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, "", NewError(NameMarker, CategoryValidation, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", m.cfg.APIKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", NewError(NameMarker, CategoryTimeout, "request deadline exceeded", err)
		}
		return nil, "", NewError(NameMarker, CategoryServer, "transport failure", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			m.logger.Warn("marker.response_body_close_error", "error", cerr)
		}
	}()

	traceID := resp.Header.Get(traceHeader)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, traceID, &Error{
			Category: CategoryServer,
			Provider: NameMarker,
			TraceID:  traceID,
			Message:  "read response body",
			Cause:    err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := NewHTTPError(NameMarker, resp.StatusCode,
			fmt.Sprintf("%s returned status %d", method, resp.StatusCode), nil)
		e.TraceID = traceID
		return nil, traceID, e
	}
	return raw, traceID, nil
}
