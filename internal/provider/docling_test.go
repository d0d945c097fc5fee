package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newDoclingTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Docling) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewDocling(DoclingConfig{BaseURL: srv.URL}, testLogger())
}

func TestDoclingExtractSuccess(t *testing.T) {
	var gotBody map[string]any
	_, d := newDoclingTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convert/source" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("X-Request-Id", "trace-123")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"document": map[string]any{
				"md_content": "# Invoice 42",
				"metadata":   map[string]any{"pages": 3, "bytes": 1024},
			},
		})
	})

	res, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "# Invoice 42" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Metadata.Pages != 3 || res.Metadata.Bytes != 1024 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if res.Metadata.TraceID != "trace-123" {
		t.Errorf("trace id = %q", res.Metadata.TraceID)
	}
	if res.Metadata.Provider != NameDocling {
		t.Errorf("provider = %q", res.Metadata.Provider)
	}

	sources, ok := gotBody["sources"].([]any)
	if !ok || len(sources) != 1 {
		t.Fatalf("sources = %v", gotBody["sources"])
	}
	src := sources[0].(map[string]any)
	if src["kind"] != "http" || src["url"] != "https://example.com/inv.pdf" {
		t.Errorf("source = %v", src)
	}
	opts := gotBody["options"].(map[string]any)
	if opts["do_ocr"] != true {
		t.Errorf("do_ocr not forced on: %v", opts)
	}
}

func TestDoclingContentFieldFallback(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want string
	}{
		{"markdown wins", map[string]any{"md_content": "md", "text_content": "txt"}, "md"},
		{"text next", map[string]any{"text_content": "txt", "html_content": "<p>h</p>"}, "txt"},
		{"html next", map[string]any{"html_content": "<p>h</p>", "doctags_content": "tags"}, "<p>h</p>"},
		{"doctags last", map[string]any{"doctags_content": "tags"}, "tags"},
		{"blank markdown skipped", map[string]any{"md_content": "  \n ", "text_content": "txt"}, "txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d := newDoclingTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "document": tt.doc})
			})
			res, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestDoclingEmptyOutputIsFailedStatus(t *testing.T) {
	_, d := newDoclingTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "document": map[string]any{}})
	})
	_, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
	wantCategory(t, err, CategoryFailedStatus)
	if !strings.Contains(err.Error(), "empty output") {
		t.Errorf("error = %v", err)
	}
}

func TestDoclingInBandFailureIsNotTransportFailure(t *testing.T) {
	// HTTP 200 with an internal failure status must map to failed_status
	// (non-retryable), never to server.
	_, d := newDoclingTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"errors": []map[string]any{{"message": "unreadable document"}},
		})
	})
	_, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
	wantCategory(t, err, CategoryFailedStatus)
	if !strings.Contains(err.Error(), "unreadable document") {
		t.Errorf("error should carry the provider message, got %v", err)
	}
}

func TestDoclingHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   Category
	}{
		{400, CategoryValidation},
		{401, CategoryAuth},
		{429, CategoryQuota},
		{500, CategoryServer},
	}
	for _, tt := range tests {
		_, d := newDoclingTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-Id", "trace-err")
			w.WriteHeader(tt.status)
		})
		_, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
		perr := wantCategory(t, err, tt.want)
		if perr.HTTPStatus != tt.status {
			t.Errorf("http status = %d, want %d", perr.HTTPStatus, tt.status)
		}
		if perr.TraceID != "trace-err" {
			t.Errorf("trace id should survive on failures, got %q", perr.TraceID)
		}
	}
}

func TestDoclingEmptyURLIsValidation(t *testing.T) {
	d := NewDocling(DoclingConfig{BaseURL: "http://docling.local"}, testLogger())
	_, err := d.Extract(context.Background(), "  ")
	wantCategory(t, err, CategoryValidation)
}

func TestStripImagePlaceholders(t *testing.T) {
	in := "# Invoice\n<!-- image -->\nTotal: 10.00\n![logo](https://cdn.example.com/logo.png)\nline with ![inline](x.png) stays\n"
	want := "# Invoice\nTotal: 10.00\nline with ![inline](x.png) stays\n"
	if got := stripImagePlaceholders(in); got != want {
		t.Errorf("stripImagePlaceholders = %q, want %q", got, want)
	}
}

func TestDoclingStripFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "success",
			"document": map[string]any{"md_content": "a\n<!-- image -->\nb"},
		})
	}))
	defer srv.Close()

	d := NewDocling(DoclingConfig{BaseURL: srv.URL, StripImageLinks: true}, testLogger())
	res, err := d.Extract(context.Background(), "https://example.com/inv.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "a\nb" {
		t.Errorf("text = %q", res.Text)
	}
}

func wantCategory(t *testing.T, err error, want Category) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *provider.Error, got %T: %v", err, err)
	}
	if perr.Category != want {
		t.Fatalf("category = %s, want %s (err: %v)", perr.Category, want, err)
	}
	return perr
}
