package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chatResponse(content string, totalTokens int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{"total_tokens": totalTokens},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, testLogger())
}

func TestExtractFieldsSuccess(t *testing.T) {
	content := `{
		"invoice_number": {"value": "INV-001", "reasoning": "header", "confidence": "high"},
		"total_amount": {"value": "149.50", "reasoning": "grand total line", "confidence": "medium"}
	}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(chatResponse(content, 321))
	})

	res, err := c.ExtractFields(context.Background(), "ACME Corp Invoice INV-001 Total 149.50")
	if err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	if len(res.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(res.Fields))
	}
	if got := res.Fields["invoice_number"]; got.Value != "INV-001" || got.Confidence != constants.ConfidenceHigh {
		t.Errorf("invoice_number = %+v", got)
	}
	if res.TokensUsed != 321 {
		t.Errorf("tokens = %d, want 321", res.TokensUsed)
	}
}

func TestExtractFieldsOmitsAbsentFields(t *testing.T) {
	// Only one field in the response: the map must contain exactly that
	// entry, no null-valued placeholders for the rest.
	content := `{"invoice_date": {"value": "2025-03-14", "confidence": "high"}}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse(content, 88))
	})

	res, err := c.ExtractFields(context.Background(), "dated 14 March 2025")
	if err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	if len(res.Fields) != 1 {
		t.Fatalf("fields = %v, want exactly one entry", res.Fields)
	}
	if _, ok := res.Fields["invoice_date"]; !ok {
		t.Error("invoice_date missing")
	}
	if res.TokensUsed != 88 {
		t.Errorf("tokens = %d, want 88", res.TokensUsed)
	}
}

func TestExtractFieldsEmptyInputIsValidation(t *testing.T) {
	c := NewClient(Config{APIKey: "k", BaseURL: "http://openai.local"}, testLogger())
	_, err := c.ExtractFields(context.Background(), "   \n ")
	var perr *provider.Error
	if !errors.As(err, &perr) || perr.Category != provider.CategoryValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestExtractFieldsNoDataIsSemanticFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty object", `{}`},
		{"null", `null`},
		{"not json", `sorry, I cannot parse this`},
		{"wrong shape", `{"invoice_number": "INV-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse(tt.content, 50))
			})
			res, err := c.ExtractFields(context.Background(), "some invoice text")
			var perr *provider.Error
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *provider.Error", err)
			}
			if perr.Category != provider.CategoryFailedStatus {
				t.Errorf("category = %s, want failed_status", perr.Category)
			}
			if perr.Retryable() {
				t.Error("no-data failures must not be retryable")
			}
			// cost accounting survives semantic failure
			if res.TokensUsed != 50 {
				t.Errorf("tokens = %d, want 50", res.TokensUsed)
			}
		})
	}
}

func TestExtractFieldsTransportErrorsPreserveCategory(t *testing.T) {
	tests := []struct {
		status int
		want   provider.Category
	}{
		{401, provider.CategoryAuth},
		{429, provider.CategoryQuota},
		{500, provider.CategoryServer},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := c.ExtractFields(context.Background(), "some invoice text")
		var perr *provider.Error
		if !errors.As(err, &perr) {
			t.Fatalf("status %d: err = %v, want *provider.Error", tt.status, err)
		}
		if perr.Category != tt.want {
			t.Errorf("status %d: category = %s, want %s", tt.status, perr.Category, tt.want)
		}
	}
}

func TestExtractFieldsRequestShape(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		content := `{"vendor_name": {"value": "ACME", "confidence": "low"}}`
		_ = json.NewEncoder(w).Encode(chatResponse(content, 10))
	})

	if _, err := c.ExtractFields(context.Background(), "ACME"); err != nil {
		t.Fatalf("ExtractFields: %v", err)
	}
	rf, ok := got["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_schema" {
		t.Errorf("response_format = %v", got["response_format"])
	}
}
