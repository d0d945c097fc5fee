package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
)

// providerName tags errors from this client in the shared taxonomy.
const providerName = "openai"

// maxInputChars caps how much OCR text we send; invoices rarely need more.
const maxInputChars = 12000

// ExtractFields implements llm.FieldExtractor against chat/completions with a
// strict json_schema response format. The call either fails with a
// provider-taxonomy error, or returns the field map plus token usage.
// "Produced no data" is a semantic failure distinct from transport failure:
// retrying it with identical input is unlikely to help.
func (c *Client) ExtractFields(ctx context.Context, input string) (llm.ExtractionResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	text := strings.TrimSpace(input)
	if text == "" {
		return llm.ExtractionResult{}, provider.NewError(providerName,
			provider.CategoryValidation, "empty input text", nil)
	}
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	schema := llm.BuildInvoiceJSONSchema()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "invoice_fields",
				"strict": false,
				"schema": schema,
			},
		},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt()},
			{"role": "user", "content": "Invoice text:\n\n" + text},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, provider.NewError(providerName,
			provider.CategoryServer, "decode model response", err)
	}

	result := llm.ExtractionResult{TokensUsed: cc.Usage.TotalTokens}

	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return result, provider.NewError(providerName,
			provider.CategoryFailedStatus, "extraction produced no data", nil)
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" || content == "{}" || content == "null" {
		c.logger.Error("llm.extract.empty_object", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return result, provider.NewError(providerName,
			provider.CategoryFailedStatus, "extraction produced no data", nil)
	}

	if err := llm.ValidateJSONAgainstSchema(schema, []byte(content)); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return result, provider.NewError(providerName,
			provider.CategoryFailedStatus, "extraction produced no data", err)
	}

	var fields map[string]llm.FieldValue
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return result, provider.NewError(providerName,
			provider.CategoryFailedStatus, "extraction produced no data", err)
	}
	if len(fields) == 0 {
		return result, provider.NewError(providerName,
			provider.CategoryFailedStatus, "extraction produced no data", nil)
	}
	result.Fields = fields

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"fields", len(fields),
		"tokens_used", result.TokensUsed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// post classifies every failure once, here at the boundary.
func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, provider.NewError(providerName, provider.CategoryValidation, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, provider.NewError(providerName, provider.CategoryValidation, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, provider.NewError(providerName, provider.CategoryTimeout, "request deadline exceeded", err)
		}
		return nil, provider.NewError(providerName, provider.CategoryServer, "transport failure", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("llm.response_body_close_error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(providerName, provider.CategoryServer, "read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, provider.NewHTTPError(providerName, resp.StatusCode,
			fmt.Sprintf("chat/completions returned status %d", resp.StatusCode), nil)
	}
	return raw, nil
}

func systemPrompt() string {
	return strings.Join([]string{
		"You are an invoice parser. Return ONLY a JSON object matching the provided schema.",
		"For each field you can read from the invoice, emit an object with 'value',",
		"a short 'reasoning', and a 'confidence' of high, medium, or low.",
		"Use ISO-8601 dates (YYYY-MM-DD) and ISO 4217 currency codes.",
		"Amounts are plain decimal strings without currency symbols.",
		"Never output null. If a field is not present on the invoice, omit it entirely.",
	}, " ")
}
