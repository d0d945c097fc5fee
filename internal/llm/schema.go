package llm

// InvoiceFieldNames is the fixed set of fields the extraction schema allows.
// Every field is optional; the model omits what it cannot find.
var InvoiceFieldNames = []string{
	"invoice_number",
	"invoice_date",
	"due_date",
	"vendor_name",
	"vendor_address",
	"customer_name",
	"customer_address",
	"currency_code",
	"subtotal",
	"tax_amount",
	"total_amount",
	"payment_terms",
}

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as a structured output constraint
// and also use it locally to validate the response.
func BuildInvoiceJSONSchema() map[string]any {
	props := map[string]any{}
	for _, name := range InvoiceFieldNames {
		props[name] = fieldProp()
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func fieldProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"value":     map[string]any{"type": "string", "minLength": 1},
			"reasoning": map[string]any{"type": "string"},
			"confidence": map[string]any{
				"type": "string",
				"enum": []string{"high", "medium", "low"},
			},
		},
		"required": []string{"value", "confidence"},
	}
}
