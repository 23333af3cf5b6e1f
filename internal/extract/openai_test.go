package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/pkg/models"
)

// stubCompleter returns canned responses, or an error, per call.
type stubCompleter struct {
	responses []string
	err       error
	calls     int
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	content := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

const wellFormedPayload = `{
  "metadata": {
    "supplier_name": "Acme Wholesale",
    "invoice_number": "INV-1042",
    "invoice_date": "2026-03-14",
    "due_date": null,
    "subtotal": 184.50,
    "taxes": 14.76,
    "discounts": null,
    "total": 199.26
  },
  "line_items": [
    {"description": "Cola 12oz 24-pack", "sku": "COLA-24", "upc": "04963406", "quantity": 3, "unit_cost": 18.50, "line_total": 55.50},
    {"description": "Potato Chips BBQ", "sku": null, "upc": null, "quantity": 10, "unit_cost": 12.90, "line_total": 129.00}
  ]
}`

func TestParseStructuredDecodesWellFormedPayload(t *testing.T) {
	stub := &stubCompleter{responses: []string{wellFormedPayload}}
	ex := NewOpenAIExtractorWithClient(stub, DefaultCompletionConfig())

	out, err := ex.ParseStructured(context.Background(), Input{RawText: "some invoice text"})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Degraded)

	require.NotNil(t, out.Metadata.SupplierName)
	assert.Equal(t, "Acme Wholesale", *out.Metadata.SupplierName)
	require.NotNil(t, out.Metadata.Subtotal)
	assert.Equal(t, 184.50, *out.Metadata.Subtotal)
	assert.Nil(t, out.Metadata.DueDate)
	assert.Nil(t, out.Metadata.Discounts)

	require.Len(t, out.Items, 2)
	assert.Equal(t, "Cola 12oz 24-pack", out.Items[0].Description)
	require.NotNil(t, out.Items[0].UPC)
	assert.Equal(t, "04963406", *out.Items[0].UPC)
	assert.Equal(t, 3.0, out.Items[0].Quantity)
	assert.Nil(t, out.Items[1].SKU)
	assert.Equal(t, 129.00, out.Items[1].LineTotal)
}

func TestParseStructuredStripsMarkdownFences(t *testing.T) {
	fenced := "Here is the extracted data:\n```json\n" + wellFormedPayload + "\n```\nLet me know if you need anything else."
	stub := &stubCompleter{responses: []string{fenced}}
	ex := NewOpenAIExtractorWithClient(stub, DefaultCompletionConfig())

	out, err := ex.ParseStructured(context.Background(), Input{RawText: "text"})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	require.Len(t, out.Items, 2)
	require.NotNil(t, out.Metadata.Total)
	assert.Equal(t, 199.26, *out.Metadata.Total)
}

// Decoding the extractor's own marshaled output must reconstruct identical
// metadata and items.
func TestDecodePayloadRoundTrip(t *testing.T) {
	supplier := "Acme Wholesale"
	number := "INV-7"
	subtotal := 100.5
	sku := "X-1"
	original := &Output{
		Metadata: models.InvoiceMetadata{
			SupplierName:  &supplier,
			InvoiceNumber: &number,
			Subtotal:      &subtotal,
		},
		Items: []models.ExtractedLineItem{
			{Description: "Red Bull 8oz", SKU: &sku, Quantity: 4, UnitCost: 1.75, LineTotal: 7},
		},
	}

	encoded, err := json.Marshal(map[string]interface{}{
		"metadata":   original.Metadata,
		"line_items": original.Items,
	})
	require.NoError(t, err)

	decoded, err := decodePayload("```json\n" + string(encoded) + "\n```")
	require.NoError(t, err)
	assert.Equal(t, original.Metadata, decoded.Metadata)
	assert.Equal(t, original.Items, decoded.Items)
}

func TestParseStructuredDegradesOnMalformedOutput(t *testing.T) {
	stub := &stubCompleter{responses: []string{"I could not read this invoice, sorry!"}}
	ex := NewOpenAIExtractorWithClient(stub, DefaultCompletionConfig())

	out, err := ex.ParseStructured(context.Background(), Input{RawText: "text"})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Empty(t, out.Items)
	assert.Equal(t, models.InvoiceMetadata{}, out.Metadata)
}

func TestParseStructuredFailsAfterRetries(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	cfg := DefaultCompletionConfig()
	cfg.MaxRetries = 3
	ex := NewOpenAIExtractorWithClient(stub, cfg)

	_, err := ex.ParseStructured(context.Background(), Input{RawText: "text"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletionFailed))
	assert.Equal(t, 3, stub.calls)
}

func TestParseStructuredEmptyTextShortCircuits(t *testing.T) {
	stub := &stubCompleter{err: errors.New("should not be called")}
	ex := NewOpenAIExtractorWithClient(stub, DefaultCompletionConfig())

	out, err := ex.ParseStructured(context.Background(), Input{RawText: "   "})
	require.NoError(t, err)
	assert.Zero(t, stub.calls)
	assert.Empty(t, out.Items)
	assert.False(t, out.Degraded)
}

func TestParseAmountFormats(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1234.56", 1234.56},
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1234,56", 1234.56},
		{"€ 580.00", 580},
		{"$1,000", 1000},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := parseAmount("not money")
	assert.Error(t, err)
}

func TestStripPayloadWithoutFences(t *testing.T) {
	s := stripPayload(`The result is {"metadata": {}, "line_items": []} as requested.`)
	assert.Equal(t, `{"metadata": {}, "line_items": []}`, s)

	assert.Empty(t, stripPayload("no json here"))
}
