package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

// ChatCompleter is the slice of the OpenAI client the extractor needs, so
// tests can substitute a deterministic stub.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompletionConfig configures the OpenAI extractor.
type CompletionConfig struct {
	Model       string  // gpt-4o-mini, gpt-4, ...
	Temperature float32 // low values keep extraction deterministic
	MaxRetries  int     // transport-level retry attempts
	MaxTokens   int
}

// DefaultCompletionConfig returns sensible defaults for invoice extraction.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.1,
		MaxRetries:  3,
		MaxTokens:   2000,
	}
}

// OpenAIExtractor implements StructuredExtractor using an OpenAI chat
// completion. Malformed model output degrades to an empty result instead of
// failing the pipeline; only transport failures are errors.
type OpenAIExtractor struct {
	client ChatCompleter
	config CompletionConfig
	log    zerolog.Logger
}

// NewOpenAIExtractor creates an extractor backed by the OpenAI API.
func NewOpenAIExtractor(apiKey string, config CompletionConfig) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return NewOpenAIExtractorWithClient(openai.NewClient(apiKey), config), nil
}

// NewOpenAIExtractorWithClient creates an extractor with an explicit client
// (for testing).
func NewOpenAIExtractorWithClient(client ChatCompleter, config CompletionConfig) *OpenAIExtractor {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2000
	}
	return &OpenAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("openai-extractor"),
	}
}

// ParseStructured prompts the model with the OCR text and decodes the JSON
// payload from its reply.
func (e *OpenAIExtractor) ParseStructured(ctx context.Context, in Input) (*Output, error) {
	const op = "ParseStructured"

	if strings.TrimSpace(in.RawText) == "" {
		return &Output{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       e.config.Model,
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(in.RawText)},
			},
		})
		if err != nil {
			lastErr = err
			e.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", e.config.MaxRetries).
				Msg("Chat completion request failed, retrying")
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		content := resp.Choices[0].Message.Content
		e.log.Debug().
			Int("response_length", len(content)).
			Int("attempt", attempt).
			Msg("Received chat completion response")

		out, err := decodePayload(content)
		if err != nil {
			// Malformed output degrades gracefully: the pipeline keeps
			// running with nothing extracted and confidence drops.
			e.log.Warn().
				Err(err).
				Str("response_preview", preview(content, 300)).
				Msg("Failed to decode structured output, degrading to empty result")
			return EmptyOutput(), nil
		}

		e.log.Info().
			Int("line_items", len(out.Items)).
			Bool("has_supplier", out.Metadata.SupplierName != nil).
			Bool("has_total", out.Metadata.Total != nil).
			Msg("Structured extraction completed")

		return out, nil
	}

	return nil, WrapExtractorError(op, ErrCompletionFailed,
		fmt.Sprintf("all %d attempts failed: %v", e.config.MaxRetries, lastErr))
}

const systemPrompt = `You extract structured data from supplier invoices for a small retail store.

Read the OCR text of one invoice and return ONLY a JSON object with this exact shape:

{
  "metadata": {
    "supplier_name": "string or null",
    "invoice_number": "string or null",
    "invoice_date": "YYYY-MM-DD or null",
    "due_date": "YYYY-MM-DD or null",
    "subtotal": number or null,
    "taxes": number or null,
    "discounts": number or null,
    "total": number or null
  },
  "line_items": [
    {
      "description": "string (required)",
      "sku": "string or null",
      "upc": "string or null",
      "quantity": number,
      "unit_cost": number,
      "line_total": number
    }
  ]
}

Rules:
- Use null for any value you cannot find. Never invent values.
- Amounts are plain numbers in the invoice currency, no symbols or thousands separators.
- One entry per invoice line; keep the original order; do not merge duplicate lines.
- Return ONLY the JSON object, no prose, no markdown fences.`

func buildUserPrompt(rawText string) string {
	var b strings.Builder
	b.WriteString("OCR text of the invoice:\n\n")
	b.WriteString(rawText)
	b.WriteString("\n\nReturn the JSON object now.")
	return b.String()
}

// payloadEnvelope is the loose intermediate shape used for lenient decoding;
// models sometimes return numbers as strings or wrap the payload in prose.
type payloadEnvelope struct {
	Metadata  map[string]interface{}   `json:"metadata"`
	LineItems []map[string]interface{} `json:"line_items"`
}

// decodePayload strips any fencing from the model reply and decodes the JSON
// payload into typed extraction output.
func decodePayload(content string) (*Output, error) {
	payload := stripPayload(content)
	if payload == "" {
		return nil, WrapExtractorError("decodePayload", ErrMalformedOutput, "no JSON object in response")
	}

	var envelope payloadEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil, WrapExtractorError("decodePayload", ErrMalformedOutput, err.Error())
	}

	out := &Output{
		Metadata: models.InvoiceMetadata{
			SupplierName:  getString(envelope.Metadata, "supplier_name"),
			InvoiceNumber: getString(envelope.Metadata, "invoice_number"),
			InvoiceDate:   getString(envelope.Metadata, "invoice_date"),
			DueDate:       getString(envelope.Metadata, "due_date"),
			Subtotal:      getNumber(envelope.Metadata, "subtotal"),
			Taxes:         getNumber(envelope.Metadata, "taxes"),
			Discounts:     getNumber(envelope.Metadata, "discounts"),
			Total:         getNumber(envelope.Metadata, "total"),
		},
	}

	for _, raw := range envelope.LineItems {
		desc := getString(raw, "description")
		if desc == nil || strings.TrimSpace(*desc) == "" {
			// Description is the one required field per line.
			continue
		}
		item := models.ExtractedLineItem{
			Description: strings.TrimSpace(*desc),
			SKU:         getString(raw, "sku"),
			UPC:         getString(raw, "upc"),
			Quantity:    clampNonNegative(numberOrZero(raw, "quantity")),
			UnitCost:    clampNonNegative(numberOrZero(raw, "unit_cost")),
			LineTotal:   numberOrZero(raw, "line_total"),
		}
		out.Items = append(out.Items, item)
	}

	return out, nil
}

// stripPayload removes markdown fencing and surrounding prose, keeping the
// outermost JSON object.
func stripPayload(content string) string {
	s := strings.TrimSpace(content)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

// getString safely extracts a trimmed string value; empty and null come back
// as nil.
func getString(m map[string]interface{}, key string) *string {
	if m == nil {
		return nil
	}
	value, exists := m[key]
	if !exists || value == nil {
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return nil
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	return &str
}

// getNumber accepts JSON numbers as well as numeric strings in either US or
// European decimal format ("1,234.56" / "1.234,56").
func getNumber(m map[string]interface{}, key string) *float64 {
	if m == nil {
		return nil
	}
	value, exists := m[key]
	if !exists || value == nil {
		return nil
	}
	switch v := value.(type) {
	case float64:
		return &v
	case string:
		if parsed, err := parseAmount(v); err == nil {
			return &parsed
		}
	}
	return nil
}

func numberOrZero(m map[string]interface{}, key string) float64 {
	if n := getNumber(m, key); n != nil {
		return *n
	}
	return 0
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// parseAmount parses an amount string handling both European and US formats.
func parseAmount(amountStr string) (float64, error) {
	cleaned := strings.TrimSpace(amountStr)
	for _, junk := range []string{" ", "€", "$", "£", "EUR", "USD", "GBP"} {
		cleaned = strings.ReplaceAll(cleaned, junk, "")
	}

	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			// Both present: decide by which comes last.
			if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
				// European: dots are thousands separators
				cleaned = strings.ReplaceAll(cleaned, ".", "")
				cleaned = strings.ReplaceAll(cleaned, ",", ".")
			} else {
				// US: commas are thousands separators
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		} else {
			parts := strings.Split(cleaned, ",")
			if len(parts) == 2 && len(parts[1]) <= 2 {
				// Likely a decimal separator ("1234,50")
				cleaned = strings.ReplaceAll(cleaned, ",", ".")
			} else {
				cleaned = strings.ReplaceAll(cleaned, ",", "")
			}
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse amount: %q (cleaned: %q)", amountStr, cleaned)
	}
	return amount, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
