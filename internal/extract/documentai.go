package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

// DocumentAIConfig holds configuration for the Document AI extractor.
type DocumentAIConfig struct {
	// ProjectID is the Google Cloud project ID where Document AI is enabled.
	ProjectID string

	// Location is the processing location (e.g., "us", "eu"). Should match
	// where the processor is created.
	Location string

	// ProcessorID is the Document AI invoice processor ID.
	ProcessorID string

	// Timeout is the maximum time to wait for processing. Default: 60s.
	Timeout time.Duration
}

// DocumentAIExtractor implements StructuredExtractor using Google Document
// AI's invoice parser. Unlike the OpenAI extractor it reprocesses the source
// document bytes rather than the OCR text, so Input.Document must be set.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIExtractor creates an extractor with credentials from the
// environment.
func NewDocumentAIExtractor(ctx context.Context, config DocumentAIConfig) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, WrapExtractorError(op, err, "failed to create Document AI client")
	}

	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("documentai-extractor"),
	}, nil
}

// ParseStructured sends the document to the invoice processor and converts
// its entities into extraction output.
func (d *DocumentAIExtractor) ParseStructured(ctx context.Context, in Input) (*Output, error) {
	const op = "ParseStructured"

	if len(in.Document) == 0 {
		return nil, WrapExtractorError(op, ErrCompletionFailed, "Document AI extractor requires the source document bytes")
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	resp, err := d.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  in.Document,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, WrapExtractorError(op, ErrCompletionFailed, fmt.Sprintf("Document AI error: %v", err))
	}

	if resp.Document == nil {
		// Responded but with nothing usable: same degradation contract as
		// malformed LLM output.
		d.log.Warn().Msg("Document AI returned no document, degrading to empty result")
		return EmptyOutput(), nil
	}

	return d.collectEntities(resp.Document), nil
}

func (d *DocumentAIExtractor) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// collectEntities maps invoice processor entities onto metadata and line
// items.
func (d *DocumentAIExtractor) collectEntities(doc *documentaipb.Document) *Output {
	out := &Output{}

	for _, entity := range doc.Entities {
		value := strings.TrimSpace(entity.MentionText)

		d.log.Debug().
			Str("entity_type", entity.Type).
			Str("value", value).
			Float32("confidence", entity.Confidence).
			Msg("Processing Document AI entity")

		switch entity.Type {
		case "supplier_name", "vendor_name":
			out.Metadata.SupplierName = optionalString(value)
		case "invoice_id", "invoice_number":
			out.Metadata.InvoiceNumber = optionalString(value)
		case "invoice_date":
			out.Metadata.InvoiceDate = optionalString(normalizedEntityDate(entity, value))
		case "due_date":
			out.Metadata.DueDate = optionalString(normalizedEntityDate(entity, value))
		case "net_amount", "subtotal_amount":
			out.Metadata.Subtotal = entityAmount(entity, value)
		case "total_tax_amount", "vat_amount":
			out.Metadata.Taxes = entityAmount(entity, value)
		case "total_amount", "gross_amount":
			out.Metadata.Total = entityAmount(entity, value)
		case "line_item":
			if item := d.collectLineItem(entity); item != nil {
				out.Items = append(out.Items, *item)
			}
		}
	}

	d.log.Info().
		Int("line_items", len(out.Items)).
		Bool("has_supplier", out.Metadata.SupplierName != nil).
		Bool("has_total", out.Metadata.Total != nil).
		Msg("Document AI extraction completed")

	return out
}

// collectLineItem walks the nested properties of one line_item entity.
func (d *DocumentAIExtractor) collectLineItem(entity *documentaipb.Document_Entity) *models.ExtractedLineItem {
	item := models.ExtractedLineItem{}

	for _, prop := range entity.Properties {
		value := strings.TrimSpace(prop.MentionText)
		switch prop.Type {
		case "line_item/description":
			item.Description = value
		case "line_item/product_code":
			item.SKU = optionalString(value)
		case "line_item/quantity":
			if n, err := parseAmount(value); err == nil {
				item.Quantity = clampNonNegative(n)
			}
		case "line_item/unit_price":
			if n := entityAmount(prop, value); n != nil {
				item.UnitCost = clampNonNegative(*n)
			}
		case "line_item/amount":
			if n := entityAmount(prop, value); n != nil {
				item.LineTotal = *n
			}
		}
	}

	if item.Description == "" {
		return nil
	}
	return &item
}

// entityAmount prefers the normalized money value when the processor provides
// one, falling back to parsing the mention text.
func entityAmount(entity *documentaipb.Document_Entity, value string) *float64 {
	if nv := entity.NormalizedValue; nv != nil {
		if money := nv.GetMoneyValue(); money != nil {
			amount := float64(money.Units) + float64(money.Nanos)/1e9
			return &amount
		}
	}
	if n, err := parseAmount(value); err == nil {
		return &n
	}
	return nil
}

// normalizedEntityDate prefers the processor's normalized date, formatted as
// YYYY-MM-DD.
func normalizedEntityDate(entity *documentaipb.Document_Entity, value string) string {
	if nv := entity.NormalizedValue; nv != nil {
		if date := nv.GetDateValue(); date != nil && date.Year > 0 {
			return fmt.Sprintf("%04d-%02d-%02d", date.Year, date.Month, date.Day)
		}
	}
	return value
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Close closes the underlying Document AI client.
func (d *DocumentAIExtractor) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
