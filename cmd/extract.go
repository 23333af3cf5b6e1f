package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"shopcore/internal/config"
	"shopcore/internal/extract"
	"shopcore/internal/logger"
	"shopcore/internal/ocr"
	"shopcore/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [invoice-file]",
	Short: "Extract text and structured data from an invoice without touching the catalog",
	Long: `Run only the extraction half of the pipeline: OCR via Google Cloud
Vision, then structured extraction of metadata and line items. Nothing is
persisted; use this to inspect what the extractors see in a document.

Supported formats: PDF (up to 5 pages, 20MB), TIFF, JPEG, PNG.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  OPENAI_API_KEY - OpenAI API key (unless STRUCTURED_EXTRACTOR=documentai)`,
	Example: `  # Inspect the structured extraction for an invoice
  shopcore extract invoice.pdf

  # Only the raw OCR text
  shopcore extract invoice.pdf --raw

  # Full JSON to a file
  shopcore extract invoice.pdf --json -o extracted.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// extractOutput is the JSON shape printed with --json.
type extractOutput struct {
	FileName           string                     `json:"file_name"`
	Text               string                     `json:"text"`
	OCRConfidence      float64                    `json:"ocr_confidence"`
	PageCount          int                        `json:"page_count,omitempty"`
	ProcessingDuration string                     `json:"processing_duration,omitempty"`
	Metadata           models.InvoiceMetadata     `json:"metadata"`
	LineItems          []models.ExtractedLineItem `json:"line_items"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("raw", false, "Print only the raw OCR text")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	rawOnly, _ := cmd.Flags().GetBool("raw")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")

	document, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading invoice file: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.ValidateExtraction(); err != nil {
		return err
	}

	vision, err := ocr.NewGoogleVisionExtractor(ctx)
	if err != nil {
		return fmt.Errorf("initializing Vision OCR: %w", err)
	}
	defer vision.Close()

	started := time.Now()
	ocrResult, err := vision.ExtractText(ctx, bytes.NewReader(document))
	if err != nil {
		return err
	}
	log.Info().
		Float64("confidence", ocrResult.Confidence).
		Int("pages", ocrResult.PageCount).
		Dur("duration", time.Since(started)).
		Msg("OCR extraction complete")

	if rawOnly {
		return writeOutput(outputPath, []byte(ocrResult.Text))
	}

	structured, err := buildStructuredExtractor(ctx, cfg)
	if err != nil {
		return err
	}
	parsed, err := structured.ParseStructured(ctx, extract.Input{
		RawText:  ocrResult.Text,
		Document: document,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		encoded, err := json.MarshalIndent(extractOutput{
			FileName:           args[0],
			Text:               ocrResult.Text,
			OCRConfidence:      ocrResult.Confidence,
			PageCount:          ocrResult.PageCount,
			ProcessingDuration: time.Since(started).String(),
			Metadata:           parsed.Metadata,
			LineItems:          parsed.Items,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		return writeOutput(outputPath, append(encoded, '\n'))
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "OCR confidence: %.2f\n", ocrResult.Confidence)
	if parsed.Metadata.SupplierName != nil {
		fmt.Fprintf(&out, "Supplier: %s\n", *parsed.Metadata.SupplierName)
	}
	if parsed.Metadata.InvoiceNumber != nil {
		fmt.Fprintf(&out, "Invoice number: %s\n", *parsed.Metadata.InvoiceNumber)
	}
	if parsed.Metadata.Total != nil {
		fmt.Fprintf(&out, "Total: %.2f\n", *parsed.Metadata.Total)
	}
	fmt.Fprintf(&out, "Line items: %d\n", len(parsed.Items))
	for _, item := range parsed.Items {
		fmt.Fprintf(&out, "  %-30s qty %6.1f  cost %8.2f  total %8.2f\n",
			item.Description, item.Quantity, item.UnitCost, item.LineTotal)
	}
	return writeOutput(outputPath, out.Bytes())
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	fmt.Printf("Output written to %s\n", path)
	return nil
}
