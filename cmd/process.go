package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

var processCmd = &cobra.Command{
	Use:   "process [invoice-file]",
	Short: "Run an invoice through OCR, extraction, matching, and validation",
	Long: `Process a supplier invoice (PDF or image) through the full pipeline:
OCR text extraction, structured extraction, catalog matching, pricing
alerts, total validation, and business insights.

The invoice ends in PARSED or NEEDS_REVIEW; nothing is written to the
catalog or inventory until it is confirmed with "shopcore confirm".

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  OPENAI_API_KEY - OpenAI API key (unless STRUCTURED_EXTRACTOR=documentai)`,
	Example: `  # Process an invoice against the default store
  shopcore process invoice.pdf

  # Process for a specific store and print the full result as JSON
  shopcore process invoice.pdf --store downtown --json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [invoice-id]",
	Short: "Re-run the pipeline for an existing invoice",
	Long: `Discard an invoice's previous result and re-run the full pipeline
against its stored source document. Rejected once the invoice has been
confirmed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(reprocessCmd)

	for _, c := range []*cobra.Command{processCmd, reprocessCmd} {
		c.Flags().String("store", "", "Store ID (default: DEFAULT_STORE_ID)")
		c.Flags().Bool("json", false, "Print the full parse result as JSON")
		c.Flags().Int("timeout", 300, "Processing timeout in seconds")
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	invoicePath := args[0]
	if _, err := os.Stat(invoicePath); err != nil {
		return fmt.Errorf("invoice file not accessible: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	d, err := buildPipelineDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	storeID, _ := cmd.Flags().GetString("store")
	if storeID == "" {
		storeID = d.cfg.DefaultStoreID
	}

	log.Info().
		Str("file", invoicePath).
		Str("store_id", storeID).
		Msg("Starting invoice processing")

	invoice, err := d.service.ProcessInvoice(ctx, invoicePath, storeID)
	if err != nil {
		return err
	}
	return printInvoice(cmd, invoice, d.cfg.Thresholds.HighConfidence)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	d, err := buildPipelineDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	invoice, err := d.service.Reprocess(ctx, args[0])
	if err != nil {
		return err
	}
	return printInvoice(cmd, invoice, d.cfg.Thresholds.HighConfidence)
}

// commandContext derives a context with the --timeout flag applied and
// SIGINT/SIGTERM wired to cancellation.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	if timeoutSecs <= 0 {
		timeoutSecs = 300
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	return ctx, func() {
		cancelTimeout()
		stop()
	}
}

func printInvoice(cmd *cobra.Command, invoice *models.Invoice, highConfidence float64) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		encoded, err := json.MarshalIndent(invoice, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("Invoice %s: %s\n", invoice.ID, invoice.Status)
	if invoice.Result == nil {
		return nil
	}

	r := invoice.Result
	fmt.Printf("  confidence: %.2f  needs review: %v\n", r.Confidence, r.NeedsReview)
	fmt.Printf("  line items: %d\n", len(r.LineItems))
	for _, item := range r.LineItems {
		target := "(unmatched)"
		if item.MatchedProductName != nil {
			target = *item.MatchedProductName
		}
		marker := ""
		if item.MatchedProductID != nil && item.Confidence < highConfidence {
			marker = "  CHECK MATCH"
		}
		fmt.Printf("    %-30s -> %-25s conf %.2f%s\n", item.Description, target, item.Confidence, marker)
	}
	for _, alert := range r.PricingAlerts {
		fmt.Printf("  alert [%s/%s]: %s\n", alert.Type, alert.Severity, alert.Message)
	}
	for _, anomaly := range r.Anomalies {
		fmt.Printf("  anomaly [%s/%s]: %s\n", anomaly.Type, anomaly.Severity, anomaly.Message)
	}
	for _, insight := range r.Insights {
		fmt.Printf("  insight [%s]: %s %s\n", insight.Type, insight.Description, insight.Action)
	}
	return nil
}
