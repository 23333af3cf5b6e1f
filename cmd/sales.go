package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"shopcore/internal/logger"
	"shopcore/internal/sales"
)

var salesCmd = &cobra.Command{
	Use:   "sales [csv-file]",
	Short: "Ingest a POS sales CSV export",
	Long: `Ingest a point-of-sale CSV export: rows are grouped into one sale
per receipt, each row is resolved to a catalog product (by barcode, then by
name, creating a flagged product when nothing matches), and inventory is
decremented for products with a confirmed starting count.

The CSV needs a header row with quantity and unit_price columns plus a
barcode or product_name column; receipt_id and sold_at are optional.`,
	Example: `  shopcore sales sales-export.csv

  shopcore sales sales-export.csv --store downtown`,
	Args: cobra.ExactArgs(1),
	RunE: runSales,
}

func init() {
	rootCmd.AddCommand(salesCmd)

	salesCmd.Flags().String("store", "", "Store ID (default: DEFAULT_STORE_ID)")
	salesCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runSales(cmd *cobra.Command, args []string) error {
	csvPath := args[0]
	if _, err := os.Stat(csvPath); err != nil {
		return fmt.Errorf("sales export not accessible: %w", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	d, err := buildStoreDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	storeID, _ := cmd.Flags().GetString("store")
	if storeID == "" {
		storeID = d.cfg.DefaultStoreID
	}

	log := logger.WithStore(storeID)
	log.Info().
		Str("file", csvPath).
		Msg("Starting sales ingestion")

	ingester := sales.NewIngester(d.store, d.cache)
	summary, err := ingester.IngestFile(ctx, csvPath, storeID)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d row(s) into %d sale(s)\n", summary.RowsIngested, summary.Sales)
	fmt.Printf("  products auto-created: %d\n", summary.ProductsCreated)
	fmt.Printf("  stock adjustments:     %d\n", summary.StockAdjusted)
	return nil
}
