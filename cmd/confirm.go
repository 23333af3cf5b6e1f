package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"shopcore/internal/logger"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm [invoice-id]",
	Short: "Apply a parsed invoice to the catalog and inventory",
	Long: `Confirm a parsed invoice: overwrite matched products' cost prices
with the invoiced unit costs and add the received quantities to inventory.

This is the only step that writes to the catalog. It is rejected for
invoices still processing, in error, or already confirmed. Unmatched line
items are skipped; resolve them before confirming if they should be
received.`,
	Example: `  shopcore confirm 7d63c5a0-4a0e-4d8a-9f2b-0c1de87a21f4`,
	Args:    cobra.ExactArgs(1),
	RunE:    runConfirm,
}

func init() {
	rootCmd.AddCommand(confirmCmd)

	confirmCmd.Flags().Int("timeout", 60, "Processing timeout in seconds")
}

func runConfirm(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("confirm")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	d, err := buildStoreDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	invoiceID := args[0]
	log.Info().Str("invoice_id", invoiceID).Msg("Confirming invoice")

	updates, err := d.service.Confirm(ctx, invoiceID, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Invoice %s confirmed, %d product(s) updated\n", invoiceID, len(updates))
	for _, update := range updates {
		fmt.Printf("  %-25s +%.0f units (now %.0f), cost %.2f\n",
			update.ProductName, update.QuantityAdded, update.NewQuantity, update.NewCost)
	}
	return nil
}
