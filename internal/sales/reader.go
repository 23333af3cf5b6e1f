// Package sales ingests POS sales exports: it parses the CSV, groups rows
// into receipts, resolves each row to a catalog product, and decrements
// tracked inventory.
package sales

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

// ErrInvalidStock marks a row with a negative quantity or unit price. Such
// rows are rejected at the boundary, before any catalog or ledger write.
var ErrInvalidStock = errors.New("invalid stock value")

// Reader parses POS sales CSV exports. Columns are located by header name so
// exports with reordered or extra columns still parse. Rows that cannot be
// parsed are skipped with a warning rather than failing the whole file.
type Reader struct {
	log zerolog.Logger
}

func NewReader() *Reader {
	return &Reader{log: logger.WithComponent("sales-reader")}
}

// ReadFile reads and parses the CSV at path.
func (r *Reader) ReadFile(path string) ([]models.SalesRow, error) {
	const op = "ReadFile"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open sales export: %w", op, err)
	}
	defer f.Close()

	return r.Read(f)
}

// Read parses CSV rows from src. The first record must be a header row
// containing at least quantity and unit_price plus one of barcode or
// product_name.
func (r *Reader) Read(src io.Reader) ([]models.SalesRow, error) {
	const op = "Read"

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse CSV: %w", op, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: sales export is empty", op)
	}

	columns, err := indexColumns(records[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows := make([]models.SalesRow, 0, len(records)-1)
	for i, record := range records[1:] {
		rowNum := i + 2

		row, err := parseRow(record, columns)
		if err != nil {
			r.log.Warn().
				Err(err).
				Int("row", rowNum).
				Msg("Failed to parse sales row, skipping")
			continue
		}
		rows = append(rows, *row)
	}

	r.log.Info().
		Int("total_rows", len(records)-1).
		Int("parsed_rows", len(rows)).
		Msg("Sales rows read successfully")
	return rows, nil
}

// columnIndex maps the known header names to their positions.
type columnIndex struct {
	receiptID int
	barcode   int
	name      int
	quantity  int
	unitPrice int
	soldAt    int
}

func indexColumns(header []string) (*columnIndex, error) {
	idx := &columnIndex{receiptID: -1, barcode: -1, name: -1, quantity: -1, unitPrice: -1, soldAt: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "receipt_id", "receipt", "transaction_id":
			idx.receiptID = i
		case "barcode", "upc":
			idx.barcode = i
		case "product_name", "name", "item":
			idx.name = i
		case "quantity", "qty":
			idx.quantity = i
		case "unit_price", "price":
			idx.unitPrice = i
		case "sold_at", "timestamp", "date":
			idx.soldAt = i
		}
	}

	if idx.quantity == -1 || idx.unitPrice == -1 {
		return nil, errors.New("header is missing quantity or unit_price column")
	}
	if idx.barcode == -1 && idx.name == -1 {
		return nil, errors.New("header needs a barcode or product_name column")
	}
	return idx, nil
}

func parseRow(record []string, columns *columnIndex) (*models.SalesRow, error) {
	row := models.SalesRow{
		ReceiptID:   field(record, columns.receiptID),
		Barcode:     field(record, columns.barcode),
		ProductName: field(record, columns.name),
	}
	if row.Barcode == "" && row.ProductName == "" {
		return nil, errors.New("row has neither barcode nor product name")
	}

	qty, err := parseFloat(field(record, columns.quantity))
	if err != nil {
		return nil, fmt.Errorf("bad quantity: %w", err)
	}
	price, err := parseFloat(field(record, columns.unitPrice))
	if err != nil {
		return nil, fmt.Errorf("bad unit price: %w", err)
	}
	if qty < 0 || price < 0 {
		return nil, fmt.Errorf("%w: quantity %.2f at price %.2f", ErrInvalidStock, qty, price)
	}
	row.Quantity = qty
	row.UnitPrice = price

	if raw := field(record, columns.soldAt); raw != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				row.SoldAt = &ts
				break
			}
		}
	}
	return &row, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseFloat accepts both "1.50" and the comma-decimal "1,50" some POS
// systems export.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}
