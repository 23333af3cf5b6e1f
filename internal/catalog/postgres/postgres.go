// Package postgres implements the catalog interfaces on PostgreSQL using the
// pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopcore/internal/catalog"
	"shopcore/pkg/models"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, store_id, name, sku, barcode, cost_price, selling_price, is_unmatched, initial_stock, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.CatalogProduct, error) {
	var p models.CatalogProduct
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.SKU, &p.Barcode,
		&p.CostPrice, &p.SellingPrice, &p.IsUnmatched, &p.InitialStock,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.CatalogProduct, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (s *Store) FindByBarcode(ctx context.Context, storeID, barcode string) (*models.CatalogProduct, error) {
	if barcode == "" {
		return nil, catalog.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE store_id = $1 AND barcode = $2
	`, storeID, barcode)
	return scanProduct(row)
}

func (s *Store) FindByName(ctx context.Context, storeID, name string) (*models.CatalogProduct, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE store_id = $1 AND lower(name) = lower($2)
	`, storeID, name)
	return scanProduct(row)
}

func (s *Store) ListAll(ctx context.Context, storeID string) ([]models.CatalogProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE store_id = $1
		ORDER BY created_at, id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]models.CatalogProduct, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateCostPrice(ctx context.Context, id string, value float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET cost_price = $2, updated_at = now() WHERE id = $1
	`, id, value)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateBarcode(ctx context.Context, id, barcode string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET barcode = $2, updated_at = now() WHERE id = $1
	`, id, barcode)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) Create(ctx context.Context, product models.CatalogProduct) (*models.CatalogProduct, error) {
	if product.Name == "" || product.StoreID == "" {
		return nil, catalog.ErrInvalidProduct
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.StoreID, product.Name, product.SKU, product.Barcode,
		product.CostPrice, product.SellingPrice, product.IsUnmatched, product.InitialStock,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) LatestSnapshot(ctx context.Context, productID string) (*models.InventorySnapshot, error) {
	var snap models.InventorySnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, store_id, quantity, recorded_at
		FROM inventory_snapshots
		WHERE product_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, productID).Scan(&snap.ProductID, &snap.StoreID, &snap.Quantity, &snap.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, storeID, productID string, quantity float64) (*models.InventorySnapshot, error) {
	if quantity < 0 {
		return nil, catalog.ErrInvalidStock
	}
	snap := models.InventorySnapshot{
		ProductID:  productID,
		StoreID:    storeID,
		Quantity:   quantity,
		RecordedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_snapshots (product_id, store_id, quantity, recorded_at)
		VALUES ($1,$2,$3,$4)
	`, snap.ProductID, snap.StoreID, snap.Quantity, snap.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) UpdateLatest(ctx context.Context, productID string, quantity float64) error {
	if quantity < 0 {
		return catalog.ErrInvalidStock
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_snapshots SET quantity = $2
		WHERE id = (
			SELECT id FROM inventory_snapshots
			WHERE product_id = $1
			ORDER BY recorded_at DESC, id DESC
			LIMIT 1
		)
	`, productID, quantity)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CreateInvoice(ctx context.Context, invoice models.Invoice) (*models.Invoice, error) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	result, err := marshalResult(invoice.Result)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, store_id, source_path, status, result, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, invoice.ID, invoice.StoreID, invoice.SourcePath, invoice.Status, result,
		invoice.CreatedAt, invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	var result []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, source_path, status, result, created_at, updated_at
		FROM invoices WHERE id = $1
	`, id).Scan(&inv.ID, &inv.StoreID, &inv.SourcePath, &inv.Status, &result,
		&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 {
		inv.Result = &models.InvoiceParseResult{}
		if err := json.Unmarshal(result, inv.Result); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SaveInvoiceResult(ctx context.Context, id string, status models.InvoiceStatus, result *models.InvoiceParseResult) error {
	encoded, err := marshalResult(result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $2, result = $3, updated_at = now() WHERE id = $1
	`, id, status, encoded)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) FindInvoiceByNumber(ctx context.Context, storeID, supplier, number string) (*models.Invoice, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM invoices
		WHERE store_id = $1
		  AND status <> 'ERROR'
		  AND lower(result->'metadata'->>'supplier_name') = lower($2)
		  AND lower(result->'metadata'->>'invoice_number') = lower($3)
		ORDER BY created_at
		LIMIT 1
	`, storeID, supplier, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) CreateSale(ctx context.Context, sale models.Sale) (*models.Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	sale.CreatedAt = time.Now()

	lines, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, receipt_id, total, lines, sold_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.StoreID, sale.ReceiptID, sale.Total, lines, sale.SoldAt, sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func marshalResult(result *models.InvoiceParseResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	return json.Marshal(result)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
