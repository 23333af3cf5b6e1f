package models

import "time"

// InvoiceStatus tracks an invoice through the processing lifecycle.
// PROCESSING moves to PARSED, NEEDS_REVIEW or ERROR after a pipeline run;
// CONFIRMED is terminal and guards against double application of updates.
type InvoiceStatus string

const (
	StatusProcessing  InvoiceStatus = "PROCESSING"
	StatusParsed      InvoiceStatus = "PARSED"
	StatusNeedsReview InvoiceStatus = "NEEDS_REVIEW"
	StatusError       InvoiceStatus = "ERROR"
	StatusConfirmed   InvoiceStatus = "CONFIRMED"
)

// Invoice is the record of one supplier invoice document.
type Invoice struct {
	ID         string        `json:"id"`
	StoreID    string        `json:"store_id"`
	SourcePath string        `json:"source_path"` // scanned document path, kept for reprocessing
	Status     InvoiceStatus `json:"status"`

	// Result is the latest pipeline output. Nil while PROCESSING or after
	// an ERROR that happened before any result was produced.
	Result *InvoiceParseResult `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InvoiceMetadata holds the header fields extracted from an invoice.
// Every field is independently nullable: OCR or the language model may fail
// to find any one of them and downstream logic must tolerate full-null data.
type InvoiceMetadata struct {
	SupplierName  *string  `json:"supplier_name"`
	InvoiceNumber *string  `json:"invoice_number"`
	InvoiceDate   *string  `json:"invoice_date"` // YYYY-MM-DD as extracted
	DueDate       *string  `json:"due_date"`
	Subtotal      *float64 `json:"subtotal"`
	Taxes         *float64 `json:"taxes"`
	Discounts     *float64 `json:"discounts"`
	Total         *float64 `json:"total"`
}

// ExtractedLineItem is one invoice line as produced by structured extraction.
// Immutable once produced; matching wraps it rather than mutating it.
type ExtractedLineItem struct {
	Description string  `json:"description"`
	SKU         *string `json:"sku"`
	UPC         *string `json:"upc"`
	Quantity    float64 `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
	LineTotal   float64 `json:"line_total"`
}

// MatchedLineItem is an extracted line item resolved against the catalog.
// Zero-or-one matched product per line; duplicate lines are not merged, so
// one product may be matched by several items within a single invoice.
type MatchedLineItem struct {
	ExtractedLineItem

	MatchedProductID   *string `json:"matched_product_id"`
	MatchedProductName *string `json:"matched_product_name"`

	// Confidence is 0.99 for barcode matches, 0.95 for SKU matches, the
	// fuzzy score for name matches and 0 when nothing matched.
	Confidence float64 `json:"confidence"`
}

// AlertType classifies a pricing alert.
type AlertType string

const (
	AlertPriceIncrease     AlertType = "PRICE_INCREASE"
	AlertPriceDecrease     AlertType = "PRICE_DECREASE"
	AlertNewProduct        AlertType = "NEW_PRODUCT"
	AlertMarginCompression AlertType = "MARGIN_COMPRESSION"
)

// Severity grades alerts and anomalies for review prioritisation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PricingAlert flags a cost or margin issue on one invoice line.
// Derived data; persisted only as part of the invoice result.
type PricingAlert struct {
	Type        AlertType `json:"type"`
	ProductName string    `json:"product_name"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	OldValue    *float64  `json:"old_value,omitempty"`
	NewValue    *float64  `json:"new_value,omitempty"`
}

// AnomalyType classifies an invoice-level consistency finding.
type AnomalyType string

const (
	AnomalyDuplicateInvoice AnomalyType = "DUPLICATE_INVOICE"
	AnomalyQuantityMismatch AnomalyType = "QUANTITY_MISMATCH"
	AnomalyTotalMismatch    AnomalyType = "TOTAL_MISMATCH"
	AnomalySuspiciousCharge AnomalyType = "SUSPICIOUS_CHARGE"
)

// Anomaly is advisory only: it never blocks confirmation, it only flags
// the invoice for review.
type Anomaly struct {
	Type     AnomalyType `json:"type"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
}

// InsightType classifies a derived business insight.
type InsightType string

const (
	InsightReorderSuggestion InsightType = "REORDER_SUGGESTION"
	InsightMarginAlert       InsightType = "MARGIN_ALERT"
	InsightPriceTrend        InsightType = "PRICE_TREND"
)

// BusinessInsight is a human-readable takeaway derived from alerts and
// match results. Purely presentational.
type BusinessInsight struct {
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Action      string      `json:"action,omitempty"`
}

// AppliedUpdate is the audit record for one inventory mutation applied on
// confirmation.
type AppliedUpdate struct {
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	QuantityAdded float64 `json:"quantity_added"`
	NewCost       float64 `json:"new_cost"`
	NewQuantity   float64 `json:"new_quantity"`
}

// InvoiceParseResult aggregates everything one pipeline run produced.
type InvoiceParseResult struct {
	Metadata         InvoiceMetadata   `json:"metadata"`
	LineItems        []MatchedLineItem `json:"line_items"`
	InventoryUpdates []AppliedUpdate   `json:"inventory_updates"` // empty until confirmation
	PricingAlerts    []PricingAlert    `json:"pricing_alerts"`
	Anomalies        []Anomaly         `json:"anomalies"`
	Insights         []BusinessInsight `json:"business_insights"`
	RawText          string            `json:"raw_text"`

	// Confidence is ocrConfidence*0.4 + averageMatchConfidence*0.6, where
	// the average is 0 when there are no line items.
	Confidence  float64 `json:"confidence"`
	NeedsReview bool    `json:"needs_review"`
}
