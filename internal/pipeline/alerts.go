package pipeline

import (
	"fmt"
	"math"

	"shopcore/internal/config"
	"shopcore/pkg/models"
)

// AlertEngine derives pricing alerts and invoice-level anomalies from matched
// line items. All thresholds come from configuration rather than literals so
// they can be tuned per deployment.
type AlertEngine struct {
	thresholds config.Thresholds
}

func NewAlertEngine(thresholds config.Thresholds) *AlertEngine {
	return &AlertEngine{thresholds: thresholds}
}

// DetectAlerts evaluates each matched item against the catalog baseline.
// Unmatched items produce a NEW_PRODUCT alert instead of price comparisons.
func (e *AlertEngine) DetectAlerts(items []models.MatchedLineItem, catalog []models.CatalogProduct) []models.PricingAlert {
	byID := make(map[string]*models.CatalogProduct, len(catalog))
	for i := range catalog {
		byID[catalog[i].ID] = &catalog[i]
	}

	alerts := make([]models.PricingAlert, 0)
	for _, item := range items {
		if item.MatchedProductID == nil {
			alerts = append(alerts, models.PricingAlert{
				Type:        models.AlertNewProduct,
				ProductName: item.Description,
				Message:     fmt.Sprintf("%q is not in the catalog yet", item.Description),
				Severity:    models.SeverityLow,
			})
			continue
		}

		product, ok := byID[*item.MatchedProductID]
		if !ok {
			continue
		}
		alerts = append(alerts, e.priceAlerts(item, product)...)
	}
	return alerts
}

func (e *AlertEngine) priceAlerts(item models.MatchedLineItem, product *models.CatalogProduct) []models.PricingAlert {
	oldCost := product.CostPrice
	newCost := item.UnitCost

	var alerts []models.PricingAlert
	if oldCost > 0 {
		change := (newCost - oldCost) / oldCost * 100

		switch {
		case change > e.thresholds.PriceChangePercent:
			severity := models.SeverityMedium
			if change > e.thresholds.SevereChangePercent {
				severity = models.SeverityHigh
			}
			alerts = append(alerts, models.PricingAlert{
				Type:        models.AlertPriceIncrease,
				ProductName: product.Name,
				Message:     fmt.Sprintf("cost of %s increased %.1f%% (%.2f -> %.2f)", product.Name, change, oldCost, newCost),
				Severity:    severity,
				OldValue:    &oldCost,
				NewValue:    &newCost,
			})
		case change < -e.thresholds.PriceChangePercent:
			alerts = append(alerts, models.PricingAlert{
				Type:        models.AlertPriceDecrease,
				ProductName: product.Name,
				Message:     fmt.Sprintf("cost of %s decreased %.1f%% (%.2f -> %.2f)", product.Name, -change, oldCost, newCost),
				Severity:    models.SeverityLow,
				OldValue:    &oldCost,
				NewValue:    &newCost,
			})
		}
	}

	if product.SellingPrice > 0 {
		margin := (product.SellingPrice - newCost) / product.SellingPrice * 100
		if margin < e.thresholds.MarginFloorPercent {
			severity := models.SeverityMedium
			if margin < e.thresholds.CriticalMarginPercent {
				severity = models.SeverityHigh
			}
			alerts = append(alerts, models.PricingAlert{
				Type:        models.AlertMarginCompression,
				ProductName: product.Name,
				Message:     fmt.Sprintf("margin on %s drops to %.1f%% at the new cost", product.Name, margin),
				Severity:    severity,
				OldValue:    &oldCost,
				NewValue:    &newCost,
			})
		}
	}
	return alerts
}

// ValidateTotals cross-checks the invoice arithmetic: line totals against the
// stated subtotal, and subtotal plus taxes minus discounts against the stated
// total. It also flags per-line inconsistencies. Anomalies are advisory and
// never block processing.
func (e *AlertEngine) ValidateTotals(metadata models.InvoiceMetadata, items []models.MatchedLineItem) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	tolerance := e.thresholds.TotalTolerance

	lineSum := 0.0
	for _, item := range items {
		lineSum += item.LineTotal

		if item.Quantity == 0 && item.LineTotal > 0 {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyQuantityMismatch,
				Message:  fmt.Sprintf("%q has a line total of %.2f but zero quantity", item.Description, item.LineTotal),
				Severity: models.SeverityLow,
			})
			continue
		}
		if expected := item.Quantity * item.UnitCost; math.Abs(item.LineTotal-expected) > tolerance {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalySuspiciousCharge,
				Message:  fmt.Sprintf("%q line total %.2f does not match %.0f x %.2f", item.Description, item.LineTotal, item.Quantity, item.UnitCost),
				Severity: models.SeverityLow,
			})
		}
	}

	if metadata.Subtotal != nil {
		if diff := math.Abs(lineSum - *metadata.Subtotal); diff > tolerance {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyTotalMismatch,
				Message:  fmt.Sprintf("line items sum to %.2f but subtotal reads %.2f", lineSum, *metadata.Subtotal),
				Severity: models.SeverityMedium,
			})
		}
	}

	if metadata.Subtotal != nil && metadata.Total != nil && metadata.Taxes != nil {
		discounts := 0.0
		if metadata.Discounts != nil {
			discounts = *metadata.Discounts
		}
		expected := *metadata.Subtotal + *metadata.Taxes - discounts
		if diff := math.Abs(expected - *metadata.Total); diff > tolerance {
			anomalies = append(anomalies, models.Anomaly{
				Type:     models.AnomalyTotalMismatch,
				Message:  fmt.Sprintf("subtotal %.2f + taxes - discounts gives %.2f but total reads %.2f", *metadata.Subtotal, expected, *metadata.Total),
				Severity: models.SeverityHigh,
			})
		}
	}

	return anomalies
}
