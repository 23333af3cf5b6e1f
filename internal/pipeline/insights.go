package pipeline

import (
	"fmt"

	"shopcore/pkg/models"
)

// priceTrendMinimum is how many cost increases on one invoice it takes
// before we call it a supplier-wide trend.
const priceTrendMinimum = 3

// GenerateInsights derives owner-facing takeaways from one invoice's matched
// items and alerts. Pure derivation, no external reads.
func GenerateInsights(items []models.MatchedLineItem, alerts []models.PricingAlert) []models.BusinessInsight {
	unmatched := 0
	for _, item := range items {
		if item.MatchedProductID == nil {
			unmatched++
		}
	}

	increases := 0
	compressions := 0
	for _, alert := range alerts {
		switch alert.Type {
		case models.AlertPriceIncrease:
			increases++
		case models.AlertMarginCompression:
			compressions++
		}
	}

	insights := make([]models.BusinessInsight, 0, 3)
	if unmatched > 0 {
		insights = append(insights, models.BusinessInsight{
			Type:        models.InsightReorderSuggestion,
			Title:       "New products on this invoice",
			Description: fmt.Sprintf("%d line item(s) did not match any catalog product.", unmatched),
			Action:      "Add them to the catalog or link them to existing products before confirming.",
		})
	}
	if compressions > 0 {
		insights = append(insights, models.BusinessInsight{
			Type:        models.InsightMarginAlert,
			Title:       "Margins under pressure",
			Description: fmt.Sprintf("%d product(s) fall below the margin floor at the new cost.", compressions),
			Action:      "Review selling prices for the flagged products.",
		})
	}
	if increases >= priceTrendMinimum {
		insights = append(insights, models.BusinessInsight{
			Type:        models.InsightPriceTrend,
			Title:       "Supplier prices trending up",
			Description: fmt.Sprintf("%d product(s) on this invoice cost more than last time.", increases),
			Action:      "Consider comparing quotes from alternative suppliers.",
		})
	}
	return insights
}
