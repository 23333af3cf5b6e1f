package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestMatchItemsBarcodeBeatsName(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Cola", Barcode: strPtr("001")},
		{ID: "B", Name: "coke"},
	}
	items := []models.ExtractedLineItem{
		{Description: "coke", UPC: strPtr("001"), Quantity: 1, UnitCost: 0.5},
	}

	matched := MatchItems(items, catalog)
	require.Len(t, matched, 1)
	require.NotNil(t, matched[0].MatchedProductID)
	assert.Equal(t, "A", *matched[0].MatchedProductID)
	assert.Equal(t, "Cola", *matched[0].MatchedProductName)
	assert.Equal(t, 0.99, matched[0].Confidence)
}

func TestMatchItemsSKUCaseInsensitive(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Potato Chips BBQ", SKU: strPtr("CHIP-BBQ-01")},
	}
	items := []models.ExtractedLineItem{
		{Description: "chips", SKU: strPtr("chip-bbq-01")},
	}

	matched := MatchItems(items, catalog)
	require.NotNil(t, matched[0].MatchedProductID)
	assert.Equal(t, "A", *matched[0].MatchedProductID)
	assert.Equal(t, 0.95, matched[0].Confidence)
}

func TestMatchItemsFuzzyContainment(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Red Bull"},
	}
	items := []models.ExtractedLineItem{
		{Description: "Red Bull 8oz"},
	}

	matched := MatchItems(items, catalog)
	require.NotNil(t, matched[0].MatchedProductID)
	assert.Equal(t, "A", *matched[0].MatchedProductID)
	// "red bull" is contained in "red bull 8oz": 8/12 * 0.8
	assert.InDelta(t, 0.533, matched[0].Confidence, 0.001)
}

func TestMatchItemsFuzzyTokenOverlap(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Energy Drink Can"},
	}
	items := []models.ExtractedLineItem{
		{Description: "Bull Energy Drink"},
	}

	matched := MatchItems(items, catalog)
	require.NotNil(t, matched[0].MatchedProductID)
	// 2 of max(3,3) words line up: 2/3 * 0.7
	assert.InDelta(t, 0.467, matched[0].Confidence, 0.001)
}

func TestMatchItemsWeakOverlapIgnored(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Peanut Butter Jar Crunchy"},
	}
	items := []models.ExtractedLineItem{
		{Description: "Almond Butter Spread Classic"},
	}

	matched := MatchItems(items, catalog)
	assert.Nil(t, matched[0].MatchedProductID)
	assert.Zero(t, matched[0].Confidence)
}

func TestMatchItemsBestScoreWinsFirstOnTie(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Bottled Water"},
		{ID: "B", Name: "Bottled Water"},
	}
	items := []models.ExtractedLineItem{
		{Description: "Bottled Water 500ml"},
	}

	matched := MatchItems(items, catalog)
	require.NotNil(t, matched[0].MatchedProductID)
	assert.Equal(t, "A", *matched[0].MatchedProductID)
}

func TestMatchItemsNoMatch(t *testing.T) {
	catalog := []models.CatalogProduct{
		{ID: "A", Name: "Cola 12oz", Barcode: strPtr("049000000443")},
	}
	items := []models.ExtractedLineItem{
		{Description: "Windshield Wipers", UPC: strPtr("999")},
	}

	matched := MatchItems(items, catalog)
	require.Len(t, matched, 1)
	assert.Nil(t, matched[0].MatchedProductID)
	assert.Nil(t, matched[0].MatchedProductName)
	assert.Zero(t, matched[0].Confidence)
}

func TestMatchItemsEmptyCatalog(t *testing.T) {
	items := []models.ExtractedLineItem{{Description: "anything"}}

	matched := MatchItems(items, nil)
	require.Len(t, matched, 1)
	assert.Nil(t, matched[0].MatchedProductID)
}
