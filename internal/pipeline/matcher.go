package pipeline

import (
	"strings"

	"shopcore/pkg/models"
)

// Match confidence assigned by each resolution tier. Exact identifier matches
// rank above any fuzzy name score.
const (
	barcodeMatchConfidence = 0.99
	skuMatchConfidence     = 0.95

	containmentWeight  = 0.8
	tokenOverlapWeight = 0.7
	tokenOverlapFloor  = 0.3
)

// MatchItems resolves extracted line items against the store catalog. Each
// item is matched independently in strict priority order: exact barcode,
// then case-insensitive SKU, then fuzzy name. The first tier that produces
// a match short-circuits the rest. Items that resolve nowhere keep a nil
// product reference and zero confidence.
//
// MatchItems is a pure function: it never mutates the catalog or the items.
func MatchItems(items []models.ExtractedLineItem, catalog []models.CatalogProduct) []models.MatchedLineItem {
	matched := make([]models.MatchedLineItem, 0, len(items))
	for _, item := range items {
		matched = append(matched, matchItem(item, catalog))
	}
	return matched
}

func matchItem(item models.ExtractedLineItem, catalog []models.CatalogProduct) models.MatchedLineItem {
	result := models.MatchedLineItem{ExtractedLineItem: item}

	if item.UPC != nil && *item.UPC != "" {
		for i := range catalog {
			p := &catalog[i]
			if p.Barcode != nil && *p.Barcode == *item.UPC {
				return bind(result, p, barcodeMatchConfidence)
			}
		}
	}

	if item.SKU != nil && *item.SKU != "" {
		for i := range catalog {
			p := &catalog[i]
			if p.SKU != nil && strings.EqualFold(*p.SKU, *item.SKU) {
				return bind(result, p, skuMatchConfidence)
			}
		}
	}

	if best, score := bestNameMatch(item.Description, catalog); best != nil {
		return bind(result, best, score)
	}

	return result
}

func bind(item models.MatchedLineItem, p *models.CatalogProduct, confidence float64) models.MatchedLineItem {
	id := p.ID
	name := p.Name
	item.MatchedProductID = &id
	item.MatchedProductName = &name
	item.Confidence = confidence
	return item
}

// bestNameMatch scores every catalog product against the item description and
// keeps the single highest score. Ties keep the first product encountered.
func bestNameMatch(description string, catalog []models.CatalogProduct) (*models.CatalogProduct, float64) {
	desc := normalizeName(description)
	if desc == "" {
		return nil, 0
	}

	var best *models.CatalogProduct
	bestScore := 0.0
	for i := range catalog {
		score := nameScore(desc, normalizeName(catalog[i].Name))
		if score > bestScore {
			best = &catalog[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// nameScore combines two fuzzy signals and returns the stronger one: a
// substring-containment score when one name contains the other, and a
// token-overlap score when enough words line up between the two names.
func nameScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	score := 0.0
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		score = float64(shorter) / float64(longer) * containmentWeight
	}

	if overlap := tokenOverlap(a, b); overlap > tokenOverlapFloor {
		if s := overlap * tokenOverlapWeight; s > score {
			score = s
		}
	}
	return score
}

// tokenOverlap counts item words that are substrings of, or contain, a
// product word, normalized by the larger word count.
func tokenOverlap(a, b string) float64 {
	aWords := strings.Fields(a)
	bWords := strings.Fields(b)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}

	matching := 0
	for _, aw := range aWords {
		for _, bw := range bWords {
			if strings.Contains(aw, bw) || strings.Contains(bw, aw) {
				matching++
				break
			}
		}
	}

	denom := len(aWords)
	if len(bWords) > denom {
		denom = len(bWords)
	}
	return float64(matching) / float64(denom)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
