package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Moat classification thresholds. Checked in order; first match wins.
var (
	hardRevenueShare     = decimal.NewFromInt(60)
	hardComboShare       = decimal.NewFromInt(40)
	softRevenueShareLow  = decimal.NewFromInt(40)
	priceImmunityPremium = decimal.NewFromFloat(1.15)
)

const (
	hardComboSlots      = 3
	hardSlotOnlySlots   = 5
	hardSlotOnlyTop10   = 3
	softSlotCount       = 2
	softReviewMultiple  = 2.0
	ladderMinListings   = 3
	ladderMaxMultiple   = 3.0
	priceImmunityTop10  = 2
)

// brandStats aggregates one brand's page-one presence.
type brandStats struct {
	brand        string
	revenue      decimal.Decimal
	pageOneSlots int
	top10Slots   int
	reviews      []int
	prices       []decimal.Decimal
}

// MoatClassifier turns per-listing brand, revenue, review, price and
// position data into a three-level moat verdict. Pure function of its
// input: identical listing sets always yield identical verdicts.
type MoatClassifier struct{}

// NewMoatClassifier creates a moat classifier.
func NewMoatClassifier() *MoatClassifier {
	return &MoatClassifier{}
}

// Classify evaluates the page-one brand structure. Empty or brandless
// input yields NONE with all signals false; it never errors.
func (mc *MoatClassifier) Classify(products []models.Tier1Product) models.BrandMoatVerdict {
	verdict := models.BrandMoatVerdict{
		Level:           models.MoatNone,
		RevenueSharePct: decimal.Zero,
	}
	if len(products) == 0 {
		return verdict
	}

	totalRevenue := decimal.Zero
	allReviews := make([]int, 0, len(products))
	allPrices := make([]decimal.Decimal, 0, len(products))
	byBrand := make(map[string]*brandStats)
	branded := false

	for _, p := range products {
		totalRevenue = totalRevenue.Add(p.EstimatedMonthlyRevenue)
		allReviews = append(allReviews, p.ReviewCount)
		if p.Price.IsPositive() {
			allPrices = append(allPrices, p.Price)
		}

		brand := p.Brand
		if brand == "" || brand == "Unknown" {
			continue
		}
		branded = true

		stats, ok := byBrand[brand]
		if !ok {
			stats = &brandStats{brand: brand}
			byBrand[brand] = stats
		}
		stats.revenue = stats.revenue.Add(p.EstimatedMonthlyRevenue)
		stats.pageOneSlots++
		if p.PagePosition <= 10 {
			stats.top10Slots++
		}
		stats.reviews = append(stats.reviews, p.ReviewCount)
		if p.Price.IsPositive() {
			stats.prices = append(stats.prices, p.Price)
		}
	}

	if !branded || totalRevenue.IsZero() {
		return verdict
	}

	dominant := dominantBrand(byBrand)
	share := dominant.revenue.Div(totalRevenue).Mul(decimal.NewFromInt(100))

	pageMedianReviews := medianInt(allReviews)
	pageMedianPrice := medianDecimal(allPrices)
	brandMedianReviews := medianInt(dominant.reviews)
	brandMedianPrice := medianDecimal(dominant.prices)

	verdict.DominantBrand = &dominant.brand
	verdict.RevenueSharePct = share.Round(2)
	verdict.PageOneSlots = dominant.pageOneSlots
	verdict.Top10Slots = dominant.top10Slots

	verdict.Signals.RevenueConcentration = share.GreaterThanOrEqual(softRevenueShareLow)
	verdict.Signals.SlotControl = dominant.pageOneSlots >= hardComboSlots
	verdict.Signals.ReviewLadder = hasReviewLadder(dominant.reviews)
	verdict.Signals.PriceImmunity = pageMedianPrice.IsPositive() &&
		brandMedianPrice.GreaterThanOrEqual(pageMedianPrice.Mul(priceImmunityPremium)) &&
		dominant.top10Slots >= priceImmunityTop10

	switch {
	case share.GreaterThanOrEqual(hardRevenueShare),
		dominant.pageOneSlots >= hardComboSlots && share.GreaterThanOrEqual(hardComboShare),
		dominant.pageOneSlots >= hardSlotOnlySlots && dominant.top10Slots >= hardSlotOnlyTop10:
		verdict.Level = models.MoatHard
	case share.GreaterThanOrEqual(softRevenueShareLow),
		dominant.pageOneSlots >= softSlotCount && pageMedianReviews > 0 &&
			float64(brandMedianReviews) >= softReviewMultiple*float64(pageMedianReviews),
		verdict.Signals.ReviewLadder:
		verdict.Level = models.MoatSoft
	default:
		verdict.Level = models.MoatNone
	}

	return verdict
}

// dominantBrand picks the brand with the highest page-one revenue; ties
// break alphabetically so classification stays deterministic.
func dominantBrand(byBrand map[string]*brandStats) *brandStats {
	names := make([]string, 0, len(byBrand))
	for name := range byBrand {
		names = append(names, name)
	}
	sort.Strings(names)

	var best *brandStats
	for _, name := range names {
		stats := byBrand[name]
		if best == nil || stats.revenue.GreaterThan(best.revenue) {
			best = stats
		}
	}
	return best
}

// hasReviewLadder detects one flagship listing propping up the rest of a
// brand's page-one presence: three or more same-brand listings where the
// max review count is at least 3x the brand's own median.
func hasReviewLadder(reviews []int) bool {
	if len(reviews) < ladderMinListings {
		return false
	}
	median := medianInt(reviews)
	if median <= 0 {
		return false
	}
	max := reviews[0]
	for _, r := range reviews[1:] {
		if r > max {
			max = r
		}
	}
	return float64(max) >= ladderMaxMultiple*float64(median)
}

func medianDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	}
	return sorted[mid]
}
