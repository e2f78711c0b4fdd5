package services

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Competition banding thresholds, from organic listing count and median
// review count. Empirically tuned values; recalibrate against accumulated
// observations rather than re-deriving from scratch.
const (
	competitionMediumListings = 8
	competitionHighListings   = 15
	competitionMediumReviews  = 100
	competitionHighReviews    = 1500
)

// Total-unit clamp bands per competition level. Same caveat as above.
var competitionUnitBands = map[models.CompetitionLevel]struct{ Min, Max float64 }{
	models.CompetitionLow:    {Min: 200, Max: 8000},
	models.CompetitionMedium: {Min: 1000, Max: 30000},
	models.CompetitionHigh:   {Min: 5000, Max: 120000},
}

// Tier1Result bundles the per-listing estimates with page-level aggregates
// and the data-quality counters that later feed the observation record.
type Tier1Result struct {
	Products          []models.Tier1Product `json:"products"`
	Summary           models.Tier1Summary   `json:"summary"`
	MissingPriceCount int                   `json:"missing_price_count"`
	InvalidASINCount  int                   `json:"invalid_asin_count"`
}

// Tier1Estimator is the synchronous first-pass estimator. It works only
// from the already-fetched listing set: no network calls, no rank model,
// no trained-model lookup. Everything here is CPU-bound so the whole pass
// stays far inside the page's response-latency budget.
type Tier1Estimator struct {
	cfg    config.EstimatorConfig
	logger *logrus.Logger
}

// NewTier1Estimator creates a Tier-1 estimator.
func NewTier1Estimator(cfg config.EstimatorConfig, logger *logrus.Logger) *Tier1Estimator {
	return &Tier1Estimator{cfg: cfg, logger: logger}
}

// Build produces per-listing demand/revenue estimates for up to
// MaxProducts listings. Listings failing ASIN validation are excluded from
// the output entirely rather than being silently assigned zero. Repeated
// appearances of the same ASIN (marketplace boosts) collapse into one
// product so it is not allocated twice.
func (e *Tier1Estimator) Build(listings []models.Listing) Tier1Result {
	var result Tier1Result

	valid := make([]models.Listing, 0, len(listings))
	seen := make(map[string]int, len(listings))
	for _, l := range listings {
		if !models.ValidASIN(l.ASIN) {
			result.InvalidASINCount++
			continue
		}
		if idx, ok := seen[l.ASIN]; ok {
			mergeDuplicateListing(&valid[idx], l)
			continue
		}
		if len(valid) >= e.cfg.MaxProducts {
			continue
		}
		seen[l.ASIN] = len(valid)
		valid = append(valid, l)
	}

	if len(valid) == 0 {
		result.Summary.Competition = models.CompetitionLow
		result.Summary.AveragePrice = decimal.Zero
		result.Summary.TotalMonthlyUnits = decimal.Zero
		result.Summary.TotalMonthlyRevenue = decimal.Zero
		return result
	}

	avgPrice, priced := averagePrice(valid)
	result.MissingPriceCount = len(valid) - priced

	organicCount := 0
	sponsoredCount := 0
	reviews := make([]int, 0, len(valid))
	for _, l := range valid {
		if l.IsSponsored {
			sponsoredCount++
		}
		if l.OrganicRank != nil {
			organicCount++
		}
		reviews = append(reviews, l.Reviews())
	}
	medianReviews := medianInt(reviews)

	competition := classifyCompetition(organicCount, medianReviews)

	totalUnits := float64(len(valid)) * float64(e.cfg.BaseUnitsPerListing) * e.priceBandMultiplier(avgPrice)
	band := competitionUnitBands[competition]
	if totalUnits < band.Min {
		totalUnits = band.Min
	} else if totalUnits > band.Max {
		totalUnits = band.Max
	}

	totalRevenue := decimal.NewFromFloat(totalUnits).Mul(avgPrice)

	weights, weightSum := e.rankWeights(valid)

	products := make([]models.Tier1Product, 0, len(valid))
	allocatedUnits := decimal.Zero
	allocatedRevenue := decimal.Zero
	for i, l := range valid {
		share := decimal.Zero
		if weightSum > 0 {
			share = decimal.NewFromFloat(weights[i] / weightSum)
		}
		revenue := totalRevenue.Mul(share)

		units := decimal.Zero
		price := l.PriceOrZero()
		if price.IsPositive() {
			units = revenue.Div(price)
		}

		products = append(products, models.Tier1Product{
			ASIN:                    l.ASIN,
			Title:                   l.Title,
			Brand:                   l.BrandOrUnknown(),
			Price:                   price,
			Rating:                  l.Rating,
			ReviewCount:             l.Reviews(),
			IsSponsored:             l.IsSponsored,
			PagePosition:            l.PagePosition,
			OrganicRank:             l.OrganicRank,
			Fulfillment:             l.Fulfillment,
			EstimatedMonthlyUnits:   units.Round(0),
			EstimatedMonthlyRevenue: revenue.Round(2),
		})
		allocatedUnits = allocatedUnits.Add(units)
		allocatedRevenue = allocatedRevenue.Add(revenue)
	}

	result.Products = products
	result.Summary = models.Tier1Summary{
		ListingCount:        len(valid),
		OrganicCount:        organicCount,
		SponsoredCount:      sponsoredCount,
		AveragePrice:        avgPrice.Round(2),
		MedianReviews:       medianReviews,
		TotalMonthlyUnits:   allocatedUnits.Round(0),
		TotalMonthlyRevenue: allocatedRevenue.Round(2),
		Competition:         competition,
	}

	e.logger.WithFields(logrus.Fields{
		"listings":    len(valid),
		"invalid":     result.InvalidASINCount,
		"competition": competition,
		"avg_price":   avgPrice.String(),
	}).Debug("Tier-1 estimate built")

	return result
}

// priceBandMultiplier encodes the inverse price/volume relationship:
// expensive pages move fewer units, cheap pages move more.
func (e *Tier1Estimator) priceBandMultiplier(avgPrice decimal.Decimal) float64 {
	p := avgPrice.InexactFloat64()
	switch {
	case p > e.cfg.HighPriceThreshold:
		return e.cfg.HighPriceMultiplier
	case p > 0 && p < e.cfg.LowPriceThreshold:
		return e.cfg.LowPriceMultiplier
	default:
		return 1.0
	}
}

// rankWeights computes the inverse-power decay weight for each listing.
// Organic rank is preferred; sponsored-only listings fall back to page
// position so they still receive a diminished share.
func (e *Tier1Estimator) rankWeights(listings []models.Listing) ([]float64, float64) {
	weights := make([]float64, len(listings))
	sum := 0.0
	for i, l := range listings {
		rank := l.PagePosition
		if l.OrganicRank != nil && *l.OrganicRank > 0 {
			rank = *l.OrganicRank
		}
		if rank < 1 {
			rank = i + 1
		}
		w := math.Pow(float64(rank), -e.cfg.RankDecayExponent)
		weights[i] = w
		sum += w
	}
	return weights, sum
}

// mergeDuplicateListing folds a repeated page-one appearance of an ASIN
// into its first occurrence: the best rank wins, the sponsored flag is
// sticky, and missing signals are filled from the duplicate.
func mergeDuplicateListing(dst *models.Listing, dup models.Listing) {
	if dup.IsSponsored {
		dst.IsSponsored = true
	}
	if dup.OrganicRank != nil && (dst.OrganicRank == nil || *dup.OrganicRank < *dst.OrganicRank) {
		dst.OrganicRank = dup.OrganicRank
	}
	if dup.PagePosition > 0 && (dst.PagePosition <= 0 || dup.PagePosition < dst.PagePosition) {
		dst.PagePosition = dup.PagePosition
	}
	if dst.Price == nil {
		dst.Price = dup.Price
	}
	if dst.ReviewCount == nil {
		dst.ReviewCount = dup.ReviewCount
	}
	if dst.Rating == nil {
		dst.Rating = dup.Rating
	}
	if dst.Brand == nil {
		dst.Brand = dup.Brand
	}
}

func classifyCompetition(organicCount, medianReviews int) models.CompetitionLevel {
	if organicCount >= competitionHighListings || medianReviews >= competitionHighReviews {
		return models.CompetitionHigh
	}
	if organicCount >= competitionMediumListings || medianReviews >= competitionMediumReviews {
		return models.CompetitionMedium
	}
	return models.CompetitionLow
}

func averagePrice(listings []models.Listing) (decimal.Decimal, int) {
	sum := decimal.Zero
	count := 0
	for _, l := range listings {
		if l.Price != nil && l.Price.IsPositive() {
			sum = sum.Add(*l.Price)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, 0
	}
	return sum.Div(decimal.NewFromInt(int64(count))), count
}

func medianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// InferFulfillment maps an explicit seller/fulfillment field to a
// fulfillment value. A Prime badge alone is not treated as evidence of
// FBA; without an explicit field the answer stays unknown.
func InferFulfillment(sellerField string) models.Fulfillment {
	switch strings.ToLower(strings.TrimSpace(sellerField)) {
	case "fba", "fulfilled by amazon", "amazon fulfilled":
		return models.FulfillmentFBA
	case "fbm", "merchant", "fulfilled by merchant", "ships from seller":
		return models.FulfillmentFBM
	case "amazon", "amazon.com", "sold by amazon":
		return models.FulfillmentAmazonRetail
	default:
		return models.FulfillmentUnknown
	}
}
