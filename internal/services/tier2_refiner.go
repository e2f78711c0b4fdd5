package services

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Confidence scoring constants for the Tier-2 pipeline.
const (
	confidenceBase            = 50
	confidenceManyListings    = 20 // >= 15 listings
	confidenceSomeListings    = 10 // >= 5 listings
	confidenceTightDispersion = 15 // review dispersion/mean < 0.5
	confidenceLooseDispersion = 5  // review dispersion/mean < 1.0
	confidenceLowSponsored    = 15 // sponsored density < 20%

	manyListingsThreshold = 15
	someListingsThreshold = 5
	tightDispersionRatio  = 0.5
	looseDispersionRatio  = 1.0
	lowSponsoredDensity   = 0.20

	confidenceMediumScore = 50
	confidenceHighScore   = 80

	brandDominanceTopN = 5
)

// Tier2Refiner is the asynchronous refinement pipeline. It runs after the
// Tier-1 response has already been returned; its failures must never
// surface to the original caller. Each step degrades independently: a
// failed step is logged and omitted, and the remaining steps still run.
type Tier2Refiner struct {
	calibrator *Calibrator
	curveModel *BSRCurveModel
	enricher   *Enricher
	logger     *logrus.Logger
}

// NewTier2Refiner creates a refinement pipeline.
func NewTier2Refiner(calibrator *Calibrator, curveModel *BSRCurveModel, enricher *Enricher, logger *logrus.Logger) *Tier2Refiner {
	return &Tier2Refiner{
		calibrator: calibrator,
		curveModel: curveModel,
		enricher:   enricher,
		logger:     logger,
	}
}

// Refine produces the Tier-2 record for a snapshot. rawListings is the
// pre-filter page scan (duplicates included); tier1 is the already
// computed fast estimate for the same snapshot id. Partial results are
// valid output.
func (r *Tier2Refiner) Refine(ctx context.Context, snapshotID, marketplace string, rawListings []models.Listing, tier1 Tier1Result, budget *EnrichmentBudget) models.Tier2Refinement {
	refinement := models.Tier2Refinement{
		SnapshotID: snapshotID,
		RefinedAt:  time.Now().UTC(),
	}

	r.calibrate(ctx, marketplace, tier1, budget, &refinement)
	r.scoreConfidence(tier1, &refinement)
	refinement.AlgorithmBoosts = detectAlgorithmBoosts(rawListings)
	refinement.BrandDominance = computeBrandDominance(tier1.Products)

	return refinement
}

// calibrate recomputes page totals through the self-calibrating estimator
// and, when rank signals can be fetched inside the budget, blends in the
// curve model's rank-implied totals.
func (r *Tier2Refiner) calibrate(ctx context.Context, marketplace string, tier1 Tier1Result, budget *EnrichmentBudget, out *models.Tier2Refinement) {
	if tier1.Summary.ListingCount == 0 {
		r.logger.Debug("Skipping calibration, no listings")
		return
	}

	input := calibrationInputFromTier1(tier1)

	unitsRange := r.calibrator.Estimate(ctx, marketplace, models.ModelTypeSearchVolume, input)
	revenueRange := r.calibrator.Estimate(ctx, marketplace, models.ModelTypeRevenue, input)

	unitsCenter := unitsRange.Center
	revenueCenter := revenueRange.Center
	if rankUnits, covered := r.rankImpliedUnits(ctx, tier1, budget); covered {
		// Even-weight blend: the curve model grounds the calibrated
		// center when real rank signals exist. Revenue is rescaled by
		// the same factor so the two totals stay consistent.
		blended := (unitsCenter + rankUnits) / 2
		if unitsCenter > 0 {
			revenueCenter *= blended / unitsCenter
		}
		unitsCenter = blended
	}

	units := decimal.NewFromFloat(unitsCenter).Round(0)
	revenue := decimal.NewFromFloat(revenueCenter).Round(2)

	out.CalibratedUnits = &units
	out.CalibratedRevenue = &revenue
	out.CalibrationSource = unitsRange.Source
	if unitsRange.ModelVersion != "" {
		out.CalibrationSource = unitsRange.Source + ":" + unitsRange.ModelVersion
	}
}

// rankImpliedUnits estimates page totals from best-seller ranks for the
// listings that have (or can fetch) rank data, extrapolated to the full
// page by coverage. Returns false when no rank signal was obtainable.
func (r *Tier2Refiner) rankImpliedUnits(ctx context.Context, tier1 Tier1Result, budget *EnrichmentBudget) (float64, bool) {
	if r.curveModel == nil {
		return 0, false
	}

	covered := 0
	totalUnits := 0.0
	for _, p := range tier1.Products {
		category := ""
		rank := 0
		// Tier-1 products never carry rank; it comes from enrichment.
		if r.enricher != nil {
			info, err := r.enricher.Lookup(ctx, p.ASIN, budget)
			if err != nil {
				r.logger.WithError(err).WithField("asin", p.ASIN).Warn("Rank enrichment failed, skipping listing")
				continue
			}
			if info == nil {
				continue
			}
			rank = info.RankInCategory
			category = info.Category
		}
		estimate := r.curveModel.EstimateUnits(rank, category)
		if estimate == nil {
			continue
		}
		totalUnits += estimate.Units
		covered++
	}

	if covered == 0 {
		return 0, false
	}

	scale := float64(len(tier1.Products)) / float64(covered)
	return totalUnits * scale, true
}

// scoreConfidence applies the fixed additive rubric and maps the clamped
// score to a level.
func (r *Tier2Refiner) scoreConfidence(tier1 Tier1Result, out *models.Tier2Refinement) {
	score := confidenceBase

	count := tier1.Summary.ListingCount
	switch {
	case count >= manyListingsThreshold:
		score += confidenceManyListings
	case count >= someListingsThreshold:
		score += confidenceSomeListings
	}

	mean, stddev := reviewStats(tier1.Products)
	if mean > 0 {
		ratio := stddev / mean
		switch {
		case ratio < tightDispersionRatio:
			score += confidenceTightDispersion
		case ratio < looseDispersionRatio:
			score += confidenceLooseDispersion
		}
	}

	if count > 0 {
		density := float64(tier1.Summary.SponsoredCount) / float64(count)
		if density < lowSponsoredDensity {
			score += confidenceLowSponsored
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	out.ConfidenceScore = &score
	switch {
	case score >= confidenceHighScore:
		out.ConfidenceLevel = models.ConfidenceHigh
	case score >= confidenceMediumScore:
		out.ConfidenceLevel = models.ConfidenceMedium
	default:
		out.ConfidenceLevel = models.ConfidenceLow
	}
}

// detectAlgorithmBoosts counts raw ASIN occurrences across the scanned
// page before any de-duplication. An ASIN surfacing twice or more means
// the marketplace placed the same product in multiple slots.
func detectAlgorithmBoosts(rawListings []models.Listing) []models.AlgorithmBoost {
	counts := make(map[string]int)
	order := make([]string, 0, len(rawListings))
	for _, l := range rawListings {
		if !models.ValidASIN(l.ASIN) {
			continue
		}
		if _, seen := counts[l.ASIN]; !seen {
			order = append(order, l.ASIN)
		}
		counts[l.ASIN]++
	}

	var boosts []models.AlgorithmBoost
	for _, asin := range order {
		if counts[asin] >= 2 {
			boosts = append(boosts, models.AlgorithmBoost{ASIN: asin, Occurrences: counts[asin]})
		}
	}
	return boosts
}

// computeBrandDominance groups Tier-1 revenue by brand (missing brands
// bucketed as "Unknown") and reports the top-5 cumulative revenue share.
func computeBrandDominance(products []models.Tier1Product) *models.BrandDominance {
	if len(products) == 0 {
		return nil
	}

	totals := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	pageTotal := decimal.Zero
	for _, p := range products {
		brand := p.Brand
		if brand == "" {
			brand = "Unknown"
		}
		if _, seen := totals[brand]; !seen {
			order = append(order, brand)
		}
		totals[brand] = totals[brand].Add(p.EstimatedMonthlyRevenue)
		pageTotal = pageTotal.Add(p.EstimatedMonthlyRevenue)
	}

	shares := make([]models.BrandShare, 0, len(order))
	for _, brand := range order {
		share := decimal.Zero
		if pageTotal.IsPositive() {
			share = totals[brand].Div(pageTotal).Mul(decimal.NewFromInt(100))
		}
		shares = append(shares, models.BrandShare{
			Brand:           brand,
			Revenue:         totals[brand].Round(2),
			RevenueSharePct: share.Round(2),
		})
	}

	// Highest revenue first; ties keep first-seen page order.
	for i := 1; i < len(shares); i++ {
		for j := i; j > 0 && shares[j].Revenue.GreaterThan(shares[j-1].Revenue); j-- {
			shares[j], shares[j-1] = shares[j-1], shares[j]
		}
	}

	topN := brandDominanceTopN
	if len(shares) < topN {
		topN = len(shares)
	}
	top5Share := decimal.Zero
	for _, s := range shares[:topN] {
		top5Share = top5Share.Add(s.RevenueSharePct)
	}

	return &models.BrandDominance{
		TopBrands:        shares[:topN],
		Top5RevenueShare: top5Share.Round(2),
	}
}

func calibrationInputFromTier1(tier1 Tier1Result) models.CalibrationInput {
	sponsoredPct := 0.0
	if tier1.Summary.ListingCount > 0 {
		sponsoredPct = float64(tier1.Summary.SponsoredCount) / float64(tier1.Summary.ListingCount)
	}
	return models.CalibrationInput{
		Page1Count:   tier1.Summary.ListingCount,
		AvgReviews:   meanReviews(tier1.Products),
		SponsoredPct: sponsoredPct,
		AvgPrice:     tier1.Summary.AveragePrice.InexactFloat64(),
	}
}

func meanReviews(products []models.Tier1Product) float64 {
	if len(products) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range products {
		sum += float64(p.ReviewCount)
	}
	return sum / float64(len(products))
}

func reviewStats(products []models.Tier1Product) (mean, stddev float64) {
	if len(products) == 0 {
		return 0, 0
	}
	mean = meanReviews(products)
	variance := 0.0
	for _, p := range products {
		diff := float64(p.ReviewCount) - mean
		variance += diff * diff
	}
	variance /= float64(len(products))
	return mean, math.Sqrt(variance)
}
