package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Price and fee provenance tags.
const (
	PriceSourceListing       = "listing_price"
	PriceSourceMarketAverage = "market_average"
	PriceSourceUserOverride  = "user_override"
	PriceSourceDefault       = "default_assumption"

	COGSSourceAssumption   = "assumption_engine"
	COGSSourceUserOverride = "user_override"

	FeeSourceExactQuote       = "exact_quote"
	FeeSourceCategoryEstimate = "category_estimate"
)

// Each independent widening trigger expands the COGS band by this factor.
// Unknown sourcing and an electronics category both apply, additively.
const cogsBandWidenStep = 0.10

// MarginBuildInput carries everything the builder may draw on. The mode is
// binding: ASIN mode only ever reads ListingPrice, KEYWORD mode only ever
// reads MarketAvgPrice. Crossing them would corrupt price provenance.
type MarginBuildInput struct {
	Mode           models.MarginMode
	ASIN           *string
	Keyword        *string
	SourcingModel  models.SourcingModel
	Category       *string
	ListingPrice   *decimal.Decimal
	MarketAvgPrice *decimal.Decimal
	ExactFee       *decimal.Decimal
	Overrides      *models.MarginOverrides
}

// MarginBuilder assembles margin snapshots from price, the COGS assumption
// engine, and fee data. Re-invocation with user overrides recomputes every
// derived field.
type MarginBuilder struct {
	cfg    config.MarginConfig
	cogs   *COGSEngine
	logger *logrus.Logger
}

// NewMarginBuilder creates a margin builder.
func NewMarginBuilder(cfg config.MarginConfig, cogs *COGSEngine, logger *logrus.Logger) *MarginBuilder {
	return &MarginBuilder{cfg: cfg, cogs: cogs, logger: logger}
}

// Build creates a margin snapshot. Overrides that are logically impossible
// (COGS at or above price, negative fee) are rejected with a descriptive
// error before being applied, never silently clamped.
func (b *MarginBuilder) Build(input MarginBuildInput) (*models.MarginSnapshot, error) {
	if input.Mode != models.MarginModeASIN && input.Mode != models.MarginModeKeyword {
		return nil, fmt.Errorf("invalid margin mode %q", input.Mode)
	}

	var assumptions []string

	price, priceSource, priceAssumption := b.resolvePrice(input)
	if priceAssumption != "" {
		assumptions = append(assumptions, priceAssumption)
	}

	if err := validateOverrides(input.Overrides, price); err != nil {
		return nil, err
	}

	cogsMin, cogsMax, cogsSource, cogsAssumptions := b.resolveCOGS(input, price)
	assumptions = append(assumptions, cogsAssumptions...)

	fee, feeSource, feeAssumption := b.resolveFee(input, price)
	if feeAssumption != "" {
		assumptions = append(assumptions, feeAssumption)
	}

	// Low-cost bound yields the margin ceiling, high-cost bound the floor.
	marginMax := netMarginPct(price, cogsMin, fee)
	marginMin := netMarginPct(price, cogsMax, fee)

	snapshot := &models.MarginSnapshot{
		ID:                uuid.New().String(),
		Mode:              input.Mode,
		ASIN:              input.ASIN,
		Keyword:           input.Keyword,
		SourcingModel:     input.SourcingModel,
		Category:          input.Category,
		AssumedPrice:      price.Round(2),
		PriceSource:       priceSource,
		COGSMin:           cogsMin.Round(2),
		COGSMax:           cogsMax.Round(2),
		COGSSource:        cogsSource,
		FBAFee:            fee.Round(2),
		FBAFeeSource:      feeSource,
		NetMarginMinPct:   marginMin.Round(2),
		NetMarginMaxPct:   marginMax.Round(2),
		BreakevenPriceMin: cogsMin.Add(fee).Round(2),
		BreakevenPriceMax: cogsMax.Add(fee).Round(2),
		ConfidenceTier:    confidenceTier(cogsSource, feeSource),
		Assumptions:       assumptions,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}

	b.logger.WithFields(logrus.Fields{
		"mode":       snapshot.Mode,
		"price":      snapshot.AssumedPrice.String(),
		"confidence": snapshot.ConfidenceTier,
	}).Debug("Margin snapshot built")

	return snapshot, nil
}

// Refine rebuilds an existing snapshot with user-supplied overrides. All
// derived fields are recomputed from scratch; nothing is patched in place.
func (b *MarginBuilder) Refine(existing *models.MarginSnapshot, overrides models.MarginOverrides) (*models.MarginSnapshot, error) {
	input := MarginBuildInput{
		Mode:          existing.Mode,
		ASIN:          existing.ASIN,
		Keyword:       existing.Keyword,
		SourcingModel: existing.SourcingModel,
		Category:      existing.Category,
		Overrides:     &overrides,
	}

	// Carry the stored price forward through the mode-appropriate slot so
	// the mode binding stays intact.
	storedPrice := existing.AssumedPrice
	if existing.Mode == models.MarginModeASIN {
		input.ListingPrice = &storedPrice
	} else {
		input.MarketAvgPrice = &storedPrice
	}
	if existing.FBAFeeSource == FeeSourceExactQuote && overrides.FBAFee == nil {
		fee := existing.FBAFee
		input.ExactFee = &fee
	}
	if overrides.FBAFee != nil {
		input.ExactFee = overrides.FBAFee
	}
	if existing.COGSSource == COGSSourceUserOverride && overrides.UnitCost == nil {
		cost := existing.COGSMin
		overrides.UnitCost = &cost
		input.Overrides = &overrides
	}

	rebuilt, err := b.Build(input)
	if err != nil {
		return nil, err
	}

	// Refinement only ever improves provenance; keep the better tier if
	// the rebuild somehow resolved to a lower one.
	if existing.ConfidenceTier.AtLeast(rebuilt.ConfidenceTier) {
		rebuilt.ConfidenceTier = existing.ConfidenceTier
	}

	rebuilt.ID = existing.ID
	rebuilt.CreatedAt = existing.CreatedAt
	rebuilt.UpdatedAt = time.Now().UTC()
	if existing.PriceSource != "" && (overrides.Price == nil || existing.PriceSource == PriceSourceUserOverride) {
		rebuilt.PriceSource = existing.PriceSource
	}

	return rebuilt, nil
}

func (b *MarginBuilder) resolvePrice(input MarginBuildInput) (decimal.Decimal, string, string) {
	if input.Overrides != nil && input.Overrides.Price != nil && input.Overrides.Price.IsPositive() {
		return *input.Overrides.Price, PriceSourceUserOverride, ""
	}

	var candidate *decimal.Decimal
	var source string
	if input.Mode == models.MarginModeASIN {
		candidate, source = input.ListingPrice, PriceSourceListing
	} else {
		candidate, source = input.MarketAvgPrice, PriceSourceMarketAverage
	}
	if candidate != nil && candidate.IsPositive() {
		return *candidate, source, ""
	}

	fallback := decimal.NewFromFloat(b.cfg.DefaultPrice)
	return fallback, PriceSourceDefault,
		fmt.Sprintf("no price signal available, assumed default price $%s", fallback.StringFixed(2))
}

func (b *MarginBuilder) resolveCOGS(input MarginBuildInput, price decimal.Decimal) (decimal.Decimal, decimal.Decimal, string, []string) {
	if input.Overrides != nil && input.Overrides.UnitCost != nil {
		cost := *input.Overrides.UnitCost
		return cost, cost, COGSSourceUserOverride, nil
	}

	category := ""
	if input.Category != nil {
		category = *input.Category
	}
	estimate := b.cogs.EstimateCOGS(price, category, input.SourcingModel)

	assumptions := []string{"cost of goods estimated: " + estimate.Rationale}
	low, high := estimate.Low, estimate.High

	widen := 0.0
	if input.SourcingModel == models.SourcingUnknown || input.SourcingModel == "" {
		widen += cogsBandWidenStep
		assumptions = append(assumptions, "band widened 10% for unknown sourcing model")
	}
	if InferCOGSCategory(category) == cogsCategoryElectronics {
		widen += cogsBandWidenStep
		assumptions = append(assumptions, "band widened 10% for electronics category")
	}
	if widen > 0 {
		low = low.Mul(decimal.NewFromFloat(1 - widen/2))
		high = high.Mul(decimal.NewFromFloat(1 + widen/2))
		if high.GreaterThan(price) {
			high = price
		}
	}

	return low, high, COGSSourceAssumption, assumptions
}

func (b *MarginBuilder) resolveFee(input MarginBuildInput, price decimal.Decimal) (decimal.Decimal, string, string) {
	if input.ExactFee != nil {
		return *input.ExactFee, FeeSourceExactQuote, ""
	}
	fee := price.Mul(decimal.NewFromFloat(b.cfg.DefaultFeePct)).Div(decimal.NewFromInt(100))
	return fee, FeeSourceCategoryEstimate,
		fmt.Sprintf("fulfillment fee estimated at %.1f%% of price", b.cfg.DefaultFeePct)
}

func validateOverrides(overrides *models.MarginOverrides, price decimal.Decimal) error {
	if overrides == nil {
		return nil
	}
	if overrides.UnitCost != nil {
		if !overrides.UnitCost.IsPositive() {
			return fmt.Errorf("unit cost override must be positive, got %s", overrides.UnitCost)
		}
		if overrides.UnitCost.GreaterThanOrEqual(price) {
			return fmt.Errorf("unit cost override %s is at or above the price %s", overrides.UnitCost, price)
		}
	}
	if overrides.FBAFee != nil && overrides.FBAFee.IsNegative() {
		return fmt.Errorf("fee override must not be negative, got %s", overrides.FBAFee)
	}
	if overrides.Price != nil && !overrides.Price.IsPositive() {
		return fmt.Errorf("price override must be positive, got %s", overrides.Price)
	}
	return nil
}

// netMarginPct computes (price - cogs - fee) / price as a percentage,
// floored at zero. The breakeven fields preserve the underlying numbers
// when the floor fires.
func netMarginPct(price, cogs, fee decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	margin := price.Sub(cogs).Sub(fee).Div(price).Mul(decimal.NewFromInt(100))
	if margin.IsNegative() {
		return decimal.Zero
	}
	return margin
}

func confidenceTier(cogsSource, feeSource string) models.MarginConfidenceTier {
	exactCOGS := cogsSource == COGSSourceUserOverride
	exactFee := feeSource == FeeSourceExactQuote
	switch {
	case exactCOGS && exactFee:
		return models.MarginExact
	case exactCOGS || exactFee:
		return models.MarginRefined
	default:
		return models.MarginEstimated
	}
}
