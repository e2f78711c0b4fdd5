package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
)

func testMarginBuilder() *MarginBuilder {
	cfg := config.MarginConfig{DefaultPrice: 25.0, DefaultFeePct: 15.0}
	return NewMarginBuilder(cfg, NewCOGSEngine(), testLogger())
}

func decimalPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func strPtr(s string) *string {
	return &s
}

func TestMarginBuild_EstimatedSnapshot(t *testing.T) {
	builder := testMarginBuilder()

	snapshot, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		ASIN:          strPtr("B00EXAMPLE"),
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  decimalPtr(40),
	})

	require.NoError(t, err)
	assert.Equal(t, models.MarginEstimated, snapshot.ConfidenceTier)
	assert.Equal(t, PriceSourceListing, snapshot.PriceSource)
	assert.Equal(t, COGSSourceAssumption, snapshot.COGSSource)
	assert.Equal(t, FeeSourceCategoryEstimate, snapshot.FBAFeeSource)

	// Wholesale band 50-70% of $40 and a 15% fee of $6.
	assert.True(t, snapshot.COGSMin.Equal(decimal.NewFromInt(20)), "cogs min = %s", snapshot.COGSMin)
	assert.True(t, snapshot.COGSMax.Equal(decimal.NewFromInt(28)), "cogs max = %s", snapshot.COGSMax)
	assert.True(t, snapshot.FBAFee.Equal(decimal.NewFromInt(6)))
	// Margin ceiling from the low-cost bound: (40-20-6)/40 = 35%.
	assert.True(t, snapshot.NetMarginMaxPct.Equal(decimal.NewFromInt(35)), "max margin = %s", snapshot.NetMarginMaxPct)
	// Margin floor from the high-cost bound: (40-28-6)/40 = 15%.
	assert.True(t, snapshot.NetMarginMinPct.Equal(decimal.NewFromInt(15)), "min margin = %s", snapshot.NetMarginMinPct)
	assert.True(t, snapshot.BreakevenPriceMin.Equal(decimal.NewFromInt(26)))
	assert.True(t, snapshot.BreakevenPriceMax.Equal(decimal.NewFromInt(34)))
	assert.NotEmpty(t, snapshot.Assumptions)
}

func TestMarginBuild_KeywordModeUsesMarketAverage(t *testing.T) {
	builder := testMarginBuilder()

	snapshot, err := builder.Build(MarginBuildInput{
		Mode:           models.MarginModeKeyword,
		Keyword:        strPtr("silicone spatula"),
		SourcingModel:  models.SourcingPrivateLabel,
		ListingPrice:   decimalPtr(99), // must be ignored in keyword mode
		MarketAvgPrice: decimalPtr(18),
	})

	require.NoError(t, err)
	assert.Equal(t, PriceSourceMarketAverage, snapshot.PriceSource)
	assert.True(t, snapshot.AssumedPrice.Equal(decimal.NewFromInt(18)))
}

func TestMarginBuild_NoPriceFallsBackToDefault(t *testing.T) {
	builder := testMarginBuilder()

	snapshot, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingWholesale,
	})

	require.NoError(t, err)
	assert.Equal(t, PriceSourceDefault, snapshot.PriceSource)
	assert.True(t, snapshot.AssumedPrice.Equal(decimal.NewFromInt(25)))
	assert.Contains(t, snapshot.Assumptions[0], "default price")
}

func TestMarginBuild_UnknownSourcingWidensBand(t *testing.T) {
	builder := testMarginBuilder()

	known, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  decimalPtr(50),
	})
	require.NoError(t, err)

	unknown, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingUnknown,
		ListingPrice:  decimalPtr(50),
	})
	require.NoError(t, err)

	knownWidth := known.COGSMax.Sub(known.COGSMin)
	unknownWidth := unknown.COGSMax.Sub(unknown.COGSMin)
	assert.True(t, unknownWidth.GreaterThan(knownWidth),
		"unknown sourcing band %s should be wider than wholesale band %s", unknownWidth, knownWidth)
}

func TestMarginBuild_InvalidMode(t *testing.T) {
	builder := testMarginBuilder()

	_, err := builder.Build(MarginBuildInput{Mode: "both"})

	assert.Error(t, err)
}

func TestMarginBuild_RejectsImpossibleOverrides(t *testing.T) {
	builder := testMarginBuilder()

	tests := []struct {
		name      string
		overrides models.MarginOverrides
	}{
		{name: "cogs at price", overrides: models.MarginOverrides{UnitCost: decimalPtr(40)}},
		{name: "cogs above price", overrides: models.MarginOverrides{UnitCost: decimalPtr(45)}},
		{name: "negative cogs", overrides: models.MarginOverrides{UnitCost: decimalPtr(-1)}},
		{name: "negative fee", overrides: models.MarginOverrides{FBAFee: decimalPtr(-2)}},
		{name: "zero price", overrides: models.MarginOverrides{Price: decimalPtr(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overrides := tt.overrides
			_, err := builder.Build(MarginBuildInput{
				Mode:          models.MarginModeASIN,
				SourcingModel: models.SourcingWholesale,
				ListingPrice:  decimalPtr(40),
				Overrides:     &overrides,
			})
			assert.Error(t, err)
		})
	}
}

func TestMarginRefine_ExactOverridesReachExactTier(t *testing.T) {
	builder := testMarginBuilder()

	estimated, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		ASIN:          strPtr("B00EXAMPLE"),
		SourcingModel: models.SourcingPrivateLabel,
		ListingPrice:  decimalPtr(40),
	})
	require.NoError(t, err)
	require.Equal(t, models.MarginEstimated, estimated.ConfidenceTier)

	refined, err := builder.Refine(estimated, models.MarginOverrides{
		UnitCost: decimalPtr(12),
		FBAFee:   decimalPtr(3.50),
	})
	require.NoError(t, err)

	assert.Equal(t, models.MarginExact, refined.ConfidenceTier)
	assert.Equal(t, estimated.ID, refined.ID)
	assert.True(t, refined.COGSMin.Equal(refined.COGSMax), "exact cost collapses the band")
	assert.True(t, refined.COGSMin.Equal(decimal.NewFromInt(12)))
	// (40 - 12 - 3.50) / 40 = 61.25%
	assert.True(t, refined.NetMarginMinPct.Equal(refined.NetMarginMaxPct))
	assert.True(t, refined.NetMarginMinPct.Equal(decimal.NewFromFloat(61.25)), "margin = %s", refined.NetMarginMinPct)
	assert.True(t, refined.BreakevenPriceMin.Equal(decimal.NewFromFloat(15.50)))
}

func TestMarginRefine_SingleOverrideReachesRefinedTier(t *testing.T) {
	builder := testMarginBuilder()

	estimated, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  decimalPtr(40),
	})
	require.NoError(t, err)

	refined, err := builder.Refine(estimated, models.MarginOverrides{UnitCost: decimalPtr(15)})
	require.NoError(t, err)

	assert.Equal(t, models.MarginRefined, refined.ConfidenceTier)
}

func TestMarginRefine_TierNeverDowngrades(t *testing.T) {
	builder := testMarginBuilder()

	estimated, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  decimalPtr(40),
	})
	require.NoError(t, err)

	exact, err := builder.Refine(estimated, models.MarginOverrides{
		UnitCost: decimalPtr(12),
		FBAFee:   decimalPtr(3.50),
	})
	require.NoError(t, err)
	require.Equal(t, models.MarginExact, exact.ConfidenceTier)

	// A later refinement carrying only a fee stays EXACT because the
	// stored exact cost is carried forward.
	again, err := builder.Refine(exact, models.MarginOverrides{FBAFee: decimalPtr(4)})
	require.NoError(t, err)

	assert.Equal(t, models.MarginExact, again.ConfidenceTier)
	assert.True(t, again.COGSMin.Equal(decimal.NewFromInt(12)))
	assert.True(t, again.FBAFee.Equal(decimal.NewFromInt(4)))
}

func TestMarginRefine_InvalidOverrideLeavesSnapshotIntact(t *testing.T) {
	builder := testMarginBuilder()

	estimated, err := builder.Build(MarginBuildInput{
		Mode:          models.MarginModeASIN,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  decimalPtr(40),
	})
	require.NoError(t, err)

	_, err = builder.Refine(estimated, models.MarginOverrides{UnitCost: decimalPtr(41)})

	assert.Error(t, err)
	assert.Equal(t, models.MarginEstimated, estimated.ConfidenceTier)
}

func TestNetMarginPct_FlooredAtZero(t *testing.T) {
	margin := netMarginPct(decimal.NewFromInt(10), decimal.NewFromInt(9), decimal.NewFromInt(5))
	assert.True(t, margin.IsZero())
}
