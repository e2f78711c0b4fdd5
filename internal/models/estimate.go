package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier1Product is the per-listing output of the fast synchronous estimator.
// It is derived purely from organic rank, page position and price; it never
// depends on best-seller rank.
type Tier1Product struct {
	ASIN                    string          `json:"asin"`
	Title                   string          `json:"title,omitempty"`
	Brand                   string          `json:"brand"`
	Price                   decimal.Decimal `json:"price"`
	Rating                  *float64        `json:"rating,omitempty"`
	ReviewCount             int             `json:"review_count"`
	IsSponsored             bool            `json:"is_sponsored"`
	PagePosition            int             `json:"page_position"`
	OrganicRank             *int            `json:"organic_rank,omitempty"`
	Fulfillment             Fulfillment     `json:"fulfillment"`
	EstimatedMonthlyUnits   decimal.Decimal `json:"estimated_monthly_units"`
	EstimatedMonthlyRevenue decimal.Decimal `json:"estimated_monthly_revenue"`
}

// CompetitionLevel bands a keyword market by how crowded page one is.
type CompetitionLevel string

const (
	CompetitionLow    CompetitionLevel = "low"
	CompetitionMedium CompetitionLevel = "medium"
	CompetitionHigh   CompetitionLevel = "high"
)

// Tier1Summary carries the page-level aggregates of a Tier-1 pass.
type Tier1Summary struct {
	ListingCount        int              `json:"listing_count"`
	OrganicCount        int              `json:"organic_count"`
	SponsoredCount      int              `json:"sponsored_count"`
	AveragePrice        decimal.Decimal  `json:"average_price"`
	MedianReviews       int              `json:"median_reviews"`
	TotalMonthlyUnits   decimal.Decimal  `json:"total_monthly_units"`
	TotalMonthlyRevenue decimal.Decimal  `json:"total_monthly_revenue"`
	Competition         CompetitionLevel `json:"competition"`
}

// ConfidenceLevel labels a Tier-2 confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// AlgorithmBoost flags an ASIN the marketplace surfaced more than once in
// the raw page-one scan. A competitive signal, not a data error.
type AlgorithmBoost struct {
	ASIN        string `json:"asin"`
	Occurrences int    `json:"occurrences"`
}

// BrandShare is one brand's slice of page-one revenue.
type BrandShare struct {
	Brand           string          `json:"brand"`
	Revenue         decimal.Decimal `json:"revenue"`
	RevenueSharePct decimal.Decimal `json:"revenue_share_pct"`
}

// BrandDominance summarizes page-one revenue concentration by brand.
type BrandDominance struct {
	TopBrands        []BrandShare    `json:"top_brands"`
	Top5RevenueShare decimal.Decimal `json:"top5_revenue_share_pct"`
}

// Tier2Refinement is the asynchronous refinement record for one analysis
// snapshot. It never mutates Tier-1 output; it is attached alongside it.
// Every section is optional so that partial results stay representable
// when individual pipeline steps fail.
type Tier2Refinement struct {
	SnapshotID        string           `json:"snapshot_id"`
	CalibratedUnits   *decimal.Decimal `json:"calibrated_units,omitempty"`
	CalibratedRevenue *decimal.Decimal `json:"calibrated_revenue,omitempty"`
	CalibrationSource string           `json:"calibration_source,omitempty"`
	ConfidenceScore   *int             `json:"confidence_score,omitempty"`
	ConfidenceLevel   ConfidenceLevel  `json:"confidence_level,omitempty"`
	AlgorithmBoosts   []AlgorithmBoost `json:"algorithm_boosts,omitempty"`
	BrandDominance    *BrandDominance  `json:"brand_dominance,omitempty"`
	RefinedAt         time.Time        `json:"refined_at"`
}

// MarketObservation is an immutable record of one completed analysis,
// persisted append-only and consumed only as calibration training data.
type MarketObservation struct {
	ID                  int64            `json:"id" db:"id"`
	Marketplace         string           `json:"marketplace" db:"marketplace"`
	Keyword             string           `json:"keyword" db:"keyword"`
	SnapshotID          string           `json:"snapshot_id" db:"snapshot_id"`
	ListingCount        int              `json:"listing_count" db:"listing_count"`
	AvgPrice            decimal.Decimal  `json:"avg_price" db:"avg_price"`
	AvgReviews          float64          `json:"avg_reviews" db:"avg_reviews"`
	SponsoredPct        float64          `json:"sponsored_pct" db:"sponsored_pct"`
	Tier1TotalUnits     decimal.Decimal  `json:"tier1_total_units" db:"tier1_total_units"`
	Tier1TotalRevenue   decimal.Decimal  `json:"tier1_total_revenue" db:"tier1_total_revenue"`
	CalibratedUnits     *decimal.Decimal `json:"calibrated_units,omitempty" db:"calibrated_units"`
	CalibratedRevenue   *decimal.Decimal `json:"calibrated_revenue,omitempty" db:"calibrated_revenue"`
	ConfidenceScore     *int             `json:"confidence_score,omitempty" db:"confidence_score"`
	MissingPriceCount   int              `json:"missing_price_count" db:"missing_price_count"`
	InvalidASINCount    int              `json:"invalid_asin_count" db:"invalid_asin_count"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
}
