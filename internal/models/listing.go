package models

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Fulfillment identifies how a listing is fulfilled. Unknown is a
// first-class value: nothing in the engine is allowed to default it
// toward FBA or FBM without an explicit fulfillment signal.
type Fulfillment string

const (
	FulfillmentFBA          Fulfillment = "fba"
	FulfillmentFBM          Fulfillment = "fbm"
	FulfillmentAmazonRetail Fulfillment = "amazon_retail"
	FulfillmentUnknown      Fulfillment = "unknown"
)

// SourcingModel enumerates the supported product sourcing strategies.
type SourcingModel string

const (
	SourcingPrivateLabel    SourcingModel = "private_label"
	SourcingWholesale       SourcingModel = "wholesale"
	SourcingRetailArbitrage SourcingModel = "retail_arbitrage"
	SourcingDropshipping    SourcingModel = "dropshipping"
	SourcingUnknown         SourcingModel = "unknown"
)

var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ValidASIN reports whether s is a canonical 10-character ASIN.
func ValidASIN(s string) bool {
	return asinPattern.MatchString(s)
}

// Listing represents one scraped marketplace search-result or product entry.
// Nullable signals are pointers: a missing price, rating, review count or
// brand is a valid scraped state, not an error.
type Listing struct {
	ASIN           string           `json:"asin"`
	Title          string           `json:"title,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Rating         *float64         `json:"rating,omitempty"`
	ReviewCount    *int             `json:"review_count,omitempty"`
	IsSponsored    bool             `json:"is_sponsored"`
	PagePosition   int              `json:"page_position"`
	OrganicRank    *int             `json:"organic_rank,omitempty"`
	Brand          *string          `json:"brand,omitempty"`
	Fulfillment    Fulfillment      `json:"fulfillment"`
	RankInCategory *int             `json:"rank_in_category,omitempty"`
	Category       *string          `json:"category,omitempty"`
}

// PriceOrZero returns the listing price, or zero when the price is missing.
func (l *Listing) PriceOrZero() decimal.Decimal {
	if l.Price == nil {
		return decimal.Zero
	}
	return *l.Price
}

// Reviews returns the review count, or zero when it is missing.
func (l *Listing) Reviews() int {
	if l.ReviewCount == nil {
		return 0
	}
	return *l.ReviewCount
}

// BrandOrUnknown returns the brand name, bucketing an absent brand as
// "Unknown" for aggregation purposes.
func (l *Listing) BrandOrUnknown() string {
	if l.Brand == nil || *l.Brand == "" {
		return "Unknown"
	}
	return *l.Brand
}
