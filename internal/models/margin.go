package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarginMode selects which price source a snapshot is allowed to use.
// The two modes never mix price sources: an ASIN-mode snapshot must never
// fall back to a keyword average, and vice versa.
type MarginMode string

const (
	MarginModeASIN    MarginMode = "asin"
	MarginModeKeyword MarginMode = "keyword"
)

// MarginConfidenceTier ranks margin provenance. Ordering matters:
// ESTIMATED < REFINED < EXACT, and a snapshot's tier is only ever improved
// by better inputs, never silently downgraded.
type MarginConfidenceTier string

const (
	MarginEstimated MarginConfidenceTier = "estimated"
	MarginRefined   MarginConfidenceTier = "refined"
	MarginExact     MarginConfidenceTier = "exact"
)

// marginTierRank orders confidence tiers for comparison.
var marginTierRank = map[MarginConfidenceTier]int{
	MarginEstimated: 0,
	MarginRefined:   1,
	MarginExact:     2,
}

// AtLeast reports whether t is at or above other in the tier ordering.
func (t MarginConfidenceTier) AtLeast(other MarginConfidenceTier) bool {
	return marginTierRank[t] >= marginTierRank[other]
}

// MarginSnapshot combines price, COGS range and fee data into a margin
// range with provenance. Assumptions lists, in order, every substituted
// value so the reader can audit what was estimated rather than known.
type MarginSnapshot struct {
	ID                string               `json:"id" db:"id"`
	Mode              MarginMode           `json:"mode" db:"mode"`
	ASIN              *string              `json:"asin,omitempty" db:"asin"`
	Keyword           *string              `json:"keyword,omitempty" db:"keyword"`
	SourcingModel     SourcingModel        `json:"sourcing_model" db:"sourcing_model"`
	Category          *string              `json:"category,omitempty" db:"category"`
	AssumedPrice      decimal.Decimal      `json:"assumed_price" db:"assumed_price"`
	PriceSource       string               `json:"price_source" db:"price_source"`
	COGSMin           decimal.Decimal      `json:"cogs_min" db:"cogs_min"`
	COGSMax           decimal.Decimal      `json:"cogs_max" db:"cogs_max"`
	COGSSource        string               `json:"cogs_source" db:"cogs_source"`
	FBAFee            decimal.Decimal      `json:"fba_fee" db:"fba_fee"`
	FBAFeeSource      string               `json:"fba_fee_source" db:"fba_fee_source"`
	NetMarginMinPct   decimal.Decimal      `json:"net_margin_min_pct" db:"net_margin_min_pct"`
	NetMarginMaxPct   decimal.Decimal      `json:"net_margin_max_pct" db:"net_margin_max_pct"`
	BreakevenPriceMin decimal.Decimal      `json:"breakeven_price_min" db:"breakeven_price_min"`
	BreakevenPriceMax decimal.Decimal      `json:"breakeven_price_max" db:"breakeven_price_max"`
	ConfidenceTier    MarginConfidenceTier `json:"confidence_tier" db:"confidence_tier"`
	Assumptions       []string             `json:"assumptions" db:"assumptions"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at" db:"updated_at"`
}

// MarginOverrides carries user-supplied exact values for snapshot
// refinement. Nil fields mean "keep the estimated value".
type MarginOverrides struct {
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	FBAFee   *decimal.Decimal `json:"fba_fee,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}
