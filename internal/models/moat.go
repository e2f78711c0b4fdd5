package models

import (
	"github.com/shopspring/decimal"
)

// MoatLevel is the three-tier brand moat verdict.
type MoatLevel string

const (
	MoatNone MoatLevel = "none"
	MoatSoft MoatLevel = "soft"
	MoatHard MoatLevel = "hard"
)

// MoatSignals are the individual structural signals backing a verdict.
// PriceImmunity is recorded but never drives the tier on its own: premium
// pricing without revenue or slot dominance is not evidence of a moat.
type MoatSignals struct {
	RevenueConcentration bool `json:"revenue_concentration"`
	SlotControl          bool `json:"slot_control"`
	ReviewLadder         bool `json:"review_ladder"`
	PriceImmunity        bool `json:"price_immunity"`
}

// BrandMoatVerdict is the output of the moat classifier. Computed fresh on
// every request; persisted only as part of an observation or snapshot.
type BrandMoatVerdict struct {
	Level           MoatLevel       `json:"level"`
	DominantBrand   *string         `json:"dominant_brand,omitempty"`
	Signals         MoatSignals     `json:"signals"`
	RevenueSharePct decimal.Decimal `json:"revenue_share_pct"`
	PageOneSlots    int             `json:"page_one_slots"`
	Top10Slots      int             `json:"top10_slots"`
}
