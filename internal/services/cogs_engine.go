package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// COGSBand is a percent-of-price band for cost-of-goods estimation.
type COGSBand struct {
	LowPct  float64
	HighPct float64
}

// COGSEstimate is the output of one cost assumption.
type COGSEstimate struct {
	Low        decimal.Decimal        `json:"low"`
	High       decimal.Decimal        `json:"high"`
	Confidence models.ConfidenceLevel `json:"confidence"`
	Rationale  string                 `json:"rationale"`
}

// COGS category keys used by the private-label band table.
const (
	cogsCategoryElectronics = "electronics"
	cogsCategoryHomeGoods   = "home_goods"
	cogsCategoryBeauty      = "beauty"
	cogsCategoryDefault     = "default"
)

// privateLabelBands branch the private-label sourcing model by category.
var privateLabelBands = map[string]COGSBand{
	cogsCategoryElectronics: {LowPct: 25, HighPct: 40},
	cogsCategoryHomeGoods:   {LowPct: 20, HighPct: 35},
	cogsCategoryBeauty:      {LowPct: 15, HighPct: 30},
	cogsCategoryDefault:     {LowPct: 20, HighPct: 40},
}

// sourcingBands map the remaining sourcing models to bands. The unknown
// model deliberately widens the band and forces low confidence: a
// conservative default, not a bug.
var sourcingBands = map[models.SourcingModel]COGSBand{
	models.SourcingWholesale:       {LowPct: 50, HighPct: 70},
	models.SourcingRetailArbitrage: {LowPct: 60, HighPct: 80},
	models.SourcingDropshipping:    {LowPct: 70, HighPct: 85},
	models.SourcingUnknown:         {LowPct: 30, HighPct: 70},
}

// categoryKeywords drive case-insensitive substring inference on free-text
// categories. First match wins.
var categoryKeywords = []struct {
	key      string
	keywords []string
}{
	{cogsCategoryElectronics, []string{"electronic", "computer", "camera", "audio", "headphone", "usb", "charger", "cable"}},
	{cogsCategoryHomeGoods, []string{"home", "kitchen", "furniture", "garden", "bedding", "storage"}},
	{cogsCategoryBeauty, []string{"beauty", "cosmetic", "skincare", "makeup", "personal care", "grooming"}},
}

// COGSEngine converts a sourcing model, category and price into a
// cost-of-goods range when exact costs are unavailable. Pure computation,
// no I/O.
type COGSEngine struct {
	sourcingBands     map[models.SourcingModel]COGSBand
	privateLabelBands map[string]COGSBand
}

// NewCOGSEngine creates an assumption engine with the default band tables.
func NewCOGSEngine() *COGSEngine {
	return &COGSEngine{
		sourcingBands:     sourcingBands,
		privateLabelBands: privateLabelBands,
	}
}

// NewCOGSEngineWithBands creates an engine with overridden band tables.
// Nil maps fall back to the defaults.
func NewCOGSEngineWithBands(sourcing map[models.SourcingModel]COGSBand, privateLabel map[string]COGSBand) *COGSEngine {
	engine := NewCOGSEngine()
	if sourcing != nil {
		engine.sourcingBands = sourcing
	}
	if privateLabel != nil {
		engine.privateLabelBands = privateLabel
	}
	return engine
}

// EstimateCOGS returns a cost band for the given price. The band never
// goes negative and never exceeds the price.
func (e *COGSEngine) EstimateCOGS(price decimal.Decimal, category string, sourcing models.SourcingModel) COGSEstimate {
	if price.IsNegative() {
		price = decimal.Zero
	}

	band, rationale, confidence := e.resolveBand(category, sourcing)

	low := price.Mul(decimal.NewFromFloat(band.LowPct)).Div(decimal.NewFromInt(100))
	high := price.Mul(decimal.NewFromFloat(band.HighPct)).Div(decimal.NewFromInt(100))
	if high.GreaterThan(price) {
		high = price
	}
	if low.GreaterThan(high) {
		low = high
	}

	return COGSEstimate{
		Low:        low,
		High:       high,
		Confidence: confidence,
		Rationale:  rationale,
	}
}

func (e *COGSEngine) resolveBand(category string, sourcing models.SourcingModel) (COGSBand, string, models.ConfidenceLevel) {
	switch sourcing {
	case models.SourcingPrivateLabel:
		key := InferCOGSCategory(category)
		band := e.privateLabelBands[key]
		return band, fmt.Sprintf("private label %s band %.0f%%-%.0f%% of price", key, band.LowPct, band.HighPct), models.ConfidenceMedium
	case models.SourcingWholesale, models.SourcingRetailArbitrage, models.SourcingDropshipping:
		band := e.sourcingBands[sourcing]
		return band, fmt.Sprintf("%s band %.0f%%-%.0f%% of price", sourcing, band.LowPct, band.HighPct), models.ConfidenceMedium
	default:
		band := e.sourcingBands[models.SourcingUnknown]
		return band, fmt.Sprintf("unknown sourcing model, widened band %.0f%%-%.0f%% of price", band.LowPct, band.HighPct), models.ConfidenceLow
	}
}

// InferCOGSCategory maps a free-text category to a COGS band key using
// case-insensitive substring matching. No match falls to the default band.
func InferCOGSCategory(category string) string {
	lowered := strings.ToLower(category)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.key
			}
		}
	}
	return cogsCategoryDefault
}
