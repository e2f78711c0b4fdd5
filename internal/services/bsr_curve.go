package services

import (
	"math"
	"strings"
)

// CurveConstants are the power-law parameters for one category's
// rank-to-units curve: units = A * rank^(-B).
type CurveConstants struct {
	A float64
	B float64
}

// UnitsEstimate is the output of one rank-to-units conversion.
type UnitsEstimate struct {
	Units    float64 `json:"units"`
	Clamped  bool    `json:"clamped"`
	CurveKey string  `json:"curve_key"`
}

const (
	// Clamp band for monthly unit estimates.
	minMonthlyUnits = 5.0
	maxMonthlyUnits = 100000.0

	// Smoothing blend to dampen volatility from extreme ranks.
	smoothingWeight  = 0.92
	smoothingCeiling = 2000.0

	defaultCurveKey = "default"
)

// defaultCurves maps normalized category keys to curve constants. Unknown
// categories fall back to the default curve.
var defaultCurves = map[string]CurveConstants{
	"default":         {A: 38000, B: 0.90},
	"home_kitchen":    {A: 52000, B: 0.95},
	"electronics":     {A: 65000, B: 1.05},
	"beauty":          {A: 30000, B: 0.85},
	"toys_games":      {A: 42000, B: 0.90},
	"pet_supplies":    {A: 24000, B: 0.80},
	"sports_outdoors": {A: 34000, B: 0.88},
	"health_household": {A: 48000, B: 0.93},
}

// BSRCurveModel converts a best-seller rank within a category into an
// estimated monthly unit count. Deterministic and side-effect-free: the
// calibration layer backtests against it, so same inputs must always
// produce the same output.
type BSRCurveModel struct {
	curves map[string]CurveConstants
}

// NewBSRCurveModel creates a curve model with the built-in category table.
func NewBSRCurveModel() *BSRCurveModel {
	return &BSRCurveModel{curves: defaultCurves}
}

// NewBSRCurveModelWithCurves creates a curve model with a custom category
// table. The table must contain a "default" entry.
func NewBSRCurveModelWithCurves(curves map[string]CurveConstants) *BSRCurveModel {
	if _, ok := curves[defaultCurveKey]; !ok {
		merged := make(map[string]CurveConstants, len(curves)+1)
		for k, v := range curves {
			merged[k] = v
		}
		merged[defaultCurveKey] = defaultCurves[defaultCurveKey]
		curves = merged
	}
	return &BSRCurveModel{curves: curves}
}

// EstimateUnits converts a rank into a monthly unit estimate. An invalid
// rank (zero, negative, or non-finite when coming from parsed input)
// returns nil, signalling "unusable" rather than zero sales.
func (m *BSRCurveModel) EstimateUnits(rankInCategory int, categoryKey string) *UnitsEstimate {
	if rankInCategory <= 0 {
		return nil
	}

	key := normalizeCurveKey(categoryKey)
	curve, ok := m.curves[key]
	if !ok {
		key = defaultCurveKey
		curve = m.curves[defaultCurveKey]
	}

	raw := curve.A * math.Pow(float64(rankInCategory), -curve.B)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil
	}

	smoothed := raw*smoothingWeight + math.Min(raw, smoothingCeiling)*(1-smoothingWeight)

	units := smoothed
	clamped := false
	if units < minMonthlyUnits {
		units = minMonthlyUnits
		clamped = true
	} else if units > maxMonthlyUnits {
		units = maxMonthlyUnits
		clamped = true
	}

	return &UnitsEstimate{Units: units, Clamped: clamped, CurveKey: key}
}

func normalizeCurveKey(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	key = strings.ReplaceAll(key, " & ", "_")
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}
