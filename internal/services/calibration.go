package services

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Band widths around the blended center. Documented constants, not derived
// values: downstream consumers rely on these staying fixed.
const (
	searchVolumeBandPct = 0.30
	revenueBandUpPct    = 0.20
	revenueBandDownPct  = 0.20

	// Sponsored-heavy pages overstate organic demand; the baseline is
	// discounted proportionally.
	sponsoredDemandDiscount = 0.20

	// The trained adjustment is a relative delta, clamped so a badly
	// trained model can never swing an estimate more than 50% either way.
	maxModelAdjustment = 0.5

	heuristicSource  = "heuristic_v1"
	calibratedSource = "calibrated"
)

// Training-row confidence thresholds. These double as the retraining gate
// and must stay consistent with it.
const (
	confidenceMediumRows = 200
	confidenceHighRows   = 500
)

// ModelStore is the read-side persistence dependency of the calibrator.
type ModelStore interface {
	GetActiveModel(ctx context.Context, marketplace string, modelType models.ModelType) (*models.EstimatorModel, error)
}

// Calibrator is the self-calibrating estimator's read path: a deterministic
// heuristic baseline, optionally adjusted by the active trained model for
// the marketplace. Never blocks on training.
type Calibrator struct {
	cfg    config.EstimatorConfig
	store  ModelStore
	logger *logrus.Logger
}

// NewCalibrator creates a calibrator backed by the given model store.
func NewCalibrator(cfg config.EstimatorConfig, store ModelStore, logger *logrus.Logger) *Calibrator {
	return &Calibrator{cfg: cfg, store: store, logger: logger}
}

// Estimate returns a calibrated range for the given model type. When no
// trained model exists the heuristic baseline is returned tagged
// "heuristic_v1" with low confidence; a store failure degrades the same
// way rather than erroring.
func (c *Calibrator) Estimate(ctx context.Context, marketplace string, modelType models.ModelType, input models.CalibrationInput) models.EstimateRange {
	baseline := c.HeuristicBaseline(modelType, input)

	model, err := c.store.GetActiveModel(ctx, marketplace, modelType)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"marketplace": marketplace,
			"model_type":  modelType,
		}).Warn("Model lookup failed, falling back to heuristic baseline")
		model = nil
	}

	if model == nil {
		return rangeAround(baseline, modelType, heuristicSource, models.ConfidenceLow, "")
	}

	adjustment := model.Coefficients.Intercept
	features := FeatureVector(input)
	for name, value := range features {
		adjustment += model.Coefficients.Weights[name] * value
	}
	if input.Category != "" && model.Coefficients.CategoryMultipliers != nil {
		if mult, ok := model.Coefficients.CategoryMultipliers[input.Category]; ok {
			adjustment *= mult
		}
	}
	adjustment = clampFloat(adjustment, -maxModelAdjustment, maxModelAdjustment)

	center := baseline * (1 + adjustment)
	confidence := confidenceFromRows(model.TrainingRowCount)

	return rangeAround(center, modelType, calibratedSource, confidence, model.Version)
}

// HeuristicBaseline is the deterministic first-pass estimate: listing
// count scaled by the per-listing unit base, the price band multiplier,
// and a sponsored-density discount. The revenue baseline is the unit
// baseline priced out at the page average.
func (c *Calibrator) HeuristicBaseline(modelType models.ModelType, input models.CalibrationInput) float64 {
	units := float64(input.Page1Count) * float64(c.cfg.BaseUnitsPerListing)
	units *= priceBandMultiplierFloat(c.cfg, input.AvgPrice)
	units *= 1 - sponsoredDemandDiscount*clampFloat(input.SponsoredPct, 0, 1)
	if units < 0 {
		units = 0
	}

	if modelType == models.ModelTypeRevenue {
		return units * math.Max(input.AvgPrice, 0)
	}
	return units
}

// FeatureVector maps calibration inputs to the model's scaled feature
// space. The trainer and the read path share this function; changing the
// scaling invalidates every stored model.
func FeatureVector(input models.CalibrationInput) map[string]float64 {
	return map[string]float64{
		models.FeaturePage1Count:   float64(input.Page1Count) / 49.0,
		models.FeatureLogReviews:   math.Log(input.AvgReviews+1) / 10.0,
		models.FeatureSponsoredPct: clampFloat(input.SponsoredPct, 0, 1),
		models.FeatureAvgPrice:     input.AvgPrice / 100.0,
	}
}

func rangeAround(center float64, modelType models.ModelType, source string, confidence models.ConfidenceLevel, version string) models.EstimateRange {
	var low, high float64
	if modelType == models.ModelTypeRevenue {
		low = center * (1 - revenueBandDownPct)
		high = center * (1 + revenueBandUpPct)
	} else {
		low = center * (1 - searchVolumeBandPct)
		high = center * (1 + searchVolumeBandPct)
	}
	if low < 0 {
		low = 0
	}
	return models.EstimateRange{
		Low:          low,
		Center:       center,
		High:         high,
		Source:       source,
		Confidence:   confidence,
		ModelVersion: version,
	}
}

func confidenceFromRows(rows int) models.ConfidenceLevel {
	switch {
	case rows >= confidenceHighRows:
		return models.ConfidenceHigh
	case rows >= confidenceMediumRows:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func priceBandMultiplierFloat(cfg config.EstimatorConfig, avgPrice float64) float64 {
	switch {
	case avgPrice > cfg.HighPriceThreshold:
		return cfg.HighPriceMultiplier
	case avgPrice > 0 && avgPrice < cfg.LowPriceThreshold:
		return cfg.LowPriceMultiplier
	default:
		return 1.0
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
