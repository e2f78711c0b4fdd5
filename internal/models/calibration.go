package models

import (
	"time"
)

// ModelType distinguishes the two calibration targets.
type ModelType string

const (
	ModelTypeSearchVolume ModelType = "search_volume"
	ModelTypeRevenue      ModelType = "revenue"
)

// Coefficients holds the trained linear correction layer. Feature weights
// are keyed by feature name; CategoryMultipliers optionally scale the
// adjustment per category.
type Coefficients struct {
	Intercept           float64            `json:"intercept"`
	Weights             map[string]float64 `json:"weights"`
	CategoryMultipliers map[string]float64 `json:"category_multipliers,omitempty"`
}

// TrainingDiagnostics records goodness-of-fit for a trained model version.
type TrainingDiagnostics struct {
	RSquared          float64 `json:"r_squared"`
	MeanAbsoluteError float64 `json:"mean_absolute_error"`
}

// EstimatorModel is one immutable version of the calibration model for a
// (marketplace, model_type) key. Exactly one version per key is active at
// a time; activation swaps are transactional.
type EstimatorModel struct {
	ID               int64               `json:"id" db:"id"`
	Marketplace      string              `json:"marketplace" db:"marketplace"`
	ModelType        ModelType           `json:"model_type" db:"model_type"`
	Version          string              `json:"version" db:"version"`
	Coefficients     Coefficients        `json:"coefficients" db:"coefficients"`
	TrainedAt        time.Time           `json:"trained_at" db:"trained_at"`
	TrainingRowCount int                 `json:"training_row_count" db:"training_row_count"`
	Diagnostics      TrainingDiagnostics `json:"training_diagnostics" db:"training_diagnostics"`
	IsActive         bool                `json:"is_active" db:"is_active"`
}

// Feature names used by the calibration layer. The trainer and the read
// path must agree on these.
const (
	FeaturePage1Count   = "page1_count"
	FeatureLogReviews   = "log_avg_reviews"
	FeatureSponsoredPct = "sponsored_pct"
	FeatureAvgPrice     = "avg_price"
)

// CalibrationInput is the feature vector for one estimate request.
type CalibrationInput struct {
	Page1Count   int
	AvgReviews   float64
	SponsoredPct float64
	AvgPrice     float64
	Category     string
}

// EstimateRange is a calibrated estimate expressed as a band, never a
// point value presented as ground truth.
type EstimateRange struct {
	Low          float64         `json:"low"`
	Center       float64         `json:"center"`
	High         float64         `json:"high"`
	Source       string          `json:"source"`
	Confidence   ConfidenceLevel `json:"confidence"`
	ModelVersion string          `json:"model_version,omitempty"`
}
