package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
)

// Gradient descent parameters. Deliberately fixed rather than tuned: the
// same training set must always yield the same coefficients, because the
// audit trail depends on reproducibility.
const (
	gdLearningRate = 0.01
	gdIterations   = 100
)

// trainedFeatureOrder fixes the iteration order over features so gradient
// updates are deterministic.
var trainedFeatureOrder = []string{
	models.FeaturePage1Count,
	models.FeatureLogReviews,
	models.FeatureSponsoredPct,
	models.FeatureAvgPrice,
}

// ObservationStore is the training-side persistence dependency.
type ObservationStore interface {
	CountSince(ctx context.Context, marketplace string, since time.Time) (int, error)
	FetchRecent(ctx context.Context, marketplace string, limit int) ([]models.MarketObservation, error)
}

// ModelWriter activates newly trained model versions.
type ModelWriter interface {
	GetActiveModel(ctx context.Context, marketplace string, modelType models.ModelType) (*models.EstimatorModel, error)
	ActivateModel(ctx context.Context, m *models.EstimatorModel) error
}

// Trainer runs the batch retraining job for the self-calibrating
// estimator. Intended to be invoked by an external scheduler; a run that
// finds too little new data is an informational no-op, not an error.
type Trainer struct {
	cfg          config.CalibrationConfig
	estimatorCfg config.EstimatorConfig
	observations ObservationStore
	modelStore   ModelWriter
	logger       *logrus.Logger
}

// NewTrainer creates a retraining job.
func NewTrainer(cfg config.CalibrationConfig, estimatorCfg config.EstimatorConfig, observations ObservationStore, modelStore ModelWriter, logger *logrus.Logger) *Trainer {
	return &Trainer{
		cfg:          cfg,
		estimatorCfg: estimatorCfg,
		observations: observations,
		modelStore:   modelStore,
		logger:       logger,
	}
}

// Retrain trains and activates one model per model type for a marketplace
// when enough new observations have accumulated since the active model was
// trained. Below the row gate nothing happens.
func (t *Trainer) Retrain(ctx context.Context, marketplace string) error {
	for _, modelType := range []models.ModelType{models.ModelTypeSearchVolume, models.ModelTypeRevenue} {
		if err := t.retrainModelType(ctx, marketplace, modelType); err != nil {
			return fmt.Errorf("retrain %s/%s: %w", marketplace, modelType, err)
		}
	}
	return nil
}

func (t *Trainer) retrainModelType(ctx context.Context, marketplace string, modelType models.ModelType) error {
	active, err := t.modelStore.GetActiveModel(ctx, marketplace, modelType)
	if err != nil {
		return fmt.Errorf("failed to load active model: %w", err)
	}

	since := time.Unix(0, 0)
	if active != nil {
		since = active.TrainedAt
	}

	newRows, err := t.observations.CountSince(ctx, marketplace, since)
	if err != nil {
		return fmt.Errorf("failed to count new observations: %w", err)
	}
	if newRows < t.cfg.RetrainMinRows {
		t.logger.WithFields(logrus.Fields{
			"marketplace": marketplace,
			"model_type":  modelType,
			"new_rows":    newRows,
			"min_rows":    t.cfg.RetrainMinRows,
		}).Info("Skipping retraining, not enough new observations")
		return nil
	}

	window, err := t.observations.FetchRecent(ctx, marketplace, t.cfg.RetrainWindowRows)
	if err != nil {
		return fmt.Errorf("failed to fetch training window: %w", err)
	}

	// CountSince only counts rows with calibrated totals, so this second
	// gate fires only when the bounded window truncates usable rows.
	rows := t.buildTrainingRows(window, modelType)
	if len(rows) < t.cfg.RetrainMinRows {
		t.logger.WithFields(logrus.Fields{
			"marketplace": marketplace,
			"model_type":  modelType,
			"usable_rows": len(rows),
		}).Info("Skipping retraining, too few usable training rows")
		return nil
	}

	coefficients := trainLinearModel(rows)
	diagnostics := evaluate(rows, coefficients)
	trainedAt := time.Now().UTC()

	model := &models.EstimatorModel{
		Marketplace:      marketplace,
		ModelType:        modelType,
		Version:          fmt.Sprintf("v%s-%s", trainedAt.Format("20060102"), modelType),
		Coefficients:     coefficients,
		TrainedAt:        trainedAt,
		TrainingRowCount: len(rows),
		Diagnostics:      diagnostics,
	}

	if err := t.modelStore.ActivateModel(ctx, model); err != nil {
		return fmt.Errorf("failed to activate model: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"marketplace": marketplace,
		"model_type":  modelType,
		"version":     model.Version,
		"rows":        len(rows),
		"r_squared":   diagnostics.RSquared,
		"mae":         diagnostics.MeanAbsoluteError,
	}).Info("Activated new calibration model")

	return nil
}

// trainingRow pairs a feature vector with the relative-adjustment target
// the linear layer learns to predict.
type trainingRow struct {
	features map[string]float64
	target   float64
}

// buildTrainingRows converts observations into training rows. The target
// is the relative gap between the Tier-2 calibrated total and the
// deterministic heuristic baseline; rows without a calibrated total or
// with a degenerate baseline are skipped.
func (t *Trainer) buildTrainingRows(window []models.MarketObservation, modelType models.ModelType) []trainingRow {
	calibrator := NewCalibrator(t.estimatorCfg, nil, t.logger)

	rows := make([]trainingRow, 0, len(window))
	for _, obs := range window {
		input := models.CalibrationInput{
			Page1Count:   obs.ListingCount,
			AvgReviews:   obs.AvgReviews,
			SponsoredPct: obs.SponsoredPct,
			AvgPrice:     obs.AvgPrice.InexactFloat64(),
		}

		var observed float64
		switch modelType {
		case models.ModelTypeRevenue:
			if obs.CalibratedRevenue == nil {
				continue
			}
			observed = obs.CalibratedRevenue.InexactFloat64()
		default:
			if obs.CalibratedUnits == nil {
				continue
			}
			observed = obs.CalibratedUnits.InexactFloat64()
		}

		baseline := calibrator.HeuristicBaseline(modelType, input)
		if baseline <= 0 {
			continue
		}

		target := clampFloat(observed/baseline-1, -maxModelAdjustment, maxModelAdjustment)
		rows = append(rows, trainingRow{features: FeatureVector(input), target: target})
	}

	return rows
}

// trainLinearModel fits intercept and feature weights by plain batch
// gradient descent over the fixed feature order.
func trainLinearModel(rows []trainingRow) models.Coefficients {
	intercept := 0.0
	weights := make(map[string]float64, len(trainedFeatureOrder))
	for _, name := range trainedFeatureOrder {
		weights[name] = 0.0
	}

	n := float64(len(rows))
	for iter := 0; iter < gdIterations; iter++ {
		interceptGrad := 0.0
		grads := make(map[string]float64, len(trainedFeatureOrder))

		for _, row := range rows {
			pred := intercept
			for _, name := range trainedFeatureOrder {
				pred += weights[name] * row.features[name]
			}
			residual := pred - row.target
			interceptGrad += residual
			for _, name := range trainedFeatureOrder {
				grads[name] += residual * row.features[name]
			}
		}

		intercept -= gdLearningRate * interceptGrad / n
		for _, name := range trainedFeatureOrder {
			weights[name] -= gdLearningRate * grads[name] / n
		}
	}

	return models.Coefficients{Intercept: intercept, Weights: weights}
}

// evaluate computes R-squared and mean absolute error of the fitted model
// over its own training rows.
func evaluate(rows []trainingRow, c models.Coefficients) models.TrainingDiagnostics {
	mean := 0.0
	for _, row := range rows {
		mean += row.target
	}
	mean /= float64(len(rows))

	ssRes, ssTot, absErr := 0.0, 0.0, 0.0
	for _, row := range rows {
		pred := c.Intercept
		for _, name := range trainedFeatureOrder {
			pred += c.Weights[name] * row.features[name]
		}
		diff := row.target - pred
		ssRes += diff * diff
		ssTot += (row.target - mean) * (row.target - mean)
		absErr += math.Abs(diff)
	}

	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return models.TrainingDiagnostics{
		RSquared:          rSquared,
		MeanAbsoluteError: absErr / float64(len(rows)),
	}
}
