package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ModelRepository manages the versioned estimator model store. Every
// training run inserts a new immutable version; "active" is a flag flipped
// inside one transaction so readers never observe a key with zero or two
// active versions.
type ModelRepository struct {
	pool DatabasePool
}

// NewModelRepository creates a new model repository.
func NewModelRepository(pool DatabasePool) *ModelRepository {
	return &ModelRepository{pool: pool}
}

// GetActiveModel returns the active model for a (marketplace, model_type)
// key, or nil when no model has been trained yet. A missing model is an
// expected state, not an error.
func (r *ModelRepository) GetActiveModel(ctx context.Context, marketplace string, modelType models.ModelType) (*models.EstimatorModel, error) {
	query := `
		SELECT id, marketplace, model_type, version, coefficients, trained_at,
		       training_row_count, training_diagnostics, is_active
		FROM estimator_models
		WHERE marketplace = $1 AND model_type = $2 AND is_active = true
	`

	var m models.EstimatorModel
	var coefJSON, diagJSON []byte
	err := r.pool.QueryRow(ctx, query, marketplace, string(modelType)).Scan(
		&m.ID,
		&m.Marketplace,
		&m.ModelType,
		&m.Version,
		&coefJSON,
		&m.TrainedAt,
		&m.TrainingRowCount,
		&diagJSON,
		&m.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active model: %w", err)
	}

	if err := json.Unmarshal(coefJSON, &m.Coefficients); err != nil {
		return nil, fmt.Errorf("failed to decode model coefficients: %w", err)
	}
	if err := json.Unmarshal(diagJSON, &m.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to decode model diagnostics: %w", err)
	}

	return &m, nil
}

// ActivateModel inserts a new model version and deactivates the previous
// active version for the same key in a single transaction. Readers racing
// the swap see either the old or the new model, never a half-written state.
func (r *ModelRepository) ActivateModel(ctx context.Context, m *models.EstimatorModel) error {
	coefJSON, err := json.Marshal(m.Coefficients)
	if err != nil {
		return fmt.Errorf("failed to encode model coefficients: %w", err)
	}
	diagJSON, err := json.Marshal(m.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode model diagnostics: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin model activation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deactivate := `
		UPDATE estimator_models
		SET is_active = false
		WHERE marketplace = $1 AND model_type = $2 AND is_active = true
	`
	if _, err := tx.Exec(ctx, deactivate, m.Marketplace, string(m.ModelType)); err != nil {
		return fmt.Errorf("failed to deactivate previous model: %w", err)
	}

	insert := `
		INSERT INTO estimator_models
			(marketplace, model_type, version, coefficients, trained_at,
			 training_row_count, training_diagnostics, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insert,
		m.Marketplace,
		string(m.ModelType),
		m.Version,
		coefJSON,
		m.TrainedAt,
		m.TrainingRowCount,
		diagJSON,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to insert model version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit model activation: %w", err)
	}

	m.IsActive = true
	return nil
}

// ListModelVersions returns the version history for a key, newest first.
func (r *ModelRepository) ListModelVersions(ctx context.Context, marketplace string, modelType models.ModelType, limit int) ([]models.EstimatorModel, error) {
	query := `
		SELECT id, marketplace, model_type, version, coefficients, trained_at,
		       training_row_count, training_diagnostics, is_active
		FROM estimator_models
		WHERE marketplace = $1 AND model_type = $2
		ORDER BY trained_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, marketplace, string(modelType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	var versions []models.EstimatorModel
	for rows.Next() {
		var m models.EstimatorModel
		var coefJSON, diagJSON []byte
		err := rows.Scan(
			&m.ID,
			&m.Marketplace,
			&m.ModelType,
			&m.Version,
			&coefJSON,
			&m.TrainedAt,
			&m.TrainingRowCount,
			&diagJSON,
			&m.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		if err := json.Unmarshal(coefJSON, &m.Coefficients); err != nil {
			return nil, fmt.Errorf("failed to decode model coefficients: %w", err)
		}
		if err := json.Unmarshal(diagJSON, &m.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to decode model diagnostics: %w", err)
		}
		versions = append(versions, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model versions: %w", err)
	}

	return versions, nil
}
