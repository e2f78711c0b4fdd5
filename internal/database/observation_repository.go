package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// ObservationRepository handles the append-only market observation store.
// Observations are never updated after insert; they exist only as
// calibration training data.
type ObservationRepository struct {
	pool DatabasePool
}

// NewObservationRepository creates a new observation repository.
func NewObservationRepository(pool DatabasePool) *ObservationRepository {
	return &ObservationRepository{pool: pool}
}

// Append inserts one observation and returns it with its assigned id.
func (r *ObservationRepository) Append(ctx context.Context, obs *models.MarketObservation) error {
	query := `
		INSERT INTO market_observations
			(marketplace, keyword, snapshot_id, listing_count, avg_price,
			 avg_reviews, sponsored_pct, tier1_total_units, tier1_total_revenue,
			 calibrated_units, calibrated_revenue, confidence_score,
			 missing_price_count, invalid_asin_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		obs.Marketplace,
		obs.Keyword,
		obs.SnapshotID,
		obs.ListingCount,
		obs.AvgPrice,
		obs.AvgReviews,
		obs.SponsoredPct,
		obs.Tier1TotalUnits,
		obs.Tier1TotalRevenue,
		obs.CalibratedUnits,
		obs.CalibratedRevenue,
		obs.ConfidenceScore,
		obs.MissingPriceCount,
		obs.InvalidASINCount,
	).Scan(&obs.ID, &obs.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}

	return nil
}

// CountSince counts observations for a marketplace created after the given
// time that carry calibrated totals, i.e. rows usable as training data.
// The retraining gate compares this against the minimum row count.
func (r *ObservationRepository) CountSince(ctx context.Context, marketplace string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM market_observations
		WHERE marketplace = $1 AND created_at > $2
			AND calibrated_units IS NOT NULL
			AND calibrated_revenue IS NOT NULL
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, marketplace, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}

	return count, nil
}

// FetchRecent returns the most recent observations for a marketplace,
// bounded by limit. The bound keeps retraining memory flat and the model
// responsive to recent market dynamics rather than all-time history.
func (r *ObservationRepository) FetchRecent(ctx context.Context, marketplace string, limit int) ([]models.MarketObservation, error) {
	query := `
		SELECT id, marketplace, keyword, snapshot_id, listing_count, avg_price,
		       avg_reviews, sponsored_pct, tier1_total_units, tier1_total_revenue,
		       calibrated_units, calibrated_revenue, confidence_score,
		       missing_price_count, invalid_asin_count, created_at
		FROM market_observations
		WHERE marketplace = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, marketplace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent observations: %w", err)
	}
	defer rows.Close()

	var observations []models.MarketObservation
	for rows.Next() {
		var obs models.MarketObservation
		err := rows.Scan(
			&obs.ID,
			&obs.Marketplace,
			&obs.Keyword,
			&obs.SnapshotID,
			&obs.ListingCount,
			&obs.AvgPrice,
			&obs.AvgReviews,
			&obs.SponsoredPct,
			&obs.Tier1TotalUnits,
			&obs.Tier1TotalRevenue,
			&obs.CalibratedUnits,
			&obs.CalibratedRevenue,
			&obs.ConfidenceScore,
			&obs.MissingPriceCount,
			&obs.InvalidASINCount,
			&obs.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return observations, nil
}
