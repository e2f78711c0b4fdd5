package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// MarginRepository persists margin snapshots. Refinement replaces every
// derived field of a stored snapshot rather than patching single columns.
type MarginRepository struct {
	pool DatabasePool
}

// NewMarginRepository creates a new margin snapshot repository.
func NewMarginRepository(pool DatabasePool) *MarginRepository {
	return &MarginRepository{pool: pool}
}

// Insert stores a freshly built snapshot.
func (r *MarginRepository) Insert(ctx context.Context, s *models.MarginSnapshot) error {
	assumptions, err := json.Marshal(s.Assumptions)
	if err != nil {
		return fmt.Errorf("failed to encode assumptions: %w", err)
	}

	query := `
		INSERT INTO margin_snapshots
			(id, mode, asin, keyword, sourcing_model, category, assumed_price,
			 price_source, cogs_min, cogs_max, cogs_source, fba_fee,
			 fba_fee_source, net_margin_min_pct, net_margin_max_pct,
			 breakeven_price_min, breakeven_price_max, confidence_tier, assumptions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		s.ID, string(s.Mode), s.ASIN, s.Keyword, string(s.SourcingModel), s.Category,
		s.AssumedPrice, s.PriceSource, s.COGSMin, s.COGSMax, s.COGSSource,
		s.FBAFee, s.FBAFeeSource, s.NetMarginMinPct, s.NetMarginMaxPct,
		s.BreakevenPriceMin, s.BreakevenPriceMax, string(s.ConfidenceTier), assumptions,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert margin snapshot: %w", err)
	}

	return nil
}

// Get returns a snapshot by id, or nil when it does not exist.
func (r *MarginRepository) Get(ctx context.Context, id string) (*models.MarginSnapshot, error) {
	query := `
		SELECT id, mode, asin, keyword, sourcing_model, category, assumed_price,
		       price_source, cogs_min, cogs_max, cogs_source, fba_fee,
		       fba_fee_source, net_margin_min_pct, net_margin_max_pct,
		       breakeven_price_min, breakeven_price_max, confidence_tier,
		       assumptions, created_at, updated_at
		FROM margin_snapshots
		WHERE id = $1
	`

	var s models.MarginSnapshot
	var assumptions []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Mode, &s.ASIN, &s.Keyword, &s.SourcingModel, &s.Category,
		&s.AssumedPrice, &s.PriceSource, &s.COGSMin, &s.COGSMax, &s.COGSSource,
		&s.FBAFee, &s.FBAFeeSource, &s.NetMarginMinPct, &s.NetMarginMaxPct,
		&s.BreakevenPriceMin, &s.BreakevenPriceMax, &s.ConfidenceTier,
		&assumptions, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get margin snapshot: %w", err)
	}

	if err := json.Unmarshal(assumptions, &s.Assumptions); err != nil {
		return nil, fmt.Errorf("failed to decode assumptions: %w", err)
	}

	return &s, nil
}

// Update rewrites every derived field of an existing snapshot.
func (r *MarginRepository) Update(ctx context.Context, s *models.MarginSnapshot) error {
	assumptions, err := json.Marshal(s.Assumptions)
	if err != nil {
		return fmt.Errorf("failed to encode assumptions: %w", err)
	}

	query := `
		UPDATE margin_snapshots
		SET assumed_price = $2, price_source = $3, cogs_min = $4, cogs_max = $5,
		    cogs_source = $6, fba_fee = $7, fba_fee_source = $8,
		    net_margin_min_pct = $9, net_margin_max_pct = $10,
		    breakeven_price_min = $11, breakeven_price_max = $12,
		    confidence_tier = $13, assumptions = $14, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID, s.AssumedPrice, s.PriceSource, s.COGSMin, s.COGSMax, s.COGSSource,
		s.FBAFee, s.FBAFeeSource, s.NetMarginMinPct, s.NetMarginMaxPct,
		s.BreakevenPriceMin, s.BreakevenPriceMax, string(s.ConfidenceTier), assumptions,
	)
	if err != nil {
		return fmt.Errorf("failed to update margin snapshot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("margin snapshot %s not found", s.ID)
	}

	return nil
}
