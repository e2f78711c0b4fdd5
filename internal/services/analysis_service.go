package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

// maxRetainedRefinements bounds the process-local refinement map; once
// full, the oldest snapshot's record is dropped. Observations remain the
// durable record of a refinement.
const maxRetainedRefinements = 1024

// ObservationAppender persists completed analyses as training data.
type ObservationAppender interface {
	Append(ctx context.Context, obs *models.MarketObservation) error
}

// AnalysisResult is the synchronous response to an analyze request: the
// Tier-1 estimate plus the snapshot id the later refinement attaches to.
type AnalysisResult struct {
	SnapshotID string      `json:"snapshot_id"`
	Keyword    string      `json:"keyword"`
	Tier1      Tier1Result `json:"tier1"`
	CreatedAt  time.Time   `json:"created_at"`
}

// AnalysisService orchestrates one analysis: the synchronous Tier-1 pass
// answered immediately, and the detached Tier-2 refinement that must never
// surface failures to the original caller.
type AnalysisService struct {
	tier1        *Tier1Estimator
	tier2        *Tier2Refiner
	observations ObservationAppender
	budgetMax    int
	logger       *logrus.Logger

	mu          sync.RWMutex
	refinements map[string]models.Tier2Refinement
	order       []string
	maxRetained int
}

// NewAnalysisService creates the orchestrator.
func NewAnalysisService(tier1 *Tier1Estimator, tier2 *Tier2Refiner, observations ObservationAppender, enrichmentBudget int, logger *logrus.Logger) *AnalysisService {
	return &AnalysisService{
		tier1:        tier1,
		tier2:        tier2,
		observations: observations,
		budgetMax:    enrichmentBudget,
		logger:       logger,
		refinements:  make(map[string]models.Tier2Refinement),
		maxRetained:  maxRetainedRefinements,
	}
}

// AnalyzeKeyword runs Tier-1 synchronously over the fetched listings and
// fires the Tier-2 refinement in the background. The returned result is
// complete and valid even if the refinement later fails entirely.
func (s *AnalysisService) AnalyzeKeyword(ctx context.Context, marketplace, keyword string, listings []models.Listing) (*AnalysisResult, error) {
	if len(listings) == 0 {
		return nil, fmt.Errorf("no listings supplied for keyword %q", keyword)
	}

	tier1 := s.tier1.Build(listings)
	if len(tier1.Products) == 0 {
		return nil, fmt.Errorf("no listings with valid ASINs for keyword %q", keyword)
	}

	result := &AnalysisResult{
		SnapshotID: uuid.New().String(),
		Keyword:    keyword,
		Tier1:      tier1,
		CreatedAt:  time.Now().UTC(),
	}

	// Fire-and-forget: the refinement runs on a detached context so the
	// caller's request cancellation cannot abort it.
	go s.runRefinement(result.SnapshotID, marketplace, keyword, listings, tier1)

	return result, nil
}

// GetRefinement returns the Tier-2 record for a snapshot once available.
func (s *AnalysisService) GetRefinement(snapshotID string) (models.Tier2Refinement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refinement, ok := s.refinements[snapshotID]
	return refinement, ok
}

func (s *AnalysisService) runRefinement(snapshotID, marketplace, keyword string, listings []models.Listing, tier1 Tier1Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"snapshot_id": snapshotID,
				"panic":       r,
			}).Error("Tier-2 refinement panicked, Tier-1 result remains valid")
		}
	}()

	ctx := context.Background()
	budget := &EnrichmentBudget{Max: s.budgetMax}

	refinement := s.tier2.Refine(ctx, snapshotID, marketplace, listings, tier1, budget)

	s.storeRefinement(snapshotID, refinement)

	if err := s.appendObservation(ctx, marketplace, keyword, snapshotID, tier1, refinement); err != nil {
		s.logger.WithError(err).WithField("snapshot_id", snapshotID).Warn("Failed to persist observation")
	}
}

// storeRefinement records a completed refinement, evicting the oldest
// retained snapshot once the cap is reached.
func (s *AnalysisService) storeRefinement(snapshotID string, refinement models.Tier2Refinement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refinements[snapshotID]; !ok {
		s.order = append(s.order, snapshotID)
	}
	s.refinements[snapshotID] = refinement

	for len(s.order) > s.maxRetained {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.refinements, oldest)
	}
}

func (s *AnalysisService) appendObservation(ctx context.Context, marketplace, keyword, snapshotID string, tier1 Tier1Result, refinement models.Tier2Refinement) error {
	if s.observations == nil {
		return nil
	}

	sponsoredPct := 0.0
	if tier1.Summary.ListingCount > 0 {
		sponsoredPct = float64(tier1.Summary.SponsoredCount) / float64(tier1.Summary.ListingCount)
	}

	obs := &models.MarketObservation{
		Marketplace:       marketplace,
		Keyword:           keyword,
		SnapshotID:        snapshotID,
		ListingCount:      tier1.Summary.ListingCount,
		AvgPrice:          tier1.Summary.AveragePrice,
		AvgReviews:        meanReviews(tier1.Products),
		SponsoredPct:      sponsoredPct,
		Tier1TotalUnits:   tier1.Summary.TotalMonthlyUnits,
		Tier1TotalRevenue: tier1.Summary.TotalMonthlyRevenue,
		CalibratedUnits:   refinement.CalibratedUnits,
		CalibratedRevenue: refinement.CalibratedRevenue,
		ConfidenceScore:   refinement.ConfidenceScore,
		MissingPriceCount: tier1.MissingPriceCount,
		InvalidASINCount:  tier1.InvalidASINCount,
	}

	return s.observations.Append(ctx, obs)
}
