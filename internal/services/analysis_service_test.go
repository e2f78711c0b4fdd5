package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerscope/sellerscope-go/internal/models"
)

type recordingAppender struct {
	mu           sync.Mutex
	observations []*models.MarketObservation
}

func (r *recordingAppender) Append(_ context.Context, obs *models.MarketObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs)
	return nil
}

func (r *recordingAppender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observations)
}

func newTestAnalysisService(t *testing.T, appender ObservationAppender) *AnalysisService {
	t.Helper()
	tier1 := NewTier1Estimator(testEstimatorConfig(), testLogger())
	tier2 := newTestRefiner(t, nil)
	return NewAnalysisService(tier1, tier2, appender, 10, testLogger())
}

func waitForRefinement(t *testing.T, svc *AnalysisService, snapshotID string) models.Tier2Refinement {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if refinement, ok := svc.GetRefinement(snapshotID); ok {
			return refinement
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("refinement for %s never arrived", snapshotID)
	return models.Tier2Refinement{}
}

func TestAnalyzeKeyword_ReturnsTier1Synchronously(t *testing.T) {
	svc := newTestAnalysisService(t, nil)

	listings := make([]models.Listing, 0, 10)
	for i := 1; i <= 10; i++ {
		listings = append(listings, makeListing(i, 25, 100, false))
	}

	result, err := svc.AnalyzeKeyword(context.Background(), "amazon.com", "garlic press", listings)

	require.NoError(t, err)
	assert.NotEmpty(t, result.SnapshotID)
	assert.Equal(t, "garlic press", result.Keyword)
	assert.Len(t, result.Tier1.Products, 10)
	assert.False(t, result.CreatedAt.IsZero())
}

func TestAnalyzeKeyword_RejectsEmptyInput(t *testing.T) {
	svc := newTestAnalysisService(t, nil)

	_, err := svc.AnalyzeKeyword(context.Background(), "amazon.com", "garlic press", nil)
	assert.Error(t, err)

	_, err = svc.AnalyzeKeyword(context.Background(), "amazon.com", "garlic press",
		[]models.Listing{{ASIN: "nope"}})
	assert.Error(t, err)
}

func TestAnalyzeKeyword_RefinementArrivesAsynchronously(t *testing.T) {
	appender := &recordingAppender{}
	svc := newTestAnalysisService(t, appender)

	listings := make([]models.Listing, 0, 16)
	for i := 1; i <= 16; i++ {
		listings = append(listings, makeListing(i, 30, 400, false))
	}

	result, err := svc.AnalyzeKeyword(context.Background(), "amazon.com", "garlic press", listings)
	require.NoError(t, err)

	refinement := waitForRefinement(t, svc, result.SnapshotID)

	assert.Equal(t, result.SnapshotID, refinement.SnapshotID)
	assert.NotNil(t, refinement.CalibratedUnits)
	assert.NotNil(t, refinement.ConfidenceScore)

	// The completed analysis is persisted as a training observation.
	deadline := time.Now().Add(2 * time.Second)
	for appender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, appender.count())
	obs := appender.observations[0]
	assert.Equal(t, result.SnapshotID, obs.SnapshotID)
	assert.Equal(t, "garlic press", obs.Keyword)
	assert.Equal(t, 16, obs.ListingCount)
	assert.NotNil(t, obs.CalibratedUnits)
}

func TestGetRefinement_UnknownSnapshot(t *testing.T) {
	svc := newTestAnalysisService(t, nil)

	_, ok := svc.GetRefinement("does-not-exist")
	assert.False(t, ok)
}

func TestAnalyzeKeyword_CallerCancellationDoesNotAbortRefinement(t *testing.T) {
	svc := newTestAnalysisService(t, nil)

	listings := make([]models.Listing, 0, 8)
	for i := 1; i <= 8; i++ {
		listings = append(listings, makeListing(i, 25, 100, false))
	}

	ctx, cancel := context.WithCancel(context.Background())
	result, err := svc.AnalyzeKeyword(ctx, "amazon.com", "garlic press", listings)
	require.NoError(t, err)
	cancel()

	refinement := waitForRefinement(t, svc, result.SnapshotID)
	assert.NotNil(t, refinement.CalibratedUnits)
}

func TestStoreRefinement_EvictsOldestBeyondCap(t *testing.T) {
	svc := newTestAnalysisService(t, nil)
	svc.maxRetained = 2

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("snapshot-%d", i)
		svc.storeRefinement(id, models.Tier2Refinement{SnapshotID: id})
	}

	_, ok := svc.GetRefinement("snapshot-1")
	assert.False(t, ok, "oldest snapshot should be evicted")

	for _, id := range []string{"snapshot-2", "snapshot-3"} {
		refinement, ok := svc.GetRefinement(id)
		require.True(t, ok)
		assert.Equal(t, id, refinement.SnapshotID)
	}
}

func TestStoreRefinement_OverwriteDoesNotEvict(t *testing.T) {
	svc := newTestAnalysisService(t, nil)
	svc.maxRetained = 2

	svc.storeRefinement("snapshot-1", models.Tier2Refinement{SnapshotID: "snapshot-1"})
	svc.storeRefinement("snapshot-2", models.Tier2Refinement{SnapshotID: "snapshot-2"})
	svc.storeRefinement("snapshot-2", models.Tier2Refinement{SnapshotID: "snapshot-2", CalibrationSource: "calibrated"})

	refinement, ok := svc.GetRefinement("snapshot-1")
	require.True(t, ok, "re-storing an existing snapshot must not evict others")
	assert.Equal(t, "snapshot-1", refinement.SnapshotID)

	refinement, ok = svc.GetRefinement("snapshot-2")
	require.True(t, ok)
	assert.Equal(t, "calibrated", refinement.CalibrationSource)
}
