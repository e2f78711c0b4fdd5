package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

type stubListingSource struct {
	listings    []models.Listing
	err         error
	marketplace string
	keyword     string
}

func (s *stubListingSource) SearchListings(_ context.Context, marketplace, keyword string) ([]models.Listing, error) {
	s.marketplace = marketplace
	s.keyword = keyword
	return s.listings, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testEstimatorConfig() config.EstimatorConfig {
	return config.EstimatorConfig{
		MaxProducts:         49,
		BaseUnitsPerListing: 120,
		HighPriceThreshold:  100.0,
		LowPriceThreshold:   20.0,
		HighPriceMultiplier: 0.6,
		LowPriceMultiplier:  1.5,
		RankDecayExponent:   0.7,
	}
}

func newTestAnalysisHandler(source ListingSource) *AnalysisHandler {
	logger := testLogger()
	cfg := testEstimatorConfig()
	tier1 := services.NewTier1Estimator(cfg, logger)
	calibrator := services.NewCalibrator(cfg, nil, logger)
	tier2 := services.NewTier2Refiner(calibrator, services.NewBSRCurveModel(), nil, logger)
	analysis := services.NewAnalysisService(tier1, tier2, nil, 0, logger)
	return NewAnalysisHandler(analysis, source, logger)
}

func sampleListings(n int) []models.Listing {
	listings := make([]models.Listing, 0, n)
	for i := 1; i <= n; i++ {
		price := decimal.NewFromFloat(29.99)
		reviews := 100 + i
		rank := i
		listings = append(listings, models.Listing{
			ASIN:         fmt.Sprintf("B%09d", i),
			Title:        fmt.Sprintf("Product %d", i),
			Price:        &price,
			ReviewCount:  &reviews,
			PagePosition: i,
			OrganicRank:  &rank,
			Fulfillment:  models.FulfillmentUnknown,
		})
	}
	return listings
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalysisHandler_AnalyzeKeyword_InlineListings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := newTestAnalysisHandler(nil)
	router.POST("/analyze", handler.AnalyzeKeyword)

	w := postJSON(t, router, "/analyze", AnalyzeRequest{
		Keyword:  "garlic press",
		Listings: sampleListings(10),
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var response services.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response.SnapshotID)
	assert.Equal(t, "garlic press", response.Keyword)
	assert.Len(t, response.Tier1.Products, 10)
	assert.True(t, response.Tier1.Summary.TotalMonthlyUnits.IsPositive())
}

func TestAnalysisHandler_AnalyzeKeyword_FetchesWhenNoInlineListings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	source := &stubListingSource{listings: sampleListings(5)}
	handler := newTestAnalysisHandler(source)
	router.POST("/analyze", handler.AnalyzeKeyword)

	w := postJSON(t, router, "/analyze", AnalyzeRequest{Keyword: "garlic press"})

	assert.Equal(t, http.StatusOK, w.Code)
	// Marketplace defaults when the request omits it
	assert.Equal(t, "amazon.com", source.marketplace)
	assert.Equal(t, "garlic press", source.keyword)
}

func TestAnalysisHandler_AnalyzeKeyword_MissingKeyword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := newTestAnalysisHandler(nil)
	router.POST("/analyze", handler.AnalyzeKeyword)

	w := postJSON(t, router, "/analyze", map[string]interface{}{"marketplace": "amazon.com"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response, "error")
}

func TestAnalysisHandler_AnalyzeKeyword_FetchFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	source := &stubListingSource{err: errors.New("scrape service down")}
	handler := newTestAnalysisHandler(source)
	router.POST("/analyze", handler.AnalyzeKeyword)

	w := postJSON(t, router, "/analyze", AnalyzeRequest{Keyword: "garlic press"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAnalysisHandler_AnalyzeKeyword_NoUsableListings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := newTestAnalysisHandler(nil)
	router.POST("/analyze", handler.AnalyzeKeyword)

	// All ASINs malformed, so the estimator has nothing to work with.
	w := postJSON(t, router, "/analyze", AnalyzeRequest{
		Keyword: "garlic press",
		Listings: []models.Listing{
			{ASIN: "bad-asin", PagePosition: 1},
			{ASIN: "", PagePosition: 2},
		},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAnalysisHandler_GetRefinement_NotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := newTestAnalysisHandler(nil)
	router.GET("/analyze/:snapshot_id/refinement", handler.GetRefinement)

	req, _ := http.NewRequest("GET", "/analyze/unknown-snapshot/refinement", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response RefinementResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "unknown-snapshot", response.SnapshotID)
	assert.False(t, response.Ready)
	assert.Nil(t, response.Refinement)
}

func TestAnalysisHandler_GetRefinement_ReadyAfterAnalysis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := newTestAnalysisHandler(nil)
	router.POST("/analyze", handler.AnalyzeKeyword)
	router.GET("/analyze/:snapshot_id/refinement", handler.GetRefinement)

	w := postJSON(t, router, "/analyze", AnalyzeRequest{
		Keyword:  "garlic press",
		Listings: sampleListings(10),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var analysis services.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))

	// Refinement is asynchronous; poll until it lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		req, _ := http.NewRequest("GET", "/analyze/"+analysis.SnapshotID+"/refinement", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var response RefinementResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		if response.Ready {
			require.NotNil(t, response.Refinement)
			assert.Equal(t, analysis.SnapshotID, response.Refinement.SnapshotID)
			assert.NotNil(t, response.Refinement.CalibratedUnits)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("refinement never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
