package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

// ListingSource fetches page-one listings for a keyword. The scrape API
// client implements it; tests substitute a stub.
type ListingSource interface {
	SearchListings(ctx context.Context, marketplace, keyword string) ([]models.Listing, error)
}

type AnalysisHandler struct {
	analysis *services.AnalysisService
	listings ListingSource
	logger   *logrus.Logger
}

func NewAnalysisHandler(analysis *services.AnalysisService, listings ListingSource, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		listings: listings,
		logger:   logger,
	}
}

// AnalyzeRequest starts a keyword analysis. Listings may be supplied
// inline (a scan pushed by the caller); when absent they are fetched from
// the scrape service.
type AnalyzeRequest struct {
	Marketplace string           `json:"marketplace"`
	Keyword     string           `json:"keyword" binding:"required"`
	Listings    []models.Listing `json:"listings,omitempty"`
}

// RefinementResponse wraps the Tier-2 record with its readiness state, so
// a not-yet-finished refinement is distinguishable from a failed one.
type RefinementResponse struct {
	SnapshotID string                  `json:"snapshot_id"`
	Ready      bool                    `json:"ready"`
	Refinement *models.Tier2Refinement `json:"refinement,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// AnalyzeKeyword handles POST /api/v1/analyze.
func (h *AnalysisHandler) AnalyzeKeyword(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if req.Marketplace == "" {
		req.Marketplace = "amazon.com"
	}

	listings := req.Listings
	if len(listings) == 0 {
		if h.listings == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No listings supplied and no scrape source configured"})
			return
		}
		fetched, err := h.listings.SearchListings(c.Request.Context(), req.Marketplace, req.Keyword)
		if err != nil {
			h.logger.WithError(err).WithField("keyword", req.Keyword).Error("Listing fetch failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch listings for keyword"})
			return
		}
		listings = fetched
	}

	result, err := h.analysis.AnalyzeKeyword(c.Request.Context(), req.Marketplace, req.Keyword, listings)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRefinement handles GET /api/v1/analyze/:snapshot_id/refinement.
// Refinement is asynchronous; until it lands the response reports ready
// false rather than an error.
func (h *AnalysisHandler) GetRefinement(c *gin.Context) {
	snapshotID := c.Param("snapshot_id")
	if snapshotID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot_id is required"})
		return
	}

	response := RefinementResponse{
		SnapshotID: snapshotID,
		Timestamp:  time.Now().UTC(),
	}

	if refinement, ok := h.analysis.GetRefinement(snapshotID); ok {
		response.Ready = true
		response.Refinement = &refinement
	}

	c.JSON(http.StatusOK, response)
}
