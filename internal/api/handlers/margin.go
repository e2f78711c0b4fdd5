package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

// MarginStore persists margin snapshots across the estimate/refine cycle.
type MarginStore interface {
	Insert(ctx context.Context, s *models.MarginSnapshot) error
	Get(ctx context.Context, id string) (*models.MarginSnapshot, error)
	Update(ctx context.Context, s *models.MarginSnapshot) error
}

type MarginHandler struct {
	builder *services.MarginBuilder
	store   MarginStore
	logger  *logrus.Logger
}

func NewMarginHandler(builder *services.MarginBuilder, store MarginStore, logger *logrus.Logger) *MarginHandler {
	return &MarginHandler{
		builder: builder,
		store:   store,
		logger:  logger,
	}
}

// MarginRequest creates a first-pass margin snapshot.
type MarginRequest struct {
	Mode           models.MarginMode       `json:"mode" binding:"required"`
	ASIN           *string                 `json:"asin,omitempty"`
	Keyword        *string                 `json:"keyword,omitempty"`
	SourcingModel  models.SourcingModel    `json:"sourcing_model"`
	Category       *string                 `json:"category,omitempty"`
	ListingPrice   *decimal.Decimal        `json:"listing_price,omitempty"`
	MarketAvgPrice *decimal.Decimal        `json:"market_avg_price,omitempty"`
	ExactFee       *decimal.Decimal        `json:"exact_fee,omitempty"`
	Overrides      *models.MarginOverrides `json:"overrides,omitempty"`
}

// BuildMargin handles POST /api/v1/margin.
func (h *MarginHandler) BuildMargin(c *gin.Context) {
	var req MarginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if req.SourcingModel == "" {
		req.SourcingModel = models.SourcingUnknown
	}

	snapshot, err := h.builder.Build(services.MarginBuildInput{
		Mode:           req.Mode,
		ASIN:           req.ASIN,
		Keyword:        req.Keyword,
		SourcingModel:  req.SourcingModel,
		Category:       req.Category,
		ListingPrice:   req.ListingPrice,
		MarketAvgPrice: req.MarketAvgPrice,
		ExactFee:       req.ExactFee,
		Overrides:      req.Overrides,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if h.store != nil {
		if err := h.store.Insert(c.Request.Context(), snapshot); err != nil {
			h.logger.WithError(err).WithField("snapshot_id", snapshot.ID).Error("Failed to persist margin snapshot")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist margin snapshot"})
			return
		}
	}

	c.JSON(http.StatusOK, snapshot)
}

// RefineMargin handles POST /api/v1/margin/:id/refine. The stored snapshot
// is rebuilt with the supplied overrides; invalid overrides leave it
// untouched.
func (h *MarginHandler) RefineMargin(c *gin.Context) {
	snapshotID := c.Param("id")

	var overrides models.MarginOverrides
	if err := c.ShouldBindJSON(&overrides); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	existing, err := h.store.Get(c.Request.Context(), snapshotID)
	if err != nil {
		h.logger.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to load margin snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load margin snapshot"})
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Margin snapshot not found"})
		return
	}

	refined, err := h.builder.Refine(existing, overrides)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Update(c.Request.Context(), refined); err != nil {
		h.logger.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to update margin snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update margin snapshot"})
		return
	}

	c.JSON(http.StatusOK, refined)
}

// GetMargin handles GET /api/v1/margin/:id.
func (h *MarginHandler) GetMargin(c *gin.Context) {
	snapshotID := c.Param("id")

	snapshot, err := h.store.Get(c.Request.Context(), snapshotID)
	if err != nil {
		h.logger.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to load margin snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load margin snapshot"})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Margin snapshot not found"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
