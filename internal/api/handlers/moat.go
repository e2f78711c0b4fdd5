package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

type MoatHandler struct {
	classifier *services.MoatClassifier
}

func NewMoatHandler(classifier *services.MoatClassifier) *MoatHandler {
	return &MoatHandler{classifier: classifier}
}

// MoatRequest carries the estimated page-one products to classify.
type MoatRequest struct {
	Products []models.Tier1Product `json:"products" binding:"required"`
}

// ClassifyMoat handles POST /api/v1/moat/classify. Classification is a
// pure function of the supplied products; an empty page yields NONE with
// every signal false, not an error.
func (h *MoatHandler) ClassifyMoat(c *gin.Context) {
	var req MoatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	verdict := h.classifier.Classify(req.Products)
	c.JSON(http.StatusOK, verdict)
}
