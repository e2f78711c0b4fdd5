package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/cache"
)

type CacheHandler struct {
	enrichment *cache.EnrichmentCache
	logger     *logrus.Logger
}

func NewCacheHandler(enrichment *cache.EnrichmentCache, logger *logrus.Logger) *CacheHandler {
	return &CacheHandler{enrichment: enrichment, logger: logger}
}

// GetCacheStats handles GET /api/v1/cache/stats.
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats := h.enrichment.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"enrichment": stats,
		"timestamp":  time.Now().UTC(),
	})
}

// ClearCache handles DELETE /api/v1/cache. Clearing only discards cached
// enrichment; subsequent lookups re-fetch and re-spend budget.
func (h *CacheHandler) ClearCache(c *gin.Context) {
	if err := h.enrichment.Clear(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear enrichment cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear enrichment cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
