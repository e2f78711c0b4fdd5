package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sellerscope/sellerscope-go/internal/api/handlers"
	"github.com/sellerscope/sellerscope-go/internal/database"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Handlers bundles the endpoint handlers SetupRoutes wires up.
type Handlers struct {
	Analysis *handlers.AnalysisHandler
	Moat     *handlers.MoatHandler
	Margin   *handlers.MarginHandler
	Cache    *handlers.CacheHandler
}

func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, h Handlers) {
	// Health check endpoint
	router.GET("/health", healthCheck(db, redis))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Keyword analysis: synchronous Tier-1 plus async refinement lookup
		analyze := v1.Group("/analyze")
		{
			analyze.POST("", h.Analysis.AnalyzeKeyword)
			analyze.GET("/:snapshot_id/refinement", h.Analysis.GetRefinement)
		}

		// Brand moat classification
		moat := v1.Group("/moat")
		{
			moat.POST("/classify", h.Moat.ClassifyMoat)
		}

		// Margin snapshots
		margin := v1.Group("/margin")
		{
			margin.POST("", h.Margin.BuildMargin)
			margin.GET("/:id", h.Margin.GetMargin)
			margin.POST("/:id/refine", h.Margin.RefineMargin)
		}

		// Enrichment cache administration
		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/stats", h.Cache.GetCacheStats)
			cacheGroup.DELETE("", h.Cache.ClearCache)
		}
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		// Check database health
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}

		// Check Redis health
		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Redis = "error"
			response.Status = "degraded"
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, response)
	}
}
