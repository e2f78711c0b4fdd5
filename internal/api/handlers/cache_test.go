package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerscope/sellerscope-go/internal/cache"
)

func newCacheRouter(t *testing.T) (*gin.Engine, *cache.EnrichmentCache) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	enrichment := cache.NewEnrichmentCache(client, time.Hour)
	handler := NewCacheHandler(enrichment, testLogger())

	router := gin.New()
	router.GET("/cache/stats", handler.GetCacheStats)
	router.DELETE("/cache", handler.ClearCache)
	return router, enrichment
}

func TestCacheHandler_GetCacheStats(t *testing.T) {
	router, enrichment := newCacheRouter(t)
	ctx := context.Background()

	enrichment.Put(ctx, "B000000001", cache.RankInfo{RankInCategory: 10, Category: "default"})
	enrichment.Get(ctx, "B000000001")
	enrichment.Get(ctx, "B000000002")

	req, _ := http.NewRequest("GET", "/cache/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Enrichment cache.EnrichmentCacheStats `json:"enrichment"`
		Timestamp  time.Time                  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, int64(1), response.Enrichment.Hits)
	assert.Equal(t, int64(1), response.Enrichment.Misses)
	assert.Equal(t, int64(1), response.Enrichment.Sets)
	assert.False(t, response.Timestamp.IsZero())
}

func TestCacheHandler_ClearCache(t *testing.T) {
	router, enrichment := newCacheRouter(t)
	ctx := context.Background()

	enrichment.Put(ctx, "B000000001", cache.RankInfo{RankInCategory: 10, Category: "default"})

	req, _ := http.NewRequest("DELETE", "/cache", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "cleared", response["status"])

	_, found := enrichment.Get(ctx, "B000000001")
	assert.False(t, found)
}
