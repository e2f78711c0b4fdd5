package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/sellerscope/sellerscope-go/internal/cache"
)

// RankSource is the upstream rank/category enrichment service. Only
// Tier-2 ever calls it.
type RankSource interface {
	FetchRank(ctx context.Context, asin string) (*cache.RankInfo, error)
}

// EnrichmentBudget is a caller-supplied counter of enrichment calls used
// versus allowed. Once spent, further enrichment is skipped, not queued.
type EnrichmentBudget struct {
	Used int
	Max  int
}

// Spend consumes one call from the budget, reporting whether the call is
// allowed.
func (b *EnrichmentBudget) Spend() bool {
	if b.Used >= b.Max {
		return false
	}
	b.Used++
	return true
}

// Enricher resolves per-ASIN rank/category data through the bounded-TTL
// cache, collapsing concurrent lookups for the same ASIN and honoring the
// call budget for anything that has to go upstream.
type Enricher struct {
	source RankSource
	cache  *cache.EnrichmentCache
	logger *logrus.Logger
}

// NewEnricher creates an enrichment client.
func NewEnricher(source RankSource, enrichmentCache *cache.EnrichmentCache, logger *logrus.Logger) *Enricher {
	return &Enricher{source: source, cache: enrichmentCache, logger: logger}
}

// Lookup returns rank info for an ASIN. Cache hits are free; a cache miss
// spends budget before calling upstream. A nil result with nil error means
// "no data available", which callers treat as an expected condition.
func (e *Enricher) Lookup(ctx context.Context, asin string, budget *EnrichmentBudget) (*cache.RankInfo, error) {
	if e.source == nil {
		return nil, nil
	}

	if info, ok := e.cache.Get(ctx, asin); ok {
		return info, nil
	}

	if !budget.Spend() {
		e.logger.WithFields(logrus.Fields{
			"asin": asin,
			"max":  budget.Max,
		}).Debug("Enrichment budget exhausted, skipping lookup")
		return nil, nil
	}

	return e.cache.Dedupe(ctx, asin, func() (*cache.RankInfo, error) {
		return e.source.FetchRank(ctx, asin)
	})
}
