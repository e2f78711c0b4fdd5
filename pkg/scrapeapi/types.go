package scrapeapi

import (
	"github.com/shopspring/decimal"
)

// RawListing is one listing record as returned by the scrape API. Absent
// signals come back as null and stay nullable; the engine decides what to
// do with them.
type RawListing struct {
	ASIN         string           `json:"asin"`
	Title        string           `json:"title,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Rating       *float64         `json:"rating,omitempty"`
	ReviewCount  *int             `json:"review_count,omitempty"`
	IsSponsored  bool             `json:"is_sponsored"`
	PagePosition int              `json:"page_position"`
	Brand        *string          `json:"brand,omitempty"`
	SellerInfo   string           `json:"seller_info,omitempty"`
	HasPrime     bool             `json:"has_prime"`
}

// SearchResponse is the scrape API's keyword search payload.
type SearchResponse struct {
	Keyword     string       `json:"keyword"`
	Marketplace string       `json:"marketplace"`
	Listings    []RawListing `json:"listings"`
}

// ProductResponse is the scrape API's single-ASIN payload.
type ProductResponse struct {
	Listing RawListing `json:"listing"`
}

// RankResponse is the rank/category enrichment payload.
type RankResponse struct {
	ASIN           string `json:"asin"`
	RankInCategory int    `json:"rank_in_category"`
	Category       string `json:"category"`
}

// HealthResponse reports scrape API service health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the scrape API's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
