package scrapeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sellerscope/sellerscope-go/internal/cache"
	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

// Client is the HTTP client for the third-party listing scrape service.
// The engine treats it purely as a data source; nothing here estimates
// anything.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string
}

// NewClient creates a scrape API client.
func NewClient(cfg config.ScrapeAPIConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.ServiceURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// HealthCheck checks if the scrape service is reachable.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	err := c.makeRequest(ctx, http.MethodGet, "/health", nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// SearchListings fetches the raw page-one scan for a keyword.
func (c *Client) SearchListings(ctx context.Context, marketplace, keyword string) ([]models.Listing, error) {
	params := url.Values{}
	params.Set("marketplace", marketplace)
	params.Set("keyword", keyword)

	var response SearchResponse
	err := c.makeRequest(ctx, http.MethodGet, "/api/search?"+params.Encode(), nil, &response)
	if err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, len(response.Listings))
	organicRank := 0
	for _, raw := range response.Listings {
		listing := raw.toListing()
		if !listing.IsSponsored {
			organicRank++
			rank := organicRank
			listing.OrganicRank = &rank
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

// GetProduct fetches a single listing by ASIN.
func (c *Client) GetProduct(ctx context.Context, marketplace, asin string) (*models.Listing, error) {
	path := fmt.Sprintf("/api/product/%s?marketplace=%s", asin, url.QueryEscape(marketplace))

	var response ProductResponse
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}

	listing := response.Listing.toListing()
	return &listing, nil
}

// FetchRank retrieves rank/category enrichment for an ASIN. A 404 from
// the service means "no rank data", returned as nil without an error.
func (c *Client) FetchRank(ctx context.Context, asin string) (*cache.RankInfo, error) {
	path := fmt.Sprintf("/api/rank/%s", asin)

	var response RankResponse
	err := c.makeRequest(ctx, http.MethodGet, path, nil, &response)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if response.RankInCategory <= 0 {
		return nil, nil
	}

	return &cache.RankInfo{
		RankInCategory: response.RankInCategory,
		Category:       response.Category,
	}, nil
}

// toListing converts a raw API record into the engine's listing model.
// Fulfillment comes only from the explicit seller field; a Prime badge by
// itself is deliberately ignored as FBA evidence.
func (raw RawListing) toListing() models.Listing {
	fulfillment := models.FulfillmentUnknown
	if raw.SellerInfo != "" {
		fulfillment = services.InferFulfillment(raw.SellerInfo)
	}

	return models.Listing{
		ASIN:         strings.ToUpper(strings.TrimSpace(raw.ASIN)),
		Title:        raw.Title,
		Price:        raw.Price,
		Rating:       raw.Rating,
		ReviewCount:  raw.ReviewCount,
		IsSponsored:  raw.IsSponsored,
		PagePosition: raw.PagePosition,
		Brand:        raw.Brand,
		Fulfillment:  fulfillment,
	}
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("scrape service error (%d): %s", e.code, e.msg)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

// makeRequest is a helper method to make HTTP requests to the scrape
// service.
func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	reqURL := c.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return &statusError{code: resp.StatusCode, msg: errorResp.Error}
		}
		return &statusError{code: resp.StatusCode, msg: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
