package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerscope/sellerscope-go/internal/config"
	"github.com/sellerscope/sellerscope-go/internal/models"
	"github.com/sellerscope/sellerscope-go/internal/services"
)

type stubMarginStore struct {
	snapshots map[string]*models.MarginSnapshot
	getErr    error
	updateErr error
	updated   int
}

func newStubMarginStore() *stubMarginStore {
	return &stubMarginStore{snapshots: make(map[string]*models.MarginSnapshot)}
}

func (s *stubMarginStore) Insert(_ context.Context, snapshot *models.MarginSnapshot) error {
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func (s *stubMarginStore) Get(_ context.Context, id string) (*models.MarginSnapshot, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.snapshots[id], nil
}

func (s *stubMarginStore) Update(_ context.Context, snapshot *models.MarginSnapshot) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated++
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

func newMarginRouter(store MarginStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	builder := services.NewMarginBuilder(
		config.MarginConfig{DefaultPrice: 25.0, DefaultFeePct: 15.0},
		services.NewCOGSEngine(),
		testLogger(),
	)
	handler := NewMarginHandler(builder, store, testLogger())

	router.POST("/margin", handler.BuildMargin)
	router.GET("/margin/:id", handler.GetMargin)
	router.POST("/margin/:id/refine", handler.RefineMargin)
	return router
}

func TestMarginHandler_BuildMargin(t *testing.T) {
	store := newStubMarginStore()
	router := newMarginRouter(store)

	asin := "B000000001"
	price := decimal.NewFromInt(40)
	w := postJSON(t, router, "/margin", MarginRequest{
		Mode:          models.MarginModeASIN,
		ASIN:          &asin,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  &price,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.MarginSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, models.MarginEstimated, snapshot.ConfidenceTier)
	assert.True(t, snapshot.AssumedPrice.Equal(decimal.NewFromInt(40)))
	assert.True(t, snapshot.COGSMin.LessThan(snapshot.COGSMax))

	// Persisted under its own id
	stored, ok := store.snapshots[snapshot.ID]
	require.True(t, ok)
	assert.Equal(t, snapshot.ConfidenceTier, stored.ConfidenceTier)
}

func TestMarginHandler_BuildMargin_InvalidMode(t *testing.T) {
	router := newMarginRouter(newStubMarginStore())

	w := postJSON(t, router, "/margin", map[string]interface{}{
		"mode": "bulk",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMarginHandler_BuildMargin_MissingMode(t *testing.T) {
	router := newMarginRouter(newStubMarginStore())

	w := postJSON(t, router, "/margin", map[string]interface{}{
		"sourcing_model": "wholesale",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarginHandler_RefineMargin_ExactOverrides(t *testing.T) {
	store := newStubMarginStore()
	router := newMarginRouter(store)

	asin := "B000000001"
	price := decimal.NewFromInt(40)
	w := postJSON(t, router, "/margin", MarginRequest{
		Mode:          models.MarginModeASIN,
		ASIN:          &asin,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  &price,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.MarginSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))

	unitCost := decimal.NewFromInt(12)
	fee := decimal.NewFromFloat(3.50)
	w = postJSON(t, router, "/margin/"+snapshot.ID+"/refine", models.MarginOverrides{
		UnitCost: &unitCost,
		FBAFee:   &fee,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var refined models.MarginSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refined))
	assert.Equal(t, snapshot.ID, refined.ID)
	assert.Equal(t, models.MarginExact, refined.ConfidenceTier)
	assert.True(t, refined.COGSMin.Equal(refined.COGSMax))
	assert.Equal(t, 1, store.updated)
}

func TestMarginHandler_RefineMargin_NotFound(t *testing.T) {
	router := newMarginRouter(newStubMarginStore())

	unitCost := decimal.NewFromInt(12)
	w := postJSON(t, router, "/margin/no-such-id/refine", models.MarginOverrides{UnitCost: &unitCost})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarginHandler_RefineMargin_InvalidOverrideLeavesSnapshot(t *testing.T) {
	store := newStubMarginStore()
	router := newMarginRouter(store)

	asin := "B000000001"
	price := decimal.NewFromInt(40)
	w := postJSON(t, router, "/margin", MarginRequest{
		Mode:          models.MarginModeASIN,
		ASIN:          &asin,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  &price,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.MarginSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))

	// COGS above the listing price is rejected outright.
	unitCost := decimal.NewFromInt(45)
	w = postJSON(t, router, "/margin/"+snapshot.ID+"/refine", models.MarginOverrides{UnitCost: &unitCost})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 0, store.updated)
	assert.Equal(t, models.MarginEstimated, store.snapshots[snapshot.ID].ConfidenceTier)
}

func TestMarginHandler_GetMargin(t *testing.T) {
	store := newStubMarginStore()
	router := newMarginRouter(store)

	asin := "B000000001"
	price := decimal.NewFromInt(40)
	w := postJSON(t, router, "/margin", MarginRequest{
		Mode:          models.MarginModeASIN,
		ASIN:          &asin,
		SourcingModel: models.SourcingWholesale,
		ListingPrice:  &price,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.MarginSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))

	req, _ := http.NewRequest("GET", "/margin/"+snapshot.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var fetched models.MarginSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, snapshot.ID, fetched.ID)
}

func TestMarginHandler_GetMargin_NotFound(t *testing.T) {
	router := newMarginRouter(newStubMarginStore())

	req, _ := http.NewRequest("GET", "/margin/no-such-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarginHandler_GetMargin_StoreError(t *testing.T) {
	store := newStubMarginStore()
	store.getErr = errors.New("connection lost")
	router := newMarginRouter(store)

	req, _ := http.NewRequest("GET", "/margin/some-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
