package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetIntelligence_Success_Returns200(t *testing.T) {
	country := "US"
	score := 12
	var gotAddress string
	mock := &handlers.MockIntelligenceService{
		GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
			gotAddress = address
			return &models.IntelligenceRecord{
				Address:     address,
				CountryCode: &country,
				FraudScore:  &score,
				RiskLevel:   models.RiskLevelLow,
			}, nil
		},
	}
	h := handlers.NewIntelligenceHandler(mock, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/intelligence/203.0.113.7", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"ip": "203.0.113.7"})
	w := httptest.NewRecorder()
	h.GetIntelligence(w, req)

	var rec models.IntelligenceRecord
	handlers.AssertJSONResponse(t, w, http.StatusOK, &rec)
	assert.Equal(t, "203.0.113.7", gotAddress)
	assert.Equal(t, "203.0.113.7", rec.Address)
	assert.Equal(t, models.RiskLevelLow, rec.RiskLevel)
	if assert.NotNil(t, rec.CountryCode) {
		assert.Equal(t, "US", *rec.CountryCode)
	}
}

func TestGetIntelligence_InvalidIP_Returns400(t *testing.T) {
	mock := &handlers.MockIntelligenceService{
		GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
			return nil, models.ErrInvalidIP
		},
	}
	h := handlers.NewIntelligenceHandler(mock, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/intelligence/not-an-ip", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"ip": "not-an-ip"})
	w := httptest.NewRecorder()
	h.GetIntelligence(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "invalid_ip")
}

func TestGetIntelligence_ServiceError_Returns500(t *testing.T) {
	mock := &handlers.MockIntelligenceService{
		GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
			return nil, errors.New("boom")
		},
	}
	h := handlers.NewIntelligenceHandler(mock, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/intelligence/203.0.113.7", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"ip": "203.0.113.7"})
	w := httptest.NewRecorder()
	h.GetIntelligence(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRefreshIntelligence_UsesRefresh(t *testing.T) {
	var refreshed, fetched bool
	mock := &handlers.MockIntelligenceService{
		GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
			fetched = true
			return &models.IntelligenceRecord{Address: address}, nil
		},
		RefreshIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
			refreshed = true
			return &models.IntelligenceRecord{Address: address, RiskLevel: models.RiskLevelMedium}, nil
		},
	}
	h := handlers.NewIntelligenceHandler(mock, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/intelligence/2001:db8::1/refresh", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"ip": "2001:db8::1"})
	w := httptest.NewRecorder()
	h.RefreshIntelligence(w, req)

	var rec models.IntelligenceRecord
	handlers.AssertJSONResponse(t, w, http.StatusOK, &rec)
	assert.True(t, refreshed)
	assert.False(t, fetched)
	assert.Equal(t, models.RiskLevelMedium, rec.RiskLevel)
}
