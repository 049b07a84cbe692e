package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// FraudScorer assesses storefront orders
type FraudScorer interface {
	AssessOrderRisk(ctx context.Context, tenantID, phone, address string) (*models.OrderRiskAssessment, error)
}

// OrderHandler serves order risk assessments
type OrderHandler struct {
	scorer FraudScorer
	logger *slog.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(scorer FraudScorer, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{scorer: scorer, logger: logger}
}

// AssessOrderRequest is the order to score
type AssessOrderRequest struct {
	TenantID string `json:"tenant_id" validate:"required,max=64"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Address  string `json:"address" validate:"max=512"`
}

// AssessOrder scores an order from the phone's history with the tenant
func (h *OrderHandler) AssessOrder(w http.ResponseWriter, r *http.Request) {
	var req AssessOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	assessment, err := h.scorer.AssessOrderRisk(r.Context(), req.TenantID, req.Phone, req.Address)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidPhone):
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_phone", err.Error())
		case errors.Is(err, models.ErrInvalidInput):
			pkghttp.WriteBadRequest(w, err.Error())
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "order history is unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "order assessment failed",
				slog.String("tenant_id", req.TenantID),
				slog.Any("error", err),
			)
			pkghttp.WriteInternalError(w, "order assessment failed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, assessment)
}
