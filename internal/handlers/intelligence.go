package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// IntelligenceService resolves merged IP intelligence
type IntelligenceService interface {
	GetIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error)
	RefreshIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error)
}

// IntelligenceHandler serves IP intelligence lookups
type IntelligenceHandler struct {
	service IntelligenceService
	logger  *slog.Logger
}

// NewIntelligenceHandler creates a new IntelligenceHandler
func NewIntelligenceHandler(service IntelligenceService, logger *slog.Logger) *IntelligenceHandler {
	return &IntelligenceHandler{service: service, logger: logger}
}

// GetIntelligence returns the cached or freshly merged record for {ip}
func (h *IntelligenceHandler) GetIntelligence(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetIntelligence(r.Context(), chi.URLParam(r, "ip"))
	h.respond(w, r, rec, err)
}

// RefreshIntelligence re-queries providers for {ip}, bypassing the cache
func (h *IntelligenceHandler) RefreshIntelligence(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.RefreshIntelligence(r.Context(), chi.URLParam(r, "ip"))
	h.respond(w, r, rec, err)
}

func (h *IntelligenceHandler) respond(w http.ResponseWriter, r *http.Request, rec *models.IntelligenceRecord, err error) {
	if err != nil {
		if errors.Is(err, models.ErrInvalidIP) {
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_ip", "not a valid IPv4 or IPv6 address")
			return
		}
		h.logger.ErrorContext(r.Context(), "intelligence lookup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "intelligence lookup failed")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, rec)
}
