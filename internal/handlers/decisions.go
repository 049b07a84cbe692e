package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// Decision log paging
const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 200
)

// DecisionEngine renders dispositions
type DecisionEngine interface {
	Evaluate(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error)
}

// DecisionLog reads persisted decisions
type DecisionLog interface {
	RecentDecisions(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error)
}

// DecisionHandler serves security decisions
type DecisionHandler struct {
	engine DecisionEngine
	log    DecisionLog
	logger *slog.Logger
}

// NewDecisionHandler creates a new DecisionHandler
func NewDecisionHandler(engine DecisionEngine, log DecisionLog, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{engine: engine, log: log, logger: logger}
}

// DecisionRequest describes the end-user request being judged. Omitted network
// fields fall back to the request that carried it.
type DecisionRequest struct {
	IP          string `json:"ip" validate:"omitempty,ip"`
	Fingerprint string `json:"fingerprint" validate:"max=128"`
	VisitorID   string `json:"visitor_id" validate:"max=128"`
	Account     string `json:"account" validate:"max=320"`
	Path        string `json:"path" validate:"max=2048"`
	Method      string `json:"method" validate:"max=16"`
	UserAgent   string `json:"user_agent" validate:"max=512"`
}

// DecisionResponse is the verdict plus the intelligence it was based on
type DecisionResponse struct {
	Disposition  models.Disposition         `json:"disposition"`
	Reason       string                     `json:"reason"`
	Fingerprint  string                     `json:"fingerprint,omitempty"`
	Intelligence *models.IntelligenceRecord `json:"intelligence,omitempty"`
}

// DecisionListResponse is a page of the decision log
type DecisionListResponse struct {
	Decisions []*models.SecurityDecision `json:"decisions"`
	Limit     int                        `json:"limit"`
}

// Decide evaluates one request
func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	reqCtx := buildRequestContext(middleware.GetRequestContext(r.Context()), req)

	decision, intel, err := h.engine.Evaluate(r.Context(), reqCtx)
	if err != nil {
		if errors.Is(err, models.ErrInvalidIP) {
			pkghttp.WriteError(w, http.StatusBadRequest, "invalid_ip", "not a valid IPv4 or IPv6 address")
			return
		}
		h.logger.ErrorContext(r.Context(), "decision failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "decision failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DecisionResponse{
		Disposition:  decision.Disposition,
		Reason:       decision.Reason,
		Fingerprint:  reqCtx.Fingerprint,
		Intelligence: intel,
	})
}

// ListDecisions returns recent decisions for ?ip=, newest first
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if err := validate.Var(ip, "required,ip"); err != nil {
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_ip", "ip query parameter must be a valid address")
		return
	}

	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(l, maxDecisionLimit)
	}

	decisions, err := h.log.RecentDecisions(r.Context(), ip, limit)
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "decision log is unavailable")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to list decisions", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "failed to list decisions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DecisionListResponse{Decisions: decisions, Limit: limit})
}

// buildRequestContext overlays body fields on the transport-derived context. A
// body that names a different client gets a fingerprint for that client.
func buildRequestContext(base models.RequestContext, req DecisionRequest) models.RequestContext {
	reqCtx := models.RequestContext{
		IP:          base.IP,
		Fingerprint: req.Fingerprint,
		VisitorID:   base.VisitorID,
		Account:     req.Account,
		Path:        req.Path,
		Method:      req.Method,
		UserAgent:   base.UserAgent,
	}
	if req.IP != "" {
		reqCtx.IP = req.IP
	}
	if req.UserAgent != "" {
		reqCtx.UserAgent = req.UserAgent
	}
	if req.VisitorID != "" {
		reqCtx.VisitorID = req.VisitorID
	}

	if reqCtx.Fingerprint == "" {
		if req.IP == "" && req.UserAgent == "" && req.VisitorID == "" {
			reqCtx.Fingerprint = base.Fingerprint
		} else {
			reqCtx.Fingerprint = middleware.Fingerprint(reqCtx.IP, reqCtx.UserAgent, reqCtx.VisitorID)
		}
	}
	return reqCtx
}
