package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transportCtx = models.RequestContext{
	IP:          "198.51.100.20",
	Fingerprint: "transport-fp",
	VisitorID:   "vid-1",
	Path:        "/v1/decisions",
	Method:      http.MethodPost,
	UserAgent:   "auth-service/1.0",
}

// ── Decide ───────────────────────────────────────────────────────────────────

func TestDecide_Block_Returns200WithDisposition(t *testing.T) {
	engine := &handlers.MockDecisionEngine{
		EvaluateFunc: func(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
			return models.Decision{Disposition: models.DispositionBlock, Reason: models.DecisionReasonTorExitNode},
				&models.IntelligenceRecord{Address: reqCtx.IP, IsTor: true, RiskLevel: models.RiskLevelCritical}, nil
		},
	}
	h := handlers.NewDecisionHandler(engine, &handlers.MockDecisionLog{}, discardLogger())

	req := handlers.NewTestRequest(t, http.MethodPost, "/v1/decisions", map[string]string{"ip": "203.0.113.7"})
	w := httptest.NewRecorder()
	h.Decide(w, req)

	var resp handlers.DecisionResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.DispositionBlock, resp.Disposition)
	assert.Equal(t, models.DecisionReasonTorExitNode, resp.Reason)
	require.NotNil(t, resp.Intelligence)
	assert.True(t, resp.Intelligence.IsTor)
	assert.Equal(t, models.RiskLevelCritical, resp.Intelligence.RiskLevel)
}

func TestDecide_MergesRequestContext(t *testing.T) {
	tests := []struct {
		name string
		body handlers.DecisionRequest
		want models.RequestContext
	}{
		{
			name: "empty body uses transport values",
			body: handlers.DecisionRequest{},
			want: models.RequestContext{
				IP:          transportCtx.IP,
				Fingerprint: transportCtx.Fingerprint,
				VisitorID:   transportCtx.VisitorID,
				UserAgent:   transportCtx.UserAgent,
			},
		},
		{
			name: "body describes another client",
			body: handlers.DecisionRequest{
				IP:        "203.0.113.7",
				UserAgent: "Mozilla/5.0",
				Account:   "alice",
				Path:      "/checkout",
				Method:    http.MethodPost,
			},
			want: models.RequestContext{
				IP:          "203.0.113.7",
				Fingerprint: middleware.Fingerprint("203.0.113.7", "Mozilla/5.0", transportCtx.VisitorID),
				VisitorID:   transportCtx.VisitorID,
				Account:     "alice",
				Path:        "/checkout",
				Method:      http.MethodPost,
				UserAgent:   "Mozilla/5.0",
			},
		},
		{
			name: "explicit fingerprint wins",
			body: handlers.DecisionRequest{IP: "203.0.113.7", Fingerprint: "client-fp", VisitorID: "vid-2"},
			want: models.RequestContext{
				IP:          "203.0.113.7",
				Fingerprint: "client-fp",
				VisitorID:   "vid-2",
				UserAgent:   transportCtx.UserAgent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.RequestContext
			engine := &handlers.MockDecisionEngine{
				EvaluateFunc: func(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
					got = reqCtx
					return models.Decision{Disposition: models.DispositionAllow, Reason: models.DecisionReasonClean}, nil, nil
				},
			}
			h := handlers.NewDecisionHandler(engine, &handlers.MockDecisionLog{}, discardLogger())

			req := handlers.NewTestRequest(t, http.MethodPost, "/v1/decisions", tt.body)
			req = handlers.WithRequestContext(req, transportCtx)
			w := httptest.NewRecorder()
			h.Decide(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecide_InvalidIP_Returns400(t *testing.T) {
	called := false
	engine := &handlers.MockDecisionEngine{
		EvaluateFunc: func(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
			called = true
			return models.Decision{}, nil, nil
		},
	}
	h := handlers.NewDecisionHandler(engine, &handlers.MockDecisionLog{}, discardLogger())

	req := handlers.NewTestRequest(t, http.MethodPost, "/v1/decisions", map[string]string{"ip": "not-an-ip"})
	w := httptest.NewRecorder()
	h.Decide(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.False(t, called)
}

func TestDecide_EngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "unknown client address", err: models.ErrInvalidIP, wantStatus: http.StatusBadRequest, wantCode: "invalid_ip"},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &handlers.MockDecisionEngine{
				EvaluateFunc: func(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
					return models.Decision{}, nil, tt.err
				},
			}
			h := handlers.NewDecisionHandler(engine, &handlers.MockDecisionLog{}, discardLogger())

			req := handlers.NewTestRequest(t, http.MethodPost, "/v1/decisions", map[string]string{})
			w := httptest.NewRecorder()
			h.Decide(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

// ── ListDecisions ────────────────────────────────────────────────────────────

func TestListDecisions_Limits(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
	}{
		{name: "default", query: "ip=203.0.113.7", wantLimit: 50},
		{name: "explicit", query: "ip=203.0.113.7&limit=10", wantLimit: 10},
		{name: "capped", query: "ip=203.0.113.7&limit=5000", wantLimit: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			log := &handlers.MockDecisionLog{
				RecentDecisionsFunc: func(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
					gotLimit = limit
					return []*models.SecurityDecision{{IP: ip, Disposition: models.DispositionFlag}}, nil
				},
			}
			h := handlers.NewDecisionHandler(&handlers.MockDecisionEngine{}, log, discardLogger())

			req := httptest.NewRequest(http.MethodGet, "/v1/decisions?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ListDecisions(w, req)

			var resp handlers.DecisionListResponse
			handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
			assert.Equal(t, tt.wantLimit, gotLimit)
			assert.Equal(t, tt.wantLimit, resp.Limit)
			require.Len(t, resp.Decisions, 1)
			assert.Equal(t, "203.0.113.7", resp.Decisions[0].IP)
		})
	}
}

func TestListDecisions_BadQuery_Returns400(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{name: "missing ip", query: "", wantCode: "invalid_ip"},
		{name: "invalid ip", query: "ip=abc", wantCode: "invalid_ip"},
		{name: "zero limit", query: "ip=203.0.113.7&limit=0", wantCode: "bad_request"},
		{name: "non numeric limit", query: "ip=203.0.113.7&limit=ten", wantCode: "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewDecisionHandler(&handlers.MockDecisionEngine{}, &handlers.MockDecisionLog{}, discardLogger())

			req := httptest.NewRequest(http.MethodGet, "/v1/decisions?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ListDecisions(w, req)

			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, tt.wantCode)
		})
	}
}

func TestListDecisions_StoreUnavailable_Returns503(t *testing.T) {
	log := &handlers.MockDecisionLog{
		RecentDecisionsFunc: func(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
			return nil, fmt.Errorf("list decisions: %w", models.ErrStoreUnavailable)
		},
	}
	h := handlers.NewDecisionHandler(&handlers.MockDecisionEngine{}, log, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions?ip=203.0.113.7", nil)
	w := httptest.NewRecorder()
	h.ListDecisions(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
}
