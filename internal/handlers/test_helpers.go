package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithRequestContext attaches the transport-derived request context
func WithRequestContext(r *http.Request, reqCtx models.RequestContext) *http.Request {
	return r.WithContext(middleware.WithRequestContext(r.Context(), reqCtx))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
//
// Example usage:
//
//	req := httptest.NewRequest("GET", "/v1/intelligence/203.0.113.7", nil)
//	req = WithChiRouteContext(req, map[string]string{"ip": "203.0.113.7"})
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockIntelligenceService implements IntelligenceService for testing
type MockIntelligenceService struct {
	GetIntelligenceFunc     func(ctx context.Context, address string) (*models.IntelligenceRecord, error)
	RefreshIntelligenceFunc func(ctx context.Context, address string) (*models.IntelligenceRecord, error)
}

func (m *MockIntelligenceService) GetIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	if m.GetIntelligenceFunc == nil {
		return nil, models.ErrInvalidIP
	}
	return m.GetIntelligenceFunc(ctx, address)
}

func (m *MockIntelligenceService) RefreshIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	if m.RefreshIntelligenceFunc == nil {
		return nil, models.ErrInvalidIP
	}
	return m.RefreshIntelligenceFunc(ctx, address)
}

// MockLoginGuard implements LoginGuard for testing. Unset funcs allow everything.
type MockLoginGuard struct {
	CheckAllowedFunc  func(ip, account string) *models.LoginCheck
	RecordFailureFunc func(ctx context.Context, ip, account, reason string) *models.FailureOutcome
	RecordSuccessFunc func(ctx context.Context, ip, account string)
	StateFunc         func(ip, account string) *models.LoginGuardState
	UnblockFunc       func(ctx context.Context, ip, account string)
}

func (m *MockLoginGuard) CheckAllowed(ip, account string) *models.LoginCheck {
	if m.CheckAllowedFunc == nil {
		return &models.LoginCheck{Allowed: true}
	}
	return m.CheckAllowedFunc(ip, account)
}

func (m *MockLoginGuard) RecordFailure(ctx context.Context, ip, account, reason string) *models.FailureOutcome {
	if m.RecordFailureFunc == nil {
		return &models.FailureOutcome{}
	}
	return m.RecordFailureFunc(ctx, ip, account, reason)
}

func (m *MockLoginGuard) RecordSuccess(ctx context.Context, ip, account string) {
	if m.RecordSuccessFunc != nil {
		m.RecordSuccessFunc(ctx, ip, account)
	}
}

func (m *MockLoginGuard) State(ip, account string) *models.LoginGuardState {
	if m.StateFunc == nil {
		return &models.LoginGuardState{}
	}
	return m.StateFunc(ip, account)
}

func (m *MockLoginGuard) Unblock(ctx context.Context, ip, account string) {
	if m.UnblockFunc != nil {
		m.UnblockFunc(ctx, ip, account)
	}
}

// MockFraudScorer implements FraudScorer for testing
type MockFraudScorer struct {
	AssessOrderRiskFunc func(ctx context.Context, tenantID, phone, address string) (*models.OrderRiskAssessment, error)
}

func (m *MockFraudScorer) AssessOrderRisk(ctx context.Context, tenantID, phone, address string) (*models.OrderRiskAssessment, error) {
	if m.AssessOrderRiskFunc == nil {
		return nil, models.ErrStoreUnavailable
	}
	return m.AssessOrderRiskFunc(ctx, tenantID, phone, address)
}

// MockDecisionEngine implements DecisionEngine for testing
type MockDecisionEngine struct {
	EvaluateFunc func(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error)
}

func (m *MockDecisionEngine) Evaluate(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
	if m.EvaluateFunc == nil {
		return models.Decision{Disposition: models.DispositionAllow, Reason: models.DecisionReasonClean}, nil, nil
	}
	return m.EvaluateFunc(ctx, reqCtx)
}

// MockDecisionLog implements DecisionLog for testing
type MockDecisionLog struct {
	RecentDecisionsFunc func(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error)
}

func (m *MockDecisionLog) RecentDecisions(ctx context.Context, ip string, limit int) ([]*models.SecurityDecision, error) {
	if m.RecentDecisionsFunc == nil {
		return []*models.SecurityDecision{}, nil
	}
	return m.RecentDecisionsFunc(ctx, ip, limit)
}
