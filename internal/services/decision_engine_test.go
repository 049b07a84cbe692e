package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockIntelligenceSource implements IntelligenceSource for testing
type MockIntelligenceSource struct {
	GetIntelligenceFunc func(ctx context.Context, address string) (*models.IntelligenceRecord, error)
}

func (m *MockIntelligenceSource) GetIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
	return m.GetIntelligenceFunc(ctx, address)
}

// MockLoginStateReader implements LoginStateReader for testing
type MockLoginStateReader struct {
	CheckAllowedFunc func(ip, account string) *models.LoginCheck
}

func (m *MockLoginStateReader) CheckAllowed(ip, account string) *models.LoginCheck {
	if m.CheckAllowedFunc != nil {
		return m.CheckAllowedFunc(ip, account)
	}
	return &models.LoginCheck{Allowed: true}
}

func blockedGuard() *MockLoginStateReader {
	return &MockLoginStateReader{CheckAllowedFunc: func(ip, account string) *models.LoginCheck {
		until := time.Now().Add(time.Hour)
		return &models.LoginCheck{Allowed: false, Reason: models.ReasonIPBlocked, BlockedUntil: &until}
	}}
}

func testDecisionConfig() services.DecisionConfig {
	return services.DecisionConfig{
		TrustedCountries:         []string{"us", " ma "},
		BlacklistBlockConfidence: 75,
	}
}

func TestDecide_RuleChain(t *testing.T) {
	tests := []struct {
		name            string
		intel           *models.IntelligenceRecord
		guard           *MockLoginStateReader
		wantDisposition models.Disposition
		wantReason      string
	}{
		{
			name:            "tor wins over everything",
			intel:           &models.IntelligenceRecord{IsTor: true, IsBlacklisted: true, BlacklistConfidence: 100, FraudScore: intPtr(95), RiskLevel: models.RiskLevelCritical},
			guard:           blockedGuard(),
			wantDisposition: models.DispositionBlock,
			wantReason:      models.DecisionReasonTorExitNode,
		},
		{
			name:            "confident blacklist blocks",
			intel:           &models.IntelligenceRecord{IsBlacklisted: true, BlacklistConfidence: 80, IsVPN: true},
			wantDisposition: models.DispositionBlock,
			wantReason:      models.DecisionReasonBlacklistedIP,
		},
		{
			name:            "weak blacklist falls through to risk",
			intel:           &models.IntelligenceRecord{IsBlacklisted: true, BlacklistConfidence: 60, CountryCode: strPtr("US"), RiskLevel: models.RiskLevelCritical},
			wantDisposition: models.DispositionFlag,
			wantReason:      models.DecisionReasonHighRisk,
		},
		{
			name:            "guard block beats vpn",
			intel:           &models.IntelligenceRecord{IsVPN: true, CountryCode: strPtr("NL")},
			guard:           blockedGuard(),
			wantDisposition: models.DispositionBlock,
			wantReason:      models.DecisionReasonLoginBlocked,
		},
		{
			name:            "vpn from untrusted region",
			intel:           &models.IntelligenceRecord{IsVPN: true, IsDatacenter: true, CountryCode: strPtr("NL"), RiskLevel: models.RiskLevelHigh},
			wantDisposition: models.DispositionChallenge,
			wantReason:      models.DecisionReasonVPNUntrustedRegion,
		},
		{
			name:            "vpn with unknown country is untrusted",
			intel:           &models.IntelligenceRecord{IsVPN: true},
			wantDisposition: models.DispositionChallenge,
			wantReason:      models.DecisionReasonVPNUntrustedRegion,
		},
		{
			name:            "proxy from untrusted region",
			intel:           &models.IntelligenceRecord{IsProxy: true, CountryCode: strPtr("RU")},
			wantDisposition: models.DispositionChallenge,
			wantReason:      models.DecisionReasonProxyUntrustedRegion,
		},
		{
			name:            "datacenter in trusted region",
			intel:           &models.IntelligenceRecord{IsDatacenter: true, IsVPN: true, CountryCode: strPtr("US"), RiskLevel: models.RiskLevelHigh},
			wantDisposition: models.DispositionChallenge,
			wantReason:      models.DecisionReasonDatacenterIP,
		},
		{
			name:            "high risk is flagged",
			intel:           &models.IntelligenceRecord{FraudScore: intPtr(80), CountryCode: strPtr("MA"), RiskLevel: models.RiskLevelHigh},
			wantDisposition: models.DispositionFlag,
			wantReason:      models.DecisionReasonHighRisk,
		},
		{
			name:            "vpn from trusted region is flagged",
			intel:           &models.IntelligenceRecord{IsVPN: true, CountryCode: strPtr("us"), RiskLevel: models.RiskLevelMedium},
			wantDisposition: models.DispositionFlag,
			wantReason:      models.DecisionReasonVPNTrustedRegion,
		},
		{
			name:            "proxy from trusted region is allowed",
			intel:           &models.IntelligenceRecord{IsProxy: true, CountryCode: strPtr("MA"), RiskLevel: models.RiskLevelMedium},
			wantDisposition: models.DispositionAllow,
			wantReason:      models.DecisionReasonClean,
		},
		{
			name:            "clean",
			intel:           &models.IntelligenceRecord{FraudScore: intPtr(5), RiskLevel: models.RiskLevelLow},
			wantDisposition: models.DispositionAllow,
			wantReason:      models.DecisionReasonClean,
		},
		{
			name:            "missing intelligence is allowed",
			intel:           nil,
			wantDisposition: models.DispositionAllow,
			wantReason:      models.DecisionReasonClean,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var guard services.LoginStateReader
			if tt.guard != nil {
				guard = tt.guard
			}
			engine := services.NewDecisionEngine(nil, guard, nil, testDecisionConfig(), newFakeClock())

			got := engine.Decide(context.Background(), models.RequestContext{IP: "8.8.8.8"}, tt.intel)
			assert.Equal(t, tt.wantDisposition, got.Disposition)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestDecide_PassesAccountToGuard(t *testing.T) {
	var gotIP, gotAccount string
	guard := &MockLoginStateReader{CheckAllowedFunc: func(ip, account string) *models.LoginCheck {
		gotIP, gotAccount = ip, account
		return &models.LoginCheck{Allowed: true}
	}}
	engine := services.NewDecisionEngine(nil, guard, nil, testDecisionConfig(), newFakeClock())

	engine.Decide(context.Background(), models.RequestContext{IP: "8.8.8.8", Account: "alice"}, &models.IntelligenceRecord{})
	assert.Equal(t, "8.8.8.8", gotIP)
	assert.Equal(t, "alice", gotAccount)
}

func TestDecide_RecordsDecision(t *testing.T) {
	clock := newFakeClock()
	recorder := &recordingRecorder{}
	engine := services.NewDecisionEngine(nil, nil, recorder, testDecisionConfig(), clock)

	reqCtx := models.RequestContext{
		IP:          "8.8.8.8",
		Fingerprint: "fp-1",
		Path:        "/checkout",
		Method:      "POST",
		UserAgent:   "curl/8.0",
	}
	intel := &models.IntelligenceRecord{IsVPN: true, FraudScore: intPtr(42), CountryCode: strPtr("NL"), RiskLevel: models.RiskLevelMedium}

	got := engine.Decide(context.Background(), reqCtx, intel)

	require.Len(t, recorder.decisions, 1)
	row := recorder.decisions[0]
	assert.Equal(t, got.Disposition, row.Disposition)
	assert.Equal(t, got.Reason, row.Reason)
	assert.Equal(t, "8.8.8.8", row.IP)
	assert.Equal(t, "fp-1", *row.Fingerprint)
	assert.Nil(t, row.VisitorID)
	assert.Equal(t, "/checkout", *row.Path)
	assert.Equal(t, models.RiskLevelMedium, row.RiskLevel)
	assert.Equal(t, 42, *row.FraudScore)
	assert.True(t, row.IsVPN)
	assert.Equal(t, "NL", *row.CountryCode)
	assert.Equal(t, clock.Now(), row.CreatedAt)

	// The row holds its own copy of the intelligence snapshot
	*intel.FraudScore = 99
	assert.Equal(t, 42, *row.FraudScore)
}

func TestEvaluate(t *testing.T) {
	var looked string
	intel := &MockIntelligenceSource{GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
		looked = address
		return &models.IntelligenceRecord{Address: address, IsTor: true, RiskLevel: models.RiskLevelCritical}, nil
	}}
	engine := services.NewDecisionEngine(intel, nil, nil, testDecisionConfig(), newFakeClock())

	decision, rec, err := engine.Evaluate(context.Background(), models.RequestContext{IP: "185.220.101.1"})
	require.NoError(t, err)
	assert.Equal(t, "185.220.101.1", looked)
	assert.Equal(t, models.DispositionBlock, decision.Disposition)
	assert.Equal(t, models.DecisionReasonTorExitNode, decision.Reason)
	assert.True(t, rec.IsTor)
}

func TestEvaluate_InvalidIP(t *testing.T) {
	recorder := &recordingRecorder{}
	intel := &MockIntelligenceSource{GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
		return nil, models.ErrInvalidIP
	}}
	engine := services.NewDecisionEngine(intel, nil, recorder, testDecisionConfig(), newFakeClock())

	_, rec, err := engine.Evaluate(context.Background(), models.RequestContext{IP: "nope"})
	assert.ErrorIs(t, err, models.ErrInvalidIP)
	assert.Nil(t, rec)
	assert.Empty(t, recorder.decisions)
}

func TestEvaluate_WithRealGuard(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	for i := 0; i < 5; i++ {
		guard.RecordFailure(context.Background(), "8.8.8.8", "alice", "bad_password")
	}
	intel := &MockIntelligenceSource{GetIntelligenceFunc: func(ctx context.Context, address string) (*models.IntelligenceRecord, error) {
		return &models.IntelligenceRecord{Address: address, FraudScore: intPtr(0), RiskLevel: models.RiskLevelLow}, nil
	}}
	engine := services.NewDecisionEngine(intel, guard, nil, testDecisionConfig(), newFakeClock())

	decision, _, err := engine.Evaluate(context.Background(), models.RequestContext{IP: "8.8.8.8", Account: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReasonLoginBlocked, decision.Reason)

	decision, _, err = engine.Evaluate(context.Background(), models.RequestContext{IP: "1.1.1.1", Account: "bob"})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReasonClean, decision.Reason)
}
