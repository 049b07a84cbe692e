package models_test

import (
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestComputeRiskLevel(t *testing.T) {
	tests := []struct {
		name   string
		record models.IntelligenceRecord
		want   models.RiskLevel
	}{
		{"tor is critical", models.IntelligenceRecord{IsTor: true}, models.RiskLevelCritical},
		{"blacklisted is critical", models.IntelligenceRecord{IsBlacklisted: true, FraudScore: intPtr(0)}, models.RiskLevelCritical},
		{"fraud 90 is critical", models.IntelligenceRecord{FraudScore: intPtr(90)}, models.RiskLevelCritical},
		{"vpn in datacenter is high", models.IntelligenceRecord{IsVPN: true, IsDatacenter: true}, models.RiskLevelHigh},
		{"proxy in datacenter is high", models.IntelligenceRecord{IsProxy: true, IsDatacenter: true}, models.RiskLevelHigh},
		{"fraud 75 is high", models.IntelligenceRecord{FraudScore: intPtr(75)}, models.RiskLevelHigh},
		{"abuse 50 is high", models.IntelligenceRecord{AbuseScore: intPtr(50)}, models.RiskLevelHigh},
		{"vpn alone is medium", models.IntelligenceRecord{IsVPN: true}, models.RiskLevelMedium},
		{"fraud 50 is medium", models.IntelligenceRecord{FraudScore: intPtr(50)}, models.RiskLevelMedium},
		{"abuse 25 is medium", models.IntelligenceRecord{AbuseScore: intPtr(25), FraudScore: intPtr(5)}, models.RiskLevelMedium},
		{"low scores are low", models.IntelligenceRecord{FraudScore: intPtr(49), AbuseScore: intPtr(24)}, models.RiskLevelLow},
		{"single low score is low", models.IntelligenceRecord{FraudScore: intPtr(10)}, models.RiskLevelLow},
		{"datacenter alone without scores is unknown", models.IntelligenceRecord{IsDatacenter: true}, models.RiskLevelUnknown},
		{"nothing known is unknown", models.IntelligenceRecord{}, models.RiskLevelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.record
			assert.Equal(t, tt.want, models.ComputeRiskLevel(&rec))
		})
	}
}

func TestIntelligenceRecord_IsSuspicious(t *testing.T) {
	assert.True(t, (&models.IntelligenceRecord{IsVPN: true}).IsSuspicious())
	assert.True(t, (&models.IntelligenceRecord{IsProxy: true}).IsSuspicious())
	assert.True(t, (&models.IntelligenceRecord{IsTor: true}).IsSuspicious())
	assert.True(t, (&models.IntelligenceRecord{IsBlacklisted: true}).IsSuspicious())
	assert.True(t, (&models.IntelligenceRecord{FraudScore: intPtr(80)}).IsSuspicious())
	assert.False(t, (&models.IntelligenceRecord{FraudScore: intPtr(40), IsDatacenter: true}).IsSuspicious())
}

func TestIntelligenceRecord_CloneIsDeep(t *testing.T) {
	country := "MA"
	orig := &models.IntelligenceRecord{
		Address:        "203.0.113.7",
		CountryCode:    &country,
		FraudScore:     intPtr(12),
		SourcesChecked: []string{"ipinfo"},
		LastCheckedAt:  time.Now(),
	}

	clone := orig.Clone()
	*clone.CountryCode = "FR"
	*clone.FraudScore = 99
	clone.SourcesChecked[0] = "tampered"

	assert.Equal(t, "MA", *orig.CountryCode)
	assert.Equal(t, 12, *orig.FraudScore)
	assert.Equal(t, "ipinfo", orig.SourcesChecked[0])
}

func TestLoginBlockedError_MatchesSentinel(t *testing.T) {
	until := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	err := error(&models.LoginBlockedError{Reason: models.ReasonIPBlocked, BlockedUntil: until})

	assert.ErrorIs(t, err, models.ErrLoginBlocked)
	blocked := err.(*models.LoginBlockedError)
	assert.Equal(t, 30*time.Minute, blocked.RetryAfter(until.Add(-30*time.Minute)))
	assert.Equal(t, time.Duration(0), blocked.RetryAfter(until.Add(time.Minute)))
}
