package services

import (
	"context"
	"strings"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
)

// IntelligenceSource resolves intelligence for an address
type IntelligenceSource interface {
	GetIntelligence(ctx context.Context, address string) (*models.IntelligenceRecord, error)
}

// LoginStateReader exposes the guard's read-only check
type LoginStateReader interface {
	CheckAllowed(ip, account string) *models.LoginCheck
}

// DecisionRecorder persists decisions without blocking the caller
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, decision *models.SecurityDecision)
}

// DecisionConfig holds the engine's tunables
type DecisionConfig struct {
	// TrustedCountries are ISO 3166-1 alpha-2 codes; empty means no region is trusted
	TrustedCountries []string
	// BlacklistBlockConfidence is the minimum blacklist confidence that blocks outright
	BlacklistBlockConfidence int
}

// DecisionEngine renders one disposition per request from an ordered rule chain.
// It holds no per-request state.
type DecisionEngine struct {
	intel   IntelligenceSource
	guard   LoginStateReader
	audit   DecisionRecorder
	config  DecisionConfig
	trusted map[string]struct{}
	clock   Clock
}

// NewDecisionEngine creates a new DecisionEngine. guard and audit may be nil.
func NewDecisionEngine(intel IntelligenceSource, guard LoginStateReader, audit DecisionRecorder, config DecisionConfig, clock Clock) *DecisionEngine {
	if clock == nil {
		clock = SystemClock()
	}
	trusted := make(map[string]struct{}, len(config.TrustedCountries))
	for _, c := range config.TrustedCountries {
		trusted[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &DecisionEngine{
		intel:   intel,
		guard:   guard,
		audit:   audit,
		config:  config,
		trusted: trusted,
		clock:   clock,
	}
}

// Decide evaluates the rule chain and records the decision. Recording never
// changes the returned disposition.
func (e *DecisionEngine) Decide(ctx context.Context, reqCtx models.RequestContext, intel *models.IntelligenceRecord) models.Decision {
	decision := e.evaluate(reqCtx, intel)

	metrics.DecisionsTotal.WithLabelValues(string(decision.Disposition), decision.Reason).Inc()
	if e.audit != nil {
		e.audit.RecordDecision(ctx, models.NewSecurityDecision(reqCtx, intel, decision, e.clock.Now()))
	}

	return decision
}

// Evaluate looks up intelligence for the request IP and decides. Only an invalid IP is an error.
func (e *DecisionEngine) Evaluate(ctx context.Context, reqCtx models.RequestContext) (models.Decision, *models.IntelligenceRecord, error) {
	intel, err := e.intel.GetIntelligence(ctx, reqCtx.IP)
	if err != nil {
		return models.Decision{}, nil, err
	}
	return e.Decide(ctx, reqCtx, intel), intel, nil
}

// evaluate is the rule chain; the first matching rule wins
func (e *DecisionEngine) evaluate(reqCtx models.RequestContext, intel *models.IntelligenceRecord) models.Decision {
	if intel == nil {
		intel = &models.IntelligenceRecord{Address: reqCtx.IP, RiskLevel: models.RiskLevelUnknown}
	}

	switch {
	case intel.IsTor:
		return block(models.DecisionReasonTorExitNode)
	case intel.IsBlacklisted && intel.BlacklistConfidence >= e.config.BlacklistBlockConfidence:
		return block(models.DecisionReasonBlacklistedIP)
	}

	if e.guard != nil {
		if check := e.guard.CheckAllowed(reqCtx.IP, reqCtx.Account); !check.Allowed {
			return block(models.DecisionReasonLoginBlocked)
		}
	}

	trusted := e.isTrusted(intel.CountryCode)

	switch {
	case intel.IsVPN && !trusted:
		return models.Decision{Disposition: models.DispositionChallenge, Reason: models.DecisionReasonVPNUntrustedRegion}
	case intel.IsProxy && !trusted:
		return models.Decision{Disposition: models.DispositionChallenge, Reason: models.DecisionReasonProxyUntrustedRegion}
	case intel.IsDatacenter:
		return models.Decision{Disposition: models.DispositionChallenge, Reason: models.DecisionReasonDatacenterIP}
	case intel.RiskLevel == models.RiskLevelHigh || intel.RiskLevel == models.RiskLevelCritical:
		return models.Decision{Disposition: models.DispositionFlag, Reason: models.DecisionReasonHighRisk}
	case intel.IsVPN && trusted:
		return models.Decision{Disposition: models.DispositionFlag, Reason: models.DecisionReasonVPNTrustedRegion}
	}

	return models.Decision{Disposition: models.DispositionAllow, Reason: models.DecisionReasonClean}
}

func (e *DecisionEngine) isTrusted(country *string) bool {
	if country == nil {
		return false
	}
	_, ok := e.trusted[strings.ToUpper(*country)]
	return ok
}

func block(reason string) models.Decision {
	return models.Decision{Disposition: models.DispositionBlock, Reason: reason}
}
