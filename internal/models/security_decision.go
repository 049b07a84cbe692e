package models

import (
	"time"

	"github.com/google/uuid"
)

// Disposition is the engine's final verdict for a request
type Disposition string

const (
	DispositionAllow     Disposition = "allow"
	DispositionBlock     Disposition = "block"
	DispositionChallenge Disposition = "challenge"
	DispositionFlag      Disposition = "flag"
)

// Decision reason codes
const (
	DecisionReasonTorExitNode          = "tor_exit_node"
	DecisionReasonBlacklistedIP        = "blacklisted_ip"
	DecisionReasonLoginBlocked         = "login_blocked"
	DecisionReasonVPNUntrustedRegion   = "vpn_untrusted_region"
	DecisionReasonProxyUntrustedRegion = "proxy_untrusted_region"
	DecisionReasonDatacenterIP         = "datacenter_ip"
	DecisionReasonHighRisk             = "high_risk"
	DecisionReasonVPNTrustedRegion     = "vpn_trusted_region"
	DecisionReasonClean                = "clean"
)

// RequestContext describes the inbound request being judged
type RequestContext struct {
	IP          string `json:"ip"`
	Fingerprint string `json:"fingerprint,omitempty"`
	VisitorID   string `json:"visitor_id,omitempty"`
	Account     string `json:"account,omitempty"`
	Path        string `json:"path,omitempty"`
	Method      string `json:"method,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// Decision is what the engine returns to the caller
type Decision struct {
	Disposition Disposition `json:"disposition"`
	Reason      string      `json:"reason"`
}

// SecurityDecision is the append-only audit row for one decision
type SecurityDecision struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	IP          string      `json:"ip" db:"ip"`
	Fingerprint *string     `json:"fingerprint,omitempty" db:"fingerprint"`
	VisitorID   *string     `json:"visitor_id,omitempty" db:"visitor_id"`
	Disposition Disposition `json:"disposition" db:"disposition"`
	Reason      string      `json:"reason" db:"reason"`
	Path        *string     `json:"path,omitempty" db:"path"`
	Method      *string     `json:"method,omitempty" db:"method"`
	UserAgent   *string     `json:"user_agent,omitempty" db:"user_agent"`

	// Snapshot of the intelligence used
	RiskLevel   RiskLevel `json:"risk_level" db:"risk_level"`
	FraudScore  *int      `json:"fraud_score,omitempty" db:"fraud_score"`
	IsVPN       bool      `json:"is_vpn" db:"is_vpn"`
	IsProxy     bool      `json:"is_proxy" db:"is_proxy"`
	CountryCode *string   `json:"country_code,omitempty" db:"country_code"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewSecurityDecision builds the audit row from the request, the intelligence and the verdict
func NewSecurityDecision(reqCtx RequestContext, intel *IntelligenceRecord, decision Decision, now time.Time) *SecurityDecision {
	d := &SecurityDecision{
		ID:          uuid.New(),
		IP:          reqCtx.IP,
		Fingerprint: optionalString(reqCtx.Fingerprint),
		VisitorID:   optionalString(reqCtx.VisitorID),
		Disposition: decision.Disposition,
		Reason:      decision.Reason,
		Path:        optionalString(reqCtx.Path),
		Method:      optionalString(reqCtx.Method),
		UserAgent:   optionalString(reqCtx.UserAgent),
		RiskLevel:   RiskLevelUnknown,
		CreatedAt:   now,
	}
	if intel != nil {
		d.RiskLevel = intel.RiskLevel
		d.FraudScore = cloneInt(intel.FraudScore)
		d.IsVPN = intel.IsVPN
		d.IsProxy = intel.IsProxy
		d.CountryCode = cloneString(intel.CountryCode)
	}
	return d
}

// SecurityEvent is an append-only guard event (failures, successes, blocks)
type SecurityEvent struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	EventType string        `json:"event_type" db:"event_type"`
	IP        string        `json:"ip" db:"ip"`
	Account   *string       `json:"account,omitempty" db:"account"`
	Reason    *string       `json:"reason,omitempty" db:"reason"`
	Metadata  EventMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
