package models

import "time"

// RiskLevel is a coarse ordinal classification derived from scores and flags
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
	RiskLevelUnknown  RiskLevel = "unknown"
)

// Risk rubric thresholds
const (
	CriticalFraudScore = 90
	HighFraudScore     = 75
	MediumFraudScore   = 50
	HighAbuseScore     = 50
	MediumAbuseScore   = 25
)

// SourceLocal marks records produced without any provider call (private ranges)
const SourceLocal = "local"

// IntelligenceRecord is the merged view of one IP address, one row per address in ip_intelligence
type IntelligenceRecord struct {
	Address string `json:"address" db:"address"`

	// Geo
	CountryCode *string  `json:"country_code,omitempty" db:"country_code"`
	Region      *string  `json:"region,omitempty" db:"region"`
	City        *string  `json:"city,omitempty" db:"city"`
	Latitude    *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64 `json:"longitude,omitempty" db:"longitude"`
	Timezone    *string  `json:"timezone,omitempty" db:"timezone"`

	// Network
	ISP          *string `json:"isp,omitempty" db:"isp"`
	Organization *string `json:"organization,omitempty" db:"organization"`
	ASN          *int    `json:"asn,omitempty" db:"asn"`

	IsVPN        bool `json:"is_vpn" db:"is_vpn"`
	IsProxy      bool `json:"is_proxy" db:"is_proxy"`
	IsTor        bool `json:"is_tor" db:"is_tor"`
	IsDatacenter bool `json:"is_datacenter" db:"is_datacenter"`
	IsMobile     bool `json:"is_mobile" db:"is_mobile"`
	IsCrawler    bool `json:"is_crawler" db:"is_crawler"`

	FraudScore *int `json:"fraud_score,omitempty" db:"fraud_score"`
	AbuseScore *int `json:"abuse_score,omitempty" db:"abuse_score"`

	IsBlacklisted       bool `json:"is_blacklisted" db:"is_blacklisted"`
	BlacklistReports    int  `json:"blacklist_reports" db:"blacklist_reports"`
	BlacklistConfidence int  `json:"blacklist_confidence" db:"blacklist_confidence"`

	RiskLevel      RiskLevel `json:"risk_level" db:"risk_level"`
	SourcesChecked []string  `json:"sources_checked" db:"sources_checked"`
	LastCheckedAt  time.Time `json:"last_checked_at" db:"last_checked_at"`
}

// IsSuspicious reports whether the record belongs in the short-TTL class
func (r *IntelligenceRecord) IsSuspicious() bool {
	if r.IsVPN || r.IsProxy || r.IsTor || r.IsBlacklisted {
		return true
	}
	return r.FraudScore != nil && *r.FraudScore >= HighFraudScore
}

// ComputeRiskLevel derives the risk level from the other fields of the record.
// It is a pure function and is applied on every refresh.
func ComputeRiskLevel(r *IntelligenceRecord) RiskLevel {
	fraud, hasFraud := intValue(r.FraudScore)
	abuse, hasAbuse := intValue(r.AbuseScore)

	switch {
	case r.IsTor || r.IsBlacklisted || (hasFraud && fraud >= CriticalFraudScore):
		return RiskLevelCritical
	case ((r.IsVPN || r.IsProxy) && r.IsDatacenter) ||
		(hasFraud && fraud >= HighFraudScore) ||
		(hasAbuse && abuse >= HighAbuseScore):
		return RiskLevelHigh
	case r.IsVPN || r.IsProxy ||
		(hasFraud && fraud >= MediumFraudScore) ||
		(hasAbuse && abuse >= MediumAbuseScore):
		return RiskLevelMedium
	}

	// Low needs at least one score to vouch for the address; every known score
	// is already below its medium threshold at this point.
	if hasFraud || hasAbuse {
		return RiskLevelLow
	}
	return RiskLevelUnknown
}

// NewLocalRecord returns the fixed zero-risk record used for private and reserved ranges
func NewLocalRecord(address string, now time.Time) *IntelligenceRecord {
	zero := 0
	return &IntelligenceRecord{
		Address:        address,
		FraudScore:     &zero,
		AbuseScore:     &zero,
		RiskLevel:      RiskLevelLow,
		SourcesChecked: []string{SourceLocal},
		LastCheckedAt:  now,
	}
}

// Clone returns a deep copy so cached records are never shared with callers
func (r *IntelligenceRecord) Clone() *IntelligenceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CountryCode = cloneString(r.CountryCode)
	c.Region = cloneString(r.Region)
	c.City = cloneString(r.City)
	c.Timezone = cloneString(r.Timezone)
	c.ISP = cloneString(r.ISP)
	c.Organization = cloneString(r.Organization)
	c.Latitude = cloneFloat(r.Latitude)
	c.Longitude = cloneFloat(r.Longitude)
	c.ASN = cloneInt(r.ASN)
	c.FraudScore = cloneInt(r.FraudScore)
	c.AbuseScore = cloneInt(r.AbuseScore)
	c.SourcesChecked = append([]string(nil), r.SourcesChecked...)
	return &c
}

func intValue(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
