// Package providers adapts external IP reputation services into typed partial intelligence.
package providers

import (
	"context"
	"time"
)

// Provider names, also used as precedence keys and in sources_checked
const (
	NameIPQualityScore = "ipqualityscore"
	NameAbuseIPDB      = "abuseipdb"
	NameIPInfo         = "ipinfo"
)

// Provider is one external reputation source
type Provider interface {
	Name() string
	// Enabled is false when no credential is configured
	Enabled() bool
	Lookup(ctx context.Context, ip string) (*Partial, error)
}

// Partial is what a single provider knows about an address. Nil means "no answer".
type Partial struct {
	CountryCode *string
	Region      *string
	City        *string
	Latitude    *float64
	Longitude   *float64
	Timezone    *string

	ISP          *string
	Organization *string
	ASN          *int

	IsVPN        *bool
	IsProxy      *bool
	IsTor        *bool
	IsDatacenter *bool
	IsMobile     *bool
	IsCrawler    *bool

	FraudScore *int
	AbuseScore *int

	IsBlacklisted       *bool
	BlacklistReports    *int
	BlacklistConfidence *int
}

// Result is the outcome of one provider call, aggregated by the intelligence cache
type Result struct {
	Provider string
	Partial  *Partial
	Err      error
	Latency  time.Duration
}

// OK reports whether the provider contributed fields
func (r Result) OK() bool {
	return r.Err == nil && r.Partial != nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}

// score clamps a provider score into 0..100
func score(v int) *int {
	switch {
	case v < 0:
		v = 0
	case v > 100:
		v = 100
	}
	return &v
}
