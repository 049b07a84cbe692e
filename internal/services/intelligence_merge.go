package services

import (
	"sort"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/providers"
)

// Field names a group of IntelligenceRecord fields that share one precedence list
type Field string

const (
	FieldGeo        Field = "geo"        // country, region, city, coordinates, timezone
	FieldNetwork    Field = "network"    // isp, organization, asn
	FieldAnonymizer Field = "anonymizer" // vpn, proxy
	FieldTor        Field = "tor"
	FieldDatacenter Field = "datacenter"
	FieldDevice     Field = "device" // mobile, crawler
	FieldFraudScore Field = "fraud_score"
	FieldAbuseScore Field = "abuse_score"
	FieldBlacklist  Field = "blacklist" // is_blacklisted, reports, confidence
)

// FieldPrecedence maps each field group to the providers consulted for it, highest
// priority first. The first provider with a non-nil value wins; providers missing
// from a list never contribute to that group.
type FieldPrecedence map[Field][]string

// DefaultPrecedence is the documented merge contract.
//
//	geo, network    ipinfo > ipqualityscore > abuseipdb
//	vpn/proxy       ipqualityscore > ipinfo
//	tor             abuseipdb > ipqualityscore > ipinfo
//	datacenter      ipinfo > abuseipdb > ipqualityscore
//	mobile/crawler  ipqualityscore > ipinfo
//	fraud score     ipqualityscore
//	abuse/blacklist abuseipdb
var DefaultPrecedence = FieldPrecedence{
	FieldGeo:        {providers.NameIPInfo, providers.NameIPQualityScore, providers.NameAbuseIPDB},
	FieldNetwork:    {providers.NameIPInfo, providers.NameIPQualityScore, providers.NameAbuseIPDB},
	FieldAnonymizer: {providers.NameIPQualityScore, providers.NameIPInfo},
	FieldTor:        {providers.NameAbuseIPDB, providers.NameIPQualityScore, providers.NameIPInfo},
	FieldDatacenter: {providers.NameIPInfo, providers.NameAbuseIPDB, providers.NameIPQualityScore},
	FieldDevice:     {providers.NameIPQualityScore, providers.NameIPInfo},
	FieldFraudScore: {providers.NameIPQualityScore},
	FieldAbuseScore: {providers.NameAbuseIPDB},
	FieldBlacklist:  {providers.NameAbuseIPDB},
}

// pick returns a copy of the first non-nil value along the precedence order
func pick[T any](parts map[string]*providers.Partial, order []string, get func(*providers.Partial) *T) *T {
	for _, name := range order {
		part, ok := parts[name]
		if !ok {
			continue
		}
		if v := get(part); v != nil {
			c := *v
			return &c
		}
	}
	return nil
}

func flag(v *bool) bool {
	return v != nil && *v
}

// MergeResults folds provider results into one record using the precedence table.
// Failed results contribute nothing. RiskLevel is recomputed from the merged fields.
func MergeResults(address string, results []providers.Result, precedence FieldPrecedence, now time.Time) *models.IntelligenceRecord {
	parts := make(map[string]*providers.Partial, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		parts[r.Provider] = r.Partial
		sources = append(sources, r.Provider)
	}
	sort.Strings(sources)

	geo := precedence[FieldGeo]
	network := precedence[FieldNetwork]
	anonymizer := precedence[FieldAnonymizer]
	device := precedence[FieldDevice]
	blacklist := precedence[FieldBlacklist]

	rec := &models.IntelligenceRecord{
		Address:     address,
		CountryCode: pick(parts, geo, func(p *providers.Partial) *string { return p.CountryCode }),
		Region:      pick(parts, geo, func(p *providers.Partial) *string { return p.Region }),
		City:        pick(parts, geo, func(p *providers.Partial) *string { return p.City }),
		Latitude:    pick(parts, geo, func(p *providers.Partial) *float64 { return p.Latitude }),
		Longitude:   pick(parts, geo, func(p *providers.Partial) *float64 { return p.Longitude }),
		Timezone:    pick(parts, geo, func(p *providers.Partial) *string { return p.Timezone }),

		ISP:          pick(parts, network, func(p *providers.Partial) *string { return p.ISP }),
		Organization: pick(parts, network, func(p *providers.Partial) *string { return p.Organization }),
		ASN:          pick(parts, network, func(p *providers.Partial) *int { return p.ASN }),

		IsVPN:        flag(pick(parts, anonymizer, func(p *providers.Partial) *bool { return p.IsVPN })),
		IsProxy:      flag(pick(parts, anonymizer, func(p *providers.Partial) *bool { return p.IsProxy })),
		IsTor:        flag(pick(parts, precedence[FieldTor], func(p *providers.Partial) *bool { return p.IsTor })),
		IsDatacenter: flag(pick(parts, precedence[FieldDatacenter], func(p *providers.Partial) *bool { return p.IsDatacenter })),
		IsMobile:     flag(pick(parts, device, func(p *providers.Partial) *bool { return p.IsMobile })),
		IsCrawler:    flag(pick(parts, device, func(p *providers.Partial) *bool { return p.IsCrawler })),

		FraudScore: pick(parts, precedence[FieldFraudScore], func(p *providers.Partial) *int { return p.FraudScore }),
		AbuseScore: pick(parts, precedence[FieldAbuseScore], func(p *providers.Partial) *int { return p.AbuseScore }),

		IsBlacklisted: flag(pick(parts, blacklist, func(p *providers.Partial) *bool { return p.IsBlacklisted })),

		SourcesChecked: sources,
		LastCheckedAt:  now,
	}

	if v := pick(parts, blacklist, func(p *providers.Partial) *int { return p.BlacklistReports }); v != nil {
		rec.BlacklistReports = *v
	}
	if v := pick(parts, blacklist, func(p *providers.Partial) *int { return p.BlacklistConfidence }); v != nil {
		rec.BlacklistConfidence = *v
	}

	rec.RiskLevel = models.ComputeRiskLevel(rec)
	return rec
}
