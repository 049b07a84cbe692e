package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultAbuseIPDBBaseURL = "https://api.abuseipdb.com/api/v2"

// BlacklistMinConfidence is the AbuseIPDB confidence at which an address counts as blacklisted
const BlacklistMinConfidence = 50

// AbuseIPDB is authoritative for blacklist fields
type AbuseIPDB struct {
	apiKey     string
	baseURL    string
	maxAgeDays int
	client     *http.Client
}

// NewAbuseIPDB creates the adapter. An empty baseURL uses the public endpoint.
func NewAbuseIPDB(apiKey, baseURL string, client *http.Client) *AbuseIPDB {
	if baseURL == "" {
		baseURL = defaultAbuseIPDBBaseURL
	}
	return &AbuseIPDB{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), maxAgeDays: 90, client: client}
}

func (p *AbuseIPDB) Name() string  { return NameAbuseIPDB }
func (p *AbuseIPDB) Enabled() bool { return p.apiKey != "" }

type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		IsPublic             bool   `json:"isPublic"`
		IsWhitelisted        *bool  `json:"isWhitelisted"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		TotalReports         int    `json:"totalReports"`
		IsTor                bool   `json:"isTor"`
	} `json:"data"`
}

func (p *AbuseIPDB) Lookup(ctx context.Context, ip string) (*Partial, error) {
	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", fmt.Sprintf("%d", p.maxAgeDays))
	endpoint := p.baseURL + "/check?" + q.Encode()

	header := http.Header{}
	header.Set("Key", p.apiKey)

	var payload abuseIPDBResponse
	if err := getJSON(ctx, p.client, p.Name(), endpoint, header, &payload); err != nil {
		return nil, err
	}
	d := payload.Data

	confidence := score(d.AbuseConfidenceScore)
	whitelisted := d.IsWhitelisted != nil && *d.IsWhitelisted

	return &Partial{
		CountryCode:         strPtr(strings.ToUpper(d.CountryCode)),
		ISP:                 strPtr(d.ISP),
		IsTor:               boolPtr(d.IsTor),
		IsDatacenter:        boolPtr(strings.Contains(d.UsageType, "Data Center")),
		AbuseScore:          confidence,
		IsBlacklisted:       boolPtr(!whitelisted && *confidence >= BlacklistMinConfidence),
		BlacklistReports:    intPtr(max(d.TotalReports, 0)),
		BlacklistConfidence: confidence,
	}, nil
}
