package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultIPQSBaseURL = "https://ipqualityscore.com/api/json/ip"

// IPQualityScore is the dedicated fraud and anonymizer detector
type IPQualityScore struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewIPQualityScore creates the adapter. An empty baseURL uses the public endpoint.
func NewIPQualityScore(apiKey, baseURL string, client *http.Client) *IPQualityScore {
	if baseURL == "" {
		baseURL = defaultIPQSBaseURL
	}
	return &IPQualityScore{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *IPQualityScore) Name() string  { return NameIPQualityScore }
func (p *IPQualityScore) Enabled() bool { return p.apiKey != "" }

type ipqsResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	FraudScore     *int     `json:"fraud_score"`
	CountryCode    string   `json:"country_code"`
	Region         string   `json:"region"`
	City           string   `json:"city"`
	ISP            string   `json:"ISP"`
	Organization   string   `json:"organization"`
	ASN            int      `json:"ASN"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Timezone       string   `json:"timezone"`
	Mobile         bool     `json:"mobile"`
	Proxy          bool     `json:"proxy"`
	VPN            bool     `json:"vpn"`
	Tor            bool     `json:"tor"`
	IsCrawler      bool     `json:"is_crawler"`
	ConnectionType string   `json:"connection_type"`
}

func (p *IPQualityScore) Lookup(ctx context.Context, ip string) (*Partial, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?strictness=1&allow_public_access_points=true",
		p.baseURL, url.PathEscape(p.apiKey), url.PathEscape(ip))

	var payload ipqsResponse
	if err := getJSON(ctx, p.client, p.Name(), endpoint, nil, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("%s: lookup rejected: %s", p.Name(), payload.Message)
	}

	part := &Partial{
		CountryCode:  strPtr(strings.ToUpper(payload.CountryCode)),
		Region:       strPtr(payload.Region),
		City:         strPtr(payload.City),
		Latitude:     payload.Latitude,
		Longitude:    payload.Longitude,
		Timezone:     strPtr(payload.Timezone),
		ISP:          strPtr(payload.ISP),
		Organization: strPtr(payload.Organization),
		IsVPN:        boolPtr(payload.VPN),
		// IPQS reports vpn and tor as subsets of proxy
		IsProxy:      boolPtr(payload.Proxy && !payload.VPN && !payload.Tor),
		IsTor:        boolPtr(payload.Tor),
		IsDatacenter: boolPtr(strings.EqualFold(payload.ConnectionType, "Data Center")),
		IsMobile:     boolPtr(payload.Mobile),
		IsCrawler:    boolPtr(payload.IsCrawler),
	}
	if payload.ASN > 0 {
		part.ASN = intPtr(payload.ASN)
	}
	if payload.FraudScore != nil {
		part.FraudScore = score(*payload.FraudScore)
	}
	return part, nil
}
