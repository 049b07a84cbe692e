package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultIPInfoBaseURL = "https://ipinfo.io"

// IPInfo supplies geo and network ownership, plus privacy flags on plans that include them
type IPInfo struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewIPInfo creates the adapter. An empty baseURL uses the public endpoint.
func NewIPInfo(token, baseURL string, client *http.Client) *IPInfo {
	if baseURL == "" {
		baseURL = defaultIPInfoBaseURL
	}
	return &IPInfo{token: token, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *IPInfo) Name() string  { return NameIPInfo }
func (p *IPInfo) Enabled() bool { return p.token != "" }

type ipinfoResponse struct {
	IP       string `json:"ip"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
	Privacy  *struct {
		VPN     bool `json:"vpn"`
		Proxy   bool `json:"proxy"`
		Tor     bool `json:"tor"`
		Relay   bool `json:"relay"`
		Hosting bool `json:"hosting"`
	} `json:"privacy"`
	Carrier *struct {
		Name string `json:"name"`
	} `json:"carrier"`
}

func (p *IPInfo) Lookup(ctx context.Context, ip string) (*Partial, error) {
	endpoint := p.baseURL + "/" + url.PathEscape(ip) + "/json"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.token)

	var payload ipinfoResponse
	if err := getJSON(ctx, p.client, p.Name(), endpoint, header, &payload); err != nil {
		return nil, err
	}

	part := &Partial{
		CountryCode: strPtr(strings.ToUpper(payload.Country)),
		Region:      strPtr(payload.Region),
		City:        strPtr(payload.City),
		Timezone:    strPtr(payload.Timezone),
	}

	if lat, long, ok := parseLoc(payload.Loc); ok {
		part.Latitude = &lat
		part.Longitude = &long
	}

	if asn, org, ok := parseOrg(payload.Org); ok {
		part.ASN = &asn
		part.Organization = strPtr(org)
	} else {
		part.Organization = strPtr(payload.Org)
	}

	if payload.Privacy != nil {
		part.IsVPN = boolPtr(payload.Privacy.VPN)
		part.IsProxy = boolPtr(payload.Privacy.Proxy || payload.Privacy.Relay)
		part.IsTor = boolPtr(payload.Privacy.Tor)
		part.IsDatacenter = boolPtr(payload.Privacy.Hosting)
	}
	if payload.Carrier != nil && payload.Carrier.Name != "" {
		part.IsMobile = boolPtr(true)
	}

	return part, nil
}

// parseLoc splits ipinfo's "lat,long" string
func parseLoc(loc string) (float64, float64, bool) {
	latStr, longStr, found := strings.Cut(loc, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(longStr), 64)
	if err != nil || long < -180 || long > 180 {
		return 0, 0, false
	}
	return lat, long, true
}

// parseOrg splits "AS15169 Google LLC" into the ASN and the organization name
func parseOrg(org string) (int, string, bool) {
	prefix, name, _ := strings.Cut(org, " ")
	if !strings.HasPrefix(prefix, "AS") {
		return 0, "", false
	}
	asn, err := strconv.Atoi(strings.TrimPrefix(prefix, "AS"))
	if err != nil || asn <= 0 {
		return 0, "", false
	}
	return asn, name, true
}
