package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds the parsed trusted proxy ranges used for client IP extraction
type IPConfig struct {
	TrustedProxies []netip.Prefix
}

// NewIPConfig parses CIDR ranges and returns the entries that failed to parse.
// Invalid entries are skipped, never trusted.
func NewIPConfig(cidrs []string) (*IPConfig, []string) {
	config := &IPConfig{}
	var invalid []string
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			invalid = append(invalid, cidr)
			continue
		}
		config.TrustedProxies = append(config.TrustedProxies, prefix.Masked())
	}
	return config, invalid
}

// ExtractClientIP returns the real client IP address of the request.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is a
// trusted proxy; otherwise RemoteAddr is used so headers cannot spoof the address.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := remoteAddr(r)

	if config != nil && config.trusts(remote) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, candidate := range strings.Split(xff, ",") {
				if addr, ok := parseIP(candidate); ok {
					return addr.String()
				}
			}
		}
		if addr, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}

	if addr, ok := parseIP(remote); ok {
		return addr.String()
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

func (c *IPConfig) trusts(ip string) bool {
	addr, ok := parseIP(ip)
	if !ok {
		return false
	}
	for _, prefix := range c.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteAddr strips the port from RemoteAddr when present
func remoteAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseIP(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
