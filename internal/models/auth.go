package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeService is the only token type accepted on the risk API
const TokenTypeService = "service"

// ServiceClaims identifies a calling service (routing layer, storefront, admin tooling)
type ServiceClaims struct {
	Type    string   `json:"type"`
	Service string   `json:"service"`
	Scopes  []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants the named scope
func (c *ServiceClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// API scopes
const (
	ScopeAll      = "*"
	ScopeRead     = "risk.read"
	ScopeEvaluate = "risk.evaluate"
	ScopeAdmin    = "risk.admin"
)
