package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// leeway tolerates clock skew between the token issuer and this service
const leeway = 30 * time.Second

// TokenValidator verifies bearer tokens presented by calling services.
// Tokens are issued elsewhere; this service only validates them.
type TokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenValidator creates a new TokenValidator for HS256 tokens signed with secret
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// ValidateToken verifies a token and returns its claims
func (tv *TokenValidator) ValidateToken(tokenString string) (*models.ServiceClaims, error) {
	claims := &models.ServiceClaims{}

	token, err := tv.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tv.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != models.TokenTypeService {
		return nil, fmt.Errorf("%w: token type %q", models.ErrUnauthorized, claims.Type)
	}
	if claims.Service == "" {
		return nil, fmt.Errorf("%w: missing service", models.ErrUnauthorized)
	}

	return claims, nil
}
