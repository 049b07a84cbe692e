package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.ServiceClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func serviceClaims(scopes ...string) *models.ServiceClaims {
	return &models.ServiceClaims{
		Type:    models.TokenTypeService,
		Service: "edge-router",
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateToken(t *testing.T) {
	tv := auth.NewTokenValidator(testSecret)

	claims, err := tv.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), serviceClaims(models.ScopeRead)))
	require.NoError(t, err)
	assert.Equal(t, "edge-router", claims.Service)
	assert.True(t, claims.HasScope(models.ScopeRead))
	assert.False(t, claims.HasScope(models.ScopeAdmin))
}

func TestValidateToken_Rejects(t *testing.T) {
	tv := auth.NewTokenValidator(testSecret)

	expired := serviceClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := serviceClaims()
	noExpiry.ExpiresAt = nil

	userToken := serviceClaims()
	userToken.Type = "access"

	anonymous := serviceClaims()
	anonymous.Service = ""

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("another-secret-entirely"), serviceClaims())},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), serviceClaims())},
		{"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"missing expiry", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry)},
		{"not a service token", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), userToken)},
		{"missing service", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), anonymous)},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := tv.ValidateToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func newProtected(scope string) http.Handler {
	tv := auth.NewTokenValidator(testSecret)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetServiceFromContext(r.Context())
		w.Header().Set("X-Service", claims.Service)
		w.WriteHeader(http.StatusOK)
	})
	return auth.ServiceAuth(tv, logger)(auth.RequireScope(scope)(final))
}

func TestServiceAuth(t *testing.T) {
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), serviceClaims(models.ScopeRead))
	admin := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), serviceClaims(models.ScopeAll))

	tests := []struct {
		name     string
		header   string
		scope    string
		wantCode int
	}{
		{"missing header", "", models.ScopeRead, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, models.ScopeRead, http.StatusUnauthorized},
		{"empty token", "Bearer ", models.ScopeRead, http.StatusUnauthorized},
		{"invalid token", "Bearer nope", models.ScopeRead, http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, models.ScopeRead, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, models.ScopeRead, http.StatusOK},
		{"insufficient scope", "Bearer " + valid, models.ScopeAdmin, http.StatusForbidden},
		{"wildcard scope", "Bearer " + admin, models.ScopeAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/intelligence/8.8.8.8", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			newProtected(tt.scope).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "edge-router", w.Header().Get("X-Service"))
			}
		})
	}
}

func TestRequireScope_WithoutAuth(t *testing.T) {
	handler := auth.RequireScope(models.ScopeRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, auth.GetServiceFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
